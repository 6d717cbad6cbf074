// Package tgui holds small Telegram UI helpers: inline keyboard builders,
// callback data packing, list pagination and HTML escaping.
package tgui
