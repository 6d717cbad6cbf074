// Package scheduler registers named daily triggers on a cron clock and
// hands each firing to the task engine. It does not execute jobs itself.
package scheduler
