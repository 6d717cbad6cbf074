// Package logx configures relaybot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp, short caller)
//   - file output is JSON lines
//   - an optional chat sink mirrors warnings to an admin chat, rate limited
package logx
