// Package logx configures iaa's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - Per-session log files JSON-structured under <root>/logs
//   - Loggers "live" across Service.Apply() so sinks can be swapped at runtime
package logx
