// Package logx configures blastd's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// The Service supports hot-swapping sinks and level via Apply(), so a config
// reload changes logging without replacing loggers already handed out.
package logx
