// Package logging provides structured logging configuration for turq.
//
// This package wraps log/slog so the mock server, the editor and the CLI
// log the same way. It supports configurable log levels, text or JSON
// output, and colored levels in text output.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    Format:  logging.FormatText,
//	    NoColor: os.Getenv("NO_COLOR") != "",
//	})
//
//	logger.Info("mock on 0.0.0.0 port 13085")
//	logger.Error("rule evaluation failed", "line", 3, "error", err)
//
// # Integration
//
// Components accept a *slog.Logger through a functional option. If no
// logger is provided they use logging.Nop().
package logging
