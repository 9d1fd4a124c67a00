// Package logging provides structured logging for the KNX monitor.
//
// This package wraps Go's standard log/slog package. The access-port layer
// writes through the same *slog.Logger, so layer messages, transport
// diagnostics and sink errors share one stream and one set of default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("opening access port", "target", target)
//	logger.Error("failed to connect", "error", err)
package logging
