// Package logging provides structured logging for the relay.
//
// It wraps log/slog so every component logs the same way: JSON lines in
// production, text for development, and default service/version fields on
// every record.
//
// # Outputs
//
// Records always go to the console (stdout or stderr). When logging.file.path
// is set they are also written to that file, rotated by size via lumberjack:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//	  file:
//	    path: "/var/log/relay/relay.log"
//	    max_size: 100    # megabytes
//	    max_backups: 3
//	    max_age: 28      # days
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	defer logger.Close()
//	logger.Info("listener bound", "address", addr)
package logging
