// Package logging provides structured logging for the MHI HVAC service.
//
// It wraps log/slog so every record carries the service name and build
// version, and hands out component-scoped children.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("sclink").Info("connected", "host", host)
//
// Never log controller or broker passwords.
package logging
