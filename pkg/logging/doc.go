// Package logging provides structured logging configuration for mockserver.
//
// This package wraps log/slog so every component logs the same way. The
// console output is text or JSON; an optional rotating file (lumberjack)
// always receives JSON.
//
// # Usage
//
//	log, closer := logging.Open(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	    File:   logging.FileConfig{Path: "/var/log/mockserver.log", MaxSizeMB: 50},
//	})
//	defer closer.Close()
//
//	log.Info("listener bound", "port", 8080)
//
// # Integration
//
// Components accept a *slog.Logger in their constructor or via a setter.
// If no logger is provided, use logging.Nop() for a no-op logger.
package logging
