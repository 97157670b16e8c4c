// Package logger provides the structured logging interface used across the harvester.
//
// It wraps zerolog and adds:
// - Structured fields carried by child loggers (WithField, WithFields, WithError)
// - Console output with colors when stdout is a terminal, JSON otherwise
// - Rotated file output through lumberjack
// - A global logger for the CLI layer, explicit loggers everywhere else
// - A capturing TestLogger for assertions in tests
//
// Basic Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("worker", 0)
//	log.InfoWithFields("round stored", map[string]interface{}{
//	    "method":  "users",
//	    "batches": 261,
//	})
//
// File output keeps MaxBackups files of at most MaxSize MB for MaxAge days.
package logger
