/*
Package log provides structured logging for lookout using zerolog.

The package keeps a single global zerolog.Logger, configured once at startup
through Init, and hands out child loggers tagged with the component they
belong to:

	┌──────────────────── LOGGING ─────────────────────────────┐
	│                                                            │
	│  log.Init(Config)                                          │
	│    - Level: debug/info/warn/error                          │
	│    - Format: JSON or console                               │
	│    - Output: writer, or a rotated file (lumberjack)        │
	│                                                            │
	│  Child loggers                                             │
	│    - WithComponent("audit")                                │
	│    - WithPublisher("inotify")   component=events           │
	│    - WithSubscriber("file_events") component=subscribers   │
	└────────────────────────────────────────────────────────────┘

# Severity conventions

  - Debug: transient I/O errors that are retried (netlink poll/recv failures,
    ENOBUFS), malformed audit records, per-record audit debugging
  - Info: publisher lifecycle (set up, configured, ended), audit handle
    (re)acquisition
  - Warn: lost control of the audit subsystem, rule installation failures
  - Error: subscriber callback failures and panics, unrecoverable publisher
    errors

# File output

When Config.File is set the logger writes JSON to a lumberjack.Logger, which
rotates the file at MaxSizeMB and keeps MaxBackups compressed copies. A
later Init closes the previous file; SetLevel changes only the level, which
is what a configuration reload uses.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("audit")
	logger.Info().Str("status", "active_mutable").Msg("Audit handle acquired")
*/
package log
