/*
Package log provides structured logging for Toka using zerolog.

The log package wraps zerolog to give every subsystem — kernel, bus,
registry, event store, and cluster — a JSON-structured logger with
component scoping, configurable severity, and a small set of helpers for
the common logging patterns those subsystems need.

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

JSONOutput selects machine-parseable JSON; its absence falls back to a
human-readable console writer with RFC3339 timestamps, useful for local
development and tokad's interactive use.

# Component loggers

	kernelLog := log.WithComponent("kernel")
	kernelLog.Info().Str("origin", origin.String()).Msg("submission accepted")

WithNodeID, WithOrigin, and WithEventID attach the corresponding field to
a child logger so log lines for a given cluster node, capability
principal, or causal event can be filtered without re-deriving them from
the message text.

# Package-level helpers

Info, Debug, Warn, Error, Errorf, and Fatal log through the global
Logger directly, for call sites that don't need a component-scoped child
logger.
*/
package log
