/*
Package log provides structured logging for the orchestrator using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("planner")                 │          │
	│  │  - WithRangeID("range-abc123")              │          │
	│  │  - WithGuestID("guest-xyz")                 │          │
	│  │  - WithHostID("host-1")                     │          │
	│  │  - WithTaskID("task-def456")                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │  JSON:    {"level":"info","component":      │          │
	│  │            "planner","message":"plan emitted"}│         │
	│  │  Console: 10:30AM INF plan emitted component=planner │ │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	log.Info("orchestrator starting")

	rangeLog := log.WithRangeID("range-1")
	rangeLog.Info().Int("guest_count", 5).Msg("deploy started")

	taskLog := log.WithComponent("tasks").
		With().Str("guest_id", "guest-3").Str("task_id", "task-9").Logger()
	taskLog.Error().Err(err).Msg("task failed")

# Integration Points

This package is used by pkg/planner, pkg/orchestrator, pkg/transport,
pkg/hypervisor, pkg/images, pkg/registry and cmd/cyris.

# Design Patterns

Global Logger Pattern: a single package-level Logger instance, initialized
once at process start and reachable from every package without threading a
logger through every call.

Context Logger Pattern: child loggers carry range/guest/host/task fields so
callers don't repeat them on every line.

# Best Practices

Do: use Info level in production, structured fields over string
concatenation, component-specific loggers, .Err() for error values.

Don't: log secrets, log in tight loops without sampling, block on log
writes.

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
*/
package log
