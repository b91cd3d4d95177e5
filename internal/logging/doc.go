// Package logging configures slog output for the backer daemon and CLI.
//
// Two handler formats are supported: a console handler that renders
// timestamp, level, component, and flattened key=value pairs on a single
// line, and a JSON handler for machine consumption. File sinks rotate
// through lumberjack so long-running daemons do not grow unbounded logs.
package logging
