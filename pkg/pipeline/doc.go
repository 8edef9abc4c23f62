// Package pipeline holds the ambient pieces shared by the radio relay:
// structured logging, classified errors and metrics.
//
// # Logging
//
// Logger is a small structured interface with typed Field helpers. The
// StructuredLogger implementation writes through zerolog in either json or
// console format:
//
//	logger := pipeline.NewStructuredLogger(pipeline.LoggingConfig{Level: "debug", Format: "json"})
//	logger.Info("Transcoder started", pipeline.String("guild", guildID), pipeline.Int("attempt", 1))
//
// # Error Handling
//
// The relay's failure classes are sentinel errors (ErrInvalidLocator,
// ErrStallTimeout, ...). Classify maps any error onto a category and severity;
// the severity decides whether the supervisor recovers on its own.
//
// # Metrics
//
// PrometheusCollector keeps counters for launches, relaunches, state
// transitions and errors, and a gauge for registered sessions.
package pipeline
