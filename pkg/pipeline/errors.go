package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by the relay components. Wrap them with %w and
// match with errors.Is.
var (
	// ErrInvalidLocator is returned when a source locator cannot be parsed.
	ErrInvalidLocator = errors.New("invalid source locator")
	// ErrBinaryUnavailable is returned when no usable ffmpeg binary exists.
	ErrBinaryUnavailable = errors.New("transcoder binary unavailable")
	// ErrCapabilityRejected marks a transcoder that refused an advanced option.
	ErrCapabilityRejected = errors.New("transcoder rejected option")
	// ErrStallTimeout marks a transcoder that produced no output in time.
	ErrStallTimeout = errors.New("stream stalled")
	// ErrProcessExit marks a transcoder that exited while still expected to stream.
	ErrProcessExit = errors.New("transcoder exited")
	// ErrRetryExhausted is reported once a session gave up relaunching.
	ErrRetryExhausted = errors.New("retry limit reached")
	// ErrSinkRejection marks a playback sink error on the delivered stream.
	ErrSinkRejection = errors.New("playback sink rejected stream")
	// ErrSessionStopped is returned for commands sent to a stopped session.
	ErrSessionStopped = errors.New("session stopped")
)

// ErrorSeverity represents the severity level of pipeline errors
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ErrorCategory represents the category of pipeline errors
type ErrorCategory int

const (
	CategoryNetwork ErrorCategory = iota
	CategoryStream
	CategoryProcess
	CategoryVoice
	CategorySystem
	CategoryInput
	CategoryUnknown
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryStream:
		return "stream"
	case CategoryProcess:
		return "process"
	case CategoryVoice:
		return "voice"
	case CategorySystem:
		return "system"
	case CategoryInput:
		return "input"
	default:
		return "unknown"
	}
}

// PipelineError represents an error in the audio pipeline with classification
type PipelineError struct {
	Err       error
	Category  ErrorCategory
	Severity  ErrorSeverity
	Timestamp time.Time
	Context   map[string]interface{}
	Retryable bool
}

func (pe *PipelineError) Error() string {
	return pe.Err.Error()
}

func (pe *PipelineError) Unwrap() error {
	return pe.Err
}

// WithContext attaches a key/value pair and returns the same error.
func (pe *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	pe.Context[key] = value
	return pe
}

// NewPipelineError creates a new classified pipeline error
func NewPipelineError(err error, category ErrorCategory, severity ErrorSeverity) *PipelineError {
	return &PipelineError{
		Err:       err,
		Category:  category,
		Severity:  severity,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
		Retryable: severity <= SeverityMedium,
	}
}

// Classify maps an error onto its category and severity.
func Classify(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	// Exhaustion wraps its last cause, so it is checked first.
	switch {
	case errors.Is(err, ErrRetryExhausted):
		return NewPipelineError(err, CategoryStream, SeverityHigh)
	case errors.Is(err, ErrInvalidLocator):
		return NewPipelineError(err, CategoryInput, SeverityHigh)
	case errors.Is(err, ErrBinaryUnavailable):
		return NewPipelineError(err, CategorySystem, SeverityCritical)
	case errors.Is(err, ErrCapabilityRejected):
		return NewPipelineError(err, CategoryProcess, SeverityLow)
	case errors.Is(err, ErrStallTimeout):
		return NewPipelineError(err, CategoryStream, SeverityMedium)
	case errors.Is(err, ErrProcessExit):
		return NewPipelineError(err, CategoryProcess, SeverityMedium)
	case errors.Is(err, ErrSinkRejection):
		return NewPipelineError(err, CategoryVoice, SeverityMedium)
	default:
		return NewPipelineError(err, CategoryUnknown, SeverityHigh)
	}
}

// IsRetryable reports whether the supervisor recovers from err on its own.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}

// Wrapf wraps a sentinel with a formatted message.
func Wrapf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
