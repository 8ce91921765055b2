package repository

import (
	"time"

	"github.com/compozy/repokit/pkg/config"
)

const (
	// DefaultMaxConflictRetries bounds conflict resolution rounds when no option overrides it.
	DefaultMaxConflictRetries = 10
)

type settings struct {
	resolver   any
	sink       DiagnosticSink
	maxRetries int
	backoff    time.Duration
}

func defaultSettings() settings {
	return settings{maxRetries: DefaultMaxConflictRetries}
}

// Option configures a Repository.
type Option func(*settings)

// WithResolver replaces the default submitted-value-wins resolver. The
// resolver must be bound to the repository's entity shape.
func WithResolver[T any](r Resolver[T]) Option {
	return func(s *settings) {
		s.resolver = r
	}
}

// WithMaxConflictRetries bounds conflict resolution rounds per Update.
// Zero retries until the update commits or fails otherwise.
func WithMaxConflictRetries(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithConflictBackoff sets the delay between conflict retries.
func WithConflictBackoff(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// WithDiagnosticSink routes conflict diagnostics of the default resolver.
func WithDiagnosticSink(sink DiagnosticSink) Option {
	return func(s *settings) {
		s.sink = sink
	}
}

// OptionsFromConfig translates repository configuration into options.
func OptionsFromConfig(cfg *config.RepositoryConfig) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithMaxConflictRetries(cfg.MaxConflictRetries),
		WithConflictBackoff(cfg.ConflictBackoff),
	}
}
