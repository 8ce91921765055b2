package repository

import (
	"context"

	"github.com/compozy/repokit/engine/schema"
	"github.com/compozy/repokit/pkg/logger"
)

// Snapshot holds the three versions of an entity involved in one conflict.
// Current is what the caller submitted, Database is what the store holds now,
// and Resolved starts as a copy of Database and is what the next attempt writes.
type Snapshot[T any] struct {
	Schema   *schema.Schema[T]
	Current  *T
	Database *T
	Resolved *T
}

// Resolver merges a conflict snapshot by editing snap.Resolved.
type Resolver[T any] interface {
	Resolve(ctx context.Context, snap *Snapshot[T]) error
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc[T any] func(ctx context.Context, snap *Snapshot[T]) error

func (f ResolverFunc[T]) Resolve(ctx context.Context, snap *Snapshot[T]) error {
	return f(ctx, snap)
}

// Diagnostic records one field where the submitted value replaced a
// concurrently written one.
type Diagnostic struct {
	Entity        string
	Key           any
	Field         string
	DatabaseValue any
	IntendedValue any
	ResolvedValue any
}

// DiagnosticSink receives conflict diagnostics.
type DiagnosticSink interface {
	Report(ctx context.Context, d Diagnostic)
}

// DiagnosticSinkFunc adapts a function to DiagnosticSink.
type DiagnosticSinkFunc func(ctx context.Context, d Diagnostic)

func (f DiagnosticSinkFunc) Report(ctx context.Context, d Diagnostic) {
	f(ctx, d)
}

// logSink writes diagnostics to the context logger and counts them.
type logSink struct{}

func (logSink) Report(ctx context.Context, d Diagnostic) {
	logger.FromContext(ctx).Warn("Concurrent value overwritten by submitted value",
		"entity", d.Entity,
		"key", d.Key,
		"field", d.Field,
		"database_value", d.DatabaseValue,
		"intended_value", d.IntendedValue,
		"resolved_value", d.ResolvedValue,
	)
	recordConflictField(ctx, d.Entity)
}

// DefaultResolver lets the submitted value win on every settable field.
// The version field is left at its database value so the next attempt
// checks against the row as it stands.
type DefaultResolver[T any] struct {
	Sink DiagnosticSink
}

func (r DefaultResolver[T]) Resolve(ctx context.Context, snap *Snapshot[T]) error {
	sink := r.Sink
	if sink == nil {
		sink = logSink{}
	}
	for _, f := range snap.Schema.Fields() {
		if !f.Settable() || f.IsVersion() {
			continue
		}
		intended := f.Get(snap.Current)
		dbValue := f.Get(snap.Database)
		f.CopyValue(snap.Resolved, snap.Current)
		if f.Present(snap.Current) && !f.Equal(intended, dbValue) {
			sink.Report(ctx, Diagnostic{
				Entity:        snap.Schema.Table(),
				Key:           snap.Schema.KeyOf(snap.Database),
				Field:         f.Name(),
				DatabaseValue: dbValue,
				IntendedValue: intended,
				ResolvedValue: f.Get(snap.Resolved),
			})
		}
	}
	return nil
}
