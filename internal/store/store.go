// Package store persists job bindings and tracked message records.
package store

import (
	"context"
	"time"
)

// Job is one (endpoint, channel) mirroring binding.
type Job struct {
	Endpoint  string
	ChannelID string
	Enabled   bool
	Position  int
}

// TrackedMessage records one posted chat message and the signature of the
// content it currently shows. Content is retained so edits can be
// summarized against the previous text.
type TrackedMessage struct {
	Endpoint  string
	ChannelID string
	ItemKey   string
	MessageID string
	Signature string
	Content   string
	UpdatedAt time.Time
}

// ClearScope selects which tracked messages a clear operation touches.
// An empty ChannelID means all channels.
type ClearScope struct {
	ChannelID string
}

// Store is the persistence contract the engine consumes.
type Store interface {
	// GetJobs returns the enabled bindings in stable insertion order.
	GetJobs(ctx context.Context) ([]Job, error)

	GetTrackedMessages(ctx context.Context, job Job) ([]TrackedMessage, error)
	// PutTrackedMessages replaces the job's tracked set atomically.
	PutTrackedMessages(ctx context.Context, job Job, msgs []TrackedMessage) error
	// ClearTrackedMessages drops tracked records for the scope. Job rows
	// are never touched.
	ClearTrackedMessages(ctx context.Context, scope ClearScope) error

	// BindChannel creates or re-enables the binding for (endpoint, channel).
	BindChannel(ctx context.Context, endpoint, channelID string) error
	// UnbindChannel removes the binding and its tracked records.
	UnbindChannel(ctx context.Context, endpoint, channelID string) error
	SetEndpointEnabled(ctx context.Context, endpoint string, enabled bool) error
	// ListBindings returns every binding, enabled or not, in insertion order.
	ListBindings(ctx context.Context) ([]Job, error)

	Close() error
}
