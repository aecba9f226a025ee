// Package eventstore persists conversation event logs. Stores are
// append-only: events are immutable once written and never deleted;
// condensation hides events at the view layer instead.
package eventstore

import (
	"context"
	"errors"

	"github.com/jamiechicago312/agent-sdk/pkg/events"
)

// ErrClosed indicates an operation on a closed store.
var ErrClosed = errors.New("event store closed")

// Store is an append-only event log for one conversation.
type Store interface {
	// Append adds one event to the end of the log.
	Append(ctx context.Context, event events.Event) error

	// All returns every event in append order.
	All(ctx context.Context) ([]events.Event, error)

	// Len returns the number of events in the log.
	Len(ctx context.Context) (int, error)

	// Close releases store resources. Idempotent.
	Close() error
}
