package transcript

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lachopopov/multiagent-system-demo/types"
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
)

// DefaultConversationID keys the transcript when no conversation id is configured.
const DefaultConversationID = "default"

// Common errors
var (
	ErrStoreClosed  = types.NewError(types.ErrStoreClosed, "transcript store is closed")
	ErrInvalidInput = types.NewError(types.ErrInvalidInput, "invalid transcript message")
	ErrCorrupt      = types.NewError(types.ErrInternalError, "transcript sequence is corrupt")
)

// Store is the append-only transcript. Append is the single point of mutation.
type Store interface {
	// Append assigns the next sequence number and stores msg. The stored copy is returned.
	Append(ctx context.Context, msg types.Message) (types.Message, error)

	// Snapshot returns an immutable point-in-time view.
	Snapshot(ctx context.Context) (Snapshot, error)

	// Len returns the number of stored messages.
	Len(ctx context.Context) (int, error)

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error

	// Close closes the store and releases resources
	Close() error
}

// stamp validates msg and fills the store-assigned fields.
func stamp(msg types.Message, seq int64, now time.Time) (types.Message, error) {
	if strings.TrimSpace(msg.Sender) == "" {
		return types.Message{}, types.NewError(types.ErrInvalidInput, "message sender is empty")
	}
	m := msg.Clone()
	m.Seq = seq
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	if m.Role == "" {
		m.Role = types.RoleAssistant
	}
	return m, nil
}

// verifySequence checks that msgs carry seq 1..n in order.
func verifySequence(msgs []types.Message) error {
	for i, m := range msgs {
		if m.Seq != int64(i+1) {
			return types.Errorf(types.ErrInternalError, "expected seq %d at position %d, found %d", i+1, i, m.Seq).
				WithCause(ErrCorrupt)
		}
	}
	return nil
}
