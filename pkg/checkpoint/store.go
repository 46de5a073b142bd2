package checkpoint

import (
	"context"
	"time"
)

// Store persists a single checkpoint.
type Store interface {
	// Load returns the stored state, or nil when none exists or it cannot
	// be decoded.
	Load(ctx context.Context) (*State, error)

	// Save replaces the stored state.
	Save(ctx context.Context, s *State) error

	// MarkCompleted flags the stored state as completed. No-op when absent.
	MarkCompleted(ctx context.Context) error

	// Reset deletes the stored state.
	Reset(ctx context.Context) error
}

func markCompleted(ctx context.Context, st Store) error {
	s, err := st.Load(ctx)
	if err != nil || s == nil {
		return err
	}

	now := time.Now().UTC()
	s.Status = StatusCompleted
	s.CompletedTimestamp = &now
	return st.Save(ctx, s)
}
