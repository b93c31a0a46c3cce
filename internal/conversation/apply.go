package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/jobassist/internal/storage"
)

// Apply records that seekerID applied for jobID. Applying twice succeeds
// both times. A missing posting yields ErrJobNotFound.
func (e *Engine) Apply(ctx context.Context, jobID, seekerID string) error {
	created, err := e.applications.CreateApplication(ctx, jobID, seekerID)
	switch {
	case errors.Is(err, storage.ErrJobNotFound):
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	case err != nil:
		return fmt.Errorf("creating application: %w", err)
	}
	slog.Debug("application recorded", "job_id", jobID, "seeker_id", seekerID, "new", created)
	return nil
}

// ConfirmApplication appends the application confirmation to the seeker's
// history and returns it. Callers invoke it after a successful Apply.
func (e *Engine) ConfirmApplication(ctx context.Context, seekerID, jobID string) (storage.Message, error) {
	job, err := e.jobs.Get(ctx, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Message{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return storage.Message{}, fmt.Errorf("loading job: %w", err)
	}

	msg := confirmationMessage(job)
	msgs := []storage.Message{msg}
	if err := e.messages.AppendMessages(ctx, seekerID, msgs); err != nil {
		return storage.Message{}, fmt.Errorf("%w: saving confirmation: %w", ErrStoreUnavailable, err)
	}
	return msgs[0], nil
}
