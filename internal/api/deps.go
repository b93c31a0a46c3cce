package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/jobassist/internal/conversation"
	"github.com/kalambet/jobassist/internal/storage"
)

// Conversation runs turns and applications. Implemented by conversation.Engine.
type Conversation interface {
	HandleTurn(ctx context.Context, phone, text string) ([]storage.Message, error)
	Apply(ctx context.Context, jobID, seekerID string) error
	ConfirmApplication(ctx context.Context, seekerID, jobID string) (storage.Message, error)
}

// Profiles reads and removes seeker profiles. Implemented by profile.Manager.
type Profiles interface {
	Get(ctx context.Context, phone string) (storage.Profile, error)
	Delete(ctx context.Context, phone string) error
	AppliedJobIDs(ctx context.Context, seekerID string) ([]string, error)
	Flush()
}

// History reads conversation history and wipes user data.
type History interface {
	GetMessageHistory(ctx context.Context, profileID string, limit int) ([]storage.Message, error)
	ResetUserData(ctx context.Context) error
}

// Catalog manages postings. Implemented by jobs.Directory.
type Catalog interface {
	FindJobs(ctx context.Context, city string, skills []string) ([]storage.Job, error)
	List(ctx context.Context, limit, offset int) ([]storage.Job, int, error)
	Add(ctx context.Context, j storage.Job) (storage.Job, error)
	Remove(ctx context.Context, id string) error
}

// Sender delivers replies to a phone. Implemented by whatsapp.Client.
type Sender interface {
	Deliver(ctx context.Context, to string, msgs []storage.Message) error
}

// jobUnavailable is the reply for an application to a missing posting.
func jobUnavailable() storage.Message {
	return storage.Message{Sender: storage.SenderBot, Type: storage.MessageText, Content: conversation.JobUnavailableMessage}
}

// applyFor records the application and returns the confirmation message.
// A missing posting yields conversation.ErrJobNotFound.
func applyFor(ctx context.Context, conv Conversation, seekerID, jobID string) (storage.Message, error) {
	if err := conv.Apply(ctx, jobID, seekerID); err != nil {
		return storage.Message{}, err
	}
	msg, err := conv.ConfirmApplication(ctx, seekerID, jobID)
	if err != nil {
		return storage.Message{}, fmt.Errorf("confirming application: %w", err)
	}
	return msg, nil
}

func isJobNotFound(err error) bool {
	return errors.Is(err, conversation.ErrJobNotFound)
}
