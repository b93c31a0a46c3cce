package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/jobassist/internal/language"
	"github.com/kalambet/jobassist/internal/storage"
)

var (
	// ErrStoreUnavailable wraps any profile, message or job store failure
	// that aborts a turn.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrJobNotFound is returned by Apply and ConfirmApplication for a job
	// that no longer exists.
	ErrJobNotFound = errors.New("job not found")
)

const defaultHistoryLimit = 10

// Profiles resolves and updates seeker profiles. Implemented by profile.Manager.
type Profiles interface {
	Resolve(ctx context.Context, phone string) (storage.Profile, bool, error)
	Update(ctx context.Context, p storage.Profile, u storage.ProfileUpdate) (storage.Profile, error)
}

// MessageLog persists conversation history.
type MessageLog interface {
	AppendMessages(ctx context.Context, profileID string, msgs []storage.Message) error
	GetMessageHistory(ctx context.Context, profileID string, limit int) ([]storage.Message, error)
}

// Directory looks up postings. Implemented by jobs.Directory.
type Directory interface {
	FindJobs(ctx context.Context, city string, skills []string) ([]storage.Job, error)
	MatchJobs(ctx context.Context, vec []float32) ([]storage.Job, error)
	Get(ctx context.Context, id string) (storage.Job, error)
}

// Applications records apply events.
type Applications interface {
	CreateApplication(ctx context.Context, jobID, seekerID string) (bool, error)
}

// Deps are the collaborators of an Engine. Language may be nil, which is the
// same as language.Unavailable.
type Deps struct {
	Profiles     Profiles
	Messages     MessageLog
	Jobs         Directory
	Applications Applications
	Language     language.Capability
}

// Engine runs the per-turn conversation state machine. The profile is the
// only persistent state; the step of the conversation is derived from which
// profile fields are filled in.
type Engine struct {
	profiles     Profiles
	messages     MessageLog
	jobs         Directory
	applications Applications
	lang         language.Capability

	historyLimit int
	locks        *keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistoryLimit sets how many past messages are given to the answerer.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// New creates an Engine.
func New(d Deps, opts ...Option) *Engine {
	lang := d.Language
	if lang == nil {
		lang = language.Unavailable{}
	}
	e := &Engine{
		profiles:     d.Profiles,
		messages:     d.Messages,
		jobs:         d.Jobs,
		applications: d.Applications,
		lang:         lang,
		historyLimit: defaultHistoryLimit,
		locks:        newKeyedMutex(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// turn is the state of one HandleTurn call.
type turn struct {
	phone   string
	text    string
	profile storage.Profile
	out     []storage.Message
}

func (t *turn) emit(m storage.Message) {
	t.out = append(t.out, m)
}

// HandleTurn processes one inbound message and returns the replies in send
// order. Turns for the same phone are serialized. On a store failure the
// single connection-trouble message is returned along with an error wrapping
// ErrStoreUnavailable, and none of the turn's replies are persisted. Profile
// writes made earlier in the turn are not rolled back: a profile update or a
// search mode stored from a gate answer stays when a later write fails.
func (e *Engine) HandleTurn(ctx context.Context, phone, text string) ([]storage.Message, error) {
	unlock := e.locks.Lock(phone)
	defer unlock()

	p, created, err := e.profiles.Resolve(ctx, phone)
	if err != nil {
		return storeFailure("resolving profile", err)
	}

	if created {
		out := []storage.Message{botText(WelcomeMessage)}
		if err := e.messages.AppendMessages(ctx, p.ID, out); err != nil {
			return storeFailure("saving welcome message", err)
		}
		slog.Debug("new seeker", "phone", phone, "profile_id", p.ID)
		return out, nil
	}

	user := storage.Message{Sender: storage.SenderUser, Type: storage.MessageText, Content: text}
	if err := e.messages.AppendMessages(ctx, p.ID, []storage.Message{user}); err != nil {
		return storeFailure("saving user message", err)
	}

	t := &turn{phone: phone, text: text, profile: p}

	intent, err := e.route(ctx, t)
	if err != nil {
		return storeFailure("resolving search mode", err)
	}
	slog.Debug("turn", "phone", phone, "intent", intent)

	switch intent {
	case language.IntentOnboarding:
		err = e.updateProfile(ctx, t, false)
	case language.IntentUpdateProfile:
		err = e.updateProfile(ctx, t, true)
	case language.IntentJobSearch:
		err = e.searchJobs(ctx, t)
	default:
		e.answer(ctx, t)
	}
	if err != nil {
		return storeFailure(string(intent), err)
	}

	if err := e.messages.AppendMessages(ctx, p.ID, t.out); err != nil {
		return storeFailure("saving replies", err)
	}
	return t.out, nil
}

// route decides the turn's intent. A search-ready profile without a search
// mode treats the turn as the answer to the scope question.
func (e *Engine) route(ctx context.Context, t *turn) (language.Intent, error) {
	p := t.profile
	if p.SearchReady() && p.SearchMode == storage.SearchModeUnset {
		mode, ok := parseGateAnswer(t.text)
		if !ok {
			return language.IntentOnboarding, nil
		}
		updated, err := e.profiles.Update(ctx, p, storage.ProfileUpdate{SearchMode: &mode})
		if err != nil {
			return "", err
		}
		t.profile = updated
		return language.IntentJobSearch, nil
	}

	if e.lang.Available() {
		intent, err := e.lang.ClassifyIntent(ctx, t.text)
		if err == nil {
			return intent, nil
		}
		slog.Warn("intent classification unavailable, using rules", "phone", t.phone, "error", err)
	}
	return classifyByRules(t.text, p), nil
}

// parseGateAnswer reads a yes/no reply. "yes" is checked first.
func parseGateAnswer(text string) (storage.SearchMode, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "yes"):
		return storage.SearchModeLocal, true
	case strings.Contains(lower, "no"):
		return storage.SearchModeGlobal, true
	}
	return storage.SearchModeUnset, false
}

func classifyByRules(text string, p storage.Profile) language.Intent {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "find") || strings.Contains(lower, "job"):
		return language.IntentJobSearch
	case !p.SearchReady():
		return language.IntentOnboarding
	default:
		return language.IntentGeneralQA
	}
}

func storeFailure(op string, err error) ([]storage.Message, error) {
	slog.Error("turn aborted", "op", op, "error", err)
	return []storage.Message{botText(ConnectionTroubleText)}, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
