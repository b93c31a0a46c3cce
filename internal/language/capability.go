package language

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/jobassist/internal/storage"
)

// ErrUnavailable is returned by every call on a capability that has no backend.
var ErrUnavailable = errors.New("language capability unavailable")

// Intent is the classified purpose of a turn.
type Intent string

const (
	IntentOnboarding    Intent = "ONBOARDING"
	IntentUpdateProfile Intent = "UPDATE_PROFILE"
	IntentJobSearch     Intent = "JOB_SEARCH"
	IntentGeneralQA     Intent = "GENERAL_QA"
)

// Intents lists every label the classifier may return.
var Intents = []Intent{IntentOnboarding, IntentUpdateProfile, IntentJobSearch, IntentGeneralQA}

// ParseIntent maps a model label to an Intent. Matching ignores case and
// surrounding whitespace.
func ParseIntent(s string) (Intent, error) {
	label := Intent(strings.ToUpper(strings.TrimSpace(s)))
	for _, in := range Intents {
		if label == in {
			return in, nil
		}
	}
	return "", fmt.Errorf("unknown intent %q", s)
}

// Fields is the typed result of profile field extraction. Empty members
// were not mentioned in the text.
type Fields struct {
	Name           string
	City           string
	Skills         []string
	ExpectedSalary string
}

// IsEmpty reports whether nothing was extracted.
func (f Fields) IsEmpty() bool {
	return f.Name == "" && f.City == "" && len(f.Skills) == 0 && f.ExpectedSalary == ""
}

// UnmarshalJSON accepts the shapes models actually produce: skills as a list
// or a single string, salary as a number or a string. Unknown keys are ignored.
func (f *Fields) UnmarshalJSON(b []byte) error {
	var raw struct {
		Name           *string         `json:"name"`
		City           *string         `json:"city"`
		Skills         json.RawMessage `json:"skills"`
		ExpectedSalary json.RawMessage `json:"expected_salary"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*f = Fields{}
	if raw.Name != nil {
		f.Name = strings.TrimSpace(*raw.Name)
	}
	if raw.City != nil {
		f.City = strings.TrimSpace(*raw.City)
	}

	skills, err := decodeSkills(raw.Skills)
	if err != nil {
		return fmt.Errorf("skills: %w", err)
	}
	f.Skills = skills

	salary, err := decodeSalary(raw.ExpectedSalary)
	if err != nil {
		return fmt.Errorf("expected_salary: %w", err)
	}
	f.ExpectedSalary = salary
	return nil
}

func decodeSkills(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var one string
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		list = strings.Split(one, ",")
	}
	var out []string
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func decodeSalary(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return strconv.FormatFloat(n, 'f', -1, 64), nil
}

// AnswerContext is what the answerer knows about the asker.
type AnswerContext struct {
	ProfileSummary string
	History        []storage.Message
}

// Capability is the language model surface the conversation engine relies on.
// Any call may fail; callers treat an error as "capability unavailable for
// this call" and fall back to deterministic rules.
type Capability interface {
	Available() bool
	ClassifyIntent(ctx context.Context, text string) (Intent, error)
	ExtractFields(ctx context.Context, text string) (Fields, error)
	Answer(ctx context.Context, question string, ac AnswerContext) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Unavailable is the capability used when no backend is configured.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) ClassifyIntent(context.Context, string) (Intent, error) {
	return "", ErrUnavailable
}

func (Unavailable) ExtractFields(context.Context, string) (Fields, error) {
	return Fields{}, ErrUnavailable
}

func (Unavailable) Answer(context.Context, string, AnswerContext) (string, error) {
	return "", ErrUnavailable
}

func (Unavailable) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrUnavailable
}
