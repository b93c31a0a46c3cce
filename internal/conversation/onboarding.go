package conversation

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/kalambet/jobassist/internal/language"
	"github.com/kalambet/jobassist/internal/storage"
)

// fillers never fill a profile field on their own.
var fillers = map[string]bool{
	"hi": true, "hello": true, "hey": true, "hii": true, "namaste": true,
	"ok": true, "okay": true, "thanks": true, "thank you": true,
	"yes": true, "no": true, "start": true,
}

// updateProfile is the shared onboarding and profile-update path. Fields are
// extracted from the text, or filled positionally when no model answers or it
// finds nothing. They are then persisted and acknowledged, and exactly one
// next-step message follows.
// clearSearchMode resets the search scope so the scope question is asked again.
func (e *Engine) updateProfile(ctx context.Context, t *turn, clearSearchMode bool) error {
	fields, ok := e.extract(ctx, t.text)
	if !ok || fields.IsEmpty() {
		fields = positionalFields(t.text, t.profile)
	}

	u, changed := diffFields(t.profile, fields)
	if clearSearchMode && t.profile.SearchMode != storage.SearchModeUnset {
		unset := storage.SearchModeUnset
		u.SearchMode = &unset
	}

	if !u.IsEmpty() {
		updated, err := e.profiles.Update(ctx, t.profile, u)
		if err != nil {
			return err
		}
		t.profile = updated
	}
	if len(changed) > 0 {
		t.emit(ackMessage(changed, t.profile))
	}

	t.emit(nextStep(t.profile))
	return nil
}

func (e *Engine) extract(ctx context.Context, text string) (language.Fields, bool) {
	if !e.lang.Available() {
		return language.Fields{}, false
	}
	f, err := e.lang.ExtractFields(ctx, text)
	if err != nil {
		slog.Warn("field extraction unavailable, using positional fill", "error", err)
		return language.Fields{}, false
	}
	return f, true
}

// positionalFields puts the whole message into the first missing field.
func positionalFields(text string, p storage.Profile) language.Fields {
	text = strings.TrimSpace(text)
	if text == "" || fillers[strings.ToLower(strings.Trim(text, "!.? "))] {
		return language.Fields{}
	}
	switch {
	case p.Name == "":
		return language.Fields{Name: text}
	case p.City == "":
		return language.Fields{City: text}
	case len(p.Skills) == 0:
		return language.Fields{Skills: []string{text}}
	}
	return language.Fields{}
}

// diffFields builds the update for the extracted fields that differ from p
// and names them in a fixed order.
func diffFields(p storage.Profile, f language.Fields) (storage.ProfileUpdate, []string) {
	var u storage.ProfileUpdate
	var changed []string
	if f.Name != "" && f.Name != p.Name {
		u.Name = &f.Name
		changed = append(changed, "name")
	}
	if f.City != "" && f.City != p.City {
		u.City = &f.City
		changed = append(changed, "city")
	}
	if len(f.Skills) > 0 && !slices.Equal(f.Skills, p.Skills) {
		u.Skills = f.Skills
		changed = append(changed, "skills")
	}
	if f.ExpectedSalary != "" && f.ExpectedSalary != p.ExpectedSalary {
		u.ExpectedSalary = &f.ExpectedSalary
		changed = append(changed, "expected_salary")
	}
	return u, changed
}

// nextStep returns the single prompt for the first unmet profile condition.
func nextStep(p storage.Profile) storage.Message {
	if missing := p.MissingFields(); len(missing) > 0 {
		switch missing[0] {
		case "name":
			return botText(AskNameMessage)
		case "city":
			return botText(AskCityMessage)
		default:
			return botText(AskJobMessage)
		}
	}
	if p.SearchMode == storage.SearchModeUnset {
		return gateMessage(p.City)
	}
	return botText(ProfileReadyMessage)
}
