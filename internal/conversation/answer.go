package conversation

import (
	"context"
	"log/slog"

	"github.com/kalambet/jobassist/internal/language"
	"github.com/kalambet/jobassist/internal/profile"
)

// answer replies to a general question: the language model first, then the
// offline knowledge table, then a description of what the assistant can do.
// Nothing here touches the store critically, so it cannot fail the turn.
func (e *Engine) answer(ctx context.Context, t *turn) {
	if e.lang.Available() {
		history, err := e.messages.GetMessageHistory(ctx, t.profile.ID, e.historyLimit)
		if err != nil {
			slog.Warn("loading history for answer failed", "profile_id", t.profile.ID, "error", err)
			history = nil
		}
		reply, err := e.lang.Answer(ctx, t.text, language.AnswerContext{
			ProfileSummary: profile.Summary(t.profile),
			History:        history,
		})
		if err == nil {
			t.emit(botText(reply))
			return
		}
		slog.Warn("answer unavailable, using knowledge table", "error", err)
	}

	if reply, ok := lookupKnowledge(t.text); ok {
		t.emit(botText(reply))
		return
	}
	t.emit(botText(CapabilitiesMessage))
}
