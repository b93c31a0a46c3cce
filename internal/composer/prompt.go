package composer

import (
	"strings"

	"github.com/kalambet/jobassist/internal/engine"
	"github.com/kalambet/jobassist/internal/storage"
)

const defaultMaxContextTokens = 2000

// Composer assembles chat prompts from a system framing, the seeker's
// profile summary and recent conversation history, keeping the injected
// context under a token budget.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected context.
// If maxContextTokens <= 0, the default (2000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose returns the system message, as many of the most recent history
// messages as fit in the budget (oldest first), and the question.
// Job cards are rendered as their label; a trailing history entry equal to
// the question is dropped so the question is not sent twice.
func (c *Composer) Compose(system, profileSummary string, history []storage.Message, question string) []engine.Message {
	var sb strings.Builder
	sb.WriteString(system)
	if profileSummary != "" {
		sb.WriteString("\n\n[Seeker Profile]\n")
		sb.WriteString(profileSummary)
	}
	sysContent := sb.String()

	if n := len(history); n > 0 {
		last := history[n-1]
		if last.Sender == storage.SenderUser && strings.TrimSpace(last.Content) == strings.TrimSpace(question) {
			history = history[:n-1]
		}
	}

	remaining := c.MaxContextTokens - EstimateTokens(sysContent) - EstimateTokens(question)
	var picked []engine.Message
	for i := len(history) - 1; i >= 0; i-- {
		m := toChatMessage(history[i])
		if m.Content == "" {
			continue
		}
		tokens := EstimateTokens(m.Content)
		if tokens > remaining {
			break
		}
		picked = append(picked, m)
		remaining -= tokens
	}

	out := make([]engine.Message, 0, len(picked)+2)
	out = append(out, engine.Message{Role: engine.RoleSystem, Content: sysContent})
	for i := len(picked) - 1; i >= 0; i-- {
		out = append(out, picked[i])
	}
	out = append(out, engine.Message{Role: engine.RoleUser, Content: question})
	return out
}

func toChatMessage(m storage.Message) engine.Message {
	role := engine.RoleAssistant
	if m.Sender == storage.SenderUser {
		role = engine.RoleUser
	}
	content := m.Content
	if m.Type == storage.MessageJobCard && m.Job != nil {
		content = "[Job] " + m.Job.Title + ", " + m.Job.Company + ", " + m.Job.City
	}
	return engine.Message{Role: role, Content: strings.TrimSpace(content)}
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
