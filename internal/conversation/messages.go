package conversation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kalambet/jobassist/internal/storage"
)

// Outbound copy.
const (
	WelcomeMessage        = "👋 Welcome to JobAssistant! Let's create your profile. What is your full name?"
	AskNameMessage        = "What is your full name?"
	AskCityMessage        = "What city are you looking for work in?"
	AskJobMessage         = "What kind of work do you do? (e.g., Driver, Electrician, Retail)"
	ProfileReadyMessage   = "Your profile is ready! Type 'Find Jobs' to see matches."
	NoJobsMessage         = "No matching jobs found yet. Try updating your city or skills!"
	CapabilitiesMessage   = "I am your Job Assistant. You can ask me to 'Find Jobs' or 'Update my Profile'."
	ConnectionTroubleText = "⚠️ Sorry, I'm having trouble connecting right now."
	JobUnavailableMessage = "This job is no longer available (Expired)."
	JobCardLabel          = "Job Match"
	allIndiaLabel         = "(All India)"
)

// GateOptions are the quick replies offered with the search-scope question.
var GateOptions = []string{"Yes", "No"}

func botText(content string) storage.Message {
	return storage.Message{Sender: storage.SenderBot, Type: storage.MessageText, Content: content}
}

func jobCard(j storage.Job) storage.Message {
	job := j
	return storage.Message{
		Sender:  storage.SenderBot,
		Type:    storage.MessageJobCard,
		Content: JobCardLabel,
		JobID:   j.ID,
		Job:     &job,
	}
}

func gateMessage(city string) storage.Message {
	m := botText(fmt.Sprintf("Should I show you jobs only in %s? Reply *Yes* for %s or *No* to search across India.", city, city))
	m.Options = append([]string(nil), GateOptions...)
	return m
}

func ackMessage(changed []string, p storage.Profile) storage.Message {
	return botText(fmt.Sprintf("✅ Updated: %s. \n\nCurrent Profile:\nName: %s\nCity: %s\nSkills: %s",
		strings.Join(changed, ", "), orDash(p.Name), orDash(p.City), orDash(strings.Join(p.Skills, ", "))))
}

func searchStatus(skills []string, city string) storage.Message {
	what := "jobs"
	if len(skills) > 0 {
		what = strings.Join(skills, ", ") + " jobs"
	}
	scope := allIndiaLabel
	if city != "" {
		scope = "in " + city
	}
	return botText(fmt.Sprintf("🔍 Searching for %s %s...", what, scope))
}

func confirmationMessage(j storage.Job) storage.Message {
	m := botText(fmt.Sprintf("✅ Application Submitted!\n\nYou applied for *%s* at %s, %s. The employer will contact you on this number if you are shortlisted.",
		j.Title, j.Company, j.City))
	m.JobID = j.ID
	return m
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// knowledge is the offline answer table consulted when no language model
// can answer. Entries are checked in order; the first keyword hit wins.
// Keywords match whole words, optionally with a plural "s".
var knowledge = []struct {
	keywords []string
	answer   string
}{
	{
		keywords: []string{"salary", "salaries", "pay", "paid", "wage", "earn", "earning"},
		answer:   "💰 Typical monthly salaries: delivery and driving ₹15,000-25,000, security ₹12,000-18,000, warehouse and retail ₹12,000-16,000. Experience, shifts and city change the number, so always confirm in the interview.",
	},
	{
		keywords: []string{"document", "aadhaar", "aadhar", "pan card", "licence", "license"},
		answer:   "📄 Keep these ready: Aadhaar card, PAN card, two passport photos and a bank passbook. Driving and delivery jobs also need a valid driving licence.",
	},
	{
		keywords: []string{"interview"},
		answer:   "🤝 For the interview: arrive 15 minutes early, carry your documents, dress neatly and be ready to talk about your past work and the shifts you can do.",
	},
	{
		keywords: []string{"resume", "cv", "biodata"},
		answer:   "📝 Most of these jobs do not need a resume. Your profile here is shared with employers. If one asks for a biodata, list your name, phone, city, past jobs and skills on one page.",
	},
}

func lookupKnowledge(text string) (string, bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	padded := " " + strings.Join(words, " ") + " "
	for _, k := range knowledge {
		for _, kw := range k.keywords {
			if strings.Contains(padded, " "+kw+" ") || strings.Contains(padded, " "+kw+"s ") {
				return k.answer, true
			}
		}
	}
	return "", false
}
