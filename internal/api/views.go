package api

import (
	"time"

	"github.com/kalambet/jobassist/internal/storage"
)

// MessageView is the wire form of a conversation message.
type MessageView struct {
	ID        string    `json:"id,omitempty"`
	Sender    string    `json:"sender"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	JobID     string    `json:"job_id,omitempty"`
	Job       *JobView  `json:"job,omitempty"`
	Options   []string  `json:"options,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// JobView is the wire form of a posting.
type JobView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	City        string    `json:"city"`
	Salary      string    `json:"salary,omitempty"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// ProfileView is the wire form of a seeker profile with its applications.
type ProfileView struct {
	ID               string    `json:"id"`
	Phone            string    `json:"phone"`
	Name             string    `json:"name"`
	City             string    `json:"city"`
	Skills           []string  `json:"skills"`
	ExpectedSalary   string    `json:"expected_salary,omitempty"`
	PreferredJobType string    `json:"preferred_job_type,omitempty"`
	SearchMode       string    `json:"search_mode,omitempty"`
	SearchReady      bool      `json:"search_ready"`
	AppliedJobIDs    []string  `json:"applied_job_ids"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func newJobView(j storage.Job) JobView {
	return JobView{
		ID:          j.ID,
		Title:       j.Title,
		Company:     j.Company,
		City:        j.City,
		Salary:      j.Salary,
		Type:        string(j.Type),
		Description: j.Description,
		CreatedAt:   j.CreatedAt,
	}
}

func newJobViews(jobs []storage.Job) []JobView {
	out := make([]JobView, len(jobs))
	for i, j := range jobs {
		out[i] = newJobView(j)
	}
	return out
}

func newMessageView(m storage.Message) MessageView {
	v := MessageView{
		ID:        m.ID,
		Sender:    string(m.Sender),
		Type:      string(m.Type),
		Content:   m.Content,
		JobID:     m.JobID,
		Options:   m.Options,
		CreatedAt: m.CreatedAt,
	}
	if m.Job != nil {
		jv := newJobView(*m.Job)
		v.Job = &jv
	}
	return v
}

func newMessageViews(msgs []storage.Message) []MessageView {
	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = newMessageView(m)
	}
	return out
}

func newProfileView(p storage.Profile, applied []string) ProfileView {
	skills := p.Skills
	if skills == nil {
		skills = []string{}
	}
	if applied == nil {
		applied = []string{}
	}
	return ProfileView{
		ID:               p.ID,
		Phone:            p.Phone,
		Name:             p.Name,
		City:             p.City,
		Skills:           skills,
		ExpectedSalary:   p.ExpectedSalary,
		PreferredJobType: p.PreferredJobType,
		SearchMode:       string(p.SearchMode),
		SearchReady:      p.SearchReady(),
		AppliedJobIDs:    applied,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
