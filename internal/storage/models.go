package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrJobNotFound is returned when an application references a job that does not exist.
var ErrJobNotFound = errors.New("job not found")

// SearchMode is the resolved scope of a seeker's job search.
type SearchMode string

const (
	SearchModeUnset  SearchMode = ""
	SearchModeLocal  SearchMode = "local"
	SearchModeGlobal SearchMode = "global"
)

// Profile is one job seeker, keyed by phone number.
type Profile struct {
	ID               string
	Phone            string
	Name             string
	City             string
	Skills           []string
	ExpectedSalary   string
	PreferredJobType string
	SearchMode       SearchMode
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SearchReady reports whether name, city and at least one skill are present.
func (p Profile) SearchReady() bool {
	return p.Name != "" && p.City != "" && len(p.Skills) > 0
}

// MissingFields lists the required fields that are still empty, in onboarding order.
func (p Profile) MissingFields() []string {
	var missing []string
	if p.Name == "" {
		missing = append(missing, "name")
	}
	if p.City == "" {
		missing = append(missing, "city")
	}
	if len(p.Skills) == 0 {
		missing = append(missing, "skills")
	}
	return missing
}

// ProfileUpdate is a partial update. Nil members are left untouched.
// A SearchMode pointing at SearchModeUnset clears the stored mode.
type ProfileUpdate struct {
	Name             *string
	City             *string
	Skills           []string
	ExpectedSalary   *string
	PreferredJobType *string
	SearchMode       *SearchMode
}

// IsEmpty reports whether the update would change nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Name == nil && u.City == nil && u.Skills == nil &&
		u.ExpectedSalary == nil && u.PreferredJobType == nil && u.SearchMode == nil
}

// Apply merges the update into p.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.City != nil {
		p.City = *u.City
	}
	if u.Skills != nil {
		p.Skills = append([]string(nil), u.Skills...)
	}
	if u.ExpectedSalary != nil {
		p.ExpectedSalary = *u.ExpectedSalary
	}
	if u.PreferredJobType != nil {
		p.PreferredJobType = *u.PreferredJobType
	}
	if u.SearchMode != nil {
		p.SearchMode = *u.SearchMode
	}
}

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type MessageType string

const (
	MessageText    MessageType = "text"
	MessageJobCard MessageType = "job-card"
)

// Message is one entry of a profile's conversation history.
type Message struct {
	ID        string
	ProfileID string
	Sender    Sender
	Type      MessageType
	Content   string
	JobID     string
	Job       *Job // populated for job cards produced in the current turn
	Options   []string
	CreatedAt time.Time
}

type EmploymentType string

const (
	FullTime EmploymentType = "full-time"
	PartTime EmploymentType = "part-time"
	Contract EmploymentType = "contract"
)

// Job is a catalog posting.
type Job struct {
	ID          string
	Title       string
	Company     string
	City        string
	Salary      string
	Type        EmploymentType
	Description string
	CreatedAt   time.Time
}

// EmbeddingText is the text indexed for a posting.
func (j Job) EmbeddingText() string {
	return j.Title + " " + j.Description + " " + j.City
}

// JobFilter narrows a keyword lookup. Empty members match everything.
type JobFilter struct {
	City   string
	Skills []string
	Limit  int
}

type Application struct {
	ID        string
	JobID     string
	SeekerID  string
	CreatedAt time.Time
}

// TaskEmbedJob asks the ingest worker to embed one posting.
// Its payload is EmbedJobPayload.
const TaskEmbedJob = "embed_job"

type EmbedJobPayload struct {
	JobID string `json:"job_id"`
}

// Task is a queued background unit of work.
type Task struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Repository is the full persistence surface. Store (SQLite) and
// postgres.Store both implement it.
type Repository interface {
	Close() error

	GetProfileByPhone(ctx context.Context, phone string) (Profile, error)
	GetProfile(ctx context.Context, id string) (Profile, error)
	CreateProfile(ctx context.Context, phone string) (Profile, error)
	UpdateProfile(ctx context.Context, id string, u ProfileUpdate) (Profile, error)
	DeleteProfile(ctx context.Context, id string) error
	ResetUserData(ctx context.Context) error

	AppendMessages(ctx context.Context, profileID string, msgs []Message) error
	GetMessageHistory(ctx context.Context, profileID string, limit int) ([]Message, error)

	SaveJob(ctx context.Context, j Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	GetJobsByIDs(ctx context.Context, ids []string) ([]Job, error)
	FindJobs(ctx context.Context, f JobFilter) ([]Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]Job, error)
	CountJobs(ctx context.Context) (int, error)
	DeleteJob(ctx context.Context, id string) error

	CreateApplication(ctx context.Context, jobID, seekerID string) (bool, error)
	GetAppliedJobIDs(ctx context.Context, seekerID string) ([]string, error)

	EnqueueTask(ctx context.Context, t Task) error
	ClaimNextTask(ctx context.Context, types []string) (*Task, error)
	CompleteTask(ctx context.Context, id string) error
	FailTask(ctx context.Context, id, errMsg string) error
}
