package jobs

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/jobassist/internal/storage"
)

//go:embed seed.yaml
var seedYAML []byte

// catalogNamespace derives stable ids for postings imported without one, so
// re-importing the same file updates rows instead of duplicating them.
var catalogNamespace = uuid.MustParse("6f1c2a4e-8b0d-4c39-9a57-3e2d1f0b7c64")

type catalogFile struct {
	Jobs []catalogEntry `yaml:"jobs"`
}

type catalogEntry struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Company     string `yaml:"company"`
	City        string `yaml:"city"`
	Salary      string `yaml:"salary"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// LoadCatalog reads a YAML catalog of postings from r.
func LoadCatalog(r io.Reader) ([]storage.Job, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	out := make([]storage.Job, 0, len(f.Jobs))
	for i, e := range f.Jobs {
		j, err := e.toJob()
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i+1, err)
		}
		out = append(out, j)
	}
	return out, nil
}

// SeedCatalog returns the built-in demo postings.
func SeedCatalog() []storage.Job {
	jobs, err := LoadCatalog(bytes.NewReader(seedYAML))
	if err != nil {
		panic("jobs: invalid embedded seed catalog: " + err.Error())
	}
	return jobs
}

func (e catalogEntry) toJob() (storage.Job, error) {
	typ, err := ParseEmploymentType(e.Type)
	if err != nil {
		return storage.Job{}, err
	}
	j := storage.Job{
		ID:          strings.TrimSpace(e.ID),
		Title:       strings.TrimSpace(e.Title),
		Company:     strings.TrimSpace(e.Company),
		City:        strings.TrimSpace(e.City),
		Salary:      strings.TrimSpace(e.Salary),
		Type:        typ,
		Description: strings.TrimSpace(e.Description),
	}
	if err := Validate(j); err != nil {
		return storage.Job{}, err
	}
	if j.ID == "" {
		j.ID = StableID(j)
	}
	return j, nil
}

// StableID derives a deterministic id from a posting's title, company and city.
func StableID(j storage.Job) string {
	key := strings.ToLower(j.Title + "|" + j.Company + "|" + j.City)
	return uuid.NewSHA1(catalogNamespace, []byte(key)).String()
}

// ParseEmploymentType accepts "full-time", "Full time", "part_time",
// "contract" and similar spellings. Empty input means full-time.
func ParseEmploymentType(s string) (storage.EmploymentType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	switch norm {
	case "", "full-time", "fulltime":
		return storage.FullTime, nil
	case "part-time", "parttime":
		return storage.PartTime, nil
	case "contract":
		return storage.Contract, nil
	}
	return "", fmt.Errorf("unknown employment type %q", s)
}

// Validate checks the fields every posting needs.
func Validate(j storage.Job) error {
	var missing []string
	if j.Title == "" {
		missing = append(missing, "title")
	}
	if j.Company == "" {
		missing = append(missing, "company")
	}
	if j.City == "" {
		missing = append(missing, "city")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	switch j.Type {
	case storage.FullTime, storage.PartTime, storage.Contract:
	default:
		return fmt.Errorf("unknown employment type %q", j.Type)
	}
	return nil
}
