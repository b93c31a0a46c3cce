package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kalambet/jobassist/internal/storage"
)

// searchJobs emits a status line followed by one card per matching posting,
// or the no-jobs message. Skills or a city mentioned in the text narrow this
// search only and are not saved.
func (e *Engine) searchJobs(ctx context.Context, t *turn) error {
	p := t.profile
	city := p.City
	if p.SearchMode == storage.SearchModeGlobal {
		city = ""
	}
	skills := p.Skills

	if f, ok := e.extract(ctx, t.text); ok {
		if len(f.Skills) > 0 {
			skills = f.Skills
		}
		if f.City != "" {
			city = f.City
		}
	}

	t.emit(searchStatus(skills, city))

	jobs, err := e.lookupJobs(ctx, city, skills)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		t.emit(botText(NoJobsMessage))
		return nil
	}
	for _, j := range jobs {
		t.emit(jobCard(j))
	}
	return nil
}

// lookupJobs prefers vector similarity and falls back to the keyword lookup
// when embedding or the vector index fails. Only a keyword lookup failure is
// returned.
func (e *Engine) lookupJobs(ctx context.Context, city string, skills []string) ([]storage.Job, error) {
	if e.lang.Available() {
		query := strings.TrimSpace(strings.Join(skills, " ") + " " + city)
		vec, err := e.lang.Embed(ctx, query)
		if err == nil {
			jobs, err := e.jobs.MatchJobs(ctx, vec)
			if err == nil {
				return jobs, nil
			}
			slog.Warn("vector job search failed, using keyword lookup", "error", err)
		} else {
			slog.Warn("query embedding unavailable, using keyword lookup", "error", err)
		}
	}
	return e.jobs.FindJobs(ctx, city, skills)
}
