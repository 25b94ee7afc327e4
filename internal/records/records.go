// Package records persists research runs and their outcomes in Postgres.
package records

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seekerlab/deepresearch/internal/search"
)

// ErrNotFound is returned when no research row matches the requested ID.
var ErrNotFound = errors.New("research not found")

// Status tracks a research run through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// QA is one clarifying question and the user's answer, collected before the
// run starts.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Questions is stored as a JSONB column.
type Questions []QA

func (q Questions) Value() (driver.Value, error) {
	return json.Marshal(q)
}

func (q *Questions) Scan(src interface{}) error {
	return scanJSON(src, q)
}

// Source is one citation on a finished run. Only the title and link are
// persisted; scraped page content stays in the session state.
type Source struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Sources is the citation list, stored as a JSONB column.
type Sources []Source

func (s Sources) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *Sources) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// SourcesFromResults projects search results down to persisted citations.
func SourcesFromResults(results []search.Result) Sources {
	sources := make(Sources, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{Title: r.Title, Link: r.Link})
	}
	return sources
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// Research is one research run.
type Research struct {
	ID          uuid.UUID  `db:"id"`
	UserID      uuid.UUID  `db:"user_id"`
	Topic       string     `db:"topic"`
	Questions   Questions  `db:"questions"`
	Status      Status     `db:"status"`
	Title       string     `db:"title"`
	Report      string     `db:"report"`
	CoverURL    string     `db:"cover_url"`
	Sources     Sources    `db:"sources"`
	FailReason  string     `db:"fail_reason"`
	CreatedAt   time.Time  `db:"created_at"`
	StartedAt   *time.Time `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// ResearchTopic composes the effective topic string for the run. Answered
// clarifying questions refine the stored topic.
func (r *Research) ResearchTopic() string {
	var sb strings.Builder
	sb.WriteString(r.Topic)
	for _, qa := range r.Questions {
		if strings.TrimSpace(qa.Answer) == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n%s: %s", qa.Question, qa.Answer)
	}
	return sb.String()
}

// CompleteParams carries everything a finished run writes back.
type CompleteParams struct {
	Title    string
	Report   string
	CoverURL string
	Sources  Sources
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Research, error)
	MarkStarted(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, params CompleteParams) error
	MarkFailed(ctx context.Context, id uuid.UUID, status Status, reason string) error
}

// UsageLimiter decides whether a user may start another run.
type UsageLimiter interface {
	Allow(ctx context.Context, userID uuid.UUID) (bool, error)
}
