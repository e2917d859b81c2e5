// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Owner is the principal a reminder belongs to; identity is supplied by the transport.
type Owner struct {
	Identity    int64  // stable numeric id (Telegram user id)
	DisplayName string // unique when non-empty
	CreatedAt   time.Time
}

// Reminder is a stored reminder. FireAt is kept as given and changes only through an edit.
type Reminder struct {
	ID      int64 // store-assigned, unique across owners
	OwnerID int64 // FK -> owners.identity
	Text    string
	FireAt  time.Time
}

// JobState is the lifecycle state of a delivery job.
type JobState string

// Delivery job states.
const (
	JobPending  JobState = "pending"
	JobRunning  JobState = "running"
	JobDone     JobState = "done"
	JobFailed   JobState = "failed"
	JobCanceled JobState = "canceled"
)

// DeliveryJob is a durable deferred notification. It lives independently of the reminder row.
type DeliveryJob struct {
	ID         uuid.UUID
	ReminderID *int64 // informational link, not a foreign key
	DedupeKey  string
	Target     int64 // owner identity to notify
	Text       string
	FireAt     time.Time
	RunAt      time.Time // next eligible run, pushed forward on retry
	State      JobState
	Attempts   int
	LastError  string
}

// Placeholder marks the position of the extracted date span among the tokens.
const Placeholder = "{0}"

// DateRange is one date/time span found in the text.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Extraction is the output of the natural-language extraction step.
type Extraction struct {
	Tokens []string
	Dates  []DateRange
}

// Body joins the tokens with the placeholder removed.
func (e Extraction) Body() string {
	words := make([]string, 0, len(e.Tokens))
	for _, tok := range e.Tokens {
		if tok == Placeholder || strings.TrimSpace(tok) == "" {
			continue
		}
		words = append(words, tok)
	}
	return strings.Join(words, " ")
}

// Outcome reports the result of a store mutation.
type Outcome int

// Store mutation outcomes.
const (
	OutcomeFailed Outcome = iota
	OutcomeDeleted
	OutcomeUpdated
	OutcomeNotFound
)

// OK reports whether the mutation applied.
func (o Outcome) OK() bool { return o == OutcomeDeleted || o == OutcomeUpdated }

func (o Outcome) String() string {
	switch o {
	case OutcomeDeleted:
		return "deleted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// SubmissionState tracks a submission through the creation pipeline.
type SubmissionState string

// Submission states.
const (
	StateReceived  SubmissionState = "received"
	StateExtracted SubmissionState = "extracted"
	StateValidated SubmissionState = "validated"
	StateScheduled SubmissionState = "scheduled"
	StatePersisted SubmissionState = "persisted"
	StateRejected  SubmissionState = "rejected"
	StateFailed    SubmissionState = "failed"
)

// Submission is the result of one submit call.
type Submission struct {
	State    SubmissionState
	Reminder Reminder
	JobID    uuid.UUID
}
