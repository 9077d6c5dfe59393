package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ad/go-python-coach/internal/fsm"
)

var ErrInvalidState = errors.New("invalid progress record")

// InvalidStateError describes why a progress record cannot be evaluated.
// It matches ErrInvalidState with errors.Is.
type InvalidStateError struct {
	UserID int64
	Reason string
}

func (e *InvalidStateError) Error() string {
	if e.UserID != 0 {
		return fmt.Sprintf("invalid progress record for user %d: %s", e.UserID, e.Reason)
	}
	return "invalid progress record: " + e.Reason
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// ProgressRecord is the per-learner state the progress engine reads and
// writes once per inbound message.
type ProgressRecord struct {
	UserID             int64     `json:"user_id"`
	Stage              int       `json:"stage"`
	NonTechnicalStreak int       `json:"non_tech"`
	SubmittedLinks     []string  `json:"github_links"`
	QuizPassed         bool      `json:"quiz_passed"`
	AwaitingLink       bool      `json:"waiting_github"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func NewProgressRecord(userID int64) *ProgressRecord {
	return &ProgressRecord{
		UserID:         userID,
		SubmittedLinks: []string{},
	}
}

// Clone returns a deep copy so callers can compare before and after.
func (p *ProgressRecord) Clone() *ProgressRecord {
	c := *p
	c.SubmittedLinks = append([]string{}, p.SubmittedLinks...)
	return &c
}

// State reports the sub-state for a curriculum of totalStages stages.
func (p *ProgressRecord) State(totalStages int) string {
	switch {
	case p.Stage >= totalStages:
		return fsm.StateDone
	case p.AwaitingLink:
		return fsm.StateLinkPending
	default:
		return fsm.StateQuizPending
	}
}

// Validate checks every field against the record invariants. The record
// must encode exactly one sub-state: quiz pending (both flags false) or
// link pending (both flags true).
func (p *ProgressRecord) Validate(totalStages int) error {
	if p == nil {
		return &InvalidStateError{Reason: "record is missing"}
	}
	invalid := func(format string, args ...interface{}) error {
		return &InvalidStateError{UserID: p.UserID, Reason: fmt.Sprintf(format, args...)}
	}
	if p.Stage < 0 || p.Stage > totalStages {
		return invalid("stage %d outside 0..%d", p.Stage, totalStages)
	}
	if p.NonTechnicalStreak < 0 {
		return invalid("negative non-technical streak %d", p.NonTechnicalStreak)
	}
	if p.SubmittedLinks == nil {
		return invalid("submitted links missing")
	}
	if len(p.SubmittedLinks) != p.Stage {
		return invalid("%d submitted links for stage %d", len(p.SubmittedLinks), p.Stage)
	}
	if p.QuizPassed != p.AwaitingLink {
		return invalid("quiz_passed=%t with awaiting_link=%t", p.QuizPassed, p.AwaitingLink)
	}
	if p.Stage == totalStages && p.AwaitingLink {
		return invalid("awaiting link after the final stage")
	}
	return nil
}

// storedProgress mirrors ProgressRecord with pointer fields so that a
// missing key can be told apart from a zero value.
type storedProgress struct {
	UserID             *int64    `json:"user_id"`
	Stage              *int      `json:"stage"`
	NonTechnicalStreak *int      `json:"non_tech"`
	SubmittedLinks     []string  `json:"github_links"`
	QuizPassed         *bool     `json:"quiz_passed"`
	AwaitingLink       *bool     `json:"waiting_github"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (p *ProgressRecord) ToJSON() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseProgressRecord decodes a stored record and validates it. Any decode
// failure, missing field or impossible combination yields ErrInvalidState.
func ParseProgressRecord(data string, totalStages int) (*ProgressRecord, error) {
	var stored storedProgress
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, &InvalidStateError{Reason: fmt.Sprintf("decode: %v", err)}
	}

	switch {
	case stored.UserID == nil:
		return nil, &InvalidStateError{Reason: "user_id missing"}
	case stored.Stage == nil:
		return nil, &InvalidStateError{UserID: *stored.UserID, Reason: "stage missing"}
	case stored.NonTechnicalStreak == nil:
		return nil, &InvalidStateError{UserID: *stored.UserID, Reason: "non_tech missing"}
	case stored.QuizPassed == nil:
		return nil, &InvalidStateError{UserID: *stored.UserID, Reason: "quiz_passed missing"}
	case stored.AwaitingLink == nil:
		return nil, &InvalidStateError{UserID: *stored.UserID, Reason: "waiting_github missing"}
	}

	record := &ProgressRecord{
		UserID:             *stored.UserID,
		Stage:              *stored.Stage,
		NonTechnicalStreak: *stored.NonTechnicalStreak,
		SubmittedLinks:     stored.SubmittedLinks,
		QuizPassed:         *stored.QuizPassed,
		AwaitingLink:       *stored.AwaitingLink,
		UpdatedAt:          stored.UpdatedAt,
	}
	if record.SubmittedLinks == nil && record.Stage == 0 {
		record.SubmittedLinks = []string{}
	}
	if err := record.Validate(totalStages); err != nil {
		return nil, err
	}
	return record, nil
}

var ErrProgressNotFound = errors.New("progress record not found")
