package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gymops/gymops/internal/programs"
)

// Action enumerates audit log actions.
type Action string

const (
	ActionAdded    Action = "added"
	ActionModified Action = "modified"
	ActionDeleted  Action = "deleted"
	ActionRestored Action = "restored"
)

var (
	// ErrInvalidEdit wraps validation failures of staff edits.
	ErrInvalidEdit = errors.New("schedule: invalid edit")
	// ErrSessionIndex indicates an index outside the resolved list.
	ErrSessionIndex = errors.New("schedule: session index out of range")
	// ErrSessionDeleted indicates an edit against a soft-deleted session.
	ErrSessionDeleted = errors.New("schedule: session already deleted")
)

// ChangeRecord is an append-only audit entry for a manual change on one day.
type ChangeRecord struct {
	ID           uuid.UUID `json:"id"`
	Date         string    `json:"date"`
	SessionIndex int       `json:"sessionIndex"`
	Action       Action    `json:"action"`
	Reason       string    `json:"reason"`
	Original     *Session  `json:"originalSession,omitempty"`
	New          *Session  `json:"newSession,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Edit is the outcome of a staff change: the full override list to store for the day (unless
// Restore is set, in which case the override is dropped) plus its audit record.
type Edit struct {
	Date    string
	List    []Session
	Restore bool
	Change  ChangeRecord
}

// SessionInput carries the fields staff submit when adding or modifying a session.
type SessionInput struct {
	Time    string `json:"time" validate:"required,datetime=15:04"`
	Program string `json:"program" validate:"required,max=64"`
	Center  string `json:"center" validate:"omitempty,max=64"`
	Reason  string `json:"reason" validate:"required,max=500"`
}

type reasonInput struct {
	Reason string `validate:"required,max=500"`
}

// Editor turns staff actions into override lists. The current list is whatever the resolver
// returns for the day, so the first edit of a generated day materialises the whole timetable.
type Editor struct {
	validate *validator.Validate
	now      func() time.Time
	newID    func() uuid.UUID
}

// NewEditor constructs an Editor using the wall clock and random ids.
func NewEditor() *Editor {
	return &Editor{validate: validator.New(), now: time.Now, newID: uuid.New}
}

// WithNow overrides the clock for deterministic tests.
func (e *Editor) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// WithIDs overrides the change record id generator.
func (e *Editor) WithIDs(fn func() uuid.UUID) {
	if fn != nil {
		e.newID = fn
	}
}

// Add appends a custom session and keeps the day ordered by start time.
func (e *Editor) Add(date string, current []Session, in SessionInput) (Edit, error) {
	in, err := e.checkSession(in)
	if err != nil {
		return Edit{}, err
	}
	added := Session{
		SessionTemplate: SessionTemplate{Time: in.Time, Program: in.Program, Center: in.Center},
		Kind:            Added,
		Reason:          in.Reason,
	}
	list := append(clone(current), added)
	sort.SliceStable(list, func(i, j int) bool {
		return StartTime(list[i].Time) < StartTime(list[j].Time)
	})
	index := 0
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Kind == Added && list[i] == added {
			index = i
			break
		}
	}
	newSession := added
	return Edit{
		Date:   date,
		List:   list,
		Change: e.record(date, index, ActionAdded, in.Reason, nil, &newSession),
	}, nil
}

// Modify replaces the session at index, remembering the first template it replaced.
func (e *Editor) Modify(date string, current []Session, index int, in SessionInput) (Edit, error) {
	in, err := e.checkSession(in)
	if err != nil {
		return Edit{}, err
	}
	list := clone(current)
	prev, err := editable(list, index)
	if err != nil {
		return Edit{}, err
	}
	original := prev.SessionTemplate
	if prev.Kind == Modified && prev.Original != nil {
		original = *prev.Original
	}
	modified := Session{
		SessionTemplate: SessionTemplate{Time: in.Time, Program: in.Program, Center: in.Center},
		Kind:            Modified,
		Reason:          in.Reason,
		Original:        &original,
	}
	list[index] = modified
	return Edit{
		Date:   date,
		List:   list,
		Change: e.record(date, index, ActionModified, in.Reason, &prev, &modified),
	}, nil
}

// Delete soft-deletes the session at index; it stays in the list for the audit trail.
func (e *Editor) Delete(date string, current []Session, index int, reason string) (Edit, error) {
	reason = strings.TrimSpace(reason)
	if err := e.validate.Struct(reasonInput{Reason: reason}); err != nil {
		return Edit{}, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	list := clone(current)
	prev, err := editable(list, index)
	if err != nil {
		return Edit{}, err
	}
	deleted := prev
	deleted.Kind = Deleted
	deleted.Reason = reason
	list[index] = deleted
	return Edit{
		Date:   date,
		List:   list,
		Change: e.record(date, index, ActionDeleted, reason, &prev, &deleted),
	}, nil
}

// Restore drops the override for the day so the generated sessions apply again.
func (e *Editor) Restore(date, reason string) (Edit, error) {
	reason = strings.TrimSpace(reason)
	if err := e.validate.Struct(reasonInput{Reason: reason}); err != nil {
		return Edit{}, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	return Edit{
		Date:    date,
		Restore: true,
		Change:  e.record(date, -1, ActionRestored, reason, nil, nil),
	}, nil
}

func (e *Editor) checkSession(in SessionInput) (SessionInput, error) {
	in.Time = strings.TrimSpace(in.Time)
	in.Center = strings.TrimSpace(in.Center)
	in.Reason = strings.TrimSpace(in.Reason)
	in.Program = programs.Normalize(in.Program)
	if err := e.validate.Struct(in); err != nil {
		return SessionInput{}, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	return in, nil
}

func (e *Editor) record(date string, index int, action Action, reason string, original, next *Session) ChangeRecord {
	return ChangeRecord{
		ID:           e.newID(),
		Date:         date,
		SessionIndex: index,
		Action:       action,
		Reason:       reason,
		Original:     original,
		New:          next,
		Timestamp:    e.now().UTC(),
	}
}

func editable(list []Session, index int) (Session, error) {
	if index < 0 || index >= len(list) {
		return Session{}, fmt.Errorf("%w: %d", ErrSessionIndex, index)
	}
	if list[index].IsDeleted() {
		return Session{}, ErrSessionDeleted
	}
	return list[index], nil
}

func clone(list []Session) []Session {
	out := make([]Session, len(list))
	copy(out, list)
	return out
}
