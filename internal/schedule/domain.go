// Package schedule resolves the classes that take place on a calendar day from recurring weekly
// timetables, exception days and manual per-day overrides.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday is an ISO weekday, Monday=1 … Sunday=7.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// weekdayAliases covers the labels used by staff in the Catalan and Spanish UI.
var weekdayAliases = map[string]Weekday{
	"dilluns": Monday, "lunes": Monday,
	"dimarts": Tuesday, "martes": Tuesday,
	"dimecres": Wednesday, "miercoles": Wednesday, "miércoles": Wednesday,
	"dijous": Thursday, "jueves": Thursday,
	"divendres": Friday, "viernes": Friday,
	"dissabte": Saturday, "sabado": Saturday, "sábado": Saturday,
	"diumenge": Sunday, "domingo": Sunday,
}

// ErrInvalidWeekday is returned for labels outside the weekday enumeration.
var ErrInvalidWeekday = errors.New("schedule: invalid weekday")

// WeekdayOf remaps Go's Sunday=0 convention to the ISO numbering used by timetables.
func WeekdayOf(t time.Time) Weekday {
	if t.Weekday() == time.Sunday {
		return Sunday
	}
	return Weekday(t.Weekday())
}

// Valid reports whether w is within 1..7.
func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

func (w Weekday) String() string {
	if !w.Valid() {
		return "weekday(" + strconv.Itoa(int(w)) + ")"
	}
	return weekdayNames[w]
}

// ParseWeekday accepts ISO numbers, English names and the Catalan/Spanish aliases.
func ParseWeekday(raw string) (Weekday, error) {
	label := strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(label); err == nil {
		if w := Weekday(n); w.Valid() {
			return w, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, raw)
	}
	for i := Monday; i <= Sunday; i++ {
		if weekdayNames[i] == label {
			return i, nil
		}
	}
	if w, ok := weekdayAliases[label]; ok {
		return w, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, raw)
}

// SessionTemplate is a recurring class slot inside a weekly timetable.
type SessionTemplate struct {
	Time    string `json:"time"`
	Program string `json:"program"`
	Center  string `json:"center,omitempty"`
}

// Kind tags how a resolved session came to exist.
type Kind int

const (
	// Generated sessions come straight from the weekly timetable.
	Generated Kind = iota
	// Added sessions were created by staff for a single day.
	Added
	// Modified sessions replace a generated or added session on a single day.
	Modified
	// Deleted sessions are soft-deleted and kept for the audit trail.
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Generated:
		return "generated"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Session is a class resolved for a concrete day.
type Session struct {
	SessionTemplate
	Kind   Kind
	Reason string
	// Original is the template a Modified session replaced.
	Original *SessionTemplate
}

// Generate builds the resolved form of a timetable slot.
func Generate(tpl SessionTemplate) Session {
	return Session{SessionTemplate: tpl, Kind: Generated}
}

// IsCustom reports whether staff touched this session.
func (s Session) IsCustom() bool {
	return s.Kind != Generated
}

// IsDeleted reports whether the session was soft-deleted.
func (s Session) IsDeleted() bool {
	return s.Kind == Deleted
}

// sessionDoc is the document-store shape, kept flag based for compatibility.
type sessionDoc struct {
	Time         string           `json:"time"`
	Program      string           `json:"program"`
	Center       string           `json:"center,omitempty"`
	IsCustom     bool             `json:"isCustom"`
	IsDeleted    bool             `json:"isDeleted"`
	AddReason    string           `json:"addReason,omitempty"`
	DeleteReason string           `json:"deleteReason,omitempty"`
	ModifyReason string           `json:"modifyReason,omitempty"`
	Original     *SessionTemplate `json:"original,omitempty"`
}

// MarshalJSON encodes the session in the flag based document shape.
func (s Session) MarshalJSON() ([]byte, error) {
	doc := sessionDoc{
		Time:      s.Time,
		Program:   s.Program,
		Center:    s.Center,
		IsCustom:  s.IsCustom(),
		IsDeleted: s.IsDeleted(),
		Original:  s.Original,
	}
	switch s.Kind {
	case Added:
		doc.AddReason = s.Reason
	case Modified:
		doc.ModifyReason = s.Reason
	case Deleted:
		doc.DeleteReason = s.Reason
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes the flag based document shape into the tagged variant.
func (s *Session) UnmarshalJSON(data []byte) error {
	var doc sessionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*s = Session{SessionTemplate: SessionTemplate{Time: doc.Time, Program: doc.Program, Center: doc.Center}}
	switch {
	case doc.IsDeleted:
		s.Kind = Deleted
		s.Reason = doc.DeleteReason
		s.Original = doc.Original
	case doc.IsCustom && doc.Original != nil:
		s.Kind = Modified
		s.Reason = doc.ModifyReason
		s.Original = doc.Original
	case doc.IsCustom:
		s.Kind = Added
		s.Reason = doc.AddReason
	default:
		s.Kind = Generated
	}
	return nil
}

// Active drops soft-deleted sessions.
func Active(sessions []Session) []Session {
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if !s.IsDeleted() {
			out = append(out, s)
		}
	}
	return out
}

// Overrides maps a YYYY-MM-DD key to the manual session list for that day.
type Overrides map[string][]Session
