package attendance

import (
	"encoding/json"
	"time"

	"qrattend/internal/errs"
)

// State is the attendance outcome for one student in one class.
type State string

const (
	Presente  State = "Presente"
	Tardanza  State = "Tardanza"
	Ausente   State = "Ausente"
	Excusado  State = "Excusado"
	Pendiente State = "Pendiente" // roster projection only, never stored
)

// Final reports whether s may be stored on a record.
func (s State) Final() bool {
	switch s {
	case Presente, Tardanza, Ausente, Excusado:
		return true
	}
	return false
}

// ParseState accepts one of the final states.
func ParseState(v string) (State, error) {
	s := State(v)
	if !s.Final() {
		return "", ErrNotFinalState
	}
	return s, nil
}

// Method records how an attendance record came to exist.
type Method string

const (
	MethodStudentScan Method = "StudentScan"
	MethodTeacherScan Method = "TeacherScan"
	MethodManual      Method = "Manual"
	MethodAutoAbsent  Method = "AutoAbsent"
)

func (m Method) valid() bool {
	switch m {
	case MethodStudentScan, MethodTeacherScan, MethodManual, MethodAutoAbsent:
		return true
	}
	return false
}

// Audit actions.
const (
	ActionCreatedManual = "CREATED_MANUAL"
	ActionAmended       = "AMENDED"
)

var (
	ErrAlreadyExists         = errs.New(errs.ErrConflict, "attendance already recorded for this student and class")
	ErrRecordNotFound        = errs.New(errs.ErrNotFound, "attendance record not found")
	ErrNotFinalState         = errs.New(errs.ErrInvalid, "state must be one of Presente, Tardanza, Ausente, Excusado")
	ErrJustificationRequired = errs.New(errs.ErrInvalid, "a justification is required for manual attendance")
)

// Record is the single attendance row for a (student, class) pair. The class
// start and close instants are copied at write time so later class edits do
// not rewrite history.
type Record struct {
	ID                  string     `json:"id"`
	StudentID           string     `json:"student_id"`
	ClassID             string     `json:"class_id"`
	MarkedAt            time.Time  `json:"marked_at"`
	ClassStartedAt      time.Time  `json:"class_started_at"`
	ClassClosedAt       *time.Time `json:"class_closed_at,omitempty"`
	LateMinutes         int        `json:"late_minutes"`
	State               State      `json:"state"`
	Method              Method     `json:"method"`
	IsManual            bool       `json:"is_manual"`
	ManualJustification *string    `json:"manual_justification,omitempty"`
	RecordedByTeacherID *string    `json:"recorded_by_teacher_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	ModifiedAt          *time.Time `json:"modified_at,omitempty"`
}

// NewRecord is the input to Registry.CreateRecord.
type NewRecord struct {
	StudentID        string
	ClassID          string
	MarkedAt         time.Time
	ClassStartedAt   time.Time
	ClassClosedAt    *time.Time
	Method           Method
	RecordedBy       string
	Justification    string
	PresentThreshold time.Duration
	// State is honoured for MethodManual only; empty means classify.
	State State
}

// Amendment is a manual correction of an existing record.
type Amendment struct {
	RecordID      string
	State         State
	Justification string
	AmendedBy     string
	At            time.Time
	AuditID       string
}

// AuditEntry describes one manual change to a record.
type AuditEntry struct {
	ID            string          `json:"id"`
	RecordID      string          `json:"record_id"`
	Action        string          `json:"action"`
	ActorID       string          `json:"actor_id"`
	Justification string          `json:"justification"`
	Previous      json.RawMessage `json:"previous,omitempty"`
	At            time.Time       `json:"at"`
}

// snapshot is the audit view of a record before an amendment.
type snapshot struct {
	State         State      `json:"state"`
	Justification *string    `json:"justification,omitempty"`
	ModifiedAt    *time.Time `json:"modified_at,omitempty"`
}

func previousOf(rec Record) json.RawMessage {
	b, _ := json.Marshal(snapshot{State: rec.State, Justification: rec.ManualJustification, ModifiedAt: rec.ModifiedAt})
	return b
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
