// Package classes owns class sessions, their per-class settings and the
// open/close/reopen lifecycle with the absentee sweep.
package classes

import (
	"fmt"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/errs"
)

var (
	ErrClassNotFound   = errs.New(errs.ErrNotFound, "class not found")
	ErrStudentNotFound = errs.New(errs.ErrNotFound, "student not found")
	ErrAlreadyOpen     = errs.New(errs.ErrInvalidState, "class is already open")
	ErrAlreadyClosed   = errs.New(errs.ErrInvalidState, "class is already closed")
	ErrNotClosed       = errs.New(errs.ErrInvalidState, "class is not closed")
	ErrNotStarted      = errs.New(errs.ErrInvalidState, "class has not started")
	ErrClassClosed     = errs.New(errs.ErrInvalidState, "class is closed")
)

// Session is one meeting of a course.
type Session struct {
	ID        string     `json:"id"`
	CourseID  string     `json:"course_id"`
	TeacherID string     `json:"teacher_id"`
	Subject   string     `json:"subject"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsOpen reports whether the class accepts scans.
func (s Session) IsOpen() bool {
	return s.StartedAt != nil && s.ClosedAt == nil
}

// Started reports whether the class was ever opened.
func (s Session) Started() bool { return s.StartedAt != nil }

// NewClass is the input to Lifecycle.Create.
type NewClass struct {
	CourseID  string `json:"course_id" binding:"required"`
	TeacherID string `json:"-"`
	Subject   string `json:"subject"`
}

// Student is the directory view of a student.
type Student struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

const (
	MinPresentThresholdMinutes = 5
	MaxPresentThresholdMinutes = 60
)

// Settings are the per-class attendance rules.
type Settings struct {
	PresentThresholdMinutes int  `json:"present_threshold_minutes"`
	AllowManualEntry        bool `json:"allow_manual_entry"`
	AutoMarkAbsentOnClose   bool `json:"auto_mark_absent_on_close"`
	NotifyLateArrivals      bool `json:"notify_late_arrivals"`
}

// SettingsPatch is a partial settings update. Nil fields keep their value.
type SettingsPatch struct {
	PresentThresholdMinutes *int  `json:"present_threshold_minutes"`
	AllowManualEntry        *bool `json:"allow_manual_entry"`
	AutoMarkAbsentOnClose   *bool `json:"auto_mark_absent_on_close"`
	NotifyLateArrivals      *bool `json:"notify_late_arrivals"`
}

// Apply returns s with the set fields of p written over it.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.PresentThresholdMinutes != nil {
		s.PresentThresholdMinutes = *p.PresentThresholdMinutes
	}
	if p.AllowManualEntry != nil {
		s.AllowManualEntry = *p.AllowManualEntry
	}
	if p.AutoMarkAbsentOnClose != nil {
		s.AutoMarkAbsentOnClose = *p.AutoMarkAbsentOnClose
	}
	if p.NotifyLateArrivals != nil {
		s.NotifyLateArrivals = *p.NotifyLateArrivals
	}
	return s
}

// DefaultSettings applies to classes that never saved their own.
func DefaultSettings() Settings {
	return Settings{
		PresentThresholdMinutes: int(attendance.DefaultPresentThreshold / time.Minute),
		AllowManualEntry:        false,
		AutoMarkAbsentOnClose:   true,
		NotifyLateArrivals:      true,
	}
}

// Validate checks the threshold range.
func (s Settings) Validate() error {
	if s.PresentThresholdMinutes < MinPresentThresholdMinutes || s.PresentThresholdMinutes > MaxPresentThresholdMinutes {
		return errs.New(errs.ErrInvalid, fmt.Sprintf("present_threshold_minutes must be between %d and %d",
			MinPresentThresholdMinutes, MaxPresentThresholdMinutes))
	}
	return nil
}

// PresentThreshold is the threshold as a duration.
func (s Settings) PresentThreshold() time.Duration {
	return time.Duration(s.PresentThresholdMinutes) * time.Minute
}

// SweepResult reports one absentee sweep. Pending is set when some students
// could not be written and a retry was queued.
type SweepResult struct {
	ClassID  string     `json:"class_id"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
	Swept    int        `json:"swept"`
	Skipped  int        `json:"skipped"`
	Failed   int        `json:"failed"`
	Pending  bool       `json:"pending"`
}
