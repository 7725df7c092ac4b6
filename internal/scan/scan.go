// Package scan turns scan requests into attendance records: it checks the
// class and student, redeems the QR token and hands off to the registry.
package scan

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"qrattend/internal/attendance"
	"qrattend/internal/classes"
	"qrattend/internal/clock"
	"qrattend/internal/errs"
	"qrattend/internal/metrics"
	"qrattend/internal/token"
)

var (
	ErrInvalidOrExpiredToken = errs.New(errs.ErrInvalidState, "token invalid or expired, please rescan the QR code")
	ErrManualEntryDisabled   = errs.New(errs.ErrInvalidState, "manual entry is disabled for this class")
)

// OutcomeKind tells a fresh record apart from a repeated scan.
type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeAlreadyRecorded OutcomeKind = "already_recorded"
)

// Outcome is the result of a scan that did not fail.
type Outcome struct {
	Kind    OutcomeKind        `json:"kind"`
	State   attendance.State   `json:"state,omitempty"`
	Record  *attendance.Record `json:"record,omitempty"`
	Message string             `json:"message"`
}

// Ticket is what the teacher's screen turns into a QR code.
type Ticket struct {
	TokenID   string    `json:"token_id"`
	ClassID   string    `json:"class_id"`
	ExpiresAt time.Time `json:"expires_at"`
	ScanURL   string    `json:"scan_url"`
}

// Classes is the class and directory lookup the coordinator needs.
// *classes.Lifecycle satisfies it.
type Classes interface {
	Get(ctx context.Context, id string) (classes.Session, error)
	Student(ctx context.Context, id string) (classes.Student, error)
	Settings(ctx context.Context, id string) (classes.Settings, error)
	Enrolled(ctx context.Context, sess classes.Session) ([]string, error)
}

// Coordinator runs the scan flows.
type Coordinator struct {
	classes  Classes
	registry *attendance.Registry
	tokens   *token.Manager
	baseURL  string
	clock    clock.Clock
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// Options configures a Coordinator. BaseURL is the public origin students
// reach, e.g. https://attend.example.edu.
type Options struct {
	BaseURL string
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

func NewCoordinator(cls Classes, registry *attendance.Registry, tokens *token.Manager, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	return &Coordinator{
		classes:  cls,
		registry: registry,
		tokens:   tokens,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		log:      opts.Log.With().Str("component", "scan").Logger(),
	}
}

// Ticket mints a token for an open class and builds the URL for its QR code.
func (c *Coordinator) Ticket(ctx context.Context, classID string) (Ticket, error) {
	if _, err := c.openClass(ctx, classID); err != nil {
		return Ticket{}, err
	}
	tok, err := c.tokens.Mint(ctx, classID)
	if err != nil {
		return Ticket{}, err
	}
	c.metrics.TokenMinted()
	return Ticket{
		TokenID:   tok.ID,
		ClassID:   classID,
		ExpiresAt: tok.ExpiresAt,
		ScanURL:   c.scanURL(classID, tok.ID),
	}, nil
}

func (c *Coordinator) scanURL(classID, nonce string) string {
	q := url.Values{}
	q.Set("classId", classID)
	q.Set("nonce", nonce)
	return c.baseURL + "/scan?" + q.Encode()
}

// StudentScan records a student's own scan of the class QR code. Token
// problems of any kind are reported as ErrInvalidOrExpiredToken.
func (c *Coordinator) StudentScan(ctx context.Context, studentID, classID, tokenID string) (Outcome, error) {
	sess, err := c.openClass(ctx, classID)
	if err != nil {
		c.metrics.Scan("student", "rejected")
		return Outcome{}, err
	}
	if _, err := c.classes.Student(ctx, studentID); err != nil {
		c.metrics.Scan("student", "rejected")
		return Outcome{}, err
	}
	if err := c.tokens.ValidateAndConsume(ctx, tokenID, classID); err != nil {
		reason := tokenReason(err)
		if reason == "" {
			return Outcome{}, fmt.Errorf("redeem token: %w", err)
		}
		c.metrics.TokenRejected(reason)
		c.metrics.Scan("student", "rejected")
		c.log.Info().Str("class_id", classID).Str("student_id", studentID).Str("reason", reason).Msg("scan token rejected")
		return Outcome{}, ErrInvalidOrExpiredToken
	}
	return c.record(ctx, "student", sess, studentID, attendance.MethodStudentScan, "")
}

// TeacherScan records a student scanned by the class's teacher. No token is
// involved.
func (c *Coordinator) TeacherScan(ctx context.Context, studentID, classID, teacherID string) (Outcome, error) {
	sess, err := c.openClass(ctx, classID)
	if err != nil {
		c.metrics.Scan("teacher", "rejected")
		return Outcome{}, err
	}
	if _, err := c.classes.Student(ctx, studentID); err != nil {
		c.metrics.Scan("teacher", "rejected")
		return Outcome{}, err
	}
	return c.record(ctx, "teacher", sess, studentID, attendance.MethodTeacherScan, teacherID)
}

// ManualEntry lets a teacher type in attendance when the class allows it.
// An empty state is classified from the current time.
func (c *Coordinator) ManualEntry(ctx context.Context, studentID, classID, teacherID string, state attendance.State, justification string) (Outcome, error) {
	sess, err := c.classes.Get(ctx, classID)
	if err != nil {
		return Outcome{}, err
	}
	if !sess.Started() {
		return Outcome{}, classes.ErrNotStarted
	}
	settings, err := c.classes.Settings(ctx, classID)
	if err != nil {
		return Outcome{}, err
	}
	if !settings.AllowManualEntry {
		return Outcome{}, ErrManualEntryDisabled
	}
	if _, err := c.classes.Student(ctx, studentID); err != nil {
		return Outcome{}, err
	}
	rec, err := c.registry.CreateRecord(ctx, attendance.NewRecord{
		StudentID:        studentID,
		ClassID:          classID,
		MarkedAt:         c.clock.Now(),
		ClassStartedAt:   *sess.StartedAt,
		ClassClosedAt:    sess.ClosedAt,
		Method:           attendance.MethodManual,
		RecordedBy:       teacherID,
		Justification:    justification,
		PresentThreshold: settings.PresentThreshold(),
		State:            state,
	})
	if err != nil {
		c.metrics.Scan("manual", "rejected")
		return Outcome{}, err
	}
	c.metrics.Scan("manual", string(OutcomeSuccess))
	return Outcome{Kind: OutcomeSuccess, State: rec.State, Record: &rec, Message: "attendance recorded"}, nil
}

// openClass loads a class that is accepting scans.
func (c *Coordinator) openClass(ctx context.Context, classID string) (classes.Session, error) {
	sess, err := c.classes.Get(ctx, classID)
	if err != nil {
		return classes.Session{}, err
	}
	switch {
	case sess.ClosedAt != nil:
		return classes.Session{}, classes.ErrClassClosed
	case !sess.Started():
		return classes.Session{}, classes.ErrNotStarted
	}
	return sess, nil
}

func (c *Coordinator) record(ctx context.Context, flow string, sess classes.Session, studentID string, method attendance.Method, recordedBy string) (Outcome, error) {
	exists, err := c.registry.RecordExists(ctx, studentID, sess.ID)
	if err != nil {
		return Outcome{}, err
	}
	if exists {
		c.metrics.Scan(flow, string(OutcomeAlreadyRecorded))
		return alreadyRecorded(), nil
	}

	settings, err := c.classes.Settings(ctx, sess.ID)
	if err != nil {
		return Outcome{}, err
	}
	rec, err := c.registry.CreateRecord(ctx, attendance.NewRecord{
		StudentID:        studentID,
		ClassID:          sess.ID,
		MarkedAt:         c.clock.Now(),
		ClassStartedAt:   *sess.StartedAt,
		ClassClosedAt:    sess.ClosedAt,
		Method:           method,
		RecordedBy:       recordedBy,
		PresentThreshold: settings.PresentThreshold(),
	})
	if errors.Is(err, attendance.ErrAlreadyExists) {
		c.metrics.Scan(flow, string(OutcomeAlreadyRecorded))
		return alreadyRecorded(), nil
	}
	if err != nil {
		c.metrics.Scan(flow, "error")
		return Outcome{}, err
	}
	c.metrics.Scan(flow, string(OutcomeSuccess))
	return Outcome{Kind: OutcomeSuccess, State: rec.State, Record: &rec, Message: "attendance recorded"}, nil
}

func alreadyRecorded() Outcome {
	return Outcome{Kind: OutcomeAlreadyRecorded, Message: "attendance already recorded for this class"}
}

// tokenReason names a token rejection for logs and metrics. It returns ""
// for errors that are not about the token itself.
func tokenReason(err error) string {
	switch {
	case errors.Is(err, token.ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, token.ErrTokenClassMismatch):
		return "class_mismatch"
	case errors.Is(err, token.ErrTokenExpired):
		return "expired"
	}
	return ""
}
