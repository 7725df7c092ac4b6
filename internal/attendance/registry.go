package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"qrattend/internal/clock"
	"qrattend/internal/errs"
)

// Registry enforces one record per (student, class) and derives each
// record's state and lateness when it is created.
type Registry struct {
	repo  Repository
	clock clock.Clock
	log   zerolog.Logger
}

// NewRegistry creates a registry backed by repo.
func NewRegistry(repo Repository, clk clock.Clock, log zerolog.Logger) *Registry {
	if clk == nil {
		clk = clock.System{}
	}
	return &Registry{repo: repo, clock: clk, log: log.With().Str("component", "registry").Logger()}
}

// RecordExists is the fast-path duplicate check. It is advisory only; the
// repository's unique constraint decides races.
func (r *Registry) RecordExists(ctx context.Context, studentID, classID string) (bool, error) {
	return r.repo.RecordExists(ctx, studentID, classID)
}

// CreateRecord classifies and persists a new record. It returns
// ErrAlreadyExists when the pair already has one.
func (r *Registry) CreateRecord(ctx context.Context, in NewRecord) (Record, error) {
	if in.StudentID == "" || in.ClassID == "" {
		return Record{}, errs.New(errs.ErrInvalid, "student and class required")
	}
	if !in.Method.valid() {
		return Record{}, errs.New(errs.ErrInvalid, fmt.Sprintf("unknown method %q", in.Method))
	}
	if in.ClassStartedAt.IsZero() {
		return Record{}, errs.New(errs.ErrInvalidState, "class has not started")
	}
	justification := strings.TrimSpace(in.Justification)

	var state State
	switch in.Method {
	case MethodAutoAbsent:
		state = Ausente
	case MethodManual:
		if justification == "" {
			return Record{}, ErrJustificationRequired
		}
		state = in.State
		if state == "" {
			state = Classify(in.MarkedAt, in.ClassStartedAt, in.ClassClosedAt, in.PresentThreshold)
		} else if !state.Final() {
			return Record{}, ErrNotFinalState
		}
	default:
		state = Classify(in.MarkedAt, in.ClassStartedAt, in.ClassClosedAt, in.PresentThreshold)
	}

	now := r.clock.Now()
	rec := Record{
		ID:                  uuid.NewString(),
		StudentID:           in.StudentID,
		ClassID:             in.ClassID,
		MarkedAt:            in.MarkedAt,
		ClassStartedAt:      in.ClassStartedAt,
		ClassClosedAt:       in.ClassClosedAt,
		LateMinutes:         LateMinutes(in.MarkedAt, in.ClassStartedAt),
		State:               state,
		Method:              in.Method,
		IsManual:            in.Method == MethodManual,
		ManualJustification: strPtr(justification),
		RecordedByTeacherID: strPtr(in.RecordedBy),
		CreatedAt:           now,
	}

	var audit *AuditEntry
	if rec.IsManual {
		audit = &AuditEntry{
			ID:            uuid.NewString(),
			RecordID:      rec.ID,
			Action:        ActionCreatedManual,
			ActorID:       in.RecordedBy,
			Justification: justification,
			At:            now,
		}
	}

	if err := r.repo.InsertRecord(ctx, rec, audit); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("insert attendance record: %w", err)
	}

	r.log.Info().
		Str("record_id", rec.ID).
		Str("student_id", rec.StudentID).
		Str("class_id", rec.ClassID).
		Str("state", string(rec.State)).
		Str("method", string(rec.Method)).
		Int("late_minutes", rec.LateMinutes).
		Msg("attendance recorded")
	return rec, nil
}

// AmendRecord overwrites a record's state and justification. The caller is
// responsible for checking that amendedBy may act on the record's class.
func (r *Registry) AmendRecord(ctx context.Context, recordID string, state State, justification, amendedBy string) (Record, error) {
	if !state.Final() {
		return Record{}, ErrNotFinalState
	}
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return Record{}, ErrJustificationRequired
	}
	rec, err := r.repo.AmendRecord(ctx, Amendment{
		RecordID:      recordID,
		State:         state,
		Justification: justification,
		AmendedBy:     amendedBy,
		At:            r.clock.Now(),
		AuditID:       uuid.NewString(),
	})
	if err != nil {
		return Record{}, err
	}
	r.log.Info().Str("record_id", recordID).Str("state", string(state)).Str("amended_by", amendedBy).Msg("attendance amended")
	return rec, nil
}

// GetRecord returns one record by id.
func (r *Registry) GetRecord(ctx context.Context, id string) (Record, error) {
	return r.repo.GetRecord(ctx, id)
}

// ListByClass returns a class's records ordered by MarkedAt ascending.
func (r *Registry) ListByClass(ctx context.Context, classID string) ([]Record, error) {
	return r.repo.ListByClass(ctx, classID)
}

// AuditTrail returns the manual changes made to a record, oldest first.
func (r *Registry) AuditTrail(ctx context.Context, recordID string) ([]AuditEntry, error) {
	if _, err := r.repo.GetRecord(ctx, recordID); err != nil {
		return nil, err
	}
	return r.repo.AuditTrail(ctx, recordID)
}
