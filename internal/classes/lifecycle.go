package classes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"qrattend/internal/attendance"
	"qrattend/internal/clock"
	"qrattend/internal/errs"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
)

// Deps wires a Lifecycle. Queue and Metrics may be nil.
type Deps struct {
	Classes   Store
	Directory Directory
	Settings  SettingsStore
	Registry  *attendance.Registry
	Queue     queue.Queue
	Clock     clock.Clock
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

// Lifecycle drives class open, close and reopen and fills in absentees.
type Lifecycle struct {
	classes   Store
	directory Directory
	settings  SettingsStore
	registry  *attendance.Registry
	queue     queue.Queue
	clock     clock.Clock
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func NewLifecycle(d Deps) *Lifecycle {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	return &Lifecycle{
		classes:   d.Classes,
		directory: d.Directory,
		settings:  d.Settings,
		registry:  d.Registry,
		queue:     d.Queue,
		clock:     d.Clock,
		metrics:   d.Metrics,
		log:       d.Log.With().Str("component", "lifecycle").Logger(),
	}
}

// Create registers a new, not yet started class.
func (l *Lifecycle) Create(ctx context.Context, in NewClass) (Session, error) {
	in.CourseID = strings.TrimSpace(in.CourseID)
	if in.CourseID == "" || in.TeacherID == "" {
		return Session{}, errs.New(errs.ErrInvalid, "course and teacher required")
	}
	sess := Session{
		ID:        uuid.NewString(),
		CourseID:  in.CourseID,
		TeacherID: in.TeacherID,
		Subject:   strings.TrimSpace(in.Subject),
		CreatedAt: l.clock.Now(),
	}
	if err := l.classes.Create(ctx, sess); err != nil {
		return Session{}, err
	}
	l.log.Info().Str("class_id", sess.ID).Str("course_id", sess.CourseID).Msg("class created")
	return sess, nil
}

// Get returns a class by id.
func (l *Lifecycle) Get(ctx context.Context, id string) (Session, error) {
	return l.classes.Get(ctx, id)
}

// Student looks a student up in the directory.
func (l *Lifecycle) Student(ctx context.Context, id string) (Student, error) {
	return l.directory.Student(ctx, id)
}

// Enrolled lists the active students of the class's course.
func (l *Lifecycle) Enrolled(ctx context.Context, sess Session) ([]string, error) {
	return l.directory.EnrolledStudents(ctx, sess.CourseID)
}

// Open starts a class that has never been started. A closed class must be
// reopened instead.
func (l *Lifecycle) Open(ctx context.Context, id string) (Session, error) {
	sess, err := l.classes.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.ClosedAt != nil {
		return Session{}, ErrClassClosed
	}
	if sess.StartedAt != nil {
		return Session{}, ErrAlreadyOpen
	}
	now := l.clock.Now()
	if err := l.classes.MarkStarted(ctx, id, now); err != nil {
		return Session{}, err
	}
	sess.StartedAt = &now
	l.log.Info().Str("class_id", id).Time("started_at", now).Msg("class opened")
	return sess, nil
}

// Close stamps ClosedAt and, when the class settings ask for it, sweeps the
// absentees. A partly failed sweep is queued for retry and reported as
// Pending; the close itself still stands.
func (l *Lifecycle) Close(ctx context.Context, id string) (SweepResult, error) {
	now := l.clock.Now()
	if err := l.classes.MarkClosed(ctx, id, now); err != nil {
		return SweepResult{}, err
	}
	l.log.Info().Str("class_id", id).Time("closed_at", now).Msg("class closed")

	res := SweepResult{ClassID: id, ClosedAt: &now}
	settings, err := l.settings.Get(ctx, id)
	if err != nil {
		l.log.Error().Err(err).Str("class_id", id).Msg("load settings for sweep failed")
		res.Pending = l.queueRetry(ctx, id)
		return res, nil
	}
	if !settings.AutoMarkAbsentOnClose {
		return res, nil
	}

	swept, err := l.Sweep(ctx, id)
	if err != nil || swept.Failed > 0 {
		if err != nil {
			l.log.Error().Err(err).Str("class_id", id).Msg("sweep failed")
		}
		swept.Pending = l.queueRetry(ctx, id)
	}
	swept.ClassID = id
	swept.ClosedAt = &now
	return swept, nil
}

// Sweep writes an AutoAbsent record for every enrolled student without one.
// It is safe to run any number of times on a closed class.
func (l *Lifecycle) Sweep(ctx context.Context, id string) (SweepResult, error) {
	sess, err := l.classes.Get(ctx, id)
	if err != nil {
		return SweepResult{}, err
	}
	if sess.ClosedAt == nil || sess.StartedAt == nil {
		return SweepResult{}, ErrNotClosed
	}
	enrolled, err := l.directory.EnrolledStudents(ctx, sess.CourseID)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list enrolled students: %w", err)
	}

	res := SweepResult{ClassID: id, ClosedAt: sess.ClosedAt}
	var lastErr error
	for _, studentID := range enrolled {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		exists, err := l.registry.RecordExists(ctx, studentID, id)
		if err == nil && exists {
			res.Skipped++
			continue
		}
		_, err = l.registry.CreateRecord(ctx, attendance.NewRecord{
			StudentID:      studentID,
			ClassID:        id,
			MarkedAt:       *sess.ClosedAt,
			ClassStartedAt: *sess.StartedAt,
			ClassClosedAt:  sess.ClosedAt,
			Method:         attendance.MethodAutoAbsent,
			RecordedBy:     sess.TeacherID,
		})
		switch {
		case err == nil:
			res.Swept++
		case errors.Is(err, attendance.ErrAlreadyExists):
			res.Skipped++
		default:
			res.Failed++
			lastErr = err
			l.log.Warn().Err(err).Str("class_id", id).Str("student_id", studentID).Msg("auto absent failed")
		}
	}
	l.metrics.Swept(res.Swept, res.Skipped, res.Failed)
	l.log.Info().Str("class_id", id).Int("swept", res.Swept).Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("sweep finished")
	if res.Failed > 0 {
		l.log.Debug().Err(lastErr).Str("class_id", id).Msg("last sweep error")
	}
	return res, nil
}

// RetrySweep is the queued form of the close-time sweep. It reloads the class
// settings and does nothing when auto absent is off. Settings read failures
// come back untyped so the caller may try again.
func (l *Lifecycle) RetrySweep(ctx context.Context, id string) (SweepResult, error) {
	settings, err := l.settings.Get(ctx, id)
	if err != nil {
		return SweepResult{}, fmt.Errorf("load settings: %w", err)
	}
	if !settings.AutoMarkAbsentOnClose {
		l.log.Info().Str("class_id", id).Msg("auto absent off, sweep retry skipped")
		return SweepResult{ClassID: id}, nil
	}
	return l.Sweep(ctx, id)
}

// Reopen clears ClosedAt. Records written by the sweep stay as they are.
func (l *Lifecycle) Reopen(ctx context.Context, id string) (Session, error) {
	if err := l.classes.ClearClosed(ctx, id); err != nil {
		return Session{}, err
	}
	l.log.Info().Str("class_id", id).Msg("class reopened")
	return l.classes.Get(ctx, id)
}

// Settings returns the class settings, or the defaults.
func (l *Lifecycle) Settings(ctx context.Context, id string) (Settings, error) {
	if _, err := l.classes.Get(ctx, id); err != nil {
		return Settings{}, err
	}
	return l.settings.Get(ctx, id)
}

// UpdateSettings validates and saves s.
func (l *Lifecycle) UpdateSettings(ctx context.Context, id string, s Settings) (Settings, error) {
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	if _, err := l.classes.Get(ctx, id); err != nil {
		return Settings{}, err
	}
	if err := l.settings.Put(ctx, id, s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// PatchSettings merges p over the current settings and saves the result.
func (l *Lifecycle) PatchSettings(ctx context.Context, id string, p SettingsPatch) (Settings, error) {
	current, err := l.Settings(ctx, id)
	if err != nil {
		return Settings{}, err
	}
	return l.UpdateSettings(ctx, id, p.Apply(current))
}

// Roster is the enrolled students joined with their records.
func (l *Lifecycle) Roster(ctx context.Context, id string) (attendance.Roster, error) {
	sess, err := l.classes.Get(ctx, id)
	if err != nil {
		return attendance.Roster{}, err
	}
	enrolled, err := l.directory.EnrolledStudents(ctx, sess.CourseID)
	if err != nil {
		return attendance.Roster{}, fmt.Errorf("list enrolled students: %w", err)
	}
	return l.registry.Roster(ctx, id, enrolled, sess.IsOpen() || !sess.Started())
}

func (l *Lifecycle) queueRetry(ctx context.Context, id string) bool {
	if l.queue == nil {
		l.log.Warn().Str("class_id", id).Msg("no queue configured, sweep retry dropped")
		return false
	}
	msg, err := queue.NewMessage(queue.TypeSweepRetry, queue.SweepRetry{ClassID: id, Attempt: 1, QueuedAt: l.clock.Now()})
	if err == nil {
		err = l.queue.Publish(ctx, msg)
	}
	if err != nil {
		l.log.Error().Err(err).Str("class_id", id).Msg("queue sweep retry failed")
		return false
	}
	l.metrics.SweepRetryQueued()
	return true
}
