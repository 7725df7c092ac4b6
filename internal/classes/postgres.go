package classes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps sessions in class_sessions.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Session, error) {
	var (
		sess            Session
		started, closed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, course_id, teacher_id, subject, started_at, closed_at, created_at
		FROM class_sessions WHERE id = $1
	`, id).Scan(&sess.ID, &sess.CourseID, &sess.TeacherID, &sess.Subject, &started, &closed, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrClassNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get class: %w", err)
	}
	if started.Valid {
		t := started.Time.UTC()
		sess.StartedAt = &t
	}
	if closed.Valid {
		t := closed.Time.UTC()
		sess.ClosedAt = &t
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	return sess, nil
}

func (s *PostgresStore) Create(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO class_sessions (id, course_id, teacher_id, subject, started_at, closed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sess.ID, sess.CourseID, sess.TeacherID, sess.Subject, sess.StartedAt, sess.ClosedAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkStarted(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE class_sessions SET started_at = $2
		WHERE id = $1 AND started_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("start class: %w", err)
	}
	return s.explain(ctx, res, id, func(Session) error { return ErrAlreadyOpen })
}

func (s *PostgresStore) MarkClosed(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE class_sessions SET closed_at = $2
		WHERE id = $1 AND started_at IS NOT NULL AND closed_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("close class: %w", err)
	}
	return s.explain(ctx, res, id, func(sess Session) error {
		if !sess.Started() {
			return ErrNotStarted
		}
		return ErrAlreadyClosed
	})
}

func (s *PostgresStore) ClearClosed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE class_sessions SET closed_at = NULL
		WHERE id = $1 AND closed_at IS NOT NULL
	`, id)
	if err != nil {
		return fmt.Errorf("reopen class: %w", err)
	}
	return s.explain(ctx, res, id, func(Session) error { return ErrNotClosed })
}

// explain turns a zero-row conditional update into the matching error.
func (s *PostgresStore) explain(ctx context.Context, res sql.Result, id string, why func(Session) error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return why(sess)
}

// PostgresDirectory reads students and enrollments.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Student(ctx context.Context, id string) (Student, error) {
	var st Student
	err := d.db.QueryRowContext(ctx, `SELECT id, code, name FROM students WHERE id = $1`, id).
		Scan(&st.ID, &st.Code, &st.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrStudentNotFound
	}
	if err != nil {
		return Student{}, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

func (d *PostgresDirectory) EnrolledStudents(ctx context.Context, courseID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT student_id FROM enrollments
		WHERE course_id = $1 AND active
		ORDER BY student_id
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PostgresSettings keeps settings in class_settings.
type PostgresSettings struct {
	db *sql.DB
}

func NewPostgresSettings(db *sql.DB) *PostgresSettings {
	return &PostgresSettings{db: db}
}

func (p *PostgresSettings) Get(ctx context.Context, classID string) (Settings, error) {
	var s Settings
	err := p.db.QueryRowContext(ctx, `
		SELECT present_threshold_minutes, allow_manual_entry, auto_mark_absent_on_close, notify_late_arrivals
		FROM class_settings WHERE class_id = $1
	`, classID).Scan(&s.PresentThresholdMinutes, &s.AllowManualEntry, &s.AutoMarkAbsentOnClose, &s.NotifyLateArrivals)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

func (p *PostgresSettings) Put(ctx context.Context, classID string, s Settings) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO class_settings (class_id, present_threshold_minutes, allow_manual_entry, auto_mark_absent_on_close, notify_late_arrivals)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (class_id) DO UPDATE SET
			present_threshold_minutes = EXCLUDED.present_threshold_minutes,
			allow_manual_entry = EXCLUDED.allow_manual_entry,
			auto_mark_absent_on_close = EXCLUDED.auto_mark_absent_on_close,
			notify_late_arrivals = EXCLUDED.notify_late_arrivals
	`, classID, s.PresentThresholdMinutes, s.AllowManualEntry, s.AutoMarkAbsentOnClose, s.NotifyLateArrivals)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
