package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const recordColumns = `id, student_id, class_id, marked_at, class_started_at, class_closed_at,
	late_minutes, state, method, is_manual, manual_justification, recorded_by_teacher_id,
	created_at, modified_at`

// PostgresRepository persists attendance in Postgres. The
// uq_attendance_student_class constraint is the race breaker for inserts.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// RecordExists checks for a record on the pair.
func (r *PostgresRepository) RecordExists(ctx context.Context, studentID, classID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM attendance_records WHERE student_id = $1 AND class_id = $2)
	`, studentID, classID).Scan(&exists)
	return exists, err
}

// InsertRecord writes rec, and audit when given, in one transaction.
func (r *PostgresRepository) InsertRecord(ctx context.Context, rec Record, audit *AuditEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (student_id, class_id) DO NOTHING
		RETURNING id
	`, rec.ID, rec.StudentID, rec.ClassID, rec.MarkedAt, rec.ClassStartedAt, rec.ClassClosedAt,
		rec.LateMinutes, string(rec.State), string(rec.Method), rec.IsManual, rec.ManualJustification,
		rec.RecordedByTeacherID, rec.CreatedAt, rec.ModifiedAt).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAlreadyExists
	}
	if err != nil {
		return err
	}

	if audit != nil {
		if err := insertAudit(ctx, tx, *audit); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRecord returns a single record by id.
func (r *PostgresRepository) GetRecord(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

// AmendRecord locks the row, applies the amendment and writes the audit
// entry with the prior values.
func (r *PostgresRepository) AmendRecord(ctx context.Context, a Amendment) (Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE id = $1 FOR UPDATE`, a.RecordID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}

	updated, err := scanRecord(tx.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET state = $2, manual_justification = $3, is_manual = TRUE,
			recorded_by_teacher_id = $4, modified_at = $5
		WHERE id = $1
		RETURNING `+recordColumns,
		a.RecordID, string(a.State), strPtr(a.Justification), strPtr(a.AmendedBy), a.At))
	if err != nil {
		return Record{}, fmt.Errorf("update attendance record: %w", err)
	}

	if err := insertAudit(ctx, tx, AuditEntry{
		ID:            a.AuditID,
		RecordID:      a.RecordID,
		Action:        ActionAmended,
		ActorID:       a.AmendedBy,
		Justification: a.Justification,
		Previous:      previousOf(current),
		At:            a.At,
	}); err != nil {
		return Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	return updated, nil
}

// ListByClass returns the class's records in scan order.
func (r *PostgresRepository) ListByClass(ctx context.Context, classID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE class_id = $1
		ORDER BY marked_at ASC, student_id ASC
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// AuditTrail lists audit entries for a record, oldest first.
func (r *PostgresRepository) AuditTrail(ctx context.Context, recordID string) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, record_id, action, actor_id, justification, previous, at
		FROM attendance_audit
		WHERE record_id = $1
		ORDER BY at ASC
	`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var previous []byte
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Action, &e.ActorID, &e.Justification, &previous, &e.At); err != nil {
			return nil, err
		}
		e.Previous = previous
		res = append(res, e)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                       Record
		closedAt, modifiedAt      sql.NullTime
		justification, recordedBy sql.NullString
		state, method             string
	)
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.ClassID, &rec.MarkedAt, &rec.ClassStartedAt, &closedAt,
		&rec.LateMinutes, &state, &method, &rec.IsManual, &justification, &recordedBy,
		&rec.CreatedAt, &modifiedAt); err != nil {
		return Record{}, err
	}
	rec.State = State(state)
	rec.Method = Method(method)
	rec.ClassClosedAt = timePtr(closedAt)
	rec.ModifiedAt = timePtr(modifiedAt)
	if justification.Valid {
		rec.ManualJustification = &justification.String
	}
	if recordedBy.Valid {
		rec.RecordedByTeacherID = &recordedBy.String
	}
	return rec, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func insertAudit(ctx context.Context, tx *sql.Tx, e AuditEntry) error {
	var previous any
	if len(e.Previous) > 0 {
		previous = string(e.Previous)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_audit (id, record_id, action, actor_id, justification, previous, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.RecordID, e.Action, e.ActorID, e.Justification, previous, e.At)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
