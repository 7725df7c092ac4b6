package classes

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))
	return db
}

func TestPostgresStoreTransitions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := NewPostgresStore(db)

	sess := Session{ID: uuid.NewString(), CourseID: "c", TeacherID: "t", CreatedAt: t0}
	require.NoError(t, s.Create(ctx, sess))

	assert.ErrorIs(t, s.MarkClosed(ctx, sess.ID, t0), ErrNotStarted)
	require.NoError(t, s.MarkStarted(ctx, sess.ID, t0))
	assert.ErrorIs(t, s.MarkStarted(ctx, sess.ID, t0), ErrAlreadyOpen)
	require.NoError(t, s.MarkClosed(ctx, sess.ID, t0.Add(time.Hour)))
	assert.ErrorIs(t, s.MarkClosed(ctx, sess.ID, t0.Add(time.Hour)), ErrAlreadyClosed)

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, t0.Add(time.Hour).Equal(*got.ClosedAt))

	require.NoError(t, s.ClearClosed(ctx, sess.ID))
	assert.ErrorIs(t, s.ClearClosed(ctx, sess.ID), ErrNotClosed)
	assert.ErrorIs(t, s.MarkStarted(ctx, "missing-"+sess.ID, t0), ErrClassNotFound)

	settings := NewPostgresSettings(db)
	def, err := settings.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), def)
	custom := Settings{PresentThresholdMinutes: 15, AllowManualEntry: true}
	require.NoError(t, settings.Put(ctx, sess.ID, custom))
	got2, err := settings.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, custom, got2)
}

func TestPostgresDirectory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	course := "course-" + uuid.NewString()
	id := uuid.NewString()
	_, err := db.ExecContext(ctx, `INSERT INTO students (id, code, name) VALUES ($1, $2, 'Ana')`, id, "code-"+id)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO enrollments (course_id, student_id) VALUES ($1, $2)`, course, id)
	require.NoError(t, err)

	dir := NewPostgresDirectory(db)
	st, err := dir.Student(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", st.Name)
	_, err = dir.Student(ctx, "missing-"+id)
	assert.ErrorIs(t, err, ErrStudentNotFound)

	ids, err := dir.EnrolledStudents(ctx, course)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}
