package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/clock"
	"qrattend/internal/errs"
)

func newTestRegistry() (*Registry, *MemoryRepository, *clock.Manual) {
	repo := NewMemoryRepository()
	clk := clock.NewManual(start)
	return NewRegistry(repo, clk, zerolog.Nop()), repo, clk
}

func scan(student string, marked time.Time) NewRecord {
	return NewRecord{
		StudentID:      student,
		ClassID:        "class-1",
		MarkedAt:       marked,
		ClassStartedAt: start,
		Method:         MethodStudentScan,
	}
}

func TestCreateRecordClassifies(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()

	rec, err := reg.CreateRecord(ctx, scan("s1", at(5*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, Presente, rec.State)
	assert.Equal(t, 5, rec.LateMinutes)
	assert.Equal(t, MethodStudentScan, rec.Method)
	assert.False(t, rec.IsManual)
	assert.Nil(t, rec.RecordedByTeacherID)
	assert.NotEmpty(t, rec.ID)

	rec, err = reg.CreateRecord(ctx, scan("s2", at(25*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, Tardanza, rec.State)
	assert.Equal(t, 25, rec.LateMinutes)
}

func TestCreateRecordRejectsDuplicate(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()

	_, err := reg.CreateRecord(ctx, scan("s1", at(time.Minute)))
	require.NoError(t, err)
	_, err = reg.CreateRecord(ctx, scan("s1", at(2*time.Minute)))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.ErrorIs(t, err, errs.ErrConflict)

	exists, err := reg.RecordExists(ctx, "s1", "class-1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = reg.RecordExists(ctx, "s1", "class-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateRecordConcurrentUniqueness(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()

	const writers = 50
	var created, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.CreateRecord(ctx, scan("s1", at(time.Duration(i)*time.Second)))
			if err == nil {
				created.Add(1)
			} else if assert.ErrorIs(t, err, ErrAlreadyExists) {
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, writers-1, conflicts.Load())
	recs, err := reg.ListByClass(ctx, "class-1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestCreateRecordAutoAbsentIsAlwaysAusente(t *testing.T) {
	reg, _, _ := newTestRegistry()
	closed := at(10 * time.Minute)

	rec, err := reg.CreateRecord(context.Background(), NewRecord{
		StudentID:      "s1",
		ClassID:        "class-1",
		MarkedAt:       closed,
		ClassStartedAt: start,
		ClassClosedAt:  &closed,
		Method:         MethodAutoAbsent,
		RecordedBy:     "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, Ausente, rec.State)
	assert.Equal(t, 10, rec.LateMinutes)
	require.NotNil(t, rec.ClassClosedAt)
	assert.Equal(t, closed, *rec.ClassClosedAt)
}

func TestCreateRecordManual(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()

	in := scan("s1", at(40*time.Minute))
	in.Method = MethodManual
	in.RecordedBy = "t1"
	_, err := reg.CreateRecord(ctx, in)
	assert.ErrorIs(t, err, ErrJustificationRequired)

	in.Justification = "  medical note  "
	in.State = Pendiente
	_, err = reg.CreateRecord(ctx, in)
	assert.ErrorIs(t, err, ErrNotFinalState)

	in.State = Excusado
	rec, err := reg.CreateRecord(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, Excusado, rec.State)
	assert.True(t, rec.IsManual)
	require.NotNil(t, rec.ManualJustification)
	assert.Equal(t, "medical note", *rec.ManualJustification)

	trail, err := reg.AuditTrail(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, ActionCreatedManual, trail[0].Action)
	assert.Equal(t, "t1", trail[0].ActorID)
}

func TestCreateRecordValidation(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()

	_, err := reg.CreateRecord(ctx, NewRecord{ClassID: "c", MarkedAt: start, ClassStartedAt: start, Method: MethodStudentScan})
	assert.ErrorIs(t, err, errs.ErrInvalid)

	_, err = reg.CreateRecord(ctx, NewRecord{StudentID: "s", ClassID: "c", MarkedAt: start, ClassStartedAt: start, Method: "Carrier"})
	assert.ErrorIs(t, err, errs.ErrInvalid)

	_, err = reg.CreateRecord(ctx, NewRecord{StudentID: "s", ClassID: "c", MarkedAt: start, Method: MethodStudentScan})
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestAmendRecord(t *testing.T) {
	reg, _, clk := newTestRegistry()
	ctx := context.Background()

	rec, err := reg.CreateRecord(ctx, scan("s1", at(30*time.Minute)))
	require.NoError(t, err)
	require.Equal(t, Tardanza, rec.State)

	clk.Advance(2 * time.Hour)
	amended, err := reg.AmendRecord(ctx, rec.ID, Excusado, "bus strike", "t9")
	require.NoError(t, err)
	assert.Equal(t, Excusado, amended.State)
	assert.True(t, amended.IsManual)
	require.NotNil(t, amended.RecordedByTeacherID)
	assert.Equal(t, "t9", *amended.RecordedByTeacherID)
	require.NotNil(t, amended.ModifiedAt)
	assert.Equal(t, clk.Now(), *amended.ModifiedAt)
	assert.Equal(t, rec.MarkedAt, amended.MarkedAt)
	assert.Equal(t, rec.Method, amended.Method)

	got, err := reg.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, Excusado, got.State)

	trail, err := reg.AuditTrail(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, ActionAmended, trail[0].Action)
	var prev map[string]any
	require.NoError(t, json.Unmarshal(trail[0].Previous, &prev))
	assert.Equal(t, "Tardanza", prev["state"])
}

func TestAmendRecordErrors(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()

	_, err := reg.AmendRecord(ctx, "missing", Presente, "typo", "t1")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = reg.AmendRecord(ctx, "missing", Pendiente, "typo", "t1")
	assert.ErrorIs(t, err, ErrNotFinalState)

	_, err = reg.AmendRecord(ctx, "missing", Presente, "   ", "t1")
	assert.ErrorIs(t, err, ErrJustificationRequired)

	_, err = reg.AuditTrail(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestListByClassOrdersByMarkedAt(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()

	for i, offset := range []time.Duration{30, 2, 15, 45} {
		_, err := reg.CreateRecord(ctx, scan(fmt.Sprintf("s%d", i), at(offset*time.Minute)))
		require.NoError(t, err)
	}
	other := scan("s0", at(time.Minute))
	other.ClassID = "class-2"
	_, err := reg.CreateRecord(ctx, other)
	require.NoError(t, err)

	recs, err := reg.ListByClass(ctx, "class-1")
	require.NoError(t, err)
	require.Len(t, recs, 4)
	for i := 1; i < len(recs); i++ {
		assert.False(t, recs[i].MarkedAt.Before(recs[i-1].MarkedAt))
	}
	assert.Equal(t, "s1", recs[0].StudentID)
}

func TestRoster(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()

	_, err := reg.CreateRecord(ctx, scan("s1", at(5*time.Minute)))
	require.NoError(t, err)
	_, err = reg.CreateRecord(ctx, scan("s3", at(30*time.Minute)))
	require.NoError(t, err)

	roster, err := reg.Roster(ctx, "class-1", []string{"s1", "s2", "s3", "s2"}, true)
	require.NoError(t, err)
	require.Len(t, roster.Entries, 3)
	assert.Equal(t, Presente, roster.Entries[0].State)
	assert.Equal(t, Pendiente, roster.Entries[1].State)
	assert.True(t, roster.Entries[1].Projected)
	assert.Nil(t, roster.Entries[1].Record)
	assert.Equal(t, Tardanza, roster.Entries[2].State)
	assert.Equal(t, map[State]int{Presente: 1, Pendiente: 1, Tardanza: 1}, roster.Totals)

	closed, err := reg.Roster(ctx, "class-1", []string{"s1", "s2"}, false)
	require.NoError(t, err)
	require.Len(t, closed.Entries, 3, "records of unenrolled students are kept")
	assert.Equal(t, Ausente, closed.Entries[1].State)
	assert.True(t, closed.Entries[1].Projected)
}
