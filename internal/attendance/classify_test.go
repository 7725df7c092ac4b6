package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2025, 9, 10, 8, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return start.Add(d) }

func TestClassify(t *testing.T) {
	closed := at(90 * time.Minute)
	tests := []struct {
		name     string
		marked   time.Time
		closedAt *time.Time
		want     State
	}{
		{"early scan", at(-5 * time.Minute), nil, Presente},
		{"on time", at(0), nil, Presente},
		{"five minutes", at(5 * time.Minute), nil, Presente},
		{"threshold exactly", at(20 * time.Minute), nil, Presente},
		{"one second past threshold", at(20*time.Minute + time.Second), nil, Tardanza},
		{"late while open", at(25 * time.Minute), nil, Tardanza},
		{"late before close", at(60 * time.Minute), &closed, Tardanza},
		{"at close instant", closed, &closed, Tardanza},
		{"after close", at(91 * time.Minute), &closed, Ausente},
		{"on time in closed class", at(10 * time.Minute), &closed, Presente},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.marked, start, tc.closedAt, DefaultPresentThreshold)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, Classify(tc.marked, start, tc.closedAt, DefaultPresentThreshold), "deterministic")
		})
	}
}

func TestClassifyCustomThreshold(t *testing.T) {
	assert.Equal(t, Tardanza, Classify(at(6*time.Minute), start, nil, 5*time.Minute))
	assert.Equal(t, Presente, Classify(at(45*time.Minute), start, nil, 45*time.Minute))
	assert.Equal(t, Presente, Classify(at(20*time.Minute), start, nil, 0), "zero threshold uses default")
}

func TestLateMinutes(t *testing.T) {
	assert.Equal(t, 0, LateMinutes(at(-3*time.Minute), start))
	assert.Equal(t, 0, LateMinutes(at(59*time.Second), start))
	assert.Equal(t, 5, LateMinutes(at(5*time.Minute), start))
	assert.Equal(t, 20, LateMinutes(at(20*time.Minute+59*time.Second), start))
	assert.Equal(t, 25, LateMinutes(at(25*time.Minute), start))
}

func TestParseState(t *testing.T) {
	s, err := ParseState("Excusado")
	assert.NoError(t, err)
	assert.Equal(t, Excusado, s)

	_, err = ParseState("Pendiente")
	assert.ErrorIs(t, err, ErrNotFinalState)
	_, err = ParseState("present")
	assert.ErrorIs(t, err, ErrNotFinalState)
}
