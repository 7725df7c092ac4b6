package classes

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeed(t *testing.T) {
	d := NewMemoryDirectory()
	n, err := LoadSeed(strings.NewReader(`{
		"students": [{"id":"s1","code":"A001","name":"Ana"},{"id":"s2","code":"A002","name":"Luis"}],
		"enrollments": [{"course_id":"math","student_id":"s2"},{"course_id":"math","student_id":"s1"}]
	}`), d)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := d.EnrolledStudents(context.Background(), "math")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)

	d.Enroll("math", "s2", false)
	ids, err = d.EnrolledStudents(context.Background(), "math")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	_, err = LoadSeed(strings.NewReader(`{"students":[],"enrollments":[{"course_id":"x","student_id":"ghost"}]}`), NewMemoryDirectory())
	assert.Error(t, err)
	_, err = LoadSeed(strings.NewReader(`{"students":[{"id":"s1"}]}`), NewMemoryDirectory())
	assert.Error(t, err)
}
