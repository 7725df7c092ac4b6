package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/classes"
	"qrattend/internal/config"
)

func memoryConfig() config.App {
	return config.App{
		Env:           "test",
		StoreBackend:  "memory",
		TokenBackend:  "memory",
		QueueBackend:  "memory",
		TokenTTL:      5 * time.Minute,
		PublicBaseURL: "http://localhost:8081",
		JWTSigningKey: "k",
	}
}

func TestBuildMemory(t *testing.T) {
	s, err := Build(context.Background(), memoryConfig(), prometheus.NewRegistry(), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.DB)
	assert.Nil(t, s.Redis)
	assert.True(t, s.InProcessWorker())
	assert.Empty(t, s.Healthy(context.Background()))
	assert.NotNil(t, s.Worker())
	assert.IsType(t, &classes.MemoryDirectory{}, s.Directory)

	ctx := context.Background()
	sess, err := s.Lifecycle.Create(ctx, classes.NewClass{CourseID: "c", TeacherID: "t"})
	require.NoError(t, err)
	_, err = s.Lifecycle.Open(ctx, sess.ID)
	require.NoError(t, err)
	tk, err := s.Scans.Ticket(ctx, sess.ID)
	require.NoError(t, err)
	assert.Contains(t, tk.ScanURL, "http://localhost:8081/scan?")
}

func TestBuildRejectsBadConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.TokenBackend = "etcd"
	_, err := Build(context.Background(), cfg, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestBuildSeedsDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"students":[{"id":"s1","code":"A001"}],"enrollments":[{"course_id":"c","student_id":"s1"}]}`), 0o600))

	cfg := memoryConfig()
	cfg.SeedFile = path
	s, err := Build(context.Background(), cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	st, err := s.Directory.Student(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "A001", st.Code)

	cfg.SeedFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = Build(context.Background(), cfg, nil, zerolog.Nop())
	assert.Error(t, err)
}
