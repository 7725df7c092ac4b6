package classes

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists class sessions. The Mark/Clear methods are conditional
// updates: of two concurrent calls on the same class only one succeeds.
type Store interface {
	Get(ctx context.Context, id string) (Session, error)
	Create(ctx context.Context, s Session) error
	// MarkStarted sets StartedAt when it is unset, else ErrAlreadyOpen.
	MarkStarted(ctx context.Context, id string, at time.Time) error
	// MarkClosed sets ClosedAt on a started, unclosed class. It returns
	// ErrNotStarted or ErrAlreadyClosed otherwise.
	MarkClosed(ctx context.Context, id string, at time.Time) error
	// ClearClosed unsets ClosedAt, else ErrNotClosed.
	ClearClosed(ctx context.Context, id string) error
}

// Directory is the read side of the student and enrollment data.
type Directory interface {
	Student(ctx context.Context, id string) (Student, error)
	EnrolledStudents(ctx context.Context, courseID string) ([]string, error)
}

// SettingsStore persists per-class settings. Get returns DefaultSettings for
// classes without a saved row.
type SettingsStore interface {
	Get(ctx context.Context, classID string) (Settings, error)
	Put(ctx context.Context, classID string, s Settings) error
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrClassNotFound
	}
	return s, nil
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) MarkStarted(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrClassNotFound
	}
	if s.StartedAt != nil {
		return ErrAlreadyOpen
	}
	s.StartedAt = &at
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) MarkClosed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	switch {
	case !ok:
		return ErrClassNotFound
	case s.StartedAt == nil:
		return ErrNotStarted
	case s.ClosedAt != nil:
		return ErrAlreadyClosed
	}
	s.ClosedAt = &at
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) ClearClosed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrClassNotFound
	}
	if s.ClosedAt == nil {
		return ErrNotClosed
	}
	s.ClosedAt = nil
	m.sessions[id] = s
	return nil
}

// MemoryDirectory is an in-process Directory seeded by AddStudent and Enroll.
type MemoryDirectory struct {
	mu       sync.RWMutex
	students map[string]Student
	courses  map[string]map[string]bool
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{students: make(map[string]Student), courses: make(map[string]map[string]bool)}
}

func (d *MemoryDirectory) AddStudent(s Student) {
	d.mu.Lock()
	d.students[s.ID] = s
	d.mu.Unlock()
}

// Enroll adds studentID to courseID, or removes it when active is false.
func (d *MemoryDirectory) Enroll(courseID, studentID string, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.courses[courseID] == nil {
		d.courses[courseID] = make(map[string]bool)
	}
	d.courses[courseID][studentID] = active
}

func (d *MemoryDirectory) Student(_ context.Context, id string) (Student, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.students[id]
	if !ok {
		return Student{}, ErrStudentNotFound
	}
	return s, nil
}

func (d *MemoryDirectory) EnrolledStudents(_ context.Context, courseID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for id, active := range d.courses[courseID] {
		if active {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// MemorySettings is the in-process SettingsStore.
type MemorySettings struct {
	mu       sync.RWMutex
	settings map[string]Settings
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{settings: make(map[string]Settings)}
}

func (m *MemorySettings) Get(_ context.Context, classID string) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.settings[classID]; ok {
		return s, nil
	}
	return DefaultSettings(), nil
}

func (m *MemorySettings) Put(_ context.Context, classID string, s Settings) error {
	m.mu.Lock()
	m.settings[classID] = s
	m.mu.Unlock()
	return nil
}
