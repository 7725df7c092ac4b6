package attendance

import (
	"context"
	"sort"
	"sync"
)

type recordSlot struct {
	mu  sync.Mutex
	rec Record
}

// MemoryRepository is the in-process Repository. Uniqueness per pair comes
// from sync.Map.LoadOrStore; each record carries its own lock for amendments.
type MemoryRepository struct {
	pairs sync.Map // pairKey -> *recordSlot
	byID  sync.Map // id -> *recordSlot

	auditMu sync.Mutex
	audit   map[string][]AuditEntry
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{audit: make(map[string][]AuditEntry)}
}

func pairKey(studentID, classID string) string {
	return classID + "\x00" + studentID
}

func (m *MemoryRepository) RecordExists(_ context.Context, studentID, classID string) (bool, error) {
	_, ok := m.pairs.Load(pairKey(studentID, classID))
	return ok, nil
}

func (m *MemoryRepository) InsertRecord(_ context.Context, rec Record, audit *AuditEntry) error {
	slot := &recordSlot{rec: rec}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if _, loaded := m.pairs.LoadOrStore(pairKey(rec.StudentID, rec.ClassID), slot); loaded {
		return ErrAlreadyExists
	}
	m.byID.Store(rec.ID, slot)
	if audit != nil {
		m.appendAudit(*audit)
	}
	return nil
}

func (m *MemoryRepository) GetRecord(_ context.Context, id string) (Record, error) {
	v, ok := m.byID.Load(id)
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	slot := v.(*recordSlot)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.rec, nil
}

func (m *MemoryRepository) AmendRecord(_ context.Context, a Amendment) (Record, error) {
	v, ok := m.byID.Load(a.RecordID)
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	slot := v.(*recordSlot)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	previous := previousOf(slot.rec)
	at := a.At
	slot.rec.State = a.State
	slot.rec.ManualJustification = strPtr(a.Justification)
	slot.rec.IsManual = true
	slot.rec.RecordedByTeacherID = strPtr(a.AmendedBy)
	slot.rec.ModifiedAt = &at

	m.appendAudit(AuditEntry{
		ID:            a.AuditID,
		RecordID:      a.RecordID,
		Action:        ActionAmended,
		ActorID:       a.AmendedBy,
		Justification: a.Justification,
		Previous:      previous,
		At:            a.At,
	})
	return slot.rec, nil
}

func (m *MemoryRepository) ListByClass(_ context.Context, classID string) ([]Record, error) {
	var out []Record
	m.pairs.Range(func(_, v any) bool {
		slot := v.(*recordSlot)
		slot.mu.Lock()
		if slot.rec.ClassID == classID {
			out = append(out, slot.rec)
		}
		slot.mu.Unlock()
		return true
	})
	sortByMarkedAt(out)
	return out, nil
}

func (m *MemoryRepository) AuditTrail(_ context.Context, recordID string) ([]AuditEntry, error) {
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	entries := m.audit[recordID]
	out := make([]AuditEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *MemoryRepository) appendAudit(e AuditEntry) {
	m.auditMu.Lock()
	m.audit[e.RecordID] = append(m.audit[e.RecordID], e)
	m.auditMu.Unlock()
}

func sortByMarkedAt(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].MarkedAt.Equal(recs[j].MarkedAt) {
			return recs[i].MarkedAt.Before(recs[j].MarkedAt)
		}
		return recs[i].StudentID < recs[j].StudentID
	})
}
