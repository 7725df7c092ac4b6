package attendance

import (
	"context"
	"sort"
)

// RosterEntry is one enrolled student's standing in a class. Record is nil
// when the state is a projection rather than a stored record.
type RosterEntry struct {
	StudentID string  `json:"student_id"`
	State     State   `json:"state"`
	Projected bool    `json:"projected"`
	Record    *Record `json:"record,omitempty"`
}

// Roster is the class-wide view used by the teacher dashboard.
type Roster struct {
	ClassID string        `json:"class_id"`
	Entries []RosterEntry `json:"entries"`
	Totals  map[State]int `json:"totals"`
}

// Roster joins the enrolled students with their records. Students without a
// record show as Pendiente while the class is open and as a projected
// Ausente once it is closed. Records of students no longer enrolled are kept.
func (r *Registry) Roster(ctx context.Context, classID string, enrolled []string, classOpen bool) (Roster, error) {
	records, err := r.repo.ListByClass(ctx, classID)
	if err != nil {
		return Roster{}, err
	}
	byStudent := make(map[string]Record, len(records))
	for _, rec := range records {
		byStudent[rec.StudentID] = rec
	}

	missing := Ausente
	if classOpen {
		missing = Pendiente
	}

	out := Roster{ClassID: classID, Totals: map[State]int{}}
	seen := make(map[string]bool, len(enrolled))
	for _, id := range enrolled {
		if seen[id] {
			continue
		}
		seen[id] = true
		if rec, ok := byStudent[id]; ok {
			rec := rec
			out.Entries = append(out.Entries, RosterEntry{StudentID: id, State: rec.State, Record: &rec})
			out.Totals[rec.State]++
			continue
		}
		out.Entries = append(out.Entries, RosterEntry{StudentID: id, State: missing, Projected: true})
		out.Totals[missing]++
	}
	for _, rec := range records {
		if seen[rec.StudentID] {
			continue
		}
		rec := rec
		out.Entries = append(out.Entries, RosterEntry{StudentID: rec.StudentID, State: rec.State, Record: &rec})
		out.Totals[rec.State]++
	}
	sort.SliceStable(out.Entries, func(i, j int) bool { return out.Entries[i].StudentID < out.Entries[j].StudentID })
	return out, nil
}
