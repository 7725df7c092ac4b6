package classes

import (
	"encoding/json"
	"fmt"
	"io"
)

// Seed is the JSON shape accepted by LoadSeed.
type Seed struct {
	Students    []Student `json:"students"`
	Enrollments []struct {
		CourseID  string `json:"course_id"`
		StudentID string `json:"student_id"`
	} `json:"enrollments"`
}

// LoadSeed fills d from a JSON document. Enrollments must name known students.
func LoadSeed(r io.Reader, d *MemoryDirectory) (int, error) {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}
	known := make(map[string]bool, len(seed.Students))
	for _, s := range seed.Students {
		if s.ID == "" || s.Code == "" {
			return 0, fmt.Errorf("seed student needs id and code: %+v", s)
		}
		known[s.ID] = true
		d.AddStudent(s)
	}
	for _, e := range seed.Enrollments {
		if !known[e.StudentID] {
			return 0, fmt.Errorf("enrollment references unknown student %q", e.StudentID)
		}
		d.Enroll(e.CourseID, e.StudentID, true)
	}
	return len(seed.Students), nil
}
