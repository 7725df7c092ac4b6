package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"qrattend/internal/classes"
	"qrattend/internal/errs"
)

const badgeVersion = "1.0"

var (
	ErrInvalidBadge  = errs.New(errs.ErrInvalid, "badge payload not recognised")
	ErrBadgeMismatch = errs.New(errs.ErrInvalid, "badge code does not match the student")
)

// badgePayload is the JSON form printed on student badges.
type badgePayload struct {
	Type        string `json:"type"`
	StudentID   string `json:"studentId"`
	StudentCode string `json:"studentCode"`
	Version     string `json:"version,omitempty"`
}

// Badge holds both payload forms for one student.
type Badge struct {
	StudentID     string `json:"student_id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	PayloadJSON   string `json:"payload_json"`
	PayloadSimple string `json:"payload_simple"`
}

// ParseBadge accepts either `STUDENT:<id>:<code>` or the JSON payload and
// returns the student id and code.
func ParseBadge(payload string) (id, code string, err error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "{") {
		var p badgePayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return "", "", ErrInvalidBadge
		}
		if p.Type != "student" || p.StudentID == "" || p.StudentCode == "" {
			return "", "", ErrInvalidBadge
		}
		return p.StudentID, p.StudentCode, nil
	}
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 || parts[0] != "STUDENT" || parts[1] == "" || parts[2] == "" {
		return "", "", ErrInvalidBadge
	}
	return parts[1], parts[2], nil
}

// BadgeScan records a teacher scanning a student's printed badge.
func (c *Coordinator) BadgeScan(ctx context.Context, classID, teacherID, payload string) (Outcome, error) {
	id, code, err := ParseBadge(payload)
	if err != nil {
		c.metrics.Scan("badge", "rejected")
		return Outcome{}, err
	}
	if _, err := c.openClass(ctx, classID); err != nil {
		c.metrics.Scan("badge", "rejected")
		return Outcome{}, err
	}
	st, err := c.classes.Student(ctx, id)
	if err != nil {
		c.metrics.Scan("badge", "rejected")
		return Outcome{}, err
	}
	if st.Code != code {
		c.metrics.Scan("badge", "rejected")
		return Outcome{}, ErrBadgeMismatch
	}
	return c.TeacherScan(ctx, id, classID, teacherID)
}

// Badges returns the badge payloads of every student enrolled in the class,
// ordered by student code.
func (c *Coordinator) Badges(ctx context.Context, classID string) ([]Badge, error) {
	sess, err := c.classes.Get(ctx, classID)
	if err != nil {
		return nil, err
	}
	ids, err := c.classes.Enrolled(ctx, sess)
	if err != nil {
		return nil, err
	}
	out := make([]Badge, 0, len(ids))
	for _, id := range ids {
		st, err := c.classes.Student(ctx, id)
		if err != nil {
			c.log.Warn().Err(err).Str("student_id", id).Msg("enrolled student missing from directory")
			continue
		}
		b, err := badgeFor(st)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func badgeFor(st classes.Student) (Badge, error) {
	raw, err := json.Marshal(badgePayload{Type: "student", StudentID: st.ID, StudentCode: st.Code, Version: badgeVersion})
	if err != nil {
		return Badge{}, fmt.Errorf("encode badge: %w", err)
	}
	return Badge{
		StudentID:     st.ID,
		Code:          st.Code,
		Name:          st.Name,
		PayloadJSON:   string(raw),
		PayloadSimple: "STUDENT:" + st.ID + ":" + st.Code,
	}, nil
}
