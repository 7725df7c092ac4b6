package attendance

import "context"

// Repository stores attendance records. InsertRecord must reject a second
// record for the same (student, class) pair with ErrAlreadyExists at the
// storage layer, so concurrent inserts race safely. When audit is non-nil it
// is written in the same atomic step as the record.
type Repository interface {
	RecordExists(ctx context.Context, studentID, classID string) (bool, error)
	InsertRecord(ctx context.Context, rec Record, audit *AuditEntry) error
	GetRecord(ctx context.Context, id string) (Record, error)
	AmendRecord(ctx context.Context, a Amendment) (Record, error)
	ListByClass(ctx context.Context, classID string) ([]Record, error)
	AuditTrail(ctx context.Context, recordID string) ([]AuditEntry, error)
}
