package db

import (
	"context"
	"errors"
	"time"

	"nutrilabel/internal/nutrition"
	"nutrilabel/models"
)

var (
	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// Owner scopes reads to one caller. An authenticated account owns the
// records it created, whatever user_uuid they were filed under. An anonymous
// caller owns only anonymous records with its user_uuid.
type Owner struct {
	AccountID string
	UserUUID  string
}

// IsZero reports whether neither an account nor a user_uuid is set.
func (o Owner) IsZero() bool {
	return o.AccountID == "" && o.UserUUID == ""
}

// Filter selects analyses. Empty fields are ignored; at least one must be set.
type Filter struct {
	RequestID string
	Owner     Owner
}

func (f Filter) empty() bool {
	return f.RequestID == "" && f.Owner.IsZero()
}

// Completion carries the result written when an analysis succeeds.
type Completion struct {
	Label           nutrition.Label
	Usage           models.TokenUsage
	Model           string
	ProcessingTime  time.Duration
	VLMResponseTime time.Duration
}

// AnalysisRepository persists analysis records.
type AnalysisRepository interface {
	// Create stores a pending record, assigning a request id when empty.
	Create(ctx context.Context, a *models.Analysis) (string, error)
	// Complete marks a record completed and returns the number of modified records.
	Complete(ctx context.Context, requestID string, c Completion) (int64, error)
	// Fail marks a record failed and returns the number of modified records.
	Fail(ctx context.Context, requestID, reason string) (int64, error)
	Find(ctx context.Context, f Filter) (*models.Analysis, error)
	// ListByOwner returns the owner's analyses created in [from, to), oldest first.
	ListByOwner(ctx context.Context, owner Owner, from, to time.Time) ([]models.Analysis, error)
}

// UserRepository persists accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Store is everything the API needs from persistence.
type Store interface {
	AnalysisRepository
	UserRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
