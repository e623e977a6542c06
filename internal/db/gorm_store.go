package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"nutrilabel/models"
)

// GormStore implements Store on a relational database.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore wraps an opened and migrated gorm handle.
func NewGormStore(database *gorm.DB) (*GormStore, error) {
	if database == nil {
		return nil, gorm.ErrInvalidDB
	}
	return &GormStore{db: database, now: func() time.Time { return time.Now().UTC() }}, nil
}

func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return fmt.Errorf("db: %s: %w", op, err)
	}
}

func (s *GormStore) Create(ctx context.Context, a *models.Analysis) (string, error) {
	if a.RequestID == "" {
		a.RequestID = uuid.NewString()
	}
	a.Status = models.StatusPending
	a.CreatedAt = s.now()
	a.CompletedAt = nil
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return "", translate("create analysis", err)
	}
	return a.RequestID, nil
}

func (s *GormStore) Complete(ctx context.Context, requestID string, c Completion) (int64, error) {
	label := c.Label.Clone()
	res := s.db.WithContext(ctx).
		Model(&models.Analysis{}).
		Where("request_id = ? AND status = ?", requestID, models.StatusPending).
		Updates(map[string]any{
			"status":                  models.StatusCompleted,
			"nutrition_info":          datatypes.NewJSONType(&label),
			"token_prompt_tokens":     c.Usage.PromptTokens,
			"token_completion_tokens": c.Usage.CompletionTokens,
			"token_total_tokens":      c.Usage.TotalTokens,
			"model":                   c.Model,
			"completed_at":            s.now(),
			"processing_time":         c.ProcessingTime.Seconds(),
			"vlm_response_time":       c.VLMResponseTime.Seconds(),
		})
	if res.Error != nil {
		return 0, translate("complete analysis", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Fail(ctx context.Context, requestID, reason string) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Analysis{}).
		Where("request_id = ? AND status = ?", requestID, models.StatusPending).
		Updates(map[string]any{
			"status":       models.StatusFailed,
			"error":        reason,
			"completed_at": s.now(),
		})
	if res.Error != nil {
		return 0, translate("fail analysis", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Find(ctx context.Context, f Filter) (*models.Analysis, error) {
	if f.empty() {
		return nil, errors.New("db: find analysis: empty filter")
	}
	q := s.db.WithContext(ctx)
	if f.RequestID != "" {
		q = q.Where("request_id = ?", f.RequestID)
	}
	q = scopeOwner(q, f.Owner)
	var a models.Analysis
	if err := q.First(&a).Error; err != nil {
		return nil, translate("find analysis", err)
	}
	return &a, nil
}

func (s *GormStore) ListByOwner(ctx context.Context, owner Owner, from, to time.Time) ([]models.Analysis, error) {
	if owner.IsZero() {
		return nil, errors.New("db: list analyses: empty owner")
	}
	var out []models.Analysis
	err := scopeOwner(s.db.WithContext(ctx), owner).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Order("created_at asc").
		Find(&out).Error
	if err != nil {
		return nil, translate("list analyses", err)
	}
	return out, nil
}

func scopeOwner(q *gorm.DB, o Owner) *gorm.DB {
	switch {
	case o.AccountID != "":
		return q.Where("user_id = ?", o.AccountID)
	case o.UserUUID != "":
		return q.Where("user_uuid = ? AND (user_id = '' OR user_id IS NULL)", o.UserUUID)
	}
	return q
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = models.NormalizeEmail(u.Email)
	if u.UUID == "" {
		u.UUID = uuid.NewString()
	}
	if _, err := s.FindUserByEmail(ctx, u.Email); err == nil {
		return ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return translate("create user", err)
	}
	return nil
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&u).Error
	if err != nil {
		return nil, translate("find user", err)
	}
	return &u, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close(context.Context) error {
	return Close(s.db)
}
