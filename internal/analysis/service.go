// Package analysis runs the nutrition extraction pipeline: validate the
// request, record it, call the model, parse the answer and store the result.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"nutrilabel/internal/apperr"
	"nutrilabel/internal/db"
	applog "nutrilabel/internal/log"
	"nutrilabel/internal/nutrition"
	"nutrilabel/internal/vlm"
	"nutrilabel/models"
)

const maxFoodNameLength = 200

// Extractor is the model call the pipeline depends on. *vlm.Client
// satisfies it.
type Extractor interface {
	Extract(ctx context.Context, imageURL string) (vlm.Output, error)
}

// Request is one analyze call as received from a client.
type Request struct {
	// UserID is the authenticated account, empty for anonymous calls.
	UserID   string
	UserUUID string
	FoodName string
	MealType string
	Tags     []string
	ImageURL string
}

// Service orchestrates the pipeline. It is safe for concurrent use.
type Service struct {
	repo  db.AnalysisRepository
	model Extractor
	now   func() time.Time
}

// NewService wires a repository and an extractor.
func NewService(repo db.AnalysisRepository, model Extractor) (*Service, error) {
	if repo == nil {
		return nil, errors.New("analysis: repository must not be nil")
	}
	if model == nil {
		return nil, errors.New("analysis: extractor must not be nil")
	}
	return &Service{repo: repo, model: model, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (req Request) normalize() (Request, error) {
	const op = "analysis.validate"

	req.UserID = strings.TrimSpace(req.UserID)
	req.UserUUID = strings.TrimSpace(req.UserUUID)
	if req.UserUUID == "" {
		req.UserUUID = req.UserID
	}
	if req.UserUUID == "" {
		return req, apperr.Msg(apperr.KindValidation, op, "user_uuid is required")
	}

	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if req.ImageURL == "" {
		return req, apperr.Msg(apperr.KindValidation, op, "image_url is required")
	}
	u, err := url.Parse(req.ImageURL)
	if err != nil || u.Host == "" {
		return req, apperr.Msg(apperr.KindValidation, op, "image_url must be an absolute URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "gs":
	default:
		return req, apperr.Msg(apperr.KindValidation, op, "image_url must use http, https or gs")
	}

	req.FoodName = strings.TrimSpace(req.FoodName)
	if len(req.FoodName) > maxFoodNameLength {
		return req, apperr.Msg(apperr.KindValidation, op, fmt.Sprintf("food_name must be at most %d characters", maxFoodNameLength))
	}

	req.MealType = strings.ToLower(strings.TrimSpace(req.MealType))
	if req.MealType != "" && !models.ValidMealType(req.MealType) {
		return req, apperr.Msg(apperr.KindValidation, op, "meal_type must be one of breakfast, lunch, dinner, snack")
	}

	tags := make([]string, 0, len(req.Tags))
	seen := make(map[string]struct{}, len(req.Tags))
	for _, tag := range req.Tags {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
	}
	req.Tags = tags
	return req, nil
}

// Analyze runs the pipeline for req.
//
// A pending record is written before the model is called. Model and parse
// failures mark it failed and return the kinded error. When the model
// succeeds but the result cannot be stored, the completed record is returned
// together with a KindPersistence error so callers can still hand it out.
func (s *Service) Analyze(ctx context.Context, req Request) (*models.Analysis, error) {
	const op = "analysis.Analyze"

	started := s.now()
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}

	record := &models.Analysis{
		UserID:   req.UserID,
		UserUUID: req.UserUUID,
		FoodName: req.FoodName,
		MealType: req.MealType,
		Tags:     req.Tags,
		ImageURL: req.ImageURL,
	}
	requestID, err := s.repo.Create(ctx, record)
	if err != nil {
		return nil, apperr.E(apperr.KindPersistence, op, fmt.Errorf("create pending record: %w", err))
	}
	applog.Info(ctx, "analysis started", "analysisId", requestID, "userUuid", req.UserUUID, "mealType", req.MealType)

	out, err := s.model.Extract(ctx, req.ImageURL)
	if err != nil {
		s.fail(ctx, requestID, err)
		return nil, err
	}

	label, err := nutrition.Parse(out.Content)
	if err != nil {
		s.fail(ctx, requestID, err)
		return nil, err
	}
	completedAt := s.now()
	if label.Metadata.ProcessedTimestamp == nil {
		label.Metadata.ProcessedTimestamp = &completedAt
	}

	usage := models.TokenUsage{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
	}
	elapsed := completedAt.Sub(started)

	record.NutritionInfo = nutritionInfo(label)
	record.TokenUsage = usage
	record.Status = models.StatusCompleted
	record.Model = out.Model
	record.CompletedAt = &completedAt
	record.ProcessingTime = elapsed.Seconds()
	record.VLMResponseTime = out.Latency.Seconds()

	n, err := s.repo.Complete(ctx, requestID, db.Completion{
		Label:           label,
		Usage:           usage,
		Model:           out.Model,
		ProcessingTime:  elapsed,
		VLMResponseTime: out.Latency,
	})
	switch {
	case err != nil:
		applog.Error(ctx, "failed to store analysis result", "analysisId", requestID, "error", err)
		return record, apperr.E(apperr.KindPersistence, op, fmt.Errorf("complete record: %w", err))
	case n == 0:
		applog.Error(ctx, "analysis result matched no pending record", "analysisId", requestID)
		return record, apperr.E(apperr.KindPersistence, op, fmt.Errorf("complete record %s: no pending record", requestID))
	}

	applog.Info(ctx, "analysis completed",
		"analysisId", requestID,
		"attempts", out.Attempts,
		"totalTokens", usage.TotalTokens,
		"processingTime", record.ProcessingTime,
	)
	return record, nil
}

// fail records the failure reason. It runs on a context detached from the
// request so a cancelled caller still leaves a terminal record.
func (s *Service) fail(ctx context.Context, requestID string, cause error) {
	kind := apperr.KindOf(cause)
	applog.Warn(ctx, "analysis failed", "analysisId", requestID, "kind", kind.String(), "error", cause)

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.repo.Fail(storeCtx, requestID, kind.String()); err != nil {
		applog.Error(ctx, "failed to mark analysis failed", "analysisId", requestID, "error", err)
	}
}

// Get returns a stored analysis visible to owner. Records owned by someone
// else are reported as not found.
func (s *Service) Get(ctx context.Context, requestID string, owner db.Owner) (*models.Analysis, error) {
	const op = "analysis.Get"

	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, apperr.Msg(apperr.KindValidation, op, "request_id is required")
	}
	owner, err := normalizeOwner(op, owner)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.Find(ctx, db.Filter{RequestID: requestID, Owner: owner})
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Msg(apperr.KindNotFound, op, "Analysis not found")
	}
	if err != nil {
		return nil, apperr.E(apperr.KindInternal, op, err)
	}
	return record, nil
}

// normalizeOwner trims owner and rejects an anonymous read without user_uuid.
func normalizeOwner(op string, owner db.Owner) (db.Owner, error) {
	owner.AccountID = strings.TrimSpace(owner.AccountID)
	owner.UserUUID = strings.TrimSpace(owner.UserUUID)
	if owner.IsZero() {
		return owner, apperr.Msg(apperr.KindValidation, op, "user_uuid is required")
	}
	return owner, nil
}
