package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gorm.io/datatypes"

	"nutrilabel/internal/config"
	"nutrilabel/internal/nutrition"
	"nutrilabel/models"
)

const (
	analysesCollection = "image_analyses"
	usersCollection    = "users"
)

// MongoStore implements Store on a MongoDB database.
type MongoStore struct {
	client   *mongo.Client
	analyses *mongo.Collection
	users    *mongo.Collection
	now      func() time.Time
}

// ConnectMongo dials cfg.URL, verifies the connection and ensures indexes.
func ConnectMongo(ctx context.Context, cfg config.DatabaseConfig) (*MongoStore, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("database URL must not be empty")
	}

	opts := options.Client().ApplyURI(cfg.URL)
	if cfg.MaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxOpenConns))
	}
	if cfg.ConnMaxIdleTime > 0 {
		opts.SetMaxConnIdleTime(cfg.ConnMaxIdleTime)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := NewMongoStore(client, cfg.Name)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// NewMongoStore uses an already connected client.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	dbh := client.Database(database)
	return &MongoStore{
		client:   client,
		analyses: dbh.Collection(analysesCollection),
		users:    dbh.Collection(usersCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.analyses.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "request_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_uuid", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create analysis indexes: %w", err)
	}
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

type tokenUsageDocument struct {
	PromptTokens     int `bson:"prompt_tokens"`
	CompletionTokens int `bson:"completion_tokens"`
	TotalTokens      int `bson:"total_tokens"`
}

type analysisDocument struct {
	RequestID       string             `bson:"request_id"`
	UserID          string             `bson:"user_id,omitempty"`
	UserUUID        string             `bson:"user_uuid"`
	FoodName        string             `bson:"food_name"`
	MealType        string             `bson:"meal_type"`
	Tags            []string           `bson:"tags"`
	ImageURL        string             `bson:"image_url"`
	NutritionInfo   bson.RawValue      `bson:"nutrition_info"`
	TokenUsage      tokenUsageDocument `bson:"token_usage"`
	Status          string             `bson:"status"`
	Error           string             `bson:"error,omitempty"`
	Model           string             `bson:"model,omitempty"`
	CreatedAt       time.Time          `bson:"created_at"`
	CompletedAt     *time.Time         `bson:"completed_at"`
	ProcessingTime  float64            `bson:"processing_time"`
	VLMResponseTime float64            `bson:"vlm_response_time"`
}

// labelToBSON stores a label under the same keys its JSON form uses.
func labelToBSON(label nutrition.Label) (bson.D, error) {
	data, err := json.Marshal(label)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func labelFromBSON(raw bson.RawValue) (*nutrition.Label, error) {
	doc, ok := raw.DocumentOK()
	if !ok {
		return nil, nil
	}
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, err
	}
	var label nutrition.Label
	if err := json.Unmarshal(data, &label); err != nil {
		return nil, err
	}
	return &label, nil
}

func toModel(doc analysisDocument) (*models.Analysis, error) {
	label, err := labelFromBSON(doc.NutritionInfo)
	if err != nil {
		return nil, fmt.Errorf("decode nutrition_info: %w", err)
	}
	return &models.Analysis{
		RequestID:     doc.RequestID,
		UserID:        doc.UserID,
		UserUUID:      doc.UserUUID,
		FoodName:      doc.FoodName,
		MealType:      doc.MealType,
		Tags:          datatypes.JSONSlice[string](doc.Tags),
		ImageURL:      doc.ImageURL,
		NutritionInfo: datatypes.NewJSONType(label),
		TokenUsage: models.TokenUsage{
			PromptTokens:     doc.TokenUsage.PromptTokens,
			CompletionTokens: doc.TokenUsage.CompletionTokens,
			TotalTokens:      doc.TokenUsage.TotalTokens,
		},
		Status:          doc.Status,
		Error:           doc.Error,
		Model:           doc.Model,
		CreatedAt:       doc.CreatedAt,
		CompletedAt:     doc.CompletedAt,
		ProcessingTime:  doc.ProcessingTime,
		VLMResponseTime: doc.VLMResponseTime,
	}, nil
}

func (s *MongoStore) Create(ctx context.Context, a *models.Analysis) (string, error) {
	if a.RequestID == "" {
		a.RequestID = uuid.NewString()
	}
	a.Status = models.StatusPending
	a.CreatedAt = s.now()
	a.CompletedAt = nil

	doc := bson.D{
		{Key: "request_id", Value: a.RequestID},
		{Key: "user_uuid", Value: a.UserUUID},
		{Key: "food_name", Value: a.FoodName},
		{Key: "meal_type", Value: a.MealType},
		{Key: "tags", Value: []string(a.Tags)},
		{Key: "image_url", Value: a.ImageURL},
		{Key: "nutrition_info", Value: nil},
		{Key: "token_usage", Value: tokenUsageDocument{}},
		{Key: "status", Value: a.Status},
		{Key: "created_at", Value: a.CreatedAt},
		{Key: "completed_at", Value: nil},
		{Key: "processing_time", Value: 0.0},
		{Key: "vlm_response_time", Value: 0.0},
	}
	if a.UserID != "" {
		doc = append(doc, bson.E{Key: "user_id", Value: a.UserID})
	}
	if _, err := s.analyses.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("db: create analysis: %w", err)
	}
	return a.RequestID, nil
}

func (s *MongoStore) Complete(ctx context.Context, requestID string, c Completion) (int64, error) {
	label, err := labelToBSON(c.Label)
	if err != nil {
		return 0, fmt.Errorf("db: encode label: %w", err)
	}
	res, err := s.analyses.UpdateOne(ctx,
		bson.D{{Key: "request_id", Value: requestID}, {Key: "status", Value: models.StatusPending}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: models.StatusCompleted},
			{Key: "nutrition_info", Value: label},
			{Key: "token_usage", Value: tokenUsageDocument(c.Usage)},
			{Key: "model", Value: c.Model},
			{Key: "completed_at", Value: s.now()},
			{Key: "processing_time", Value: c.ProcessingTime.Seconds()},
			{Key: "vlm_response_time", Value: c.VLMResponseTime.Seconds()},
		}}},
	)
	if err != nil {
		return 0, fmt.Errorf("db: complete analysis: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) Fail(ctx context.Context, requestID, reason string) (int64, error) {
	res, err := s.analyses.UpdateOne(ctx,
		bson.D{{Key: "request_id", Value: requestID}, {Key: "status", Value: models.StatusPending}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: models.StatusFailed},
			{Key: "error", Value: reason},
			{Key: "completed_at", Value: s.now()},
		}}},
	)
	if err != nil {
		return 0, fmt.Errorf("db: fail analysis: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) Find(ctx context.Context, f Filter) (*models.Analysis, error) {
	if f.empty() {
		return nil, errors.New("db: find analysis: empty filter")
	}
	filter := bson.D{}
	if f.RequestID != "" {
		filter = append(filter, bson.E{Key: "request_id", Value: f.RequestID})
	}
	filter = append(filter, ownerFilter(f.Owner)...)
	var doc analysisDocument
	if err := s.analyses.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db: find analysis: %w", err)
	}
	return toModel(doc)
}

// ownerFilter mirrors the gorm scope. A missing user_id marks an anonymous
// record, so $in matches both null and "".
func ownerFilter(o Owner) bson.D {
	switch {
	case o.AccountID != "":
		return bson.D{{Key: "user_id", Value: o.AccountID}}
	case o.UserUUID != "":
		return bson.D{
			{Key: "user_uuid", Value: o.UserUUID},
			{Key: "user_id", Value: bson.D{{Key: "$in", Value: bson.A{"", nil}}}},
		}
	}
	return nil
}

func (s *MongoStore) ListByOwner(ctx context.Context, owner Owner, from, to time.Time) ([]models.Analysis, error) {
	if owner.IsZero() {
		return nil, errors.New("db: list analyses: empty owner")
	}
	filter := append(ownerFilter(owner),
		bson.E{Key: "created_at", Value: bson.D{{Key: "$gte", Value: from.UTC()}, {Key: "$lt", Value: to.UTC()}}},
	)
	cur, err := s.analyses.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("db: list analyses: %w", err)
	}
	var docs []analysisDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("db: list analyses: %w", err)
	}
	out := make([]models.Analysis, 0, len(docs))
	for _, doc := range docs {
		a, err := toModel(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = models.NormalizeEmail(u.Email)
	if u.UUID == "" {
		u.UUID = uuid.NewString()
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("db: create user: %w", err)
	}
	return nil
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, bson.D{{Key: "email", Value: models.NormalizeEmail(email)}}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db: find user: %w", err)
	}
	return &u, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
