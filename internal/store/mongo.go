package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/devro-ai/devro/internal/domain"
	"github.com/google/uuid"
)

// Collection names within the configured database.
const (
	accountCollection = "accounts"
	sessionCollection = "sessions"
	projectCollection = "projects"
)

// MongoStore implements Store on top of MongoDB. Accounts live as single
// documents with embedded usage and subscription blocks, which mirrors how
// the product's earlier document store held them.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates a MongoStore on the given database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// accountDoc is the persisted document shape.
type accountDoc struct {
	ID           string           `bson:"_id"`
	DisplayName  string           `bson:"display_name"`
	Email        string           `bson:"email"`
	PasswordHash string           `bson:"password_hash"`
	GenderTag    string           `bson:"gender_tag"`
	Tier         string           `bson:"tier"`
	Subscription *subscriptionDoc `bson:"subscription,omitempty"`
	Usage        usageDoc         `bson:"usage"`
	CreatedAt    time.Time        `bson:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at"`
}

type subscriptionDoc struct {
	Provider    string    `bson:"provider"`
	Status      string    `bson:"status"`
	ActivatedAt time.Time `bson:"activated_at"`
	ExpiresAt   time.Time `bson:"expires_at"`
}

type usageDoc struct {
	DailyRemaining   int       `bson:"daily_remaining"`
	DailyResetAt     time.Time `bson:"daily_reset_at"`
	MonthlyRemaining int       `bson:"monthly_remaining"`
	MonthlyResetAt   time.Time `bson:"monthly_reset_at"`
	LifetimeTotal    int64     `bson:"lifetime_total"`
}

type projectDoc struct {
	ID          string    `bson:"_id"`
	AccountID   string    `bson:"account_id"`
	Title       string    `bson:"title"`
	Kind        string    `bson:"kind"`
	Prompt      string    `bson:"prompt"`
	ArtifactKey string    `bson:"artifact_key"`
	SizeBytes   int64     `bson:"size_bytes"`
	FileCount   int       `bson:"file_count"`
	Model       string    `bson:"model"`
	CreatedAt   time.Time `bson:"created_at"`
}

type sessionDoc struct {
	ID        string    `bson:"_id"`
	AccountID string    `bson:"account_id"`
	TokenHash string    `bson:"token_hash"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

func (s *MongoStore) accounts() *mongo.Collection {
	return s.db.Collection(accountCollection)
}

func (s *MongoStore) sessions() *mongo.Collection {
	return s.db.Collection(sessionCollection)
}

func (s *MongoStore) projects() *mongo.Collection {
	return s.db.Collection(projectCollection)
}

func (s *MongoStore) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.findAccount(ctx, bson.M{"_id": id.String()})
}

func (s *MongoStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return s.findAccount(ctx, bson.M{"email": email})
}

func (s *MongoStore) findAccount(ctx context.Context, filter bson.M) (*domain.Account, error) {
	var doc accountDoc
	err := s.accounts().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return docToAccount(&doc)
}

func (s *MongoStore) Create(ctx context.Context, account *domain.Account) error {
	// Email uniqueness is backed by a unique index created at startup.
	_, err := s.accounts().InsertOne(ctx, accountToDoc(account))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateProfile(ctx context.Context, id uuid.UUID, displayName, genderTag string) error {
	res, err := s.accounts().UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{
			"display_name": displayName,
			"gender_tag":   genderTag,
			"updated_at":   time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) UpdateEntitlement(ctx context.Context, id uuid.UUID, guard EntitlementGuard, upd EntitlementUpdate) error {
	set := bson.M{
		"tier":                    string(upd.Tier),
		"usage.daily_remaining":   upd.Usage.DailyRemaining,
		"usage.daily_reset_at":    upd.Usage.DailyResetAt,
		"usage.monthly_remaining": upd.Usage.MonthlyRemaining,
		"usage.monthly_reset_at":  upd.Usage.MonthlyResetAt,
		"usage.lifetime_total":    upd.Usage.LifetimeTotal,
		"updated_at":              time.Now().UTC(),
	}
	update := bson.M{"$set": set}
	if upd.Subscription != nil {
		set["subscription"] = subscriptionDoc{
			Provider:    upd.Subscription.Provider,
			Status:      string(upd.Subscription.Status),
			ActivatedAt: upd.Subscription.ActivatedAt,
			ExpiresAt:   upd.Subscription.ExpiresAt,
		}
	} else {
		update["$unset"] = bson.M{"subscription": ""}
	}

	res, err := s.accounts().UpdateOne(ctx,
		bson.M{
			"_id":                    id.String(),
			"tier":                   string(guard.Tier),
			"usage.daily_reset_at":   guard.DailyResetAt,
			"usage.monthly_reset_at": guard.MonthlyResetAt,
		},
		update,
	)
	if err != nil {
		return fmt.Errorf("update entitlement: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Guard mismatch or missing account; classify with a point read.
	n, err := s.accounts().CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("update entitlement exists check: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStale
}

func (s *MongoStore) ConsumeUnit(ctx context.Context, id uuid.UUID, decDaily, decMonthly bool) error {
	filter := bson.M{"_id": id.String()}
	inc := bson.M{"usage.lifetime_total": 1}
	if decDaily {
		filter["usage.daily_remaining"] = bson.M{"$gt": 0}
		inc["usage.daily_remaining"] = -1
	}
	if decMonthly {
		filter["usage.monthly_remaining"] = bson.M{"$gt": 0}
		inc["usage.monthly_remaining"] = -1
	}

	res, err := s.accounts().UpdateOne(ctx, filter, bson.M{
		"$inc": inc,
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("consume unit: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Rejected; classify on the failure path only.
	var doc accountDoc
	err = s.accounts().FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("consume unit classify: %w", err)
	}
	if decDaily && doc.Usage.DailyRemaining <= 0 {
		return ErrDailyExhausted
	}
	return ErrMonthlyExhausted
}

// =============================================================================
// Sessions
// =============================================================================

func (s *MongoStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.sessions().InsertOne(ctx, sessionDoc{
		ID:        session.ID.String(),
		AccountID: session.AccountID.String(),
		TokenHash: session.TokenHash,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *MongoStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var doc sessionDoc
	err := s.sessions().FindOne(ctx, bson.M{"token_hash": tokenHash}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	accountID, err := uuid.Parse(doc.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse session account id: %w", err)
	}
	return &domain.Session{
		ID:        id,
		AccountID: accountID,
		TokenHash: doc.TokenHash,
		ExpiresAt: doc.ExpiresAt,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (s *MongoStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := s.sessions().DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.sessions().DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": time.Now().UTC()}})
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.DeletedCount, nil
}

// =============================================================================
// Projects
// =============================================================================

func (s *MongoStore) CreateProject(ctx context.Context, project *domain.Project) error {
	_, err := s.projects().InsertOne(ctx, projectToDoc(project))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *MongoStore) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	var doc projectDoc
	err := s.projects().FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	return docToProject(&doc)
}

func (s *MongoStore) ListProjects(ctx context.Context, accountID uuid.UUID) ([]*domain.Project, error) {
	cursor, err := s.projects().Find(ctx,
		bson.M{"account_id": accountID.String()},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer cursor.Close(ctx)

	var projects []*domain.Project
	for cursor.Next(ctx) {
		var doc projectDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode project: %w", err)
		}
		p, err := docToProject(&doc)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// EnsureIndexes creates the unique email index, the session token index, and
// the project listing index. Called once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.accounts().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	_, err = s.sessions().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token_hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create session token index: %w", err)
	}
	_, err = s.projects().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create project index: %w", err)
	}
	return nil
}

// =============================================================================
// Conversions
// =============================================================================

func accountToDoc(a *domain.Account) *accountDoc {
	doc := &accountDoc{
		ID:           a.ID.String(),
		DisplayName:  a.DisplayName,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		GenderTag:    a.GenderTag,
		Tier:         string(a.Tier),
		Usage: usageDoc{
			DailyRemaining:   a.Usage.DailyRemaining,
			DailyResetAt:     a.Usage.DailyResetAt,
			MonthlyRemaining: a.Usage.MonthlyRemaining,
			MonthlyResetAt:   a.Usage.MonthlyResetAt,
			LifetimeTotal:    a.Usage.LifetimeTotal,
		},
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Subscription != nil {
		doc.Subscription = &subscriptionDoc{
			Provider:    a.Subscription.Provider,
			Status:      string(a.Subscription.Status),
			ActivatedAt: a.Subscription.ActivatedAt,
			ExpiresAt:   a.Subscription.ExpiresAt,
		}
	}
	return doc
}

func docToAccount(doc *accountDoc) (*domain.Account, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parse account id: %w", err)
	}
	a := &domain.Account{
		ID:           id,
		DisplayName:  doc.DisplayName,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		GenderTag:    doc.GenderTag,
		Tier:         domain.Tier(doc.Tier),
		Usage: domain.UsageWindow{
			DailyRemaining:   doc.Usage.DailyRemaining,
			DailyResetAt:     doc.Usage.DailyResetAt,
			MonthlyRemaining: doc.Usage.MonthlyRemaining,
			MonthlyResetAt:   doc.Usage.MonthlyResetAt,
			LifetimeTotal:    doc.Usage.LifetimeTotal,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if doc.Subscription != nil {
		a.Subscription = &domain.Subscription{
			Provider:    doc.Subscription.Provider,
			Status:      domain.SubscriptionStatus(doc.Subscription.Status),
			ActivatedAt: doc.Subscription.ActivatedAt,
			ExpiresAt:   doc.Subscription.ExpiresAt,
		}
	}
	return a, nil
}

func projectToDoc(p *domain.Project) *projectDoc {
	return &projectDoc{
		ID:          p.ID.String(),
		AccountID:   p.AccountID.String(),
		Title:       p.Title,
		Kind:        string(p.Kind),
		Prompt:      p.Prompt,
		ArtifactKey: p.ArtifactKey,
		SizeBytes:   p.SizeBytes,
		FileCount:   p.FileCount,
		Model:       p.Model,
		CreatedAt:   p.CreatedAt,
	}
}

func docToProject(doc *projectDoc) (*domain.Project, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parse project id: %w", err)
	}
	accountID, err := uuid.Parse(doc.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse project account id: %w", err)
	}
	return &domain.Project{
		ID:          id,
		AccountID:   accountID,
		Title:       doc.Title,
		Kind:        domain.ProjectKind(doc.Kind),
		Prompt:      doc.Prompt,
		ArtifactKey: doc.ArtifactKey,
		SizeBytes:   doc.SizeBytes,
		FileCount:   doc.FileCount,
		Model:       doc.Model,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

var _ Store = (*MongoStore)(nil)
