package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/workdora/waitlist-api/internal/models"
	apperrors "github.com/workdora/waitlist-api/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// WaitlistCollection is the collection name used by the document store.
const WaitlistCollection = "waitlistusers"

type waitlistDocument struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Name             string             `bson:"name"`
	Email            string             `bson:"email"`
	Phone            string             `bson:"phone,omitempty"`
	JobTitle         string             `bson:"jobTitle,omitempty"`
	Organization     string             `bson:"organization,omitempty"`
	ToolsUsed        []string           `bson:"toolsUsed"`
	DesiredChanges   string             `bson:"desiredChanges,omitempty"`
	IdealLoi         bool               `bson:"idealLoi"`
	UtmSource        string             `bson:"utmSource,omitempty"`
	UtmCampaign      string             `bson:"utmCampaign,omitempty"`
	Referrer         string             `bson:"referrer,omitempty"`
	ReferralCode     string             `bson:"referralCode,omitempty"`
	ReferredBy       string             `bson:"referredBy,omitempty"`
	Score            int                `bson:"score"`
	BetaTester       bool               `bson:"betaTester"`
	LifetimeDiscount bool               `bson:"lifetimeDiscount"`
	JoinedAt         time.Time          `bson:"joinedAt"`
}

// MongoWaitlistRepository stores one document per signup, with tools embedded as a string array.
type MongoWaitlistRepository struct {
	c *mongo.Collection
}

func NewMongoWaitlistRepository(db *mongo.Database) *MongoWaitlistRepository {
	return &MongoWaitlistRepository{c: db.Collection(WaitlistCollection)}
}

// EnsureIndexes creates the unique email and referral code indexes the repository relies on.
func (r *MongoWaitlistRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("idx_waitlist_email").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "referralCode", Value: 1}},
			Options: options.Index().SetName("idx_waitlist_referralCode").SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "joinedAt", Value: -1}},
			Options: options.Index().SetName("idx_waitlist_joinedAt"),
		},
	}
	_, err := r.c.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *MongoWaitlistRepository) FindEntryByEmail(ctx context.Context, email string) (*models.WaitlistEntry, error) {
	return r.findOne(ctx, bson.M{"email": email}, apperrors.NewNotFoundError("waitlist entry not found", nil))
}

func (r *MongoWaitlistRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	n, err := r.c.CountDocuments(ctx, bson.M{"referralCode": code}, options.Count().SetLimit(1))
	if err != nil {
		return false, apperrors.NewDatabaseError("failed to check referral code", err)
	}
	return n > 0, nil
}

func (r *MongoWaitlistRepository) CreateEntry(ctx context.Context, entry *models.WaitlistEntry) (*models.WaitlistEntry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if entry.JoinedAt.IsZero() {
		entry.JoinedAt = time.Now().UTC()
	}

	if _, err := r.c.InsertOne(ctx, toDocument(entry)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, classifyCreateError(err, "referralCode")
		}
		return nil, apperrors.NewDatabaseError("unable to create waitlist entry", err)
	}

	return entry, nil
}

func (r *MongoWaitlistRepository) FindEntryByReferralCode(ctx context.Context, code string) (*models.WaitlistEntry, error) {
	return r.findOne(ctx, bson.M{"referralCode": code}, NewReferralNotFoundError())
}

func (r *MongoWaitlistRepository) CountEntries(ctx context.Context, filter EntryFilter) (int64, error) {
	n, err := r.c.CountDocuments(ctx, countFilter(filter))
	if err != nil {
		return 0, apperrors.NewDatabaseError("failed to count waitlist entries", err)
	}
	return n, nil
}

func (r *MongoWaitlistRepository) ToolUsage(ctx context.Context) ([]ToolCount, error) {
	cur, err := r.c.Aggregate(ctx, toolUsagePipeline())
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to aggregate tool usage", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Tool  string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, apperrors.NewDatabaseError("failed to decode tool usage", err)
	}

	counts := make([]ToolCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, ToolCount{Tool: row.Tool, Count: row.Count})
	}
	return counts, nil
}

func (r *MongoWaitlistRepository) findOne(ctx context.Context, filter bson.M, notFound error) (*models.WaitlistEntry, error) {
	var doc waitlistDocument
	if err := r.c.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		return nil, apperrors.NewDatabaseError("failed to fetch waitlist entry", err)
	}
	return fromDocument(&doc), nil
}

func countFilter(filter EntryFilter) bson.M {
	f := bson.M{}
	if filter.DesignPartnersOnly {
		f["idealLoi"] = true
	}
	if !filter.JoinedSince.IsZero() {
		f["joinedAt"] = bson.M{"$gte": filter.JoinedSince}
	}
	return f
}

func toolUsagePipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$unwind", Value: "$toolsUsed"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$toolsUsed"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

func toDocument(entry *models.WaitlistEntry) *waitlistDocument {
	tools := entry.ToolNames()
	return &waitlistDocument{
		Name:             entry.Name,
		Email:            entry.Email,
		Phone:            entry.Phone,
		JobTitle:         entry.JobTitle,
		Organization:     entry.Organization,
		ToolsUsed:        tools,
		DesiredChanges:   entry.DesiredChanges,
		IdealLoi:         entry.DesignPartnerEligible,
		UtmSource:        entry.UtmSource,
		UtmCampaign:      entry.UtmCampaign,
		Referrer:         entry.Referrer,
		ReferralCode:     entry.ReferralCode,
		ReferredBy:       entry.ReferredBy,
		Score:            entry.Score,
		BetaTester:       entry.BetaTester,
		LifetimeDiscount: entry.LifetimeDiscountGranted,
		JoinedAt:         entry.JoinedAt,
	}
}

func fromDocument(doc *waitlistDocument) *models.WaitlistEntry {
	tools := make([]models.WaitlistTool, 0, len(doc.ToolsUsed))
	for _, name := range doc.ToolsUsed {
		tools = append(tools, models.WaitlistTool{Name: name})
	}

	return &models.WaitlistEntry{
		Name:                    doc.Name,
		Email:                   doc.Email,
		Phone:                   doc.Phone,
		JobTitle:                doc.JobTitle,
		Organization:            doc.Organization,
		Tools:                   tools,
		DesiredChanges:          doc.DesiredChanges,
		DesignPartnerEligible:   doc.IdealLoi,
		UtmSource:               doc.UtmSource,
		UtmCampaign:             doc.UtmCampaign,
		Referrer:                doc.Referrer,
		ReferralCode:            doc.ReferralCode,
		ReferredBy:              doc.ReferredBy,
		Score:                   doc.Score,
		BetaTester:              doc.BetaTester,
		LifetimeDiscountGranted: doc.LifetimeDiscount,
		JoinedAt:                doc.JoinedAt,
	}
}

// Compile-time check.
var _ WaitlistRepository = (*MongoWaitlistRepository)(nil)
