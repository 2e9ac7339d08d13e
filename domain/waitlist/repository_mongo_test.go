package waitlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/workdora/waitlist-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCountFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, countFilter(EntryFilter{}))

	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, bson.M{
		"idealLoi": true,
		"joinedAt": bson.M{"$gte": since},
	}, countFilter(EntryFilter{DesignPartnersOnly: true, JoinedSince: since}))
}

func TestToolUsagePipeline_SortsByCountThenName(t *testing.T) {
	pipeline := toolUsagePipeline()

	assert.Len(t, pipeline, 3)
	assert.Equal(t, "$unwind", pipeline[0][0].Key)
	assert.Equal(t, "$group", pipeline[1][0].Key)
	assert.Equal(t, bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}, pipeline[2][0].Value)
}

func TestDocumentMapping(t *testing.T) {
	joined := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	entry := &models.WaitlistEntry{
		Name:                    "Ada Lovelace",
		Email:                   "ada@example.com",
		Organization:            "Analytical Engines",
		Tools:                   []models.WaitlistTool{{Name: "Slack"}, {Name: "Harvest"}},
		DesignPartnerEligible:   true,
		ReferralCode:            "ada_abc123",
		Score:                   5,
		LifetimeDiscountGranted: true,
		JoinedAt:                joined,
	}

	doc := toDocument(entry)
	assert.Equal(t, []string{"Slack", "Harvest"}, doc.ToolsUsed)
	assert.True(t, doc.IdealLoi)
	assert.True(t, doc.LifetimeDiscount)

	back := fromDocument(doc)
	assert.Equal(t, entry, back)
}

func TestDocumentMapping_EmptyToolsIsEmptyArray(t *testing.T) {
	doc := toDocument(&models.WaitlistEntry{Name: "Ada", Email: "ada@example.com"})

	assert.NotNil(t, doc.ToolsUsed, "toolsUsed is stored as [] so $unwind sees an array")
	assert.Empty(t, doc.ToolsUsed)
}
