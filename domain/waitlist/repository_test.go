package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workdora/waitlist-api/internal/models"
	apperrors "github.com/workdora/waitlist-api/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteRepository(t *testing.T) (WaitlistRepository, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.ModelRegistry...))
	return NewWaitlistRepository(db), db
}

func newEntry(email, code string, tools ...string) *models.WaitlistEntry {
	rows := make([]models.WaitlistTool, 0, len(tools))
	for _, tool := range tools {
		rows = append(rows, models.WaitlistTool{Name: tool})
	}
	return &models.WaitlistEntry{
		Name:         "Test User",
		Email:        email,
		ReferralCode: code,
		Tools:        rows,
	}
}

func TestWaitlistRepository_CreateAndFind(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()

	entry := newEntry("ada@example.com", "ada_abc123", "Slack", "Harvest")
	entry.LifetimeDiscountGranted = true

	created, err := repo.CreateEntry(ctx, entry)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.JoinedAt.IsZero(), "joined_at defaults to now")

	byEmail, err := repo.FindEntryByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ada_abc123", byEmail.ReferralCode)

	byCode, err := repo.FindEntryByReferralCode(ctx, "ada_abc123")
	require.NoError(t, err)
	assert.Equal(t, "Test User", byCode.Name)
	assert.True(t, byCode.LifetimeDiscountGranted)

	taken, err := repo.ReferralCodeExists(ctx, "ada_abc123")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.ReferralCodeExists(ctx, "ada_zzz999")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestWaitlistRepository_NotFound(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()

	_, err := repo.FindEntryByEmail(ctx, "missing@example.com")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = repo.FindEntryByReferralCode(ctx, "missing_000000")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, "Referral code not found", apperrors.GetHumanReadableMessage(err))
}

func TestWaitlistRepository_UniqueEmail(t *testing.T) {
	repo, db := newSQLiteRepository(t)
	ctx := context.Background()

	_, err := repo.CreateEntry(ctx, newEntry("ada@example.com", "ada_abc123", "Slack"))
	require.NoError(t, err)

	_, err = repo.CreateEntry(ctx, newEntry("ada@example.com", "ada_def456", "Notion"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, "Email already exists in our waitlist", apperrors.GetHumanReadableMessage(err))

	var tools int64
	require.NoError(t, db.Model(&models.WaitlistTool{}).Count(&tools).Error)
	assert.Equal(t, int64(1), tools, "a rejected insert leaves no tool rows behind")
}

func TestWaitlistRepository_UniqueReferralCode(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()

	_, err := repo.CreateEntry(ctx, newEntry("ada@example.com", "shared_abc123"))
	require.NoError(t, err)

	_, err = repo.CreateEntry(ctx, newEntry("grace@example.com", "shared_abc123"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReferralCodeTaken))
}

func TestWaitlistRepository_PersistenceConstraints(t *testing.T) {
	repo, _ := newSQLiteRepository(t)

	entry := newEntry("not-an-email", "x_000000")
	entry.Phone = strings.Repeat("9", 21)

	_, err := repo.CreateEntry(context.Background(), entry)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
	assert.Equal(t, []string{
		"Please provide a valid email",
		"Phone number cannot be more than 20 characters",
	}, apperrors.GetDetails(err))
}

func TestWaitlistRepository_CountEntries(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := newEntry("old@example.com", "old_000001")
	old.JoinedAt = now.Add(-30 * 24 * time.Hour)
	old.DesignPartnerEligible = true

	recentPartner := newEntry("partner@example.com", "partner_000002")
	recentPartner.JoinedAt = now.Add(-time.Hour)
	recentPartner.DesignPartnerEligible = true

	recent := newEntry("recent@example.com", "recent_000003")
	recent.JoinedAt = now.Add(-2 * 24 * time.Hour)

	for _, e := range []*models.WaitlistEntry{old, recentPartner, recent} {
		_, err := repo.CreateEntry(ctx, e)
		require.NoError(t, err)
	}

	total, err := repo.CountEntries(ctx, EntryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	partners, err := repo.CountEntries(ctx, EntryFilter{DesignPartnersOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), partners)

	lastWeek, err := repo.CountEntries(ctx, EntryFilter{JoinedSince: now.Add(-7 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), lastWeek)
}

func TestWaitlistRepository_ToolUsage(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()

	usage, err := repo.ToolUsage(ctx)
	require.NoError(t, err)
	assert.Empty(t, usage)

	entries := []*models.WaitlistEntry{
		newEntry("a@example.com", "a_000001", "Slack", "Harvest"),
		newEntry("b@example.com", "b_000002", "Slack", "QuickBooks"),
		newEntry("c@example.com", "c_000003", "Notion", "Slack", "Harvest"),
	}
	for _, e := range entries {
		_, err := repo.CreateEntry(ctx, e)
		require.NoError(t, err)
	}

	usage, err = repo.ToolUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ToolCount{
		{Tool: "Slack", Count: 3},
		{Tool: "Harvest", Count: 2},
		{Tool: "Notion", Count: 1},
		{Tool: "QuickBooks", Count: 1},
	}, usage)
}

func TestClassifyCreateError(t *testing.T) {
	validation := apperrors.NewValidationError("Validation failed", []string{"Please provide a name"})
	assert.Same(t, validation, classifyCreateError(validation, "referral_code"))

	pgReferral := errors.New(`ERROR: duplicate key value violates unique constraint "idx_waitlist_entries_referral_code" (SQLSTATE 23505)`)
	assert.ErrorIs(t, classifyCreateError(pgReferral, "referral_code"), ErrReferralCodeTaken)

	mongoEmail := errors.New(`E11000 duplicate key error collection: workdora_waitlist.waitlistusers index: idx_waitlist_email dup key: { email: "a@b.co" }`)
	assert.True(t, apperrors.IsConflict(classifyCreateError(mongoEmail, "referralCode")))

	other := classifyCreateError(errors.New("disk I/O error"), "referral_code")
	assert.Equal(t, apperrors.ErrorTypeDatabaseError, apperrors.GetErrorType(other))
}
