package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workdora/waitlist-api/internal/log"
	"github.com/workdora/waitlist-api/internal/models"
	apperrors "github.com/workdora/waitlist-api/pkg/errors"
	"go.uber.org/mock/gomock"
)

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.values[key], nil
}

func (c *memoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.values[key] = value
	c.ttls[key] = ttl
	return nil
}

func newTestService(t *testing.T, cfg *ServiceConfig) (WaitlistService, *MockWaitlistRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := NewMockWaitlistRepository(ctrl)

	if cfg == nil {
		cfg = &ServiceConfig{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	if cfg.GenerateCode == nil {
		cfg.GenerateCode, _ = sequenceCodes("ada_abc123")
	}

	return NewWaitlistService(log.NewLoggerWithJSONOutput(), repo, cfg), repo
}

func expectStats(repo *MockWaitlistRepository, usage []ToolCount) {
	repo.EXPECT().CountEntries(gomock.Any(), EntryFilter{}).Return(int64(12), nil)
	repo.EXPECT().CountEntries(gomock.Any(), EntryFilter{DesignPartnersOnly: true}).Return(int64(4), nil)
	repo.EXPECT().CountEntries(gomock.Any(), EntryFilter{JoinedSince: fixedNow.Add(-7 * 24 * time.Hour)}).Return(int64(5), nil)
	repo.EXPECT().ToolUsage(gomock.Any()).Return(usage, nil)
}

func TestWaitlistService_CreateEntry(t *testing.T) {
	t.Run("successful creation returns only the summary", func(t *testing.T) {
		service, repo := newTestService(t, nil)

		repo.EXPECT().FindEntryByEmail(gomock.Any(), "ada@example.com").Return(nil, notFound())
		repo.EXPECT().ReferralCodeExists(gomock.Any(), "ada_abc123").Return(false, nil)
		repo.EXPECT().CreateEntry(gomock.Any(), gomock.Any()).DoAndReturn(echoCreate)

		result, err := service.CreateEntry(context.Background(), &CreateWaitlistEntryRequest{
			Name:      "Ada Lovelace",
			Email:     "ada@example.com",
			ToolsUsed: json.RawMessage(`["Slack","Harvest"]`),
		})

		require.NoError(t, err)
		assert.Equal(t, &SignupResponse{ReferralCode: "ada_abc123", LifetimeDiscount: true, IdealLoi: true}, result)
	})

	t.Run("validation failure never touches storage", func(t *testing.T) {
		service, _ := newTestService(t, nil)

		result, err := service.CreateEntry(context.Background(), &CreateWaitlistEntryRequest{Email: "nope"})

		assert.Nil(t, result)
		assert.Equal(t, apperrors.StatusBadRequest, apperrors.HTTPStatusCode(err))
		assert.Equal(t, []string{"Name is required", "Please provide a valid email"}, apperrors.GetDetails(err))
	})

	t.Run("repository error", func(t *testing.T) {
		service, repo := newTestService(t, nil)

		repo.EXPECT().FindEntryByEmail(gomock.Any(), gomock.Any()).Return(nil, notFound())
		repo.EXPECT().ReferralCodeExists(gomock.Any(), gomock.Any()).Return(false, nil)
		repo.EXPECT().CreateEntry(gomock.Any(), gomock.Any()).Return(nil, apperrors.NewDatabaseError("database error", errors.New("disk full")))

		result, err := service.CreateEntry(context.Background(), &CreateWaitlistEntryRequest{Name: "Ada", Email: "ada@example.com"})

		assert.Nil(t, result)
		assert.Equal(t, apperrors.StatusInternalServerError, apperrors.HTTPStatusCode(err))
	})
}

func TestWaitlistService_CreateEntryRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	service, repo := newTestService(t, &ServiceConfig{Metrics: reg})

	repo.EXPECT().FindEntryByEmail(gomock.Any(), "ada@example.com").Return(nil, notFound())
	repo.EXPECT().ReferralCodeExists(gomock.Any(), gomock.Any()).Return(false, nil)
	repo.EXPECT().CreateEntry(gomock.Any(), gomock.Any()).DoAndReturn(echoCreate)
	repo.EXPECT().FindEntryByEmail(gomock.Any(), "ada@example.com").Return(&models.WaitlistEntry{}, nil)

	req := &CreateWaitlistEntryRequest{Name: "Ada", Email: "ada@example.com"}
	_, err := service.CreateEntry(context.Background(), req)
	require.NoError(t, err)
	_, err = service.CreateEntry(context.Background(), req)
	require.Error(t, err)
	_, err = service.CreateEntry(context.Background(), &CreateWaitlistEntryRequest{})
	require.Error(t, err)

	// A second service on the same registry reuses the collector instead of panicking.
	again, _ := newTestService(t, &ServiceConfig{Metrics: reg})
	_, err = again.CreateEntry(context.Background(), &CreateWaitlistEntryRequest{})
	require.Error(t, err)

	counter := registerSubmissionCounter(reg, log.NewLoggerWithJSONOutput())
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("duplicate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(counter.WithLabelValues("invalid")))
}

func TestWaitlistService_GetStats(t *testing.T) {
	service, repo := newTestService(t, nil)
	expectStats(repo, []ToolCount{{Tool: "Slack", Count: 7}, {Tool: "Harvest", Count: 3}})

	stats, err := service.GetStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, &StatsResponse{
		TotalUsers:     12,
		DesignPartners: 4,
		RecentSignups:  5,
		ToolsStats:     []ToolStat{{Tool: "Slack", Count: 7}, {Tool: "Harvest", Count: 3}},
	}, stats)
}

func TestWaitlistService_GetStatsEmptyToolsIsEmptyList(t *testing.T) {
	service, repo := newTestService(t, nil)
	expectStats(repo, nil)

	stats, err := service.GetStats(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, stats.ToolsStats)
	assert.Empty(t, stats.ToolsStats)
}

func TestWaitlistService_GetStatsFailure(t *testing.T) {
	service, repo := newTestService(t, nil)
	repo.EXPECT().CountEntries(gomock.Any(), gomock.Any()).Return(int64(0), apperrors.NewDatabaseError("failed to count waitlist entries", errors.New("timeout")))

	stats, err := service.GetStats(context.Background())

	assert.Nil(t, stats)
	assert.Equal(t, apperrors.StatusInternalServerError, apperrors.HTTPStatusCode(err))
}

func TestWaitlistService_StatsCache(t *testing.T) {
	cache := newMemoryCache()
	service, repo := newTestService(t, &ServiceConfig{Cache: cache, StatsCacheTTL: time.Minute})

	expectStats(repo, []ToolCount{{Tool: "Slack", Count: 1}})

	first, err := service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cache.ttls[statsCacheKey])

	// Served from cache: the repository expectations above allow a single aggregation.
	second, err := service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	repo.EXPECT().FindEntryByEmail(gomock.Any(), gomock.Any()).Return(nil, notFound())
	repo.EXPECT().ReferralCodeExists(gomock.Any(), gomock.Any()).Return(false, nil)
	repo.EXPECT().CreateEntry(gomock.Any(), gomock.Any()).DoAndReturn(echoCreate)

	_, err = service.CreateEntry(context.Background(), &CreateWaitlistEntryRequest{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, cache.values[statsGenerationKey], "a new signup moves the stats generation on")
	assert.Zero(t, cache.ttls[statsGenerationKey])

	// The cached entry belongs to the old generation, so stats are aggregated again.
	expectStats(repo, []ToolCount{{Tool: "Slack", Count: 2}})
	third, err := service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ToolStat{{Tool: "Slack", Count: 2}}, third.ToolsStats)
}

func TestWaitlistService_StatsCacheSkipsStatsComputedBeforeASignup(t *testing.T) {
	cache := newMemoryCache()
	service, repo := newTestService(t, &ServiceConfig{Cache: cache})
	recent := EntryFilter{JoinedSince: fixedNow.Add(-7 * 24 * time.Hour)}

	repo.EXPECT().FindEntryByEmail(gomock.Any(), "ada@example.com").Return(nil, notFound())
	repo.EXPECT().ReferralCodeExists(gomock.Any(), gomock.Any()).Return(false, nil)
	repo.EXPECT().CreateEntry(gomock.Any(), gomock.Any()).DoAndReturn(echoCreate)

	repo.EXPECT().CountEntries(gomock.Any(), EntryFilter{}).Return(int64(0), nil)
	repo.EXPECT().CountEntries(gomock.Any(), EntryFilter{DesignPartnersOnly: true}).Return(int64(0), nil)
	repo.EXPECT().CountEntries(gomock.Any(), recent).Return(int64(0), nil)
	repo.EXPECT().ToolUsage(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]ToolCount, error) {
		// A signup commits after the counts were taken but before they reach the cache.
		_, err := service.CreateEntry(ctx, &CreateWaitlistEntryRequest{Name: "Ada", Email: "ada@example.com"})
		require.NoError(t, err)
		return nil, nil
	})

	stale, err := service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stale.TotalUsers)

	repo.EXPECT().CountEntries(gomock.Any(), EntryFilter{}).Return(int64(1), nil)
	repo.EXPECT().CountEntries(gomock.Any(), EntryFilter{DesignPartnersOnly: true}).Return(int64(0), nil)
	repo.EXPECT().CountEntries(gomock.Any(), recent).Return(int64(1), nil)
	repo.EXPECT().ToolUsage(gomock.Any()).Return(nil, nil)

	fresh, err := service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.TotalUsers)
	assert.Equal(t, int64(1), fresh.RecentSignups)
}

func TestWaitlistService_StatsCacheFailureFallsBackToStorage(t *testing.T) {
	cache := newMemoryCache()
	cache.err = errors.New("connection refused")
	service, repo := newTestService(t, &ServiceConfig{Cache: cache})

	expectStats(repo, nil)

	stats, err := service.GetStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.TotalUsers)
}

func TestWaitlistService_FindByReferralCode(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		service, repo := newTestService(t, nil)
		repo.EXPECT().FindEntryByReferralCode(gomock.Any(), "ada_abc123").Return(&models.WaitlistEntry{
			Name:                    "Ada Lovelace",
			Email:                   "ada@example.com",
			LifetimeDiscountGranted: true,
		}, nil)

		result, err := service.FindByReferralCode(context.Background(), "ada_abc123")

		require.NoError(t, err)
		assert.Equal(t, &ReferralResponse{Name: "Ada Lovelace", HasDiscount: true}, result)
	})

	t.Run("not found", func(t *testing.T) {
		service, repo := newTestService(t, nil)
		repo.EXPECT().FindEntryByReferralCode(gomock.Any(), "missing").Return(nil, NewReferralNotFoundError())

		_, err := service.FindByReferralCode(context.Background(), "missing")

		assert.Equal(t, apperrors.StatusNotFound, apperrors.HTTPStatusCode(err))
		assert.Equal(t, "Referral code not found", apperrors.GetHumanReadableMessage(err))
	})

	t.Run("blank code skips storage", func(t *testing.T) {
		service, _ := newTestService(t, nil)

		_, err := service.FindByReferralCode(context.Background(), "  ")

		assert.True(t, apperrors.IsNotFound(err))
	})
}
