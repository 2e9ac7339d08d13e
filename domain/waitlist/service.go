package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/workdora/waitlist-api/internal/log"
	"github.com/workdora/waitlist-api/pkg/circuitbreaker"
	"github.com/workdora/waitlist-api/pkg/constants"
	apperrors "github.com/workdora/waitlist-api/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	statsCacheKey      = "waitlist:stats"
	// statsGenerationKey changes on every signup. Cached stats carry the generation they
	// were computed under and are ignored once it moves on.
	statsGenerationKey = "waitlist:stats:generation"
	recentWindow       = 7 * 24 * time.Hour
	tracerName         = "github.com/workdora/waitlist-api/domain/waitlist"
)

type WaitlistService interface {
	// CreateEntry validates and stores a signup and returns its referral summary.
	CreateEntry(ctx context.Context, req *CreateWaitlistEntryRequest) (*SignupResponse, error)

	// GetStats returns signup totals and tool usage.
	GetStats(ctx context.Context) (*StatsResponse, error)

	// FindByReferralCode returns the public view of the entry owning code.
	FindByReferralCode(ctx context.Context, code string) (*ReferralResponse, error)
}

// StatsCache is the subset of the application cache used for stats. Get returns ("", nil)
// on a miss.
type StatsCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type cachedStatsEntry struct {
	Generation string         `json:"generation"`
	Stats      *StatsResponse `json:"stats"`
}

type ServiceConfig struct {
	Cache                StatsCache
	StatsCacheTTL        time.Duration
	Metrics              prometheus.Registerer
	Now                  func() time.Time
	ReferralCodeAttempts int
	GenerateCode         ReferralCodeGenerator
}

type waitlistService struct {
	logger     *log.Logger
	repository WaitlistRepository
	validator  *SubmissionValidator
	processor  *SubmissionProcessor

	cache        StatsCache
	cacheTTL     time.Duration
	cacheBreaker circuitbreaker.CircuitBreaker

	submissions *prometheus.CounterVec
	now         func() time.Time
	tracer      trace.Tracer
}

// NewWaitlistService wires the validator, processor and stats cache. A nil cfg uses defaults
// with no cache and no metrics.
func NewWaitlistService(logger *log.Logger, repository WaitlistRepository, cfg *ServiceConfig) WaitlistService {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ttl := cfg.StatsCacheTTL
	if ttl <= 0 {
		ttl = constants.DefaultStatsCacheTTL
	}

	s := &waitlistService{
		logger:     logger,
		repository: repository,
		validator:  NewSubmissionValidator(),
		processor:  NewSubmissionProcessor(repository, cfg.GenerateCode, cfg.ReferralCodeAttempts, now),
		cache:      cfg.Cache,
		cacheTTL:   ttl,
		now:        now,
		tracer:     otel.Tracer(tracerName),
	}

	if s.cache != nil {
		s.cacheBreaker = circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			Name:             "waitlist-stats-cache",
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 1,
			OnStateChange: func(name string, from, to circuitbreaker.CircuitState) {
				logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}

	if cfg.Metrics != nil {
		s.submissions = registerSubmissionCounter(cfg.Metrics, logger)
	}

	return s
}

func registerSubmissionCounter(reg prometheus.Registerer, logger *log.Logger) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_submissions_total",
			Help: "Waitlist submissions by outcome.",
		},
		[]string{"outcome"},
	)

	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		logger.Error("Failed to register waitlist metrics", "error", err)
		return nil
	}
	return counter
}

func (s *waitlistService) CreateEntry(ctx context.Context, req *CreateWaitlistEntryRequest) (*SignupResponse, error) {
	ctx, span := s.tracer.Start(ctx, "waitlist.CreateEntry")
	defer span.End()

	logger := log.GetLoggerInstanceFromContext(ctx, s.logger)

	if req == nil {
		req = &CreateWaitlistEntryRequest{}
	}

	if err := s.validator.Validate(req); err != nil {
		s.recordSubmission("invalid")
		logger.Info("Waitlist submission rejected", "violations", apperrors.GetDetails(err))
		return nil, err
	}

	entry, err := s.processor.Process(ctx, req)
	if err != nil {
		s.recordSubmission(outcomeFor(err))
		if apperrors.HTTPStatusCode(err) >= apperrors.StatusInternalServerError {
			span.RecordError(err)
			span.SetStatus(codes.Error, "waitlist submission failed")
			logger.Error("Failed to create waitlist entry", "error", err)
		} else {
			logger.Info("Waitlist submission refused", "reason", apperrors.GetErrorType(err))
		}
		return nil, err
	}

	s.recordSubmission("created")
	span.SetAttributes(
		attribute.Bool("waitlist.design_partner", entry.DesignPartnerEligible),
		attribute.Int("waitlist.score", entry.Score),
	)
	logger.Info("Waitlist entry created",
		"referral_code", entry.ReferralCode,
		"design_partner", entry.DesignPartnerEligible,
		"score", entry.Score,
	)

	s.invalidateStats(ctx, logger)

	response := ToSignupResponse(entry)
	return &response, nil
}

func (s *waitlistService) GetStats(ctx context.Context) (*StatsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "waitlist.GetStats")
	defer span.End()

	logger := log.GetLoggerInstanceFromContext(ctx, s.logger)

	// The generation is read before counting so a signup landing mid-aggregation
	// invalidates what this call stores.
	generation, cacheable := s.statsGeneration(ctx, logger)
	if cacheable {
		if cached, ok := s.cachedStats(ctx, logger, generation); ok {
			span.SetAttributes(attribute.Bool("waitlist.stats_cached", true))
			return cached, nil
		}
	}

	stats, err := s.computeStats(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stats aggregation failed")
		logger.Error("Failed to compute waitlist stats", "error", err)
		return nil, err
	}

	if cacheable {
		s.storeStats(ctx, logger, generation, stats)
	}
	return stats, nil
}

func (s *waitlistService) FindByReferralCode(ctx context.Context, code string) (*ReferralResponse, error) {
	logger := log.GetLoggerInstanceFromContext(ctx, s.logger)

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, NewReferralNotFoundError()
	}

	entry, err := s.repository.FindEntryByReferralCode(ctx, code)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			logger.Error("Failed to find referral", "error", err)
		}
		return nil, err
	}

	response := ToReferralResponse(entry)
	return &response, nil
}

func (s *waitlistService) computeStats(ctx context.Context) (*StatsResponse, error) {
	total, err := s.repository.CountEntries(ctx, EntryFilter{})
	if err != nil {
		return nil, err
	}

	partners, err := s.repository.CountEntries(ctx, EntryFilter{DesignPartnersOnly: true})
	if err != nil {
		return nil, err
	}

	recent, err := s.repository.CountEntries(ctx, EntryFilter{JoinedSince: s.now().UTC().Add(-recentWindow)})
	if err != nil {
		return nil, err
	}

	usage, err := s.repository.ToolUsage(ctx)
	if err != nil {
		return nil, err
	}

	return &StatsResponse{
		TotalUsers:     total,
		DesignPartners: partners,
		RecentSignups:  recent,
		ToolsStats:     ToToolStats(usage),
	}, nil
}

func (s *waitlistService) statsGeneration(ctx context.Context, logger *log.Logger) (string, bool) {
	if s.cache == nil {
		return "", false
	}

	var generation string
	err := s.cacheBreaker.Call(func() error {
		var err error
		generation, err = s.cache.Get(ctx, statsGenerationKey)
		return err
	})
	if err != nil {
		logger.Warn("Stats cache read failed", "error", err)
		return "", false
	}
	return generation, true
}

func (s *waitlistService) cachedStats(ctx context.Context, logger *log.Logger, generation string) (*StatsResponse, bool) {
	var raw string
	err := s.cacheBreaker.Call(func() error {
		var err error
		raw, err = s.cache.Get(ctx, statsCacheKey)
		return err
	})
	if err != nil {
		logger.Warn("Stats cache read failed", "error", err)
		return nil, false
	}
	if raw == "" {
		return nil, false
	}

	var entry cachedStatsEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		logger.Warn("Discarding malformed cached stats", "error", err)
		return nil, false
	}
	if entry.Stats == nil || entry.Generation != generation {
		return nil, false
	}
	if entry.Stats.ToolsStats == nil {
		entry.Stats.ToolsStats = []ToolStat{}
	}
	return entry.Stats, true
}

func (s *waitlistService) storeStats(ctx context.Context, logger *log.Logger, generation string, stats *StatsResponse) {
	payload, err := json.Marshal(cachedStatsEntry{Generation: generation, Stats: stats})
	if err != nil {
		logger.Warn("Failed to encode stats for cache", "error", err)
		return
	}

	err = s.cacheBreaker.Call(func() error {
		return s.cache.Set(ctx, statsCacheKey, string(payload), s.cacheTTL)
	})
	if err != nil {
		logger.Warn("Stats cache write failed", "error", err)
	}
}

// invalidateStats moves the stats generation on. It runs after the insert committed, so
// any aggregation that missed the new entry was stamped with an older generation.
func (s *waitlistService) invalidateStats(ctx context.Context, logger *log.Logger) {
	if s.cache == nil {
		return
	}

	err := s.cacheBreaker.Call(func() error {
		return s.cache.Set(ctx, statsGenerationKey, uuid.NewString(), 0)
	})
	if err != nil {
		logger.Warn("Stats cache invalidation failed", "error", err)
	}
}

func (s *waitlistService) recordSubmission(outcome string) {
	if s.submissions != nil {
		s.submissions.WithLabelValues(outcome).Inc()
	}
}

func outcomeFor(err error) string {
	switch apperrors.GetErrorType(err) {
	case apperrors.ErrorTypeConflict:
		return "duplicate"
	case apperrors.ErrorTypeValidation:
		return "invalid"
	default:
		return "error"
	}
}
