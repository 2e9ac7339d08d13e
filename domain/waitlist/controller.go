package waitlist

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/workdora/waitlist-api/config/router"
	"github.com/workdora/waitlist-api/internal/log"
	"github.com/workdora/waitlist-api/pkg/constants"
	apperrors "github.com/workdora/waitlist-api/pkg/errors"
	"github.com/workdora/waitlist-api/pkg/factory"
)

const (
	msgJoined           = "Successfully joined the waitlist!"
	msgInvalidBody      = "Invalid request body"
	msgPayloadTooLarge  = "Request payload too large"
	msgSubmissionLimit  = "Too many waitlist submissions from this IP, please try again after 15 minutes"
	submissionLimitName = "waitlist-submissions"
)

// ControllerConfig carries what the controller needs beyond the repository. The
// service itself is built when the controller is mounted so it can register metrics
// with the router's registry.
type ControllerConfig struct {
	Service ServiceConfig
	// SubmissionLimit applies to POST /api/waitlist only.
	SubmissionLimit factory.RateLimitPolicy
}

// SubmissionPolicy is the per-IP limit applied to signups.
func SubmissionPolicy(requests int, window time.Duration) factory.RateLimitPolicy {
	return factory.RateLimitPolicy{
		Name:     submissionLimitName,
		Requests: requests,
		Window:   window,
		Message:  msgSubmissionLimit,
	}
}

func NewWaitlistController(logger *log.Logger, repository WaitlistRepository, cfg *ControllerConfig) *router.RESTController {
	if cfg == nil {
		cfg = &ControllerConfig{}
	}
	if cfg.SubmissionLimit.Requests <= 0 || cfg.SubmissionLimit.Window <= 0 {
		cfg.SubmissionLimit = SubmissionPolicy(constants.DefaultSubmissionRateLimitRequests, constants.DefaultSubmissionRateLimitWindow)
	}

	return router.NewRESTController(
		"WaitlistController",
		"/api/waitlist",
		func(rs *router.RouterService, c *router.RESTController) {
			serviceConfig := cfg.Service
			if serviceConfig.Metrics == nil {
				serviceConfig.Metrics = rs.MetricsRegistry()
			}
			service := NewWaitlistService(logger, repository, &serviceConfig)

			submissionLimiter := rs.RateLimiters().CreateRateLimiter(cfg.SubmissionLimit)

			rs.AddPostHandler(c, submissionLimiter, "", createWaitlistEntryHandler(service))
			rs.AddGetHandler(c, nil, "stats", getStatsHandler(service))
			rs.AddGetHandler(c, nil, "referral/:code", getReferralHandler(service))
		},
	)
}

func createWaitlistEntryHandler(service WaitlistService) router.HandlerFunction {
	return func(ctx *router.RequestContext) *router.ServiceResult {
		var req CreateWaitlistEntryRequest

		if errResult := bindSubmission(ctx, &req); errResult != nil {
			return errResult
		}

		response, err := service.CreateEntry(ctx.Request.Context(), &req)
		if err != nil {
			return router.AppErrorResult(ctx, err, msgSubmissionFailed)
		}

		return router.CreatedResult(response, msgJoined)
	}
}

// bindSubmission decodes the body into req. An empty body is treated as an empty object
// so the validator reports the missing fields.
func bindSubmission(ctx *router.RequestContext, req *CreateWaitlistEntryRequest) *router.ServiceResult {
	err := ctx.ShouldBindJSON(req)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	logger := router.GetLogger(ctx)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		logger.Warn("Request body too large", "limit", tooLarge.Limit)
		return router.ErrorResult(http.StatusRequestEntityTooLarge, msgPayloadTooLarge, nil)
	}

	if messages := apperrors.FormatValidationMessages(err, req, submissionMessages); len(messages) > 0 {
		logger.Info("Submission has mistyped fields", "errors", messages)
		return router.BadRequestResult("Validation failed", messages)
	}

	logger.Info("Failed to bind request", "error", err)
	return router.BadRequestResult(msgInvalidBody, nil)
}

func getStatsHandler(service WaitlistService) router.HandlerFunction {
	return func(ctx *router.RequestContext) *router.ServiceResult {
		stats, err := service.GetStats(ctx.Request.Context())
		if err != nil {
			return router.AppErrorResult(ctx, err, msgStatsFailed)
		}

		return router.OKResult(stats, "")
	}
}

func getReferralHandler(service WaitlistService) router.HandlerFunction {
	return func(ctx *router.RequestContext) *router.ServiceResult {
		referral, err := service.FindByReferralCode(ctx.Request.Context(), ctx.Param("code"))
		if err != nil {
			return router.AppErrorResult(ctx, err, msgReferralLookupFailed)
		}

		return router.OKResult(referral, "")
	}
}
