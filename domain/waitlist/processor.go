package waitlist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/workdora/waitlist-api/internal/models"
	apperrors "github.com/workdora/waitlist-api/pkg/errors"
	"github.com/workdora/waitlist-api/pkg/retry"
	"golang.org/x/text/unicode/norm"
)

// DesignPartnerTools are the integrations that qualify a signup for the design partner program.
var DesignPartnerTools = []string{"Slack", "Harvest", "QuickBooks"}

const (
	minDesignPartnerTools = 2

	organizationPoints  = 2
	desiredChangePoints = 1
	designPartnerPoints = 3

	DefaultReferralCodeAttempts = 5
)

// SubmissionProcessor turns a validated request into a stored entry: it rejects known
// emails, scores the signup and allocates a unique referral code.
type SubmissionProcessor struct {
	repository   WaitlistRepository
	generateCode ReferralCodeGenerator
	codeAttempts int
	now          func() time.Time
}

func NewSubmissionProcessor(repository WaitlistRepository, generateCode ReferralCodeGenerator, codeAttempts int, now func() time.Time) *SubmissionProcessor {
	if generateCode == nil {
		generateCode = GenerateReferralCode
	}
	if codeAttempts <= 0 {
		codeAttempts = DefaultReferralCodeAttempts
	}
	if now == nil {
		now = time.Now
	}

	return &SubmissionProcessor{
		repository:   repository,
		generateCode: generateCode,
		codeAttempts: codeAttempts,
		now:          now,
	}
}

func (p *SubmissionProcessor) Process(ctx context.Context, req *CreateWaitlistEntryRequest) (*models.WaitlistEntry, error) {
	email := normalizeEmail(req.Email)

	_, err := p.repository.FindEntryByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, NewDuplicateEmailError(nil)
	case !apperrors.IsNotFound(err):
		return nil, err
	}

	tools := req.Tools()
	eligible := IsDesignPartner(tools)

	entry := &models.WaitlistEntry{
		Name:                    normalizeText(req.Name),
		Email:                   email,
		Phone:                   strings.TrimSpace(req.Phone),
		JobTitle:                normalizeText(req.JobTitle),
		Organization:            normalizeText(req.Organization),
		Tools:                   toolRows(tools),
		DesiredChanges:          normalizeText(req.DesiredChanges),
		DesignPartnerEligible:   eligible,
		UtmSource:               strings.TrimSpace(req.UtmSource),
		UtmCampaign:             strings.TrimSpace(req.UtmCampaign),
		Referrer:                strings.TrimSpace(req.Referrer),
		ReferredBy:              strings.TrimSpace(req.ReferredBy),
		Score:                   Score(req.Organization, req.DesiredChanges, eligible),
		LifetimeDiscountGranted: eligible,
		JoinedAt:                p.now().UTC(),
	}

	created, err := p.insertWithUniqueCode(ctx, entry)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (p *SubmissionProcessor) insertWithUniqueCode(ctx context.Context, entry *models.WaitlistEntry) (*models.WaitlistEntry, error) {
	var created *models.WaitlistEntry

	policy := retry.NewFixedDelay(&retry.Config{
		MaxAttempts: p.codeAttempts,
		Retryable: func(err error) bool {
			return errors.Is(err, ErrReferralCodeTaken)
		},
	})

	err := policy.Execute(func() error {
		code, err := p.generateCode(entry.Email)
		if err != nil {
			return apperrors.NewInternalServerError("unable to generate referral code", err)
		}

		taken, err := p.repository.ReferralCodeExists(ctx, code)
		if err != nil {
			return err
		}
		if taken {
			return ErrReferralCodeTaken
		}

		resetKeys(entry)
		entry.ReferralCode = code

		created, err = p.repository.CreateEntry(ctx, entry)
		return err
	})

	if retry.IsMaxRetriesExceeded(err) {
		return nil, apperrors.NewInternalServerError("unable to allocate a unique referral code", err)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// resetKeys clears keys a failed insert may have assigned so the next attempt inserts fresh rows.
func resetKeys(entry *models.WaitlistEntry) {
	entry.ID = 0
	for i := range entry.Tools {
		entry.Tools[i].ID = 0
		entry.Tools[i].EntryID = 0
	}
}

// IsDesignPartner reports whether tools names at least two distinct design partner tools.
// Matching is exact and case sensitive.
func IsDesignPartner(tools []string) bool {
	matched := make(map[string]struct{}, len(DesignPartnerTools))
	for _, tool := range tools {
		for _, partnerTool := range DesignPartnerTools {
			if tool == partnerTool {
				matched[tool] = struct{}{}
			}
		}
	}
	return len(matched) >= minDesignPartnerTools
}

// Score rates how complete a signup is. A whitespace-only organization earns nothing,
// while any submitted desiredChanges text counts.
func Score(organization, desiredChanges string, designPartner bool) int {
	score := 0
	if strings.TrimSpace(organization) != "" {
		score += organizationPoints
	}
	if desiredChanges != "" {
		score += desiredChangePoints
	}
	if designPartner {
		score += designPartnerPoints
	}
	return score
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func toolRows(tools []string) []models.WaitlistTool {
	rows := make([]models.WaitlistTool, 0, len(tools))
	for _, tool := range tools {
		rows = append(rows, models.WaitlistTool{Name: strings.TrimSpace(tool)})
	}
	return rows
}
