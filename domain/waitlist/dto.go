package waitlist

import (
	"encoding/json"
	"strings"

	"github.com/workdora/waitlist-api/internal/models"
)

// CreateWaitlistEntryRequest is the signup payload. Only the validated fields carry
// `validate` tags; the rest are optional passthrough values. Field order is the order
// violations are reported in.
type CreateWaitlistEntryRequest struct {
	Name           string          `json:"name" validate:"required,min=2,max=100"`
	Email          string          `json:"email" validate:"required,email"`
	ToolsUsed      json.RawMessage `json:"toolsUsed" validate:"omitempty,toolarray,toolnames"`
	DesiredChanges string          `json:"desiredChanges" validate:"omitempty,max=500"`
	Phone          string          `json:"phone"`
	JobTitle       string          `json:"jobTitle"`
	Organization   string          `json:"organization"`
	UtmSource      string          `json:"utmSource"`
	UtmCampaign    string          `json:"utmCampaign"`
	Referrer       string          `json:"referrer"`
	ReferredBy     string          `json:"referredBy"`
}

// Tools returns the submitted tools list, or nil when toolsUsed was absent or falsy.
// Number and boolean elements come back as their text. Call it only after validation
// has accepted the request.
func (r *CreateWaitlistEntryRequest) Tools() []string {
	elements, ok := toolElements(r.ToolsUsed)
	if !ok {
		return nil
	}

	tools := make([]string, 0, len(elements))
	for _, element := range elements {
		if name, ok := toolName(element); ok {
			tools = append(tools, name)
		}
	}
	return tools
}

type SignupResponse struct {
	ReferralCode     string `json:"referralCode"`
	LifetimeDiscount bool   `json:"lifetimeDiscount"`
	IdealLoi         bool   `json:"idealLoi"`
}

type ToolStat struct {
	Tool  string `json:"_id"`
	Count int64  `json:"count"`
}

type StatsResponse struct {
	TotalUsers     int64      `json:"totalUsers"`
	DesignPartners int64      `json:"designPartners"`
	RecentSignups  int64      `json:"recentSignups"`
	ToolsStats     []ToolStat `json:"toolsStats"`
}

type ReferralResponse struct {
	Name        string `json:"name"`
	HasDiscount bool   `json:"hasDiscount"`
}

// ========================================
// Mappers
// ========================================

func ToSignupResponse(entry *models.WaitlistEntry) SignupResponse {
	if entry == nil {
		return SignupResponse{}
	}
	return SignupResponse{
		ReferralCode:     entry.ReferralCode,
		LifetimeDiscount: entry.LifetimeDiscountGranted,
		IdealLoi:         entry.DesignPartnerEligible,
	}
}

func ToReferralResponse(entry *models.WaitlistEntry) ReferralResponse {
	if entry == nil {
		return ReferralResponse{}
	}
	return ReferralResponse{
		Name:        entry.Name,
		HasDiscount: entry.LifetimeDiscountGranted,
	}
}

func ToToolStats(counts []ToolCount) []ToolStat {
	stats := make([]ToolStat, 0, len(counts))
	for _, c := range counts {
		stats = append(stats, ToolStat{Tool: c.Tool, Count: c.Count})
	}
	return stats
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
