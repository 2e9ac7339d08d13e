package models

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/workdora/waitlist-api/pkg/errors"
	"gorm.io/gorm"
)

// Stored field limits. These are enforced on every write, independently of request validation.
const (
	MaxNameLength           = 100
	MaxPhoneLength          = 20
	MaxJobTitleLength       = 100
	MaxOrganizationLength   = 100
	MaxDesiredChangesLength = 500
)

var storedEmailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

type WaitlistEntry struct {
	ID                      uint           `gorm:"primaryKey"`
	Name                    string         `gorm:"size:100;not null"`
	Email                   string         `gorm:"not null;uniqueIndex:idx_waitlist_entries_email"`
	Phone                   string         `gorm:"size:20"`
	JobTitle                string         `gorm:"size:100"`
	Organization            string         `gorm:"size:100"`
	Tools                   []WaitlistTool `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	DesiredChanges          string         `gorm:"size:500"`
	DesignPartnerEligible   bool           `gorm:"column:ideal_loi;not null;default:false"`
	UtmSource               string
	UtmCampaign             string
	Referrer                string
	ReferredBy              string
	ReferralCode            string    `gorm:"not null;uniqueIndex:idx_waitlist_entries_referral_code"`
	Score                   int       `gorm:"not null;default:0"`
	BetaTester              bool      `gorm:"not null;default:false"`
	LifetimeDiscountGranted bool      `gorm:"column:lifetime_discount;not null;default:false"`
	JoinedAt                time.Time `gorm:"not null;index:idx_waitlist_entries_joined_at"`
}

// WaitlistTool is one entry of a signup's tools list, kept in submission order.
type WaitlistTool struct {
	ID      uint   `gorm:"primaryKey"`
	EntryID uint   `gorm:"not null;index"`
	Name    string `gorm:"not null;index"`
}

func (e *WaitlistEntry) ToolNames() []string {
	names := make([]string, 0, len(e.Tools))
	for _, t := range e.Tools {
		names = append(names, t.Name)
	}
	return names
}

// Validate applies the stored-record constraints and reports every violation.
func (e *WaitlistEntry) Validate() error {
	var violations []string

	name := strings.TrimSpace(e.Name)
	switch {
	case name == "":
		violations = append(violations, "Please provide a name")
	case utf8.RuneCountInString(name) > MaxNameLength:
		violations = append(violations, "Name cannot be more than 100 characters")
	}

	email := strings.TrimSpace(e.Email)
	switch {
	case email == "":
		violations = append(violations, "Please provide an email")
	case !storedEmailPattern.MatchString(email):
		violations = append(violations, "Please provide a valid email")
	}

	if utf8.RuneCountInString(e.Phone) > MaxPhoneLength {
		violations = append(violations, "Phone number cannot be more than 20 characters")
	}
	if utf8.RuneCountInString(e.JobTitle) > MaxJobTitleLength {
		violations = append(violations, "Job title cannot be more than 100 characters")
	}
	if utf8.RuneCountInString(e.Organization) > MaxOrganizationLength {
		violations = append(violations, "Organization cannot be more than 100 characters")
	}
	if utf8.RuneCountInString(e.DesiredChanges) > MaxDesiredChangesLength {
		violations = append(violations, "Desired changes cannot be more than 500 characters")
	}

	if len(violations) > 0 {
		return apperrors.NewValidationError("Validation failed", violations)
	}
	return nil
}

func (e *WaitlistEntry) BeforeCreate(tx *gorm.DB) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.JoinedAt.IsZero() {
		e.JoinedAt = time.Now().UTC()
	}
	return nil
}
