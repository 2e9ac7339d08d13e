package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/workdora/waitlist-api/internal/models"
	apperrors "github.com/workdora/waitlist-api/pkg/errors"
	"gorm.io/gorm"
)

// EntryFilter narrows CountEntries. The zero value counts every entry.
type EntryFilter struct {
	DesignPartnersOnly bool
	JoinedSince        time.Time
}

// ToolCount is the number of stored entries listing a tool.
type ToolCount struct {
	Tool  string
	Count int64
}

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=waitlist

type WaitlistRepository interface {
	// FindEntryByEmail looks up an entry by normalized email. A missing entry is a NOT_FOUND error.
	FindEntryByEmail(ctx context.Context, email string) (*models.WaitlistEntry, error)
	// ReferralCodeExists reports whether any stored entry already uses code.
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
	// CreateEntry persists entry and its tools atomically. An email collision is a CONFLICT
	// error; a referral code collision wraps ErrReferralCodeTaken.
	CreateEntry(ctx context.Context, entry *models.WaitlistEntry) (*models.WaitlistEntry, error)
	// FindEntryByReferralCode returns NOT_FOUND when no entry has code.
	FindEntryByReferralCode(ctx context.Context, code string) (*models.WaitlistEntry, error)
	CountEntries(ctx context.Context, filter EntryFilter) (int64, error)
	// ToolUsage counts tool occurrences across all entries, most used first and ties by name.
	ToolUsage(ctx context.Context) ([]ToolCount, error)
}

type waitlistRepository struct {
	db *gorm.DB
}

func NewWaitlistRepository(db *gorm.DB) WaitlistRepository {
	return &waitlistRepository{db: db}
}

func (wr *waitlistRepository) FindEntryByEmail(ctx context.Context, email string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry

	if err := wr.db.WithContext(ctx).Where("email = ?", email).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("waitlist entry not found", err)
		}
		return nil, apperrors.NewDatabaseError("failed to fetch waitlist entry", err)
	}

	return &entry, nil
}

func (wr *waitlistRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64

	err := wr.db.WithContext(ctx).
		Model(&models.WaitlistEntry{}).
		Where("referral_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, apperrors.NewDatabaseError("failed to check referral code", err)
	}

	return count > 0, nil
}

func (wr *waitlistRepository) CreateEntry(ctx context.Context, entry *models.WaitlistEntry) (*models.WaitlistEntry, error) {
	if err := wr.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, classifyCreateError(err, "referral_code")
	}

	return entry, nil
}

func (wr *waitlistRepository) FindEntryByReferralCode(ctx context.Context, code string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry

	if err := wr.db.WithContext(ctx).Where("referral_code = ?", code).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewReferralNotFoundError()
		}
		return nil, apperrors.NewDatabaseError("failed to fetch referral", err)
	}

	return &entry, nil
}

func (wr *waitlistRepository) CountEntries(ctx context.Context, filter EntryFilter) (int64, error) {
	var count int64

	query := wr.db.WithContext(ctx).Model(&models.WaitlistEntry{})
	if filter.DesignPartnersOnly {
		query = query.Where("ideal_loi = ?", true)
	}
	if !filter.JoinedSince.IsZero() {
		query = query.Where("joined_at >= ?", filter.JoinedSince)
	}

	if err := query.Count(&count).Error; err != nil {
		return 0, apperrors.NewDatabaseError("failed to count waitlist entries", err)
	}

	return count, nil
}

func (wr *waitlistRepository) ToolUsage(ctx context.Context) ([]ToolCount, error) {
	var rows []struct {
		Tool string
		Uses int64
	}

	err := wr.db.WithContext(ctx).
		Model(&models.WaitlistTool{}).
		Select("name AS tool, COUNT(*) AS uses").
		Group("name").
		Order("uses DESC, tool ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to aggregate tool usage", err)
	}

	counts := make([]ToolCount, 0, len(rows))
	for _, r := range rows {
		counts = append(counts, ToolCount{Tool: r.Tool, Count: r.Uses})
	}
	return counts, nil
}

// classifyCreateError maps an insert failure onto the domain errors. referralField is how
// the store names the referral code in its unique-violation messages.
func classifyCreateError(err error, referralField string) error {
	if apperrors.GetErrorType(err) == apperrors.ErrorTypeValidation {
		return err
	}

	if apperrors.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), referralField) {
			return fmt.Errorf("%w: %v", ErrReferralCodeTaken, err)
		}
		return NewDuplicateEmailError(err)
	}

	return apperrors.NewDatabaseError("unable to create waitlist entry", err)
}
