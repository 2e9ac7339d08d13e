package waitlist

import (
	"errors"

	apperrors "github.com/workdora/waitlist-api/pkg/errors"
)

// Sentinel errors for the waitlist domain.
var (
	// ErrReferralCodeTaken is returned by repositories when the generated code collides
	// with a stored one. The processor retries with a fresh code.
	ErrReferralCodeTaken = errors.New("referral code already taken")
)

const (
	msgDuplicateEmail       = "Email already exists in our waitlist"
	msgReferralNotFound     = "Referral code not found"
	msgSubmissionFailed     = "Server error while processing your request"
	msgStatsFailed          = "Error fetching waitlist statistics"
	msgReferralLookupFailed = "Error fetching referral information"
)

func NewDuplicateEmailError(err error) *apperrors.AppError {
	return apperrors.NewConflictError(msgDuplicateEmail, err)
}

func NewReferralNotFoundError() *apperrors.AppError {
	return apperrors.NewNotFoundError(msgReferralNotFound, nil)
}
