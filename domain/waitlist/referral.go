package waitlist

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	referralAlphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
	referralSuffixLength = 6
)

// ReferralCodeGenerator returns a candidate referral code for a normalized email.
type ReferralCodeGenerator func(email string) (string, error)

// GenerateReferralCode builds "<local part>_<suffix>" where each suffix character is
// drawn uniformly from [a-z0-9].
func GenerateReferralCode(email string) (string, error) {
	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}

	suffix, err := randomSuffix(referralSuffixLength)
	if err != nil {
		return "", err
	}
	return local + "_" + suffix, nil
}

func randomSuffix(n int) (string, error) {
	max := big.NewInt(int64(len(referralAlphabet)))

	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate referral suffix: %w", err)
		}
		b.WriteByte(referralAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
