package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	applicationPrefix = "CBT"
	applicationMin    = 100000
	applicationMax    = 999999
)

var applicationNumberPattern = regexp.MustCompile(`^CBT\d{6}$`)

// RandomIntn returns a uniform integer in [0, n).
type RandomIntn func(n int) int

// CryptoIntn draws from crypto/rand.
func CryptoIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("domain: read random: %v", err))
	}
	return int(v.Int64())
}

// NewApplicationNumber returns "CBT" followed by a number in [100000, 999999].
// Uniqueness is enforced by the store, not here.
func NewApplicationNumber(intn RandomIntn) string {
	if intn == nil {
		intn = CryptoIntn
	}
	n := applicationMin + intn(applicationMax-applicationMin+1)
	return fmt.Sprintf("%s%d", applicationPrefix, n)
}

// ValidApplicationNumber reports whether value has the CBT###### shape.
func ValidApplicationNumber(value string) bool {
	return applicationNumberPattern.MatchString(value)
}

// NormalizeApplicationNumber trims and upper-cases user input.
func NormalizeApplicationNumber(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
