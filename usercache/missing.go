package usercache

import (
	"slices"
	"strings"

	"github.com/MrEthical07/goGrant/userstore"
)

// Missing item vocabulary.
const (
	ItemFirstName         = "firstName"
	ItemLastName          = "lastName"
	ItemEmail             = "email"
	ItemAuthMethod        = "authMethod"
	ItemEmailVerification = "email verification"
	ItemEmailUniqueness   = "email uniqueness"
)

const (
	warnMissingFields = "Missing required fields. "
	warnEmailInUse    = "Primary email address is already in use. "
	warnVerifyEmail   = "Email address requires verification. "
)

var requiredItems = []string{ItemFirstName, ItemLastName, ItemEmail, ItemAuthMethod}

// ComputeMissing returns the completeness gaps of r in vocabulary order.
// emailTaken reports whether another account already owns r.Email.
func ComputeMissing(r *userstore.Record, emailTaken bool) []string {
	items := make([]string, 0, 4)
	if strings.TrimSpace(r.FirstName) == "" {
		items = append(items, ItemFirstName)
	}
	if strings.TrimSpace(r.LastName) == "" {
		items = append(items, ItemLastName)
	}

	email := strings.TrimSpace(r.Email)
	if email == "" {
		items = append(items, ItemEmail)
	}
	if !r.HasAuthMethod() {
		items = append(items, ItemAuthMethod)
	}

	switch {
	case email == "":
	case emailTaken:
		items = append(items, ItemEmail, ItemEmailUniqueness)
	case !r.EmailVerified:
		items = append(items, ItemEmailVerification)
	}

	return sortItems(items)
}

// RequiresCompletion reports whether items contains a required gap. Accounts
// with a required gap are kept out of the durable store.
func RequiresCompletion(items []string) bool {
	for _, it := range requiredItems {
		if slices.Contains(items, it) {
			return true
		}
	}
	return false
}

// WarningMessage renders the user-facing warning for items. An empty set
// yields an empty message.
func WarningMessage(items []string) string {
	var b strings.Builder
	if RequiresCompletion(items) {
		b.WriteString(warnMissingFields)
	}
	if slices.Contains(items, ItemEmailUniqueness) {
		b.WriteString(warnEmailInUse)
	}
	if slices.Contains(items, ItemEmailVerification) {
		b.WriteString(warnVerifyEmail)
	}
	return b.String()
}

var itemOrder = map[string]int{
	ItemFirstName:         0,
	ItemLastName:          1,
	ItemEmail:             2,
	ItemAuthMethod:        3,
	ItemEmailUniqueness:   4,
	ItemEmailVerification: 5,
}

// sortItems dedups and orders items by vocabulary position. Redis sets come
// back unordered so every read passes through here.
func sortItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !slices.Contains(out, it) {
			out = append(out, it)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int {
		ra, oka := itemOrder[a]
		rb, okb := itemOrder[b]
		switch {
		case oka && okb:
			return ra - rb
		case oka:
			return -1
		case okb:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
	return out
}
