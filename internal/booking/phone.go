package booking

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone canonicalises a customer phone to E.164 so the same
// person reaches the same Customer row from every channel.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid("customerPhone", "phone number is required")
	}
	if region == "" {
		region = "US"
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", invalid("customerPhone", "phone number is not recognised")
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", invalid("customerPhone", "phone number is not recognised")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
