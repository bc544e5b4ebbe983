package whatsapp

import (
	"github.com/nyaruka/phonenumbers"
)

// FormatCallerNumber renders a webhook caller number (digits only, no plus)
// in international format for logs. Numbers that fail to parse are returned
// with a leading plus, unformatted.
func FormatCallerNumber(raw string) string {
	if raw == "" {
		return ""
	}

	num, err := phonenumbers.Parse("+"+raw, "")
	if err != nil {
		return "+" + raw
	}

	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
}
