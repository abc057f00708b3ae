package utils

import (
	"errors"
	"strings"
)

// ErrInvalidPhoneFormat is returned when a phone number does not match any
// recognized Kenyan MSISDN format.
var ErrInvalidPhoneFormat = errors.New("invalid phone number format")

const msisdnCountryCode = "254"

// NormalizeMSISDN canonicalizes a free-form Kenyan phone number into the
// wire format Daraja accepts: country-code prefixed, no leading zero, no
// plus sign (254XXXXXXXXX). Accepted inputs:
//
//	0712345678        local format
//	+254712345678     international with plus
//	254712345678      bare country code
//
// Spaces and dashes are ignored. Anything else fails with
// ErrInvalidPhoneFormat.
func NormalizeMSISDN(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	cleaned = strings.TrimPrefix(cleaned, "+")
	if cleaned == "" || !isDigits(cleaned) {
		return "", ErrInvalidPhoneFormat
	}

	switch {
	case strings.HasPrefix(cleaned, "0") && len(cleaned) == 10:
		cleaned = msisdnCountryCode + cleaned[1:]
	case strings.HasPrefix(cleaned, msisdnCountryCode) && len(cleaned) == 12:
		// already canonical
	default:
		return "", ErrInvalidPhoneFormat
	}

	// Subscriber numbers start with 7 (mobile) or 1 (newer allocations).
	if cleaned[3] != '7' && cleaned[3] != '1' {
		return "", ErrInvalidPhoneFormat
	}

	return cleaned, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
