package sqlcheck

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a text value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Field       string // Name of the field that failed the check
	Value       string // The value that was checked
}

// CheckForInjection uses libinjection to detect SQL injection patterns in a
// text value. Used to screen user-confirmed training examples before they are
// promoted into the corpus.
//
// Returns nil if no injection is detected.
func CheckForInjection(field, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Field:       field,
			Value:       value,
		}
	}
	return nil
}
