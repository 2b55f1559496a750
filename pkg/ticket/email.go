package ticket

import (
	"fmt"
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidationError is a local rejection; the request never reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ticket: invalid %s: %s", e.Field, e.Reason)
}

// ValidateEmail accepts local-part@domain.tld where the last label has at
// least two letters.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Reason: "empty"}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Reason: "not a valid address"}
	}
	return nil
}
