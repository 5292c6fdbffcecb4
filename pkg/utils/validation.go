package utils

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

const maxIdentifierLength = 255

// identifiers issued by the merchant and the marketplace
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9._:@\-]+$`)

// ValidateSubjectID validates the merchant-assigned shop identifier
func ValidateSubjectID(subjectID string) error {
	return validateIdentifier("subject ID", subjectID)
}

// ValidateTenantID validates the marketplace identifier
func ValidateTenantID(tenantID string) error {
	return validateIdentifier("tenant ID", tenantID)
}

// ValidateUserID validates a storefront user ID
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if len(userID) > maxIdentifierLength {
		return fmt.Errorf("user ID too long (max %d characters)", maxIdentifierLength)
	}
	return nil
}

func validateIdentifier(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if len(value) > maxIdentifierLength {
		return fmt.Errorf("%s too long (max %d characters)", name, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(value) {
		return fmt.Errorf("%s contains invalid characters", name)
	}
	return nil
}

// ValidateEmail validates email format
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// ValidateLimit clamps a pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// ValidateOffset clamps a pagination offset
func ValidateOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// ValidateRequired validates that a field is not empty
func ValidateRequired(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateMaxLength validates maximum string length
func ValidateMaxLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%s exceeds maximum length of %d characters", fieldName, maxLength)
	}
	return nil
}
