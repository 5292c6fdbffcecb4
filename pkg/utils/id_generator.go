package utils

import (
	"github.com/google/uuid"
)

// GenerateID generates a new UUID
func GenerateID() string {
	return uuid.New().String()
}

// GenerateOrderID generates a unique order ID
func GenerateOrderID() string {
	return "ORDER-" + uuid.New().String()
}

// GenerateAttemptID generates a unique checkout attempt ID
func GenerateAttemptID() string {
	return "ATTEMPT-" + uuid.New().String()
}

// GenerateAuditID generates a unique checkout audit ID
func GenerateAuditID() string {
	return "AUDIT-" + uuid.New().String()
}

// IsValidUUID checks if a string is a valid UUID
func IsValidUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
