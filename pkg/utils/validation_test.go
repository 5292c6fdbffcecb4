package utils

import (
	"strings"
	"testing"
)

func TestValidateSubjectAndTenantID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "Simple identifier", value: "user123", wantErr: false},
		{name: "Marketplace identifier", value: "mall001", wantErr: false},
		{name: "Identifier with separators", value: "shop-01.main:eu@x", wantErr: false},
		{name: "Empty", value: "", wantErr: true},
		{name: "Whitespace", value: "user 123", wantErr: true},
		{name: "Too long", value: strings.Repeat("a", 256), wantErr: true},
		{name: "Injection attempt", value: "user123'; DROP TABLE", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateSubjectID(tt.value); (err != nil) != tt.wantErr {
				t.Errorf("ValidateSubjectID(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err := ValidateTenantID(tt.value); (err != nil) != tt.wantErr {
				t.Errorf("ValidateTenantID(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUserID(t *testing.T) {
	if err := ValidateUserID("customer-1"); err != nil {
		t.Errorf("ValidateUserID returned unexpected error: %v", err)
	}
	if err := ValidateUserID("   "); err == nil {
		t.Error("ValidateUserID should reject blank IDs")
	}
	if err := ValidateUserID(strings.Repeat("u", 256)); err == nil {
		t.Error("ValidateUserID should reject IDs over 255 characters")
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{email: "reader@example.com", wantErr: false},
		{email: "first.last+books@example.co.kr", wantErr: false},
		{email: "", wantErr: true},
		{email: "not-an-email", wantErr: true},
		{email: "Reader <reader@example.com>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if err := ValidateEmail(tt.email); (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  leave\x00 at door  "); got != "leave at door" {
		t.Errorf("SanitizeString = %q, want %q", got, "leave at door")
	}
}

func TestValidateLimitAndOffset(t *testing.T) {
	limits := map[int]int{-1: 20, 0: 20, 10: 10, 100: 100, 500: 100}
	for input, want := range limits {
		if got := ValidateLimit(input); got != want {
			t.Errorf("ValidateLimit(%d) = %d, want %d", input, got, want)
		}
	}

	if got := ValidateOffset(-5); got != 0 {
		t.Errorf("ValidateOffset(-5) = %d, want 0", got)
	}
	if got := ValidateOffset(40); got != 40 {
		t.Errorf("ValidateOffset(40) = %d, want 40", got)
	}
}

func TestValidateRequiredAndMaxLength(t *testing.T) {
	if err := ValidateRequired("title", " "); err == nil {
		t.Error("ValidateRequired should reject blank values")
	}
	if err := ValidateRequired("title", "Dune"); err != nil {
		t.Errorf("ValidateRequired returned unexpected error: %v", err)
	}
	if err := ValidateMaxLength("memo", strings.Repeat("m", 11), 10); err == nil {
		t.Error("ValidateMaxLength should reject long values")
	}
}

func TestGeneratedIDs(t *testing.T) {
	prefixed := map[string]string{
		"ORDER-":   GenerateOrderID(),
		"ATTEMPT-": GenerateAttemptID(),
		"AUDIT-":   GenerateAuditID(),
	}
	for prefix, id := range prefixed {
		if !strings.HasPrefix(id, prefix) {
			t.Errorf("ID %q does not start with %q", id, prefix)
		}
		if !IsValidUUID(strings.TrimPrefix(id, prefix)) {
			t.Errorf("ID %q does not carry a UUID", id)
		}
	}

	if GenerateID() == GenerateID() {
		t.Error("GenerateID returned duplicate IDs")
	}
}
