package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DecisionType is the kind of consent the customer granted at the Consent Broker
type DecisionType string

const (
	DecisionDenied        DecisionType = "denied"
	DecisionOneTimeAllow  DecisionType = "one-time-allow"
	DecisionExtendedAllow DecisionType = "extended-allow"
)

// ParseDecisionType maps a broker consent type onto a DecisionType.
// Unknown values map to DecisionDenied.
func ParseDecisionType(consentType string) DecisionType {
	switch strings.ToLower(strings.TrimSpace(consentType)) {
	case "always", "extended", "extended-allow", "extended_allow":
		return DecisionExtendedAllow
	case "once", "one_time", "one-time", "onetime", "one-time-allow":
		return DecisionOneTimeAllow
	default:
		return DecisionDenied
	}
}

// ConsentDecision is the storefront's copy of a decision owned by the Consent Broker
type ConsentDecision struct {
	DecisionType DecisionType `json:"decisionType"`
	GrantedAt    time.Time    `json:"grantedAt"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty"`
	Active       bool         `json:"active"`
}

// Permits reports whether the decision still authorizes a checkout at now.
// Inactive, denied, and expired decisions are all equivalent to no consent.
func (d *ConsentDecision) Permits(now time.Time) bool {
	if d == nil || !d.Active {
		return false
	}
	switch d.DecisionType {
	case DecisionOneTimeAllow:
		return true
	case DecisionExtendedAllow:
		return d.ExpiresAt != nil && now.Before(*d.ExpiresAt)
	default:
		return false
	}
}

// IsDenied reports whether the customer explicitly declined
func (d *ConsentDecision) IsDenied() bool {
	return d != nil && d.DecisionType == DecisionDenied
}

// Consent Broker status values
const (
	BrokerStatusConnected   = "connected"
	BrokerStatusNeedConnect = "need_connect"
)

// ConsentStatusRequest is the body of POST /consent-status
type ConsentStatusRequest struct {
	SubjectID string `json:"subjectId"`
	TenantID  string `json:"tenantId"`
}

// ConsentStatusResponse is the Consent Broker answer for POST /consent-status
type ConsentStatusResponse struct {
	Status      string     `json:"status"`
	ConsentType string     `json:"consentType,omitempty"`
	ExpiresAt   *Timestamp `json:"expiresAt,omitempty"`
	IsActive    *bool      `json:"isActive,omitempty"`
}

// ToDecision converts a connected status into a ConsentDecision.
// Returns nil when the broker reports no connection.
func (r *ConsentStatusResponse) ToDecision(now time.Time) *ConsentDecision {
	if r == nil || r.Status != BrokerStatusConnected {
		return nil
	}
	decision := &ConsentDecision{
		DecisionType: ParseDecisionType(r.ConsentType),
		GrantedAt:    now,
		Active:       r.IsActive == nil || *r.IsActive,
	}
	if r.ExpiresAt != nil && decision.DecisionType == DecisionExtendedAllow {
		expiresAt := r.ExpiresAt.Time()
		decision.ExpiresAt = &expiresAt
	}
	return decision
}

// BrokerErrorResponse is the body of a non-2xx Consent Broker response
type BrokerErrorResponse struct {
	Error string `json:"error"`
}

// Timestamp accepts RFC 3339 strings and epoch numbers in seconds or
// milliseconds.
type Timestamp time.Time

// epoch values above this are milliseconds
const timestampCutoff = 100000000000

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*t = Timestamp(epochToTime(n))
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		*t = Timestamp(parsed)
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", string(data), err)
	}
	*t = Timestamp(epochToTime(int64(n)))
	return nil
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339))
}

// Time returns the underlying time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

func epochToTime(n int64) time.Time {
	if n < timestampCutoff {
		return time.Unix(n, 0)
	}
	return time.UnixMilli(n)
}
