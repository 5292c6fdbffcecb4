package negotiator

import (
	"encoding/json"
	"strings"

	"github.com/wso2/bookstore-consent-api/internal/models"
)

// Message types exchanged with the presentation surface
const (
	MessageTypeReady           = "ready"
	MessageTypeInitConsent     = "init_consent"
	MessageTypeInitPreview     = "init_preview"
	MessageTypeConsentResult   = "consent_result"
	MessageTypeConsentRejected = "consent_rejected"
	MessageTypeClosePopup      = "close_popup"
)

// InitMessage carries the authorization token to the surface
type InitMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// surfaceMessage is the union of every inbound message shape
type surfaceMessage struct {
	Type        string `json:"type"`
	Agreed      *bool  `json:"agreed,omitempty"`
	IsActive    *bool  `json:"isActive,omitempty"`
	ConsentType string `json:"consentType,omitempty"`
	Token       string `json:"token,omitempty"`
}

type messageKind int

const (
	kindIgnored messageKind = iota
	kindReady
	kindDecision
	kindClose
)

// classify parses an inbound payload. Decisions also return the Result.
func classify(data json.RawMessage) (messageKind, Result) {
	var msg surfaceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return kindIgnored, Result{}
	}

	switch strings.TrimSpace(msg.Type) {
	case MessageTypeReady:
		return kindReady, Result{}
	case MessageTypeClosePopup:
		return kindClose, Result{}
	case MessageTypeConsentRejected:
		return kindDecision, Result{Agreed: false, ConsentType: msg.ConsentType}
	case MessageTypeConsentResult:
		return kindDecision, msg.result()
	case "":
		// untyped status message: {isActive, consentType, token}
		if msg.IsActive != nil || msg.ConsentType != "" {
			return kindDecision, msg.result()
		}
	}
	return kindIgnored, Result{}
}

func (m *surfaceMessage) result() Result {
	agreed := models.ParseDecisionType(m.ConsentType) != models.DecisionDenied
	if m.Agreed != nil {
		agreed = *m.Agreed
	}
	if m.IsActive != nil && !*m.IsActive {
		agreed = false
	}
	result := Result{Agreed: agreed, ConsentType: m.ConsentType}
	if agreed {
		result.EmbeddedToken = m.Token
	}
	return result
}
