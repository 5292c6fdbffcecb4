package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/negotiator"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
	"github.com/wso2/bookstore-consent-api/internal/utils"
	pkgutils "github.com/wso2/bookstore-consent-api/pkg/utils"
)

// NegotiationHandler bridges a browser shim to the Consent Session
// Negotiator over a websocket. The shim owns the real popup window; the
// server owns the session and the authorization token.
type NegotiationHandler struct {
	negotiator *negotiator.Negotiator
	checkout   CheckoutAPI
	upgrader   websocket.Upgrader
	logger     *logrus.Logger
}

// NewNegotiationHandler creates a negotiation handler. Websocket upgrades are
// accepted from allowedOrigins only; with none configured the request must be
// same-origin.
func NewNegotiationHandler(n *negotiator.Negotiator, checkout CheckoutAPI, allowedOrigins []string, logger *logrus.Logger) *NegotiationHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]struct{}, len(allowedOrigins))
		for _, origin := range allowedOrigins {
			allowed[origin] = struct{}{}
		}
		upgrader.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}

	return &NegotiationHandler{
		negotiator: n,
		checkout:   checkout,
		upgrader:   upgrader,
		logger:     logger,
	}
}

// Negotiate handles GET /consent/negotiations?subjectId=&tenantId=&path=
func (h *NegotiationHandler) Negotiate(c *gin.Context) {
	userID := utils.GetUserIDFromContext(c)
	tenantID := c.Query("tenantId")
	path := c.DefaultQuery("path", negotiator.PathConsent)

	subjectID, err := utils.ResolveSubject(c, c.Query("subjectId"))
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}
	if err := pkgutils.ValidateSubjectID(subjectID); err != nil {
		utils.SendValidationError(c, err.Error())
		return
	}
	if path != negotiator.PathConsent && path != negotiator.PathPreview {
		utils.SendValidationError(c, "path must be consent or preview")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Negotiation websocket upgrade failed")
		return
	}

	ctx := c.Request.Context()
	bridge := negotiator.NewBridge(conn, h.logger)
	defer bridge.Shutdown()

	logger := h.logger.WithFields(logrus.Fields{
		"correlationId": utils.GetCorrelationIDFromContext(c),
		"userId":        userID,
		"subjectId":     subjectID,
		"path":          path,
	})

	session, err := h.negotiator.Start(ctx, bridge, negotiator.Request{
		SubjectID: subjectID,
		TenantID:  tenantID,
		Path:      path,
		Callback: func(result negotiator.Result) {
			if path == negotiator.PathConsent {
				if _, err := h.checkout.RecordDecision(ctx, userID, subjectID, tenantID, result); err != nil {
					logger.WithError(err).Error("Failed to record consent decision")
				}
			}
			if err := bridge.SendResult(result); err != nil {
				logger.WithError(err).Debug("Failed to send negotiation result")
			}
		},
	})
	if err != nil {
		sendNotice(bridge, err, logger)
		return
	}

	state, _ := session.Wait(ctx)
	if state == negotiator.StateExpired {
		sendNotice(bridge, serviceerror.ErrTokenExpired, logger)
	}
	logger.WithField("state", state).Info("Negotiation websocket closed")
}

func sendNotice(bridge *negotiator.Bridge, err error, logger *logrus.Entry) {
	desc := serviceerror.Describe(err)
	if sendErr := bridge.SendNotice(desc.Error, desc.ErrorDescription); sendErr != nil {
		logger.WithError(sendErr).Debug("Failed to send negotiation notice")
	}
}
