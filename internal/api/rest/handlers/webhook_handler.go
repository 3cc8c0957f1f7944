package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/giantcranberry/Newsworthy-sub000/internal/gateway"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/res"
	"github.com/gin-gonic/gin"
)

// maxWebhookBodyBytes ограничение размера тела вебхука Stripe
const maxWebhookBodyBytes = 65536

// NotificationHandler получатель сигналов шлюза
type NotificationHandler interface {
	HandleGatewayNotification(ctx context.Context, n gateway.Notification) error
}

// WebhookHandler обработчик для вебхуков
type WebhookHandler struct {
	notifications NotificationHandler
	secret        string
	log           *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(notifications NotificationHandler, secret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		notifications: notifications,
		secret:        secret,
		log:           log,
	}
}

// HandleStripeWebhook проверяет подпись и передает событие платежного намерения оркестратору
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Warnw("Failed to read webhook body", "error", err)
		res.JsonErrorResponse(c, res.ErrorResponse{Error: "Failed to read webhook body", ErrorCode: "invalid_body"}, http.StatusRequestEntityTooLarge)
		return
	}

	notification, ok, err := gateway.ParseStripeWebhook(payload, c.GetHeader("Stripe-Signature"), h.secret)
	if err != nil {
		h.log.Warnw("Failed to verify webhook", "error", err)
		res.JsonErrorResponse(c, res.ErrorResponse{Error: "Failed to verify webhook signature", ErrorCode: "invalid_signature"}, http.StatusBadRequest)
		return
	}
	if !ok {
		h.log.Debugw("Ignoring webhook event", "eventID", notification.EventID)
		res.JsonResponse(c, gin.H{"received": true}, http.StatusOK)
		return
	}

	if err := h.notifications.HandleGatewayNotification(c.Request.Context(), notification); err != nil {
		// не 2xx: Stripe повторит доставку
		res.JsonErrorResponse(c, res.ErrorResponse{Error: "Failed to process webhook", ErrorCode: "processing_failed", Retryable: true}, http.StatusInternalServerError)
		return
	}
	res.JsonResponse(c, gin.H{"received": true}, http.StatusOK)
}
