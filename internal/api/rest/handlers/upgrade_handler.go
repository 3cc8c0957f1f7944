package handlers

import (
	"net/http"

	"github.com/giantcranberry/Newsworthy-sub000/internal/api/rest/middleware"
	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/internal/service"
	"github.com/giantcranberry/Newsworthy-sub000/internal/session"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/req"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/res"
	"github.com/gin-gonic/gin"
)

// SessionHeader заголовок с ID сессии корзины
const SessionHeader = "X-Session-ID"

const defaultSessionID = "default"

// Действия оформления
const (
	ActionCreatePaymentIntent = "create_payment_intent"
	ActionSkip                = "skip"
	ActionConfirm             = "confirm"
	ActionCancel              = "cancel"
)

type toggleRequest struct {
	ProductType domain.ProductType `json:"productType" validate:"required"`
}

type checkoutRequest struct {
	Action          string               `json:"action" validate:"required,oneof=create_payment_intent skip confirm cancel"`
	ProductTypes    []domain.ProductType `json:"productTypes"`
	PaymentIntentID string               `json:"paymentIntentId"`
}

type createIntentResponse struct {
	ClientSecret    string `json:"clientSecret,omitempty"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	Amount          int64  `json:"amount,omitempty"`
	Currency        string `json:"currency,omitempty"`

	AppliedImmediately bool   `json:"appliedImmediately,omitempty"`
	Distribution       string `json:"distribution,omitempty"`
}

// UpgradeHandler обработчик шага апгрейдов релиза
type UpgradeHandler struct {
	service service.UpgradeService
	log     *logger.Logger
}

// NewUpgradeHandler создает новый обработчик апгрейдов
func NewUpgradeHandler(svc service.UpgradeService, log *logger.Logger) *UpgradeHandler {
	return &UpgradeHandler{
		service: svc,
		log:     log,
	}
}

func (h *UpgradeHandler) sessionKey(c *gin.Context) (session.Key, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		res.JsonErrorResponse(c, res.ErrorResponse{Error: "Unauthorized", ErrorCode: "unauthorized"}, http.StatusUnauthorized)
		return session.Key{}, false
	}
	sessionID := c.GetHeader(SessionHeader)
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	return session.Key{UserID: userID, ReleaseID: c.Param("releaseID"), SessionID: sessionID}, true
}

// ListProducts возвращает каталог, баланс кредитов и корзину
func (h *UpgradeHandler) ListProducts(c *gin.Context) {
	key, ok := h.sessionKey(c)
	if !ok {
		return
	}
	view, err := h.service.ListProducts(c.Request.Context(), key)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	res.JsonResponse(c, view, http.StatusOK)
}

// GetCart возвращает корзину
func (h *UpgradeHandler) GetCart(c *gin.Context) {
	key, ok := h.sessionKey(c)
	if !ok {
		return
	}
	view, err := h.service.GetCart(c.Request.Context(), key)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	res.JsonResponse(c, view, http.StatusOK)
}

// Toggle переключает апгрейд в корзине
func (h *UpgradeHandler) Toggle(c *gin.Context) {
	key, ok := h.sessionKey(c)
	if !ok {
		return
	}
	body, err := req.DecodeValid[toggleRequest](c.Request.Body)
	if err != nil {
		writeError(c, h.log, badRequest(err))
		return
	}
	view, err := h.service.Toggle(c.Request.Context(), key, body.ProductType)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	res.JsonResponse(c, view, http.StatusOK)
}

// RemoveFromCart убирает апгрейд из корзины
func (h *UpgradeHandler) RemoveFromCart(c *gin.Context) {
	key, ok := h.sessionKey(c)
	if !ok {
		return
	}
	view, err := h.service.RemoveFromCart(c.Request.Context(), key, domain.ProductType(c.Param("productType")))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	res.JsonResponse(c, view, http.StatusOK)
}

// Checkout оформление: создание намерения, пропуск, подтверждение или отмена
func (h *UpgradeHandler) Checkout(c *gin.Context) {
	key, ok := h.sessionKey(c)
	if !ok {
		return
	}
	body, err := req.DecodeValid[checkoutRequest](c.Request.Body)
	if err != nil {
		writeError(c, h.log, badRequest(err))
		return
	}
	ctx := c.Request.Context()

	switch body.Action {
	case ActionCreatePaymentIntent:
		result, err := h.service.Checkout(ctx, key, body.ProductTypes)
		if err != nil {
			writeError(c, h.log, err)
			return
		}
		if result.AppliedImmediately {
			res.JsonResponse(c, createIntentResponse{AppliedImmediately: true, Distribution: result.Distribution}, http.StatusOK)
			return
		}
		res.JsonResponse(c, createIntentResponse{
			ClientSecret:    result.Intent.ClientSecret,
			PaymentIntentID: result.Intent.GatewayIntentID,
			Amount:          result.Intent.Amount,
			Currency:        result.Intent.Currency,
		}, http.StatusOK)

	case ActionSkip:
		written, err := h.service.Skip(ctx, key)
		if err != nil {
			writeError(c, h.log, err)
			return
		}
		res.JsonResponse(c, gin.H{"skipped": true, "changed": written}, http.StatusOK)

	case ActionConfirm:
		result, err := h.service.Confirm(ctx, key, body.PaymentIntentID)
		if err != nil {
			writeError(c, h.log, err)
			return
		}
		res.JsonResponse(c, result, http.StatusOK)

	case ActionCancel:
		intent, err := h.service.Cancel(ctx, key, body.PaymentIntentID)
		if err != nil {
			writeError(c, h.log, err)
			return
		}
		res.JsonResponse(c, gin.H{"paymentIntentId": intent.GatewayID, "status": intent.Status}, http.StatusOK)
	}
}

// badRequest оставляет ошибки валидатора как есть, ошибки разбора JSON превращает в ValidationError
func badRequest(err error) error {
	if req.FieldErrors(err) != nil {
		return err
	}
	return domain.NewValidationError("body", err.Error())
}
