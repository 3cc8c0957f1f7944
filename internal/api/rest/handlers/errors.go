package handlers

import (
	"errors"
	"net/http"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/req"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/res"
	"github.com/gin-gonic/gin"
)

// writeError переводит ошибку сервиса в HTTP ответ
func writeError(c *gin.Context, log *logger.Logger, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "path", c.FullPath(), "error", err)
	} else {
		log.Debugw("Request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	_ = c.Error(err)
	res.JsonErrorResponse(c, body, status)
}

func errorResponse(err error) (int, res.ErrorResponse) {
	var (
		validationErr *domain.ValidationError
		gatewayErr    *domain.PaymentGatewayError
		creditsErr    *domain.InsufficientCreditsError
		exclusiveErr  *domain.ExclusivityViolation
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, res.ErrorResponse{
			Error:     validationErr.Message,
			ErrorCode: "validation_error",
			Details:   map[string]string{validationErr.Field: validationErr.Message},
		}
	case req.FieldErrors(err) != nil:
		return http.StatusBadRequest, res.ErrorResponse{
			Error:     "Invalid request",
			ErrorCode: "validation_error",
			Details:   req.FieldErrors(err),
		}
	case errors.Is(err, domain.ErrReconciliationConflict):
		return http.StatusConflict, res.ErrorResponse{
			Error:     "Purchase conflicts with the current state of the release",
			ErrorCode: "reconciliation_conflict",
			Retryable: !domain.IsPermanentConflict(err),
		}
	case errors.As(err, &exclusiveErr):
		return http.StatusConflict, res.ErrorResponse{
			Error:     exclusiveErr.Error(),
			ErrorCode: "exclusivity_violation",
			Details:   map[string]any{"solo": exclusiveErr.Solo, "others": exclusiveErr.Others},
		}
	case errors.As(err, &creditsErr):
		return http.StatusPaymentRequired, res.ErrorResponse{
			Error:     creditsErr.Error(),
			ErrorCode: "insufficient_credits",
		}
	case errors.As(err, &gatewayErr):
		return http.StatusBadGateway, res.ErrorResponse{
			Error:     "Payment provider error",
			ErrorCode: "payment_gateway_error",
			Retryable: gatewayErr.Retryable,
			Details:   map[string]string{"code": gatewayErr.Code},
		}
	case errors.Is(err, domain.ErrIntentNotSucceeded):
		return http.StatusConflict, res.ErrorResponse{
			Error:     "Payment has not succeeded yet",
			ErrorCode: "payment_not_succeeded",
			Retryable: true,
		}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, res.ErrorResponse{
			Error:     err.Error(),
			ErrorCode: "invalid_transition",
		}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, res.ErrorResponse{
			Error:     "Not found",
			ErrorCode: "not_found",
		}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, res.ErrorResponse{
			Error:     err.Error(),
			ErrorCode: "invalid_input",
		}
	default:
		return http.StatusInternalServerError, res.ErrorResponse{
			Error:     "Internal server error",
			ErrorCode: "internal_error",
		}
	}
}
