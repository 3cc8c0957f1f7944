package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"validation", domain.NewValidationError("productTypes", "selection is empty"), http.StatusBadRequest, "validation_error", false},
		{"exclusivity", &domain.ExclusivityViolation{Solo: domain.ProductExclusive, Others: []domain.ProductType{domain.ProductYahoo}}, http.StatusConflict, "exclusivity_violation", false},
		{"insufficient credits", &domain.InsufficientCreditsError{ProductType: domain.ProductYahoo, Requested: 1}, http.StatusPaymentRequired, "insufficient_credits", false},
		{"gateway retryable", domain.NewPaymentGatewayError("CreateIntent", "rate_limit", "slow down", true, nil), http.StatusBadGateway, "payment_gateway_error", true},
		{"concurrent write conflict", &domain.ReconciliationConflict{ReleaseID: "r1", Reason: "changed"}, http.StatusConflict, "reconciliation_conflict", true},
		{"exclusivity conflict", &domain.ReconciliationConflict{ReleaseID: "r1", Reason: "merge", Cause: &domain.ExclusivityViolation{Solo: domain.ProductExclusive}}, http.StatusConflict, "reconciliation_conflict", false},
		{"already purchased conflict", &domain.ReconciliationConflict{ReleaseID: "r1", Reason: "owned", Cause: domain.ErrAlreadyPurchased}, http.StatusConflict, "reconciliation_conflict", false},
		{"not found wrapped", fmt.Errorf("load: %w", domain.NewNotFoundError("release", "r1")), http.StatusNotFound, "not_found", false},
		{"invalid transition", fmt.Errorf("%w: succeeded -> canceled", domain.ErrInvalidTransition), http.StatusConflict, "invalid_transition", false},
		{"not succeeded", domain.ErrIntentNotSucceeded, http.StatusConflict, "payment_not_succeeded", true},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error", false},
		{"canceled context", context.Canceled, http.StatusInternalServerError, "internal_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.ErrorCode)
			assert.Equal(t, tt.retryable, body.Retryable)
		})
	}
}
