package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrExclusivity нарушено правило взаимоисключения solo-апгрейдов
	ErrExclusivity = errors.New("exclusivity violation")

	// ErrInsufficientCredits недостаточно кредитов
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrPaymentGateway ошибка платежного шлюза
	ErrPaymentGateway = errors.New("payment gateway error")

	// ErrReconciliationConflict конфликт при записи distribution
	ErrReconciliationConflict = errors.New("reconciliation conflict")

	// ErrAlreadyPurchased тип уже есть в distribution релиза
	ErrAlreadyPurchased = errors.New("product already purchased")

	// ErrIdempotencyNoop повторное подтверждение уже примененного платежа
	ErrIdempotencyNoop = errors.New("purchase already reconciled")

	// ErrInvalidTransition недопустимый переход статуса
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrIntentNotSucceeded шлюз еще не подтвердил оплату
	ErrIntentNotSucceeded = errors.New("payment intent has not succeeded")
)

// ValidationError представляет ошибку валидации запроса (пустой выбор, неизвестный продукт)
type ValidationError struct {
	Field   string
	Message string
}

// Error реализует интерфейс error
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
}

// Is позволяет сравнивать с ErrInvalidInput
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError создает новую ошибку валидации
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ExclusivityViolation возникает, когда solo-апгрейд оказался бы рядом с любым другим
type ExclusivityViolation struct {
	Solo   ProductType
	Others []ProductType
}

// Error реализует интерфейс error
func (e *ExclusivityViolation) Error() string {
	others := make([]string, len(e.Others))
	for i, o := range e.Others {
		others[i] = string(o)
	}
	return fmt.Sprintf("exclusivity violation: solo upgrade %q cannot be combined with [%s]", e.Solo, strings.Join(others, ","))
}

// Is позволяет сравнивать с ErrExclusivity
func (e *ExclusivityViolation) Is(target error) bool {
	return target == ErrExclusivity
}

// InsufficientCreditsError недостаточно кредитов для списания
type InsufficientCreditsError struct {
	ProductType ProductType
	Requested   int64
	Available   int64
}

// Error реализует интерфейс error
func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for %s: requested %d, available %d", e.ProductType, e.Requested, e.Available)
}

// Is позволяет сравнивать с ErrInsufficientCredits
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// PaymentGatewayError представляет ошибку внешнего платежного шлюза
type PaymentGatewayError struct {
	Operation   string
	Code        string
	Message     string
	Retryable   bool
	OriginalErr error
}

// Error реализует интерфейс error
func (e *PaymentGatewayError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("payment gateway error [%s] %s: %s: %v", e.Code, e.Operation, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("payment gateway error [%s] %s: %s", e.Code, e.Operation, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *PaymentGatewayError) Unwrap() error {
	return e.OriginalErr
}

// Is позволяет сравнивать с ErrPaymentGateway
func (e *PaymentGatewayError) Is(target error) bool {
	return target == ErrPaymentGateway
}

// NewPaymentGatewayError создает новую ошибку шлюза
func NewPaymentGatewayError(operation, code, message string, retryable bool, err error) *PaymentGatewayError {
	return &PaymentGatewayError{
		Operation:   operation,
		Code:        code,
		Message:     message,
		Retryable:   retryable,
		OriginalErr: err,
	}
}

// ReconciliationConflict конкурентная запись или нарушение инварианта при слиянии distribution
type ReconciliationConflict struct {
	ReleaseID string
	Reason    string
	Cause     error
}

// Error реализует интерфейс error
func (e *ReconciliationConflict) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("reconciliation conflict for release %s: %s: %v", e.ReleaseID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("reconciliation conflict for release %s: %s", e.ReleaseID, e.Reason)
}

// Unwrap возвращает причину конфликта
func (e *ReconciliationConflict) Unwrap() error {
	return e.Cause
}

// Is позволяет сравнивать с ErrReconciliationConflict
func (e *ReconciliationConflict) Is(target error) bool {
	return target == ErrReconciliationConflict
}

// Permanent сообщает, что повтор не поможет: слияние нарушает взаимоисключение
// или покупаемые типы уже куплены
func (e *ReconciliationConflict) Permanent() bool {
	return errors.Is(e.Cause, ErrExclusivity) || errors.Is(e.Cause, ErrAlreadyPurchased)
}

// IsPermanentConflict проверяет, что err содержит неустранимый ReconciliationConflict
func IsPermanentConflict(err error) bool {
	var conflict *ReconciliationConflict
	return errors.As(err, &conflict) && conflict.Permanent()
}

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}
