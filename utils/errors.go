package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Виды доменных ошибок. Используются как цели для errors.Is.
var (
	ErrNotFound                    = errors.New("not found")
	ErrForbidden                   = errors.New("forbidden")
	ErrInvalidStatusTransition     = errors.New("invalid status transition")
	ErrValidation                  = errors.New("validation error")
	ErrAlreadySettled              = errors.New("debt already settled")
	ErrAlreadyCancelled            = errors.New("debt already cancelled")
	ErrProvider                    = errors.New("payment provider error")
	ErrSignatureVerificationFailed = errors.New("signature verification failed")
)

// AppError представляет доменную ошибку с HTTP-кодом
type AppError struct {
	Code    int    `json:"code"`
	Kind    error  `json:"-"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Unwrap позволяет сравнивать ошибку с видом через errors.Is
func (e *AppError) Unwrap() error {
	return e.Kind
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{Code: http.StatusNotFound, Kind: ErrNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Code: http.StatusForbidden, Kind: ErrForbidden, Message: message}
}

func NewInvalidTransitionError(from, to string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Kind:    ErrInvalidStatusTransition,
		Message: fmt.Sprintf("cannot transition debt from %s to %s", from, to),
	}
}

// NewConflictError описывает операцию, запрещенную текущим статусом долга
func NewConflictError(message string) *AppError {
	return &AppError{Code: http.StatusConflict, Kind: ErrInvalidStatusTransition, Message: message}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: ErrValidation, Message: message}
}

func NewAlreadySettledError() *AppError {
	return &AppError{Code: http.StatusConflict, Kind: ErrAlreadySettled, Message: "debt is already settled"}
}

func NewAlreadyCancelledError() *AppError {
	return &AppError{Code: http.StatusConflict, Kind: ErrAlreadyCancelled, Message: "debt is cancelled"}
}

func NewProviderError(provider string, err error) *AppError {
	appErr := &AppError{Code: http.StatusBadGateway, Kind: ErrProvider, Message: fmt.Sprintf("%s payment initialization failed", provider)}
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

func NewSignatureError(provider string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: ErrSignatureVerificationFailed, Message: fmt.Sprintf("invalid %s webhook signature", provider)}
}

// StatusCode возвращает HTTP-код для ошибки
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

func errorBody(err error) map[string]string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return map[string]string{"error": appErr.Error()}
	}
	return map[string]string{"error": "Internal server error"}
}

// WriteError пишет JSON-ответ с ошибкой для net/http обработчиков
func WriteError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		LogError("request failed: %v", err)
	}
	WriteJSON(w, code, errorBody(err))
}

// WriteJSON пишет JSON-ответ
func WriteJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// HandleError отправляет ответ с ошибкой из gin-обработчика
func HandleError(c *gin.Context, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, errorBody(err))
}
