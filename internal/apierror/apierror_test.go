package apierror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/blnkfinance/comanda/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	apiErr := apierror.NewAPIError(apierror.ErrNotFound, "order not found", "ord_123")

	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.Equal(t, "order not found", apiErr.Message)
	assert.Equal(t, "ord_123", apiErr.Details)
	assert.Equal(t, "NOT_FOUND: order not found", apiErr.Error())
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", apierror.NewAPIError(apierror.ErrNotFound, "missing", nil), http.StatusNotFound},
		{"conflict", apierror.NewAPIError(apierror.ErrConflict, "conflict", nil), http.StatusConflict},
		{"bad request", apierror.NewAPIError(apierror.ErrBadRequest, "bad", nil), http.StatusBadRequest},
		{"invalid input", apierror.NewAPIError(apierror.ErrInvalidInput, "invalid", nil), http.StatusBadRequest},
		{"unauthorized", apierror.NewAPIError(apierror.ErrUnauthorized, "token", nil), http.StatusUnauthorized},
		{"unprocessable", apierror.NewAPIError(apierror.ErrUnprocessable, "delivered", nil), http.StatusUnprocessableEntity},
		{"wrapped", fmt.Errorf("update: %w", apierror.NewAPIError(apierror.ErrNotFound, "missing", nil)), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apierror.MapErrorToHTTPStatus(tt.err))
		})
	}
}
