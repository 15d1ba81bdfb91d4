package apperrors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsMatchSentinelsByKind(t *testing.T) {
	err := NotFound("ledger.GetByCode", "booking %s not found", "TKT-ABC123")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "ledger.GetByCode: booking TKT-ABC123 not found", err.Error())

	wrapped := fmt.Errorf("cancel: %w", err)
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestInternalKeepsCause(t *testing.T) {
	err := Internal("payments.Record", sql.ErrConnDone)

	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Equal(t, "internal server error", PublicMessage(err))
	assert.Nil(t, Internal("noop", nil))

	// already categorised errors pass through untouched
	inner := Validation("op", "bad quantity")
	assert.Same(t, inner, Internal("outer", inner))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[int]error{
		http.StatusOK:                  nil,
		http.StatusNotFound:            ErrNotFound,
		http.StatusConflict:            InsufficientInventory("op", "only %d seats left", 2),
		http.StatusPaymentRequired:     ErrInsufficientPayment,
		http.StatusBadRequest:          ErrValidation,
		http.StatusInternalServerError: errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, HTTPStatus(err), "error %v", err)
	}
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrDuplicateKey))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrInvalidState))
}
