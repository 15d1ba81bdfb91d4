package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
)

type PaymentStatus string

const (
	PaymentSuccess  PaymentStatus = "Success"
	PaymentRefunded PaymentStatus = "Refunded"
)

type PaymentMethod string

const (
	MethodTransfer   PaymentMethod = "Transfer"
	MethodCreditCard PaymentMethod = "CreditCard"
	MethodCash       PaymentMethod = "Cash"
	MethodEWallet    PaymentMethod = "EWallet"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case MethodTransfer, MethodCreditCard, MethodCash, MethodEWallet:
		return m, nil
	}
	return "", apperrors.Validation("models.ParsePaymentMethod", "unsupported payment method %q", s)
}

type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID             int64           `bun:"id,pk,autoincrement" json:"id"`
	BookingID      int64           `bun:"booking_id,notnull,unique" json:"booking_id"`
	Amount         decimal.Decimal `bun:"amount,type:numeric(10,2),notnull" json:"amount"`
	Method         PaymentMethod   `bun:"method,notnull,type:varchar(32)" json:"method"`
	TransactionRef string          `bun:"transaction_ref,notnull" json:"transaction_ref"`
	Status         PaymentStatus   `bun:"status,notnull,type:varchar(16)" json:"status"`
	PaidAt         time.Time       `bun:"paid_at,notnull,default:current_timestamp" json:"paid_at"`
	RefundedAt     time.Time       `bun:"refunded_at,nullzero" json:"refunded_at,omitempty"`
}
