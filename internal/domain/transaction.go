package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Transaction is one debit row from a bank statement export, after the
// statement reader has dropped rows with bad dates or non-positive amounts.
// Values are immutable once built.
type Transaction struct {
	Date           civil.Date      // calendar date of the debit
	RawDescription string          // merchant text exactly as exported
	Amount         decimal.Decimal // debit amount, always > 0
}

// AmountFloat returns the amount as float64 for statistics.
func (t Transaction) AmountFloat() float64 {
	f, _ := t.Amount.Float64()
	return f
}

// Valid reports whether the transaction can enter the detection pipeline.
func (t Transaction) Valid() bool {
	return t.Date.IsValid() && t.Amount.IsPositive()
}
