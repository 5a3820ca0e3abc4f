package models

import "github.com/shopspring/decimal"

// Transaction is a single income or expense record. Amount is always a
// decimal, never a float. Date is a civil day in "2006-01-02" form; the
// server does not interpret it as an instant.
type Transaction struct {
	Meta
	Amount          decimal.Decimal `json:"amount"`
	Title           string          `json:"title"`
	Note            string          `json:"note,omitempty"`
	Date            string          `json:"date"`
	CategoryID      string          `json:"category_id,omitempty"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"`
	LocationID      string          `json:"location_id,omitempty"`
	Expense         bool            `json:"expense"`
}

func NewTransaction() *Transaction {
	return &Transaction{Meta: NewMeta()}
}

func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}

func (t *Transaction) RestoreFrom(s *Transaction) {
	*t = *s
}
