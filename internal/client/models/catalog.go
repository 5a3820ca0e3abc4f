package models

import "github.com/shopspring/decimal"

// Category groups transactions for budgeting and reporting.
type Category struct {
	Meta
	Title     string `json:"title"`
	Icon      string `json:"icon,omitempty"`
	SortOrder int    `json:"sort_order"`
}

func NewCategory() *Category {
	return &Category{Meta: NewMeta()}
}

func (c *Category) Clone() *Category {
	cp := *c
	return &cp
}

func (c *Category) RestoreFrom(s *Category) {
	*c = *s
}

// PaymentMethodKind classifies how a payment method settles.
type PaymentMethodKind string

const (
	PaymentMethodCash    PaymentMethodKind = "cash"
	PaymentMethodCard    PaymentMethodKind = "card"
	PaymentMethodAccount PaymentMethodKind = "account"
)

// PaymentMethod is a way of paying: cash, a card, a bank account.
type PaymentMethod struct {
	Meta
	Title     string            `json:"title"`
	Kind      PaymentMethodKind `json:"kind"`
	SortOrder int               `json:"sort_order"`
}

func NewPaymentMethod() *PaymentMethod {
	return &PaymentMethod{Meta: NewMeta()}
}

func (p *PaymentMethod) Clone() *PaymentMethod {
	cp := *p
	return &cp
}

func (p *PaymentMethod) RestoreFrom(s *PaymentMethod) {
	*p = *s
}

// Location is a place a transaction happened.
type Location struct {
	Meta
	Title     string  `json:"title"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

func NewLocation() *Location {
	return &Location{Meta: NewMeta()}
}

func (l *Location) Clone() *Location {
	cp := *l
	return &cp
}

func (l *Location) RestoreFrom(s *Location) {
	*l = *s
}

// StartingAmount seeds the balance of a payment method on a given day.
type StartingAmount struct {
	Meta
	Amount          decimal.Decimal `json:"amount"`
	Date            string          `json:"date"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"`
}

func NewStartingAmount() *StartingAmount {
	return &StartingAmount{Meta: NewMeta()}
}

func (s *StartingAmount) Clone() *StartingAmount {
	cp := *s
	return &cp
}

func (s *StartingAmount) RestoreFrom(o *StartingAmount) {
	*s = *o
}

// Budget caps spending for a category within a month ("2006-01").
type Budget struct {
	Meta
	Amount     decimal.Decimal `json:"amount"`
	CategoryID string          `json:"category_id,omitempty"`
	Period     string          `json:"period"`
}

func NewBudget() *Budget {
	return &Budget{Meta: NewMeta()}
}

func (b *Budget) Clone() *Budget {
	cp := *b
	return &cp
}

func (b *Budget) RestoreFrom(s *Budget) {
	*b = *s
}
