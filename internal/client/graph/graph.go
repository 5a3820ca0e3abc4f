package graph

import "github.com/dpetrovs/finsync/internal/client/models"

// Graph is the set of owned collections, one per synchronized entity kind.
type Graph struct {
	Transactions    *Collection[*models.Transaction]
	Categories      *Collection[*models.Category]
	PaymentMethods  *Collection[*models.PaymentMethod]
	Locations       *Collection[*models.Location]
	StartingAmounts *Collection[*models.StartingAmount]
	Budgets         *Collection[*models.Budget]
}

func New() *Graph {
	return &Graph{
		Transactions:    NewCollection[*models.Transaction](models.KindTransaction),
		Categories:      NewCollection[*models.Category](models.KindCategory),
		PaymentMethods:  NewCollection[*models.PaymentMethod](models.KindPaymentMethod),
		Locations:       NewCollection[*models.Location](models.KindLocation),
		StartingAmounts: NewCollection[*models.StartingAmount](models.KindStartingAmount),
		Budgets:         NewCollection[*models.Budget](models.KindBudget),
	}
}
