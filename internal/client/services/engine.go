// Package services wires the synchronization engine together and owns its
// session lifecycle: cold start from the on-disk cache, full fetch when the
// cache cannot be trusted, snapshot persistence at session boundaries, and
// the long-poll subscription.
package services

import (
	"github.com/dpetrovs/finsync/internal/client/cache"
	"github.com/dpetrovs/finsync/internal/client/edit"
	"github.com/dpetrovs/finsync/internal/client/graph"
	"github.com/dpetrovs/finsync/internal/client/models"
	"github.com/dpetrovs/finsync/internal/client/repositories/meta"
	clientsync "github.com/dpetrovs/finsync/internal/client/sync"
	"github.com/dpetrovs/finsync/internal/client/transport"
	"github.com/dpetrovs/finsync/internal/logging"
)

// Engine bundles the entity graph, the per-collection edit controllers, the
// reconciler and the subscriber behind one constructed unit. All collaborators
// are injected; nothing here is process-global.
type Engine struct {
	Graph *graph.Graph

	Transactions    *edit.Controller[*models.Transaction]
	Categories      *edit.Controller[*models.Category]
	PaymentMethods  *edit.Controller[*models.PaymentMethod]
	Locations       *edit.Controller[*models.Location]
	StartingAmounts *edit.Controller[*models.StartingAmount]
	Budgets         *edit.Controller[*models.Budget]

	Reconciler *clientsync.Reconciler
	Subscriber *clientsync.Subscriber
}

// NewEngine builds the graph, controllers and reconciler bindings, so every
// collection's delta stream respects that collection's open edits.
func NewEngine(rpc transport.Caller, marks *meta.Store, device clientsync.DeviceInfo, log logging.Logger) *Engine {
	g := graph.New()

	e := &Engine{
		Graph:           g,
		Transactions:    edit.NewController(g.Transactions, rpc, log),
		Categories:      edit.NewController(g.Categories, rpc, log),
		PaymentMethods:  edit.NewController(g.PaymentMethods, rpc, log),
		Locations:       edit.NewController(g.Locations, rpc, log),
		StartingAmounts: edit.NewController(g.StartingAmounts, rpc, log),
		Budgets:         edit.NewController(g.Budgets, rpc, log),
	}

	rec := clientsync.NewReconciler(marks, log)
	clientsync.Bind(rec, g.Transactions, e.Transactions.Editing)
	clientsync.Bind(rec, g.Categories, e.Categories.Editing)
	clientsync.Bind(rec, g.PaymentMethods, e.PaymentMethods.Editing)
	clientsync.Bind(rec, g.Locations, e.Locations.Editing)
	clientsync.Bind(rec, g.StartingAmounts, e.StartingAmounts.Editing)
	clientsync.Bind(rec, g.Budgets, e.Budgets.Editing)

	e.Reconciler = rec
	e.Subscriber = clientsync.NewSubscriber(rpc, rec, marks, device, log)

	return e
}

// forEachCollection visits every collection with its snapshot/replace
// plumbing erased to a common shape, for cache traffic.
func (e *Engine) forEachCollection(fn func(c collectionIO) error) error {
	ios := []collectionIO{
		collectionAdapter[*models.Transaction]{e.Graph.Transactions},
		collectionAdapter[*models.Category]{e.Graph.Categories},
		collectionAdapter[*models.PaymentMethod]{e.Graph.PaymentMethods},
		collectionAdapter[*models.Location]{e.Graph.Locations},
		collectionAdapter[*models.StartingAmount]{e.Graph.StartingAmounts},
		collectionAdapter[*models.Budget]{e.Graph.Budgets},
	}
	for _, c := range ios {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// collectionIO erases the element type of a collection for cache save/load.
type collectionIO interface {
	name() string
	save(s *cache.Store) error
	load(s *cache.Store) error
	clear()
}

type collectionAdapter[T models.Record[T]] struct {
	col *graph.Collection[T]
}

func (a collectionAdapter[T]) name() string {
	return string(a.col.Name())
}

func (a collectionAdapter[T]) save(s *cache.Store) error {
	return cache.SaveMany(s, a.name(), a.col.Snapshot())
}

func (a collectionAdapter[T]) load(s *cache.Store) error {
	entities, err := cache.LoadMany[T](s, a.name())
	if err != nil {
		return err
	}
	a.col.Replace(entities)
	return nil
}

func (a collectionAdapter[T]) clear() {
	a.col.Replace(nil)
}
