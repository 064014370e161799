package order

import (
	"context"
	"fmt"

	"github.com/dinehall/datalayer/internal/api"
	"github.com/dinehall/datalayer/internal/syncbus"
	"github.com/dinehall/datalayer/pkg/logger"
)

// Service performs order operations against the record store. Every
// transition is validated locally against the lifecycle table before any
// network call; the server remains authoritative and may still reject.
type Service struct {
	client *api.Client
	bus    *syncbus.Bus
	log    *logger.Logger
}

// NewService creates an order service on top of the orchestrating client.
func NewService(client *api.Client, bus *syncbus.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("orders")
	}
	return &Service{client: client, bus: bus, log: log}
}

// List fetches a page of orders. The server answers either with a bare
// list or an {items, ...} envelope; both are normalized here so callers
// only ever see one shape.
func (s *Service) List(ctx context.Context, page, limit int) ([]Order, error) {
	path := "/orders"
	if page > 0 || limit > 0 {
		path = fmt.Sprintf("/orders?page=%d&limit=%d", page, limit)
	}

	raw, err := s.client.Get(ctx, path, api.Options{})
	if err != nil {
		return nil, err
	}

	items, err := api.NormalizeList(raw)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return decodeOrders(items)
}

// Submit sends a draft to the kitchen, creating the order server-side.
// Staff-entered orders may start directly IN_PROGRESS; customer orders
// always start PENDING.
func (s *Service) Submit(ctx context.Context, draft *Draft, actor Actor) (*Order, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	status := StatusPending
	if actor.Role == RoleStaff || actor.Role == RoleAdmin {
		status = StatusInProgress
	}

	raw, err := s.client.Post(ctx, "/orders", map[string]interface{}{
		"customerId": draft.CustomerID,
		"items":      draft.Items,
		"status":     status,
	})
	if err != nil {
		return nil, err
	}

	created, err := decodeOrder(raw)
	if err != nil {
		return nil, err
	}

	s.log.WithField("order_id", created.ID).WithField("status", created.Status).Info("order submitted")
	s.announce(created)
	return created, nil
}

// UpdateStatus moves an order to a new status. An attempt outside the
// lifecycle table fails locally with TransitionError and issues no
// network call.
func (s *Service) UpdateStatus(ctx context.Context, o *Order, to Status, actor Actor) (*Order, error) {
	if err := checkTransition(actor, o, to); err != nil {
		return nil, err
	}

	raw, err := s.client.Patch(ctx, "/orders/"+o.ID, map[string]interface{}{
		"status": to,
	})
	if err != nil {
		return nil, err
	}

	updated, err := decodeOrder(raw)
	if err != nil {
		return nil, err
	}

	s.log.WithField("order_id", o.ID).
		WithField("from", o.Status).
		WithField("to", to).
		Info("order status updated")
	s.announce(updated)
	return updated, nil
}

// UpdateItems revises an existing order's items through the staff revision
// path. Terminal orders reject all item mutation.
func (s *Service) UpdateItems(ctx context.Context, o *Order, items []Item, actor Actor) (*Order, error) {
	if !canMutateItems(actor, o) {
		if o.Status.IsTerminal() {
			return nil, TransitionError{From: o.Status, To: o.Status}
		}
		return nil, fmt.Errorf("items of a %s order may only be revised by staff", o.Status)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("an order needs at least one item")
	}
	for _, it := range items {
		if it.MenuItemID == "" || it.Quantity <= 0 {
			return nil, fmt.Errorf("invalid order item %q", it.MenuItemID)
		}
	}

	raw, err := s.client.Patch(ctx, "/orders/"+o.ID, map[string]interface{}{
		"items": items,
	})
	if err != nil {
		return nil, err
	}

	updated, err := decodeOrder(raw)
	if err != nil {
		return nil, err
	}

	s.log.WithField("order_id", o.ID).WithField("items", len(items)).Info("order items revised")
	s.announce(updated)
	return updated, nil
}

// CompletePayment transitions an order to PAID via the lifecycle table
// (SERVED->PAID for anyone permitted, PENDING->PAID owner fast path).
func (s *Service) CompletePayment(ctx context.Context, o *Order, actor Actor) (*Order, error) {
	return s.UpdateStatus(ctx, o, StatusPaid, actor)
}

// Cancel moves a non-terminal order to CANCELLED.
func (s *Service) Cancel(ctx context.Context, o *Order, actor Actor) (*Order, error) {
	return s.UpdateStatus(ctx, o, StatusCancelled, actor)
}

// announce publishes the entity update. Subscribers should still treat a
// refetch as the only legitimate reconciliation point; the payload is a
// hint for views that trust it.
func (s *Service) announce(o *Order) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(syncbus.TopicEntityUpdated, syncbus.EntityUpdate{Kind: "orders", Payload: o})
}
