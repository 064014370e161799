// Package order models restaurant orders, the lifecycle state machine
// governing their status, and the operations staff and customers perform
// on them against the record store.
package order

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Status is the lifecycle status of an order.
type Status string

const (
	// StatusPending is the sole initial status produced by order creation.
	StatusPending Status = "PENDING"

	// StatusInProgress means the kitchen has picked the order up.
	StatusInProgress Status = "IN_PROGRESS"

	// StatusServed means the order has reached the table.
	StatusServed Status = "SERVED"

	// StatusPaid is terminal.
	StatusPaid Status = "PAID"

	// StatusCancelled is terminal.
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusServed, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// Role identifies the kind of actor attempting an operation. Enforced
// client-side as a UX guard only; the server is the authority.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleStaff Role = "STAFF"
	RoleUser  Role = "USER"
)

// ParseRole maps a role string (e.g. from session claims) onto a Role.
// Unknown strings map to RoleUser, the least-privileged role.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleStaff:
		return RoleStaff
	}
	return RoleUser
}

// Actor is the caller attempting an order operation.
type Actor struct {
	Role   Role
	UserID string
}

// owns reports whether the actor is the owning customer of o.
func (a Actor) owns(o *Order) bool {
	return a.UserID != "" && a.UserID == o.CustomerID
}

// Item is one line of an order.
type Item struct {
	MenuItemID string  `json:"menuItemId" validate:"required"`
	Quantity   int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice  float64 `json:"unitPrice" validate:"gte=0"`
}

// Order is the client-side view of a server-held order record.
type Order struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Status      Status `json:"status"`
	Items       []Item `json:"items"`
	CustomerID  string `json:"customerId"`
}

// Subtotal recomputes the order total from its items.
func (o *Order) Subtotal() float64 {
	var total float64
	for _, it := range o.Items {
		total += float64(it.Quantity) * it.UnitPrice
	}
	return total
}

var validate = validator.New()

// Draft is a local, not-yet-submitted order. Item mutation is free-form
// here; once submitted, items only change through the staff revision path
// while the order is still PENDING or IN_PROGRESS.
type Draft struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId" validate:"required"`
	Items      []Item `json:"items" validate:"required,min=1,dive"`
}

// NewDraft starts an empty draft for the given customer.
func NewDraft(customerID string) *Draft {
	return &Draft{
		ID:         uuid.NewString(),
		CustomerID: customerID,
	}
}

// AddItem appends a line, merging with an existing line for the same menu
// item.
func (d *Draft) AddItem(menuItemID string, quantity int, unitPrice float64) {
	for i := range d.Items {
		if d.Items[i].MenuItemID == menuItemID {
			d.Items[i].Quantity += quantity
			return
		}
	}
	d.Items = append(d.Items, Item{MenuItemID: menuItemID, Quantity: quantity, UnitPrice: unitPrice})
}

// RemoveItem drops the line for the given menu item.
func (d *Draft) RemoveItem(menuItemID string) {
	for i := range d.Items {
		if d.Items[i].MenuItemID == menuItemID {
			d.Items = append(d.Items[:i], d.Items[i+1:]...)
			return
		}
	}
}

// SetQuantity changes a line's quantity; a quantity of zero removes it.
func (d *Draft) SetQuantity(menuItemID string, quantity int) {
	if quantity <= 0 {
		d.RemoveItem(menuItemID)
		return
	}
	for i := range d.Items {
		if d.Items[i].MenuItemID == menuItemID {
			d.Items[i].Quantity = quantity
			return
		}
	}
}

// Subtotal recomputes the draft total.
func (d *Draft) Subtotal() float64 {
	var total float64
	for _, it := range d.Items {
		total += float64(it.Quantity) * it.UnitPrice
	}
	return total
}

// Validate checks the draft is submittable.
func (d *Draft) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid order draft: %w", err)
	}
	return nil
}

// decodeOrder unmarshals a single order record.
func decodeOrder(raw json.RawMessage) (*Order, error) {
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}

// decodeOrders unmarshals a canonical order array.
func decodeOrders(raw json.RawMessage) ([]Order, error) {
	var orders []Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, fmt.Errorf("decode order list: %w", err)
	}
	return orders, nil
}
