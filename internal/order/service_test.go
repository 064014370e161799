package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/dinehall/datalayer/internal/api"
	"github.com/dinehall/datalayer/internal/syncbus"
	"github.com/dinehall/datalayer/pkg/logger"
)

// fakeStore is an in-memory record store speaking the order endpoints.
type fakeStore struct {
	mu       sync.Mutex
	orders   map[string]*Order
	requests int
	envelope bool // answer lists as {items, ...} instead of a bare array
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*Order)}
}

func (f *fakeStore) handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/orders", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++

		switch req.Method {
		case http.MethodGet:
			list := make([]*Order, 0, len(f.orders))
			for _, o := range f.orders {
				list = append(list, o)
			}
			if f.envelope {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"items": list,
					"total": len(list),
					"page":  1,
				})
				return
			}
			json.NewEncoder(w).Encode(list)

		case http.MethodPost:
			var body struct {
				CustomerID string `json:"customerId"`
				Items      []Item `json:"items"`
				Status     Status `json:"status"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			o := &Order{
				ID:          "o-" + body.CustomerID,
				OrderNumber: "#100",
				Status:      body.Status,
				Items:       body.Items,
				CustomerID:  body.CustomerID,
			}
			f.orders[o.ID] = o
			json.NewEncoder(w).Encode(o)
		}
	})

	r.HandleFunc("/orders/{id}", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++

		o, ok := f.orders[mux.Vars(req)["id"]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "order not found"})
			return
		}

		var patch struct {
			Status *Status `json:"status"`
			Items  []Item  `json:"items"`
		}
		if err := json.NewDecoder(req.Body).Decode(&patch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if patch.Status != nil {
			o.Status = *patch.Status
		}
		if patch.Items != nil {
			o.Items = patch.Items
		}
		json.NewEncoder(w).Encode(o)
	}).Methods(http.MethodPatch)

	return r
}

func (f *fakeStore) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeStore) seed(o *Order) {
	f.mu.Lock()
	f.orders[o.ID] = o
	f.mu.Unlock()
}

func newTestService(t *testing.T, store *fakeStore) (*Service, *syncbus.Bus) {
	t.Helper()

	srv := httptest.NewServer(store.handler())
	t.Cleanup(srv.Close)

	gateway, err := api.NewGateway(api.GatewayConfig{BaseURL: srv.URL}, logger.NewNop(), nil)
	require.NoError(t, err)

	bus := syncbus.New(logger.NewNop())
	client := api.NewClient(gateway, api.NewCache(time.Minute), api.NewInflight(), bus, api.ClientOptions{
		Logger: logger.NewNop(),
	})
	return NewService(client, bus, logger.NewNop()), bus
}

func TestService_IllegalTransitionFailsLocally(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	o := &Order{ID: "o1", Status: StatusPending, CustomerID: "cust-1"}

	// A customer cannot move an order into the kitchen.
	_, err := svc.UpdateStatus(context.Background(), o, StatusInProgress, Actor{Role: RoleUser, UserID: "cust-1"})

	var te TransitionError
	require.ErrorAs(t, err, &te)
	require.Equal(t, StatusPending, te.From)
	require.Equal(t, StatusInProgress, te.To)
	require.Equal(t, 0, store.requestCount(), "rejected transitions must not reach the network")
}

func TestService_OrderLifecycleEndToEnd(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	o1 := &Order{
		ID:          "o1",
		OrderNumber: "#41",
		Status:      StatusPending,
		Items:       []Item{{MenuItemID: "m1", Quantity: 2, UnitPrice: 12.00}},
		CustomerID:  "cust-7",
	}
	store.seed(o1)
	require.InDelta(t, 24.00, o1.Subtotal(), 1e-9)

	staff := Actor{Role: RoleStaff, UserID: "staff-1"}
	owner := Actor{Role: RoleUser, UserID: "cust-7"}

	inProgress, err := svc.UpdateStatus(ctx, o1, StatusInProgress, staff)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, inProgress.Status)

	served, err := svc.UpdateStatus(ctx, inProgress, StatusServed, staff)
	require.NoError(t, err)
	require.Equal(t, StatusServed, served.Status)

	paid, err := svc.CompletePayment(ctx, served, owner)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)

	// PAID is terminal: even staff cannot cancel, and no call is issued.
	before := store.requestCount()
	_, err = svc.Cancel(ctx, paid, staff)

	var te TransitionError
	require.ErrorAs(t, err, &te)
	require.Equal(t, StatusPaid, te.From)
	require.Equal(t, StatusCancelled, te.To)
	require.Equal(t, before, store.requestCount())
}

func TestService_OwnerFastPathPayment(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	o := &Order{ID: "o1", Status: StatusPending, CustomerID: "cust-7"}
	store.seed(o)

	paid, err := svc.CompletePayment(context.Background(), o, Actor{Role: RoleUser, UserID: "cust-7"})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)

	// A different customer must not be able to pay the order.
	o2 := &Order{ID: "o2", Status: StatusPending, CustomerID: "cust-7"}
	store.seed(o2)
	_, err = svc.CompletePayment(context.Background(), o2, Actor{Role: RoleUser, UserID: "cust-9"})
	var te TransitionError
	require.ErrorAs(t, err, &te)
}

func TestService_TerminalOrdersRejectItemMutation(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	staff := Actor{Role: RoleStaff, UserID: "staff-1"}
	items := []Item{{MenuItemID: "m1", Quantity: 1, UnitPrice: 5}}

	for _, status := range []Status{StatusPaid, StatusCancelled} {
		o := &Order{ID: "o1", Status: status, CustomerID: "cust-1"}
		_, err := svc.UpdateItems(context.Background(), o, items, staff)
		require.Error(t, err, "items of a %s order must be immutable", status)
	}
	require.Equal(t, 0, store.requestCount())
}

func TestService_StaffRevisesPendingItems(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	o := &Order{
		ID:         "o1",
		Status:     StatusPending,
		Items:      []Item{{MenuItemID: "m1", Quantity: 1, UnitPrice: 5}},
		CustomerID: "cust-1",
	}
	store.seed(o)

	revised, err := svc.UpdateItems(context.Background(), o, []Item{
		{MenuItemID: "m1", Quantity: 3, UnitPrice: 5},
	}, Actor{Role: RoleStaff, UserID: "staff-1"})
	require.NoError(t, err)
	require.Equal(t, 3, revised.Items[0].Quantity)

	// The owning customer is not part of the revision path.
	_, err = svc.UpdateItems(context.Background(), o, []Item{
		{MenuItemID: "m1", Quantity: 2, UnitPrice: 5},
	}, Actor{Role: RoleUser, UserID: "cust-1"})
	require.Error(t, err)
}

func TestService_ListHandlesBothShapes(t *testing.T) {
	store := newFakeStore()
	store.seed(&Order{ID: "o1", Status: StatusPending, CustomerID: "c1"})

	svc, _ := newTestService(t, store)

	bare, err := svc.List(context.Background(), 1, 20)
	require.NoError(t, err)
	require.Len(t, bare, 1)

	store.envelope = true
	enveloped, err := svc.List(context.Background(), 1, 20)
	require.NoError(t, err)
	require.Len(t, enveloped, 1)
	require.Equal(t, bare[0].ID, enveloped[0].ID)
}

func TestService_SubmitSetsInitialStatusByActor(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	draft := NewDraft("cust-1")
	draft.AddItem("m1", 2, 12.00)

	created, err := svc.Submit(context.Background(), draft, Actor{Role: RoleUser, UserID: "cust-1"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status, "customer orders start PENDING")

	draft2 := NewDraft("cust-2")
	draft2.AddItem("m1", 1, 12.00)
	created2, err := svc.Submit(context.Background(), draft2, Actor{Role: RoleStaff, UserID: "staff-1"})
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, created2.Status, "staff-entered orders go straight to the kitchen")
}

func TestService_SubmitRejectsInvalidDraft(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	draft := NewDraft("cust-1") // no items

	_, err := svc.Submit(context.Background(), draft, Actor{Role: RoleUser, UserID: "cust-1"})
	require.Error(t, err)
	require.Equal(t, 0, store.requestCount())
}

func TestService_AcceptedMutationAnnouncesUpdate(t *testing.T) {
	store := newFakeStore()
	svc, bus := newTestService(t, store)

	var updates []syncbus.EntityUpdate
	refreshes := 0
	bus.Subscribe(syncbus.TopicEntityUpdated, func(payload interface{}) {
		updates = append(updates, payload.(syncbus.EntityUpdate))
	})
	bus.Subscribe(syncbus.TopicDataRefresh, func(interface{}) { refreshes++ })

	o := &Order{ID: "o1", Status: StatusPending, CustomerID: "cust-1"}
	store.seed(o)

	_, err := svc.UpdateStatus(context.Background(), o, StatusInProgress, Actor{Role: RoleStaff})
	require.NoError(t, err)

	require.Equal(t, 1, refreshes, "successful mutation publishes data-refresh")
	require.Len(t, updates, 1)
	require.Equal(t, "orders", updates[0].Kind)

	// A rejected transition announces nothing.
	_, err = svc.UpdateStatus(context.Background(), o, StatusPaid, Actor{Role: RoleStaff})
	require.Error(t, err)
	require.Equal(t, 1, refreshes)
	require.Len(t, updates, 1)
}
