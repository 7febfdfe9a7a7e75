package checkout_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/robertarktes/expo-checkout/internal/checkout"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/robertarktes/expo-checkout/internal/observability"
	"github.com/robertarktes/expo-checkout/internal/payment"
	"github.com/robertarktes/expo-checkout/internal/storage"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory storage.Store with transactional semantics: the
// closure runs against a snapshot, and the snapshot replaces the durable
// state only when the closure returns nil.
type memStore struct {
	tickets   map[uuid.UUID]domain.TicketType
	purchases []domain.Purchase
	outbox    []string // event types
}

func newMemStore(tickets ...domain.TicketType) *memStore {
	s := &memStore{tickets: make(map[uuid.UUID]domain.TicketType)}
	for _, t := range tickets {
		s.tickets[t.ID] = t
	}
	return s
}

func (s *memStore) Exclusive(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx := &memTx{
		tickets:   make(map[uuid.UUID]domain.TicketType, len(s.tickets)),
		purchases: append([]domain.Purchase(nil), s.purchases...),
		outbox:    append([]string(nil), s.outbox...),
	}
	for id, t := range s.tickets {
		tx.tickets[id] = t
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.tickets = tx.tickets
	s.purchases = tx.purchases
	s.outbox = tx.outbox
	return nil
}

type memTx struct {
	tickets   map[uuid.UUID]domain.TicketType
	purchases []domain.Purchase
	outbox    []string
}

func (t *memTx) TicketType(ctx context.Context, id uuid.UUID) (domain.TicketType, error) {
	tk, ok := t.tickets[id]
	if !ok {
		return domain.TicketType{}, domain.ErrNotFound
	}
	return tk, nil
}

func (t *memTx) DecrementAvailability(ctx context.Context, id uuid.UUID, qty int) error {
	tk := t.tickets[id]
	if tk.Available < qty {
		return domain.ErrRaceCondition
	}
	tk.Available -= qty
	t.tickets[id] = tk
	return nil
}

func (t *memTx) LifetimePurchased(ctx context.Context, userID, ticketTypeID uuid.UUID) (int, error) {
	sum := 0
	for _, p := range t.purchases {
		if p.UserID == userID && p.TicketTypeID == ticketTypeID {
			sum += p.Quantity
		}
	}
	return sum, nil
}

func (t *memTx) InsertPurchase(ctx context.Context, p domain.Purchase) error {
	t.purchases = append(t.purchases, p)
	return nil
}

func (t *memTx) InsertOutbox(ctx context.Context, aggregateType string, aggregateID uuid.UUID, eventType string, payload []byte) error {
	t.outbox = append(t.outbox, eventType)
	return nil
}

func (t *memTx) Booth(ctx context.Context, id uuid.UUID) (domain.BoothInfo, error) {
	return domain.BoothInfo{}, domain.ErrNotFound
}
func (t *memTx) HasBoothReservation(ctx context.Context, userID, boothID uuid.UUID) (bool, error) {
	return false, nil
}
func (t *memTx) InsertBoothReservation(ctx context.Context, r domain.BoothReservation) error {
	return nil
}
func (t *memTx) DeleteBoothReservation(ctx context.Context, userID, boothID uuid.UUID) error {
	return domain.ErrNotFound
}
func (t *memTx) Event(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return domain.Event{}, domain.ErrNotFound
}
func (t *memTx) HasActiveRegistration(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	return false, nil
}
func (t *memTx) InsertRegistration(ctx context.Context, r domain.EventRegistration) error { return nil }
func (t *memTx) CancelRegistration(ctx context.Context, eventID, userID uuid.UUID) error {
	return domain.ErrNotFound
}
func (t *memTx) DeleteRegistration(ctx context.Context, eventID, userID uuid.UUID) error {
	return domain.ErrNotFound
}

type memSessions struct {
	carts map[string]domain.Cart
}

func (f *memSessions) Load(ctx context.Context, sessionID string) (domain.Cart, error) {
	return f.carts[sessionID], nil
}
func (f *memSessions) Save(ctx context.Context, sessionID string, c domain.Cart) error {
	f.carts[sessionID] = c
	return nil
}
func (f *memSessions) Clear(ctx context.Context, sessionID string) error {
	delete(f.carts, sessionID)
	return nil
}

type memTxLog struct {
	started   []string
	completed []string
	failed    []string
	startErr  error
}

func (l *memTxLog) Start(ctx context.Context, e domain.TransactionLogEntry) error {
	if l.startErr != nil {
		return l.startErr
	}
	l.started = append(l.started, e.TransactionID)
	return nil
}
func (l *memTxLog) Complete(ctx context.Context, transactionID string, purchaseID uuid.UUID) error {
	l.completed = append(l.completed, transactionID)
	return nil
}
func (l *memTxLog) Fail(ctx context.Context, transactionID string) error {
	l.failed = append(l.failed, transactionID)
	return nil
}

type scriptedProcessor struct {
	result payment.Result
	err    error
}

func (p *scriptedProcessor) Charge(ctx context.Context, req payment.Charge) (payment.Result, error) {
	return p.result, p.err
}

func approve() *scriptedProcessor {
	return &scriptedProcessor{result: payment.Result{Approved: true, ProviderRef: "SIM-test"}}
}

type fixture struct {
	store    *memStore
	sessions *memSessions
	txlog    *memTxLog
	engine   *checkout.Engine
	user     domain.Identity
}

func newFixture(proc payment.Processor, tickets ...domain.TicketType) *fixture {
	store := newMemStore(tickets...)
	sessions := &memSessions{carts: make(map[string]domain.Cart)}
	txlog := &memTxLog{}
	return &fixture{
		store:    store,
		sessions: sessions,
		txlog:    txlog,
		engine:   checkout.NewEngine(store, sessions, txlog, proc, observability.NewLogger()),
		user:     domain.Identity{UserID: uuid.New(), Role: domain.RoleUser},
	}
}

func (f *fixture) request() checkout.Request {
	return checkout.Request{
		SessionID: "s1",
		Identity:  f.user,
		Billing:   domain.BillingInfo{Name: "Jane Visitor", Email: "jane@example.com"},
		Method:    domain.PaymentStandard,
		IPAddress: "10.0.0.9",
		UserAgent: "test",
	}
}

func standardTicket() domain.TicketType {
	return domain.TicketType{
		ID:        uuid.New(),
		Name:      "Standard",
		Price:     decimal.RequireFromString("39.90"),
		Available: 10,
	}
}

func TestEngine_SuccessfulCheckout(t *testing.T) {
	ticket := standardTicket()
	f := newFixture(approve(), ticket)
	f.sessions.carts["s1"] = domain.Cart{Lines: []domain.CartLine{
		{TicketTypeID: ticket.ID, Quantity: 2},
	}}

	receipt, err := f.engine.Submit(context.Background(), f.request())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !receipt.Total.Equal(decimal.RequireFromString("79.80")) {
		t.Errorf("expected total 79.80, got %s", receipt.Total)
	}
	if receipt.FirstPurchaseID == uuid.Nil {
		t.Error("expected a purchase id on the receipt")
	}
	if got := f.store.tickets[ticket.ID].Available; got != 8 {
		t.Errorf("expected availability 8, got %d", got)
	}
	if len(f.store.purchases) != 1 {
		t.Errorf("expected one purchase row, got %d", len(f.store.purchases))
	}
	if len(f.store.outbox) != 1 || f.store.outbox[0] != "purchase.completed" {
		t.Errorf("expected purchase.completed outbox event, got %v", f.store.outbox)
	}
	if _, ok := f.sessions.carts["s1"]; ok {
		t.Error("expected cart cleared after commit")
	}
	if len(f.txlog.completed) != 1 {
		t.Errorf("expected completed log entry, got %v", f.txlog.completed)
	}
}

func TestEngine_RoleAndInputGates(t *testing.T) {
	ticket := standardTicket()
	f := newFixture(approve(), ticket)

	req := f.request()
	req.Identity = domain.Identity{UserID: uuid.New(), Role: domain.RoleExhibitor}
	if _, err := f.engine.Submit(context.Background(), req); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("exhibitor: expected ErrForbidden, got %v", err)
	}

	req = f.request()
	req.Method = "bitcoin"
	if _, err := f.engine.Submit(context.Background(), req); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("unknown method: expected ErrInvalidInput, got %v", err)
	}

	if _, err := f.engine.Submit(context.Background(), f.request()); !errors.Is(err, domain.ErrEmptyCart) {
		t.Errorf("empty cart: expected ErrEmptyCart, got %v", err)
	}
}

func TestEngine_InsufficientStockLeavesEverything(t *testing.T) {
	ticket := standardTicket()
	ticket.Available = 1
	f := newFixture(approve(), ticket)
	f.sessions.carts["s1"] = domain.Cart{Lines: []domain.CartLine{
		{TicketTypeID: ticket.ID, Quantity: 3},
	}}

	_, err := f.engine.Submit(context.Background(), f.request())
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if got := f.store.tickets[ticket.ID].Available; got != 1 {
		t.Errorf("stock must be untouched, got %d", got)
	}
	if len(f.store.purchases) != 0 {
		t.Error("no purchase rows may exist after a failed checkout")
	}
	if _, ok := f.sessions.carts["s1"]; !ok {
		t.Error("cart must survive a failed checkout")
	}
}

func TestEngine_DeclineRollsBack(t *testing.T) {
	ticket := standardTicket()
	decline := &scriptedProcessor{result: payment.Result{Reason: "card number rejected"}}
	f := newFixture(decline, ticket)
	f.sessions.carts["s1"] = domain.Cart{Lines: []domain.CartLine{
		{TicketTypeID: ticket.ID, Quantity: 2},
	}}

	_, err := f.engine.Submit(context.Background(), f.request())
	if !errors.Is(err, domain.ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}

	if got := f.store.tickets[ticket.ID].Available; got != 10 {
		t.Errorf("decline must roll the transaction back, availability %d", got)
	}
	if len(f.store.outbox) != 0 {
		t.Error("no outbox event may survive a declined payment")
	}
	if len(f.txlog.failed) != 1 {
		t.Errorf("expected failed log entry, got %v", f.txlog.failed)
	}
	if _, ok := f.sessions.carts["s1"]; !ok {
		t.Error("cart must survive a declined payment")
	}
}

func TestEngine_LifetimeCapAcrossDuplicateLines(t *testing.T) {
	ticket := standardTicket()
	f := newFixture(approve(), ticket)

	// Two lines for the same type whose sum exceeds the cap. The decrements
	// happen first; the cap check must still see the combined quantity and
	// roll every decrement back.
	f.sessions.carts["s1"] = domain.Cart{Lines: []domain.CartLine{
		{TicketTypeID: ticket.ID, Quantity: 3},
		{TicketTypeID: ticket.ID, Quantity: 3},
	}}

	_, err := f.engine.Submit(context.Background(), f.request())
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if got := f.store.tickets[ticket.ID].Available; got != 10 {
		t.Errorf("expected full rollback of both decrements, availability %d", got)
	}
	if len(f.store.purchases) != 0 {
		t.Error("no purchase rows may exist after a quota failure")
	}
}

func TestEngine_LifetimeCapCountsHistory(t *testing.T) {
	ticket := standardTicket()
	f := newFixture(approve(), ticket)
	f.store.purchases = []domain.Purchase{{
		ID:           uuid.New(),
		UserID:       f.user.UserID,
		TicketTypeID: ticket.ID,
		Quantity:     4,
	}}
	f.sessions.carts["s1"] = domain.Cart{Lines: []domain.CartLine{
		{TicketTypeID: ticket.ID, Quantity: 2},
	}}

	_, err := f.engine.Submit(context.Background(), f.request())
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if got := f.store.tickets[ticket.ID].Available; got != 10 {
		t.Errorf("expected rollback, availability %d", got)
	}
}

func TestEngine_ProviderErrorRollsBack(t *testing.T) {
	ticket := standardTicket()
	boom := &scriptedProcessor{err: errors.New("gateway timeout")}
	f := newFixture(boom, ticket)
	f.sessions.carts["s1"] = domain.Cart{Lines: []domain.CartLine{
		{TicketTypeID: ticket.ID, Quantity: 1},
	}}

	_, err := f.engine.Submit(context.Background(), f.request())
	if err == nil {
		t.Fatal("expected an error from the provider")
	}
	if got := f.store.tickets[ticket.ID].Available; got != 10 {
		t.Errorf("expected rollback, availability %d", got)
	}
}

func TestEngine_TxLogUnavailableDoesNotAbort(t *testing.T) {
	ticket := standardTicket()
	f := newFixture(approve(), ticket)
	f.txlog.startErr = errors.New("mongo down")
	f.sessions.carts["s1"] = domain.Cart{Lines: []domain.CartLine{
		{TicketTypeID: ticket.ID, Quantity: 1},
	}}

	receipt, err := f.engine.Submit(context.Background(), f.request())
	if err != nil {
		t.Fatalf("audit log loss must not abort a sale, got %v", err)
	}
	if receipt.TransactionID == "" {
		t.Error("expected a transaction id")
	}
	if len(f.txlog.completed) != 0 {
		t.Error("no completion update should be attempted when the start write failed")
	}
}

func TestEngine_FreeTicketsCheckOut(t *testing.T) {
	free := domain.TicketType{ID: uuid.New(), Name: "Community Day", Price: decimal.Zero, Available: 100}
	// A processor that declines everything still must not be consulted in a
	// way that blocks a zero total; the simulator approves zero amounts.
	f := newFixture(&scriptedProcessor{result: payment.Result{Approved: true}}, free)
	f.sessions.carts["s1"] = domain.Cart{Lines: []domain.CartLine{
		{TicketTypeID: free.ID, Quantity: 2},
	}}

	receipt, err := f.engine.Submit(context.Background(), f.request())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !receipt.Total.IsZero() {
		t.Errorf("expected zero total, got %s", receipt.Total)
	}
}

func TestEngine_MultipleLines(t *testing.T) {
	vip := domain.TicketType{ID: uuid.New(), Name: "VIP", Price: decimal.NewFromInt(120), Available: 5}
	std := standardTicket()
	f := newFixture(approve(), vip, std)
	f.sessions.carts["s1"] = domain.Cart{Lines: []domain.CartLine{
		{TicketTypeID: vip.ID, Quantity: 1},
		{TicketTypeID: std.ID, Quantity: 2},
	}}

	receipt, err := f.engine.Submit(context.Background(), f.request())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if receipt.Lines != 2 {
		t.Errorf("expected 2 receipt lines, got %d", receipt.Lines)
	}
	want := decimal.RequireFromString("199.80")
	if !receipt.Total.Equal(want) {
		t.Errorf("expected total %s, got %s", want, receipt.Total)
	}
	if len(f.store.purchases) != 2 {
		t.Errorf("expected one purchase row per line, got %d", len(f.store.purchases))
	}
	for _, p := range f.store.purchases {
		if p.TransactionID != receipt.TransactionID {
			t.Error("all purchase rows must share the transaction id")
		}
		if p.BillingName != "Jane Visitor" {
			t.Error("purchase rows must carry the billing snapshot")
		}
	}
}
