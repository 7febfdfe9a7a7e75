package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/expo-checkout/internal/adapters/mongo"
	"github.com/robertarktes/expo-checkout/internal/adapters/pg"
	"github.com/robertarktes/expo-checkout/internal/booking"
	"github.com/robertarktes/expo-checkout/internal/cart"
	"github.com/robertarktes/expo-checkout/internal/checkout"
	"github.com/robertarktes/expo-checkout/internal/config"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/robertarktes/expo-checkout/internal/observability"
	"github.com/robertarktes/expo-checkout/internal/rateLimit"
	"github.com/shopspring/decimal"
)

const sessionCookie = "expo_session"

type Handlers struct {
	cfg     *config.Config
	store   *pg.Store
	carts   *cart.Service
	engine  *checkout.Engine
	booths  *booking.BoothService
	events  *booking.EventService
	txlog   *mongoadapter.TransactionLog
	limiter *rateLimit.LoginLimiter
}

func NewHandlers(cfg *config.Config, store *pg.Store, carts *cart.Service, engine *checkout.Engine,
	booths *booking.BoothService, events *booking.EventService,
	txlog *mongoadapter.TransactionLog, limiter *rateLimit.LoginLimiter) *Handlers {
	return &Handlers{
		cfg:     cfg,
		store:   store,
		carts:   carts,
		engine:  engine,
		booths:  booths,
		events:  events,
		txlog:   txlog,
		limiter: limiter,
	}
}

// writeError translates the domain taxonomy into HTTP. Internal failures
// and invariant violations get a generic body; the detail stays in the
// server log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidIndex):
		http.Error(w, "invalid input", http.StatusBadRequest)
	case errors.Is(err, domain.ErrEmptyCart):
		http.Error(w, "cart is empty", http.StatusBadRequest)
	case errors.Is(err, domain.ErrQuotaExceeded):
		http.Error(w, "ticket limit reached for this ticket type", http.StatusConflict)
	case errors.Is(err, domain.ErrInsufficientStock):
		http.Error(w, "not enough tickets available", http.StatusConflict)
	case errors.Is(err, domain.ErrBoothFull):
		http.Error(w, "booth is full", http.StatusConflict)
	case errors.Is(err, domain.ErrAlreadyReserved):
		http.Error(w, "already reserved", http.StatusConflict)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, "conflict", http.StatusConflict)
	case errors.Is(err, domain.ErrPaymentDeclined):
		http.Error(w, "payment declined", http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
	default:
		if log, ok := r.Context().Value(ctxKeyLogger).(observability.Logger); ok {
			log.WithError(err).Error("request failed")
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sessionID returns the cart session, minting a cookie for first-time
// visitors.
func (h *Handlers) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	sid := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cfg.CartTTL / time.Second),
	})
	return sid
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- catalog ---

func (h *Handlers) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.store.ListAvailableTicketTypes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, map[string]interface{}{
			"id":        t.ID,
			"name":      t.Name,
			"price":     t.Price.String(),
			"available": t.Available,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) ListBooths(w http.ResponseWriter, r *http.Request) {
	onlyAvailable := r.URL.Query().Get("available") == "1"
	booths, err := h.store.ListBooths(r.Context(), onlyAvailable)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(booths))
	for _, b := range booths {
		out = append(out, map[string]interface{}{
			"id":         b.ID,
			"name":       b.Name,
			"pavilion":   b.Pavilion,
			"theme":      b.Theme,
			"capacity":   b.Capacity,
			"seats_left": b.SeatsLeft(),
			"exhibitors": b.Exhibitors,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- cart ---

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TicketTypeID uuid.UUID `json:"ticket_type_id"`
		Quantity     int       `json:"quantity"`
		// Accepted and ignored; the server's price wins.
		UnitPrice string `json:"unit_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	clientPrice, _ := decimal.NewFromString(req.UnitPrice)
	sid := h.sessionID(w, r)
	err := h.carts.Add(r.Context(), sid, identityFrom(r), req.TicketTypeID, req.Quantity, clientPrice)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ct, err := h.carts.View(r.Context(), sid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"cart_length": len(ct.Lines),
	})
}

func (h *Handlers) UpdateCartQuantity(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	sid := h.sessionID(w, r)

	switch chi.URLParam(r, "op") {
	case "increment":
		err = h.carts.Increment(r.Context(), sid, index)
	case "decrement":
		err = h.carts.Decrement(r.Context(), sid, index)
	default:
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.ViewCart(w, r)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	if err := h.carts.Remove(r.Context(), h.sessionID(w, r), index); err != nil {
		writeError(w, r, err)
		return
	}
	h.ViewCart(w, r)
}

func (h *Handlers) EmptyCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Empty(r.Context(), h.sessionID(w, r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func cartJSON(ct domain.Cart, extra map[string]interface{}) map[string]interface{} {
	lines := make([]map[string]interface{}, 0, len(ct.Lines))
	for _, l := range ct.Lines {
		lines = append(lines, map[string]interface{}{
			"ticket_type_id": l.TicketTypeID,
			"name":           l.Name,
			"quantity":       l.Quantity,
			"unit_price":     l.UnitPrice.String(),
		})
	}
	out := map[string]interface{}{
		"lines": lines,
		"total": ct.Total().String(),
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (h *Handlers) ViewCart(w http.ResponseWriter, r *http.Request) {
	ct, err := h.carts.View(r.Context(), h.sessionID(w, r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := identityFrom(r)
	writeJSON(w, http.StatusOK, cartJSON(ct, map[string]interface{}{
		"can_checkout": id.CanCheckout(),
	}))
}

// --- checkout ---

func (h *Handlers) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	ct, short, err := h.carts.BeginCheckout(r.Context(), h.sessionID(w, r), identityFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartJSON(ct, map[string]interface{}{
		"all_available": !short,
	}))
}

func (h *Handlers) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentMethod string `json:"payment_method"`
		CardNumber    string `json:"card_number"`
		CardName      string `json:"card_name"`
		ExpiryDate    string `json:"expiry_date"`
		CVV           string `json:"cvv"`
		BillingName   string `json:"billing_name"`
		BillingEmail  string `json:"billing_email"`
		BillingCity   string `json:"billing_city"`
		BillingZip    string `json:"billing_zip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	billing, err := domain.NewBillingInfo(req.BillingName, req.BillingEmail, req.BillingCity, req.BillingZip)
	if err != nil {
		writeError(w, r, err)
		return
	}
	card, err := domain.NewCardInfo(req.PaymentMethod, req.CardNumber, req.CardName, req.ExpiryDate, req.CVV)
	if err != nil {
		writeError(w, r, err)
		return
	}

	receipt, err := h.engine.Submit(r.Context(), checkout.Request{
		SessionID: h.sessionID(w, r),
		Identity:  identityFrom(r),
		Billing:   billing,
		Method:    req.PaymentMethod,
		Card:      card,
		IPAddress: clientAddr(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"transaction_id": receipt.TransactionID,
		"purchase_id":    receipt.FirstPurchaseID,
		"total":          receipt.Total.String(),
		"lines":          receipt.Lines,
	})
}

// --- booths ---

func (h *Handlers) ReserveBooth(w http.ResponseWriter, r *http.Request) {
	boothID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	if err := h.booths.Reserve(r.Context(), identityFrom(r), boothID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true})
}

func (h *Handlers) CancelBoothReservation(w http.ResponseWriter, r *http.Request) {
	boothID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	if err := h.booths.Cancel(r.Context(), identityFrom(r), boothID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// --- events ---

func (h *Handlers) RegisterForEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	var req struct {
		Participation string `json:"participation"`
		Note          string `json:"note"`
	}
	// Body is optional.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.events.Register(r.Context(), identityFrom(r), eventID, req.Participation, req.Note); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true})
}

func (h *Handlers) CancelEventRegistration(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	if err := h.events.Cancel(r.Context(), identityFrom(r), eventID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// --- personal area ---

func (h *Handlers) MyPurchases(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !id.Authenticated() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	purchases, err := h.store.ListPurchasesByUser(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, map[string]interface{}{
			"purchase_id":    p.ID,
			"ticket_type_id": p.TicketTypeID,
			"quantity":       p.Quantity,
			"unit_price":     p.UnitPrice.String(),
			"line_total":     p.LineTotal.String(),
			"transaction_id": p.TransactionID,
			"purchased_at":   p.PurchasedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) MyTransactions(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !id.Authenticated() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	entries, err := h.txlog.ByUser(r.Context(), id.UserID, 10)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"transaction_id": e.TransactionID,
			"amount":         e.Amount.String(),
			"status":         e.Status,
			"payment_method": e.PaymentMethod,
			"created_at":     e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !id.Authenticated() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	includeCancelled := r.URL.Query().Get("include_cancelled") == "1"
	regs, err := h.store.ListRegistrationsByUser(r.Context(), id.UserID, includeCancelled)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registrationsJSON(regs))
}

func registrationsJSON(regs []domain.EventRegistration) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(regs))
	for _, reg := range regs {
		out = append(out, map[string]interface{}{
			"id":            reg.ID,
			"event_id":      reg.EventID,
			"user_id":       reg.UserID,
			"status":        reg.Status,
			"participation": reg.Participation,
			"note":          reg.Note,
			"registered_at": reg.RegisteredAt.Format(time.RFC3339),
		})
	}
	return out
}

// --- admin ---

func (h *Handlers) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if identityFrom(r).Role != domain.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (h *Handlers) SalesStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	stats, err := h.store.SalesStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(stats))
	for _, s := range stats {
		out = append(out, map[string]interface{}{
			"ticket_type_id": s.TicketTypeID,
			"name":           s.Name,
			"sold":           s.Sold,
			"revenue":        s.Revenue.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) SuspiciousTransactions(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	hours := 24
	if v, err := strconv.Atoi(r.URL.Query().Get("hours")); err == nil && v >= 1 && v <= 168 {
		hours = v
	}
	suspicious, err := h.txlog.Suspicious(r.Context(), time.Duration(hours)*time.Hour, 3)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(suspicious))
	for _, s := range suspicious {
		out = append(out, map[string]interface{}{
			"ip_address":   s.IPAddress,
			"failures":     s.Failures,
			"last_attempt": s.LastAttempt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) DailyTransactionStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	days := 7
	if v, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && v >= 1 && v <= 90 {
		days = v
	}
	stats, err := h.txlog.DailyStats(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(stats))
	for _, s := range stats {
		out = append(out, map[string]interface{}{
			"day":       s.Day,
			"count":     s.Count,
			"completed": s.Completed,
			"failed":    s.Failed,
			"volume":    s.Volume,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) EventParticipants(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	participants, err := h.store.ListParticipants(r.Context(), eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	active, err := h.store.CountActiveRegistrations(r.Context(), eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":       active,
		"participants": registrationsJSON(participants),
	})
}

func (h *Handlers) HardDeleteRegistration(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	if err := h.events.HardDelete(r.Context(), identityFrom(r), eventID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// --- login throttle ---

// Login only exercises the attempt limiter; credential verification lives
// with the external identity provider. The provider's verdict arrives as a
// header on this proxied request.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	identifier := req.Email + "|" + clientAddr(r)
	ok, retryAfter := h.limiter.Allow(identifier)
	if !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)))
		http.Error(w, "too many login attempts", http.StatusTooManyRequests)
		return
	}

	verified := r.Header.Get("X-Auth-Result") == "ok"
	h.limiter.Record(identifier, verified)
	if !verified {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// --- health ---

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
