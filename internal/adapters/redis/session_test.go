package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/robertarktes/expo-checkout/internal/domain"
	"github.com/shopspring/decimal"
)

func TestSessionStore_LoadMissingKeyIsEmptyCart(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewSessionStore(client, time.Hour)

	mock.ExpectGet("cart:s1").RedisNil()

	cart, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !cart.Empty() {
		t.Errorf("expected empty cart, got %d lines", len(cart.Lines))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSessionStore_SaveThenLoad(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewSessionStore(client, time.Hour)

	cart := domain.Cart{Lines: []domain.CartLine{{
		TicketTypeID: uuid.New(),
		Name:         "Standard",
		Quantity:     2,
		UnitPrice:    decimal.RequireFromString("39.90"),
	}}}
	data, err := json.Marshal(cart)
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectSet("cart:s1", data, time.Hour).SetVal("OK")
	if err := store.Save(context.Background(), "s1", cart); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	mock.ExpectGet("cart:s1").SetVal(string(data))
	loaded, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(loaded.Lines) != 1 || loaded.Lines[0].Quantity != 2 {
		t.Errorf("round trip lost the cart line: %+v", loaded)
	}
	if !loaded.Lines[0].UnitPrice.Equal(cart.Lines[0].UnitPrice) {
		t.Errorf("round trip changed the price: %s", loaded.Lines[0].UnitPrice)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSessionStore_LoadCorruptPayload(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewSessionStore(client, time.Hour)

	mock.ExpectGet("cart:s1").SetVal("{not json")

	if _, err := store.Load(context.Background(), "s1"); err == nil {
		t.Error("expected an error for a corrupt payload")
	}
}

func TestSessionStore_Clear(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewSessionStore(client, time.Hour)

	mock.ExpectDel("cart:s1").SetVal(1)
	if err := store.Clear(context.Background(), "s1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
