package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/storage"
)

func TestReserveReleaseRoundTrip(t *testing.T) {
	t.Parallel()

	stock := NewStock()
	stock.SetStock("p-1", 5)

	token, err := stock.Reserve(context.Background(), "order-1", []models.ReservedLine{{ProductID: "p-1", Quantity: 3}})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	item, _ := stock.Item("p-1")
	if item.Available != 2 || item.Reserved != 3 {
		t.Fatalf("after reserve: available/reserved = %d/%d, want 2/3", item.Available, item.Reserved)
	}

	if err := stock.Release(context.Background(), token); err != nil {
		t.Fatalf("Release: %v", err)
	}

	item, _ = stock.Item("p-1")
	if item.Available != 5 || item.Reserved != 0 {
		t.Errorf("after release: available/reserved = %d/%d, want 5/0", item.Available, item.Reserved)
	}

	// Releasing again is a no-op.
	if err := stock.Release(context.Background(), token); err != nil {
		t.Errorf("second release: %v, want nil", err)
	}

	item, _ = stock.Item("p-1")
	if item.Available != 5 {
		t.Errorf("double release restored stock twice: available = %d", item.Available)
	}
}

func TestReserveCommitPermanence(t *testing.T) {
	t.Parallel()

	stock := NewStock()
	stock.SetStock("p-1", 5)

	token, err := stock.Reserve(context.Background(), "order-1", []models.ReservedLine{{ProductID: "p-1", Quantity: 2}})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if err := stock.Commit(context.Background(), token); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	item, _ := stock.Item("p-1")
	if item.Available != 3 || item.Reserved != 0 {
		t.Errorf("after commit: available/reserved = %d/%d, want 3/0", item.Available, item.Reserved)
	}

	// Committing again is a no-op, releasing a committed hold is not
	// possible.
	if err := stock.Commit(context.Background(), token); err != nil {
		t.Errorf("second commit: %v, want nil", err)
	}
	if err := stock.Release(context.Background(), token); !errors.Is(err, storage.ErrNoReservation) {
		t.Errorf("release after commit: %v, want ErrNoReservation", err)
	}

	item, _ = stock.Item("p-1")
	if item.Available != 3 {
		t.Errorf("committed stock came back: available = %d, want 3", item.Available)
	}
}

func TestReserveAllOrNothing(t *testing.T) {
	t.Parallel()

	stock := NewStock()
	stock.SetStock("p-1", 10)
	stock.SetStock("p-2", 1)

	_, err := stock.Reserve(context.Background(), "order-1", []models.ReservedLine{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 2},
		{ProductID: "p-missing", Quantity: 1},
	})

	var insufficient *storage.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientStockError", err)
	}
	if len(insufficient.ProductIDs) != 2 {
		t.Errorf("short products = %v, want p-2 and p-missing", insufficient.ProductIDs)
	}

	item, _ := stock.Item("p-1")
	if item.Available != 10 || item.Reserved != 0 {
		t.Errorf("p-1 touched by failed reserve: available/reserved = %d/%d", item.Available, item.Reserved)
	}
}

func TestReleaseUnknownToken(t *testing.T) {
	t.Parallel()

	stock := NewStock()

	if err := stock.Release(context.Background(), "no-such-token"); !errors.Is(err, storage.ErrNoReservation) {
		t.Errorf("got %v, want ErrNoReservation", err)
	}
}

func TestRestock(t *testing.T) {
	t.Parallel()

	stock := NewStock()
	stock.SetStock("p-1", 3)

	err := stock.Restock(context.Background(), []models.ReservedLine{{ProductID: "p-1", Quantity: 2}})
	if err != nil {
		t.Fatalf("Restock: %v", err)
	}

	item, _ := stock.Item("p-1")
	if item.Available != 5 {
		t.Errorf("available = %d, want 5", item.Available)
	}
}
