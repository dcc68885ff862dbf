package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestOpenStore_ClearsPreviousRun(t *testing.T) {
	mr := miniredis.RunT(t)
	db := mr.DB(15)
	db.Set("order:stale", `{"id":"stale"}`)
	db.Lpush("orders", "stale")
	db.HSet("lesson:"+lessonA, "spaces_available", "0")
	mr.Set("order:other-db", "kept")

	store, cleanup := openStore(context.Background(), "redis", mr.Addr())
	defer cleanup()

	orders, err := store.ListOrders(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("expected no orders after cleanup, got %d", len(orders))
	}
	if db.Exists("order:stale") || db.Exists("lesson:"+lessonA) {
		t.Error("expected keys from the previous run to be removed")
	}
	if !mr.Exists("order:other-db") {
		t.Error("cleanup must stay inside its own database")
	}
}
