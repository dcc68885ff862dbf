package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/lesson-booking/internal/adapter/messaging"
	"github.com/rl1809/lesson-booking/internal/adapter/storage"
	"github.com/rl1809/lesson-booking/internal/core/domain"
	"github.com/rl1809/lesson-booking/internal/core/service"
	"github.com/rl1809/lesson-booking/internal/port"
)

const (
	lessonA       = "stress-lesson-a"
	lessonB       = "stress-lesson-b"
	initialSpaces = 20
)

func main() {
	backend := flag.String("backend", "memory", "store backend: memory or redis")
	redisAddr := flag.String("redis", "localhost:6379", "redis address for the redis backend")
	totalRequests := flag.Int("requests", 50, "number of concurrent orders")
	flag.Parse()

	ctx := context.Background()

	store, cleanup := openStore(ctx, *backend, *redisAddr)
	defer cleanup()

	if _, err := store.SeedLessons(ctx, []domain.Lesson{
		{ID: lessonA, Subject: "Stress A", Location: "Lab", Price: 10, SpacesAvailable: initialSpaces},
		{ID: lessonB, Subject: "Stress B", Location: "Lab", Price: 20, SpacesAvailable: initialSpaces},
	}); err != nil {
		log.Fatalf("failed to seed lessons: %v", err)
	}

	svc := service.NewBookingService(store, store, store, messaging.NoopPublisher{}, zap.NewNop())

	var successCount, capacityCount, otherCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	// Every order takes one seat of A and one of B, so A and B must end equal.
	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := svc.PlaceOrder(ctx, domain.BookingRequest{
				CustomerName:  fmt.Sprintf("user-%d", n),
				CustomerPhone: "000",
				LineItems: []domain.LineItemRequest{
					{LessonID: lessonA, Quantity: 1},
					{LessonID: lessonB, Quantity: 1},
				},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientCapacity):
				capacityCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("order %d failed: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	a, errA := store.GetLesson(ctx, lessonA)
	b, errB := store.GetLesson(ctx, lessonB)
	if errA != nil || errB != nil {
		log.Fatalf("failed to read lessons: %v %v", errA, errB)
	}
	orders, err := store.ListOrders(ctx)
	if err != nil {
		log.Fatalf("failed to list orders: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Spaces:   %d per lesson\n", initialSpaces)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Sold Out:         %d\n", capacityCount.Load())
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Orders Stored:    %d\n", len(orders))
	fmt.Printf("Final Spaces:     A=%d B=%d\n", a.SpacesAvailable, b.SpacesAvailable)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expected := min(*totalRequests, initialSpaces)
	ok := true
	if int(successCount.Load()) != expected {
		fmt.Printf("FAIL: expected %d successful orders, got %d\n", expected, successCount.Load())
		ok = false
	}
	if a.SpacesAvailable < 0 || b.SpacesAvailable < 0 || a.SpacesAvailable != b.SpacesAvailable {
		fmt.Printf("FAIL: spaces out of balance: A=%d B=%d\n", a.SpacesAvailable, b.SpacesAvailable)
		ok = false
	}
	if initialSpaces-a.SpacesAvailable != len(orders) {
		fmt.Printf("FAIL: %d seats taken but %d orders stored\n", initialSpaces-a.SpacesAvailable, len(orders))
		ok = false
	}
	if !ok {
		os.Exit(1)
	}
	fmt.Println("PASS: no oversell, every failed order fully compensated")
}

func openStore(ctx context.Context, backend, redisAddr string) (port.Store, func()) {
	if backend != "redis" {
		s := storage.NewMemoryAdapter()
		return s, func() { s.Close() }
	}

	// A separate logical DB keeps the run away from a real catalog.
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, DB: 15, PoolSize: 100})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	// DB 15 belongs to this tool; clear lessons and orders left by the previous run.
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		log.Fatalf("failed to clear redis db: %v", err)
	}

	s := storage.NewRedisAdapter(rdb)
	return s, func() { s.Close() }
}
