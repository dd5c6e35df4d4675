package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/record-store/internal/adapter/storage"
	"github.com/rl1809/record-store/internal/config"
	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/core/service"
	"github.com/rl1809/record-store/internal/metrics"
	"github.com/rl1809/record-store/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
	cacheCapacity = 1000
)

type backend struct {
	tx      port.Transactor
	catalog port.CatalogRepository
	orders  port.OrderRepository
	close   func()
}

// openBackend uses the SQL store named by DB_DRIVER when DB_DSN is set and
// the memory store otherwise.
func openBackend(ctx context.Context) (backend, string, error) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		mem := storage.NewMemoryStore()
		return backend{
			tx:      mem,
			catalog: storage.NewMemoryCatalogRepository(mem),
			orders:  storage.NewMemoryOrderRepository(mem),
			close:   func() {},
		}, config.DriverMemory, nil
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = config.DriverMySQL
	}
	store, err := storage.OpenSQLStore(ctx, config.Database{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    50,
		MaxIdleConns:    25,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		return backend{}, "", err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return backend{}, "", err
	}
	return backend{
		tx:      store,
		catalog: storage.NewSQLCatalogRepository(store),
		orders:  storage.NewSQLOrderRepository(store),
		close:   func() { _ = store.Close() },
	}, driver, nil
}

func main() {
	ctx := context.Background()

	b, driver, err := openBackend(ctx)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer b.close()

	lru, err := storage.NewLRUAdapter(cacheCapacity)
	if err != nil {
		log.Fatalf("failed to create cache: %v", err)
	}

	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	cache := service.NewCatalogCache(lru, logger, m)
	orderService := service.NewOrderService(b.tx, b.catalog, b.orders, cache, logger, m)

	// Seed one entry under a unique artist so repeated runs do not collide.
	now := time.Now().UTC()
	entry := &domain.CatalogEntry{
		ID:        uuid.NewString(),
		Artist:    "stress-" + uuid.NewString()[:8],
		Album:     "Limited Pressing",
		Price:     decimal.RequireFromString("49.99"),
		Quantity:  initialStock,
		Format:    domain.FormatVinyl,
		Category:  domain.CategoryIndie,
		Tracks:    []domain.Track{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.catalog.Create(ctx, nil, entry); err != nil {
		log.Fatalf("failed to seed entry: %v", err)
	}
	defer b.catalog.Delete(ctx, nil, entry.ID)

	// Counters
	var (
		successCount  atomic.Int32
		conflictCount atomic.Int32
		errorCount    atomic.Int32
	)

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := orderService.PlaceOrder(ctx, entry.ID, 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrConflict):
				conflictCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	conflicts := conflictCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", driver)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", conflicts)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == int32(initialStock) && conflicts == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, conflicts)
	}

	// Verify final stock
	final, err := b.catalog.FindByID(ctx, nil, entry.ID)
	if err != nil || final == nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", final.Quantity)

	if final.Quantity == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", final.Quantity)
	}

	_, total, err := b.orders.Search(ctx, domain.OrderFilter{Page: 1, Size: domain.MaxPageSize, CatalogEntryID: entry.ID})
	if err != nil {
		log.Fatalf("failed to count orders: %v", err)
	}
	if total == initialStock {
		fmt.Printf("PASS: %d orders recorded\n", total)
	} else {
		fmt.Printf("FAIL: Expected %d orders recorded, got %d\n", initialStock, total)
	}
}
