package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/app"
	"github.com/rl1809/dapr-shop/internal/config"
	"github.com/rl1809/dapr-shop/internal/core/domain"
	"github.com/rl1809/dapr-shop/internal/core/service"
	"github.com/rl1809/dapr-shop/internal/logging"
)

const (
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	// STATE_BACKEND selects the store under test; memory by default
	cfg := config.Load("")
	logger, err := logging.New("stress-test", "warn", "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open infrastructure", zap.Error(err))
	}
	defer infra.Close()

	inventory := service.NewInventoryService(infra.Store, infra.Publisher, logger, cfg.LowStockThreshold)
	orders := service.NewOrderService(infra.Store, inventory, infra.Publisher, logger, service.OrderOptions{
		AtomicReservation: true,
	})

	product, err := inventory.Create(ctx, domain.ProductInput{
		Name:        "Stress Test Item",
		Description: "Contended stock",
		Price:       decimal.RequireFromString("9.99"),
		Quantity:    initialStock,
		Category:    domain.CategoryElectronics,
	})
	if err != nil {
		logger.Fatal("failed to create product", zap.Error(err))
	}

	var successCount, outOfStock, conflicts, otherErrs atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(customer int) {
			defer wg.Done()

			_, err := orders.Create(ctx, fmt.Sprintf("customer-%d", customer),
				[]domain.OrderLine{{ProductID: product.ID, Quantity: 1}})
			if err == nil {
				successCount.Add(1)
				return
			}
			switch domain.KindOf(err) {
			case domain.KindInsufficientStock:
				outOfStock.Add(1)
			case domain.KindConflict:
				conflicts.Add(1)
			default:
				otherErrs.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	final, err := inventory.GetByID(ctx, product.ID)
	if err != nil {
		logger.Fatal("failed to read final stock", zap.Error(err))
	}
	success := int(successCount.Load())

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("State Backend:    %s\n", cfg.StateBackend)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Out of stock:     %d\n", outOfStock.Load())
	fmt.Printf("Conflicts:        %d\n", conflicts.Load())
	fmt.Printf("Other errors:     %d\n", otherErrs.Load())
	fmt.Printf("Final Stock:      %d\n", final.Quantity)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success+final.Quantity == initialStock {
		fmt.Println("PASS: every successful order took exactly one unit")
	} else {
		fmt.Printf("FAIL: %d orders succeeded but stock only dropped by %d\n",
			success, initialStock-final.Quantity)
		os.Exit(1)
	}
	if success > initialStock {
		fmt.Printf("FAIL: oversold, %d orders for %d units\n", success, initialStock)
		os.Exit(1)
	}
}
