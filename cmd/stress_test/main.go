package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/adapter/notify"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	migrateDB, err := sql.Open("mysql", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	m, err := storage.NewMigrator(migrateDB, zap.NewNop())
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	if err := m.Up(); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	_ = m.Close()

	db, err := sql.Open("mysql", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	productID, userIDs := seed(ctx, db)

	dispatcher := service.NewDispatcher(notify.NewLogNotifier(zap.NewNop()), nil, zap.NewNop(), service.DispatcherConfig{
		QueueSize: totalRequests,
	})
	dispatcher.Start()
	defer dispatcher.Close()

	adapter := storage.NewMySQLAdapter(db)
	orderService := service.NewOrderService(adapter, adapter, dispatcher, zap.NewNop(), cfg.Order.TxTimeout)

	var successCount, soldOutCount, errorCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()

			_, err := orderService.CreateOrder(ctx, domain.CreateOrderInput{
				UserID:          userID,
				ShippingAddress: "1 Stress Street",
				PaymentMethod:   domain.PaymentMethodCOD,
				Items:           []domain.LineItem{{ProductID: productID, Quantity: 1}},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("user %d: %v", userID, err)
			}
		}(userIDs[i])
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock {
		fmt.Printf("PASS: exactly %d orders succeeded\n", initialStock)
	} else {
		fmt.Printf("FAIL: expected %d successful orders, got %d\n", initialStock, success)
	}

	var finalStock int
	if err := db.QueryRowContext(ctx, `SELECT quantity FROM products WHERE product_id = ?`, productID).Scan(&finalStock); err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", finalStock)

	if finalStock == 0 {
		fmt.Println("PASS: stock depleted to 0")
	} else {
		fmt.Printf("FAIL: expected stock 0, got %d\n", finalStock)
	}
}

// seed creates one product with initialStock units and a buyer per request.
func seed(ctx context.Context, db *sql.DB) (int64, []int64) {
	suffix := time.Now().UnixNano()

	res, err := db.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?)`, fmt.Sprintf("stress-%d", suffix))
	if err != nil {
		log.Fatalf("failed to seed category: %v", err)
	}
	categoryID, _ := res.LastInsertId()

	res, err = db.ExecContext(ctx, `
		INSERT INTO products (name, description, price, quantity, sizes, tags, images, category_id)
		VALUES ('Stress Test Tee', '', 25.00, ?, '[]', '[]', '[]', ?)`, initialStock, categoryID)
	if err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}
	productID, _ := res.LastInsertId()

	userIDs := make([]int64, 0, totalRequests)
	for i := 0; i < totalRequests; i++ {
		res, err := db.ExecContext(ctx, `
			INSERT INTO users (name, email, password_hash, role) VALUES (?, ?, 'x', 'customer')`,
			fmt.Sprintf("buyer %d", i), fmt.Sprintf("stress-%d-%d@example.com", suffix, i))
		if err != nil {
			log.Fatalf("failed to seed user: %v", err)
		}
		id, _ := res.LastInsertId()
		userIDs = append(userIDs, id)
	}
	return productID, userIDs
}
