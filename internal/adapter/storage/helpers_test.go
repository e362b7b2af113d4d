package storage

import (
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newMock(t *testing.T) (*MySQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewMySQLAdapter(db), mock
}

var productCols = []string{
	"product_id", "name", "description", "price", "quantity", "sizes", "color", "fabric",
	"tags", "discount_percent", "images", "category_id", "subcategory_id", "created_at", "updated_at",
}

func productRows(id int64, name, price string, quantity int, sizes string) *sqlmock.Rows {
	return sqlmock.NewRows(productCols).AddRow(
		id, name, "", price, quantity, sizes, "navy", "cotton",
		`[]`, 0, `[]`, 1, nil, fixedTime, fixedTime,
	)
}

var orderCols = []string{
	"order_id", "order_number", "user_id", "shipping_address", "payment_method",
	"payment_status", "status", "total_amount", "created_at", "updated_at",
}

var orderItemCols = []string{
	"order_item_id", "order_id", "product_id", "product_name", "size", "quantity", "price", "total",
}

func liveDSN() string {
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		return dsn
	}
	return "root:root@tcp(localhost:3306)/storefront?parseTime=true&multiStatements=true&clientFoundRows=true"
}

// openLiveDB connects to MYSQL_DSN with the schema migrated, or skips.
func openLiveDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := liveDSN()

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	migrationDB, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	migrator, err := NewMigrator(migrationDB, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	t.Cleanup(func() { db.Close() })
	return db
}
