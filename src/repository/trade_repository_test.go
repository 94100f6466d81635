package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"gridexecutor/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func TestListTrades(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&TradeRepository{}).WithDB(mockDB)

	createdAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "strategy_id", "trade_id", "order_id", "side", "price", "size", "created_at"}).
		AddRow(1, "grid-1", "t1", "o1", "buy", 59000.0, 0.01, createdAt).
		AddRow(2, "grid-1", "t2", "o2", "sell", 61000.0, 0.01, createdAt.Add(time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trade_records" WHERE strategy_id = $1 ORDER BY id ASC`)).
		WithArgs("grid-1").
		WillReturnRows(rows)

	trades, err := repo.ListTrades(context.Background(), "grid-1")
	if err != nil {
		t.Fatalf("unexpected error listing trades: %v", err)
	}

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].TradeID != "t1" || trades[1].TradeID != "t2" {
		t.Fatalf("trades not returned oldest first: %+v", trades)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestFindTradeByIDNotFound(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&TradeRepository{}).WithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trade_records" WHERE trade_id = $1 ORDER BY "trade_records"."id" LIMIT $2`)).
		WithArgs("missing", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	trade, err := repo.FindTradeByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("not-found must not be an error, got %v", err)
	}
	if trade != nil {
		t.Fatalf("expected nil trade, got %+v", trade)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestSumClosedPairProfit(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&TradeRepository{}).WithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(profit), 0) FROM "trade_pairs" WHERE strategy_id = $1 AND status = $2`)).
		WithArgs("grid-1", model.TradePairStatusClosed).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(17.5))

	total, err := repo.SumClosedPairProfit(context.Background(), "grid-1")
	if err != nil {
		t.Fatalf("unexpected error summing profit: %v", err)
	}
	if total != 17.5 {
		t.Fatalf("expected total 17.5, got %f", total)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestStatusLoadNotFound(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&StatusRepository{}).WithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "strategy_statuses" WHERE strategy_id = $1 ORDER BY "strategy_statuses"."id" LIMIT $2`)).
		WithArgs("grid-1", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	status, err := repo.Load(context.Background(), "grid-1")
	if err != nil {
		t.Fatalf("not-found must not be an error, got %v", err)
	}
	if status != nil {
		t.Fatalf("expected nil status, got %+v", status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestOperationLogFindLatest(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&OperationLogRepository{}).WithDB(mockDB)

	rows := sqlmock.NewRows([]string{"id", "strategy_id", "action", "market_price"}).
		AddRow(9, "grid-1", model.OperationFill, 60100.0).
		AddRow(8, "grid-1", model.OperationPlace, 60000.0)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "operation_logs" WHERE strategy_id = $1 ORDER BY id DESC LIMIT $2`)).
		WithArgs("grid-1", 2).
		WillReturnRows(rows)

	entries, err := repo.FindLatest(context.Background(), "grid-1", 2)
	if err != nil {
		t.Fatalf("unexpected error fetching log: %v", err)
	}

	if len(entries) != 2 || entries[0].Action != model.OperationFill {
		t.Fatalf("entries not returned newest first: %+v", entries)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
