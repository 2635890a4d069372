package core_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"invoice-reconciler/internal/core"
	"invoice-reconciler/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database; these tests truncate every table.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err, "connect to test database")

	_, err = migrations.Apply(ctx, pool)
	require.NoError(t, err, "apply migrations")

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE reconciliation_audit, ap_record_lines, ap_records, account_rules,
		               purchase_order_lines, purchase_orders, products, vendors, companies
		RESTART IDENTITY CASCADE;

		INSERT INTO companies (id, company_code, name, base_currency) VALUES (1, '1000', 'Test Company', 'USD');
		INSERT INTO vendors (id, company_id, code, name) VALUES (1, 1, 'V001', 'ACME SUPPLIER');
		INSERT INTO products (id, company_id, code, name) VALUES (1, 1, 'WID-100', 'Widget');

		INSERT INTO purchase_orders (id, company_id, vendor_id, po_number, po_date, total_transaction)
		VALUES (1, 1, 1, 'AZ0034630001', '2024-02-20', 1000.00);
		INSERT INTO purchase_order_lines (order_id, line_number, product_id, description, quantity, unit_cost)
		VALUES (1, 1, 1, NULL, 100, 10.00);
	`)
	require.NoError(t, err, "seed test database")

	return pool
}

func TestOrderReader_GetOrder(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	reader := core.NewOrderReader(pool)

	order, err := reader.GetOrder(ctx, "1000", "AZ003463-0001")
	require.NoError(t, err)
	assert.Equal(t, "AZ0034630001", order.OrderNumber)
	assert.Equal(t, "ACME SUPPLIER", order.SupplierName)
	assert.Equal(t, time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC), order.OrderDate.UTC())
	require.NotNil(t, order.ExpectedTotal)
	assert.True(t, d("1000").Equal(*order.ExpectedTotal))
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "WID-100", order.Lines[0].SKU)
	assert.Equal(t, "Widget", order.Lines[0].Description)

	_, err = reader.GetOrder(ctx, "1000", "AZ999")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)

	_, err = reader.GetOrder(ctx, "1000", "--")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
}

func draftRecord(t *testing.T) *core.APRecord {
	match, breakdown := scenarioA()
	rec, err := newBuilder(nil).Build(context.Background(), match, breakdown)
	require.NoError(t, err)
	return rec
}

func TestAPRecordStore_CreateGetList(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	store := core.NewAPRecordStore(pool)
	rec := draftRecord(t)

	exists, err := store.Exists(ctx, "1000", rec.Key())
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Create(ctx, "1000", rec))
	assert.NotZero(t, rec.ID)
	assert.NotEmpty(t, rec.PublicID)
	assert.Equal(t, core.APStatusCreated, rec.Status)

	exists, err = store.ForCompany("1000").Exists(ctx, rec.Key())
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.Get(ctx, "1000", rec.PublicID)
	require.NoError(t, err)
	assert.Equal(t, rec.OrderNumber, got.OrderNumber)
	assert.Equal(t, core.ConfidenceExact, got.Confidence)
	require.Len(t, got.LinePostings, 3)
	assert.Equal(t, "5315", got.LinePostings[1].AccountCode)
	assert.True(t, d("50").Equal(got.LinePostings[1].Amount))
	assert.True(t, d("1000").Equal(got.Breakdown.Amount(core.CategoryInventory)))

	list, err := store.List(ctx, "1000", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.PublicID, list[0].PublicID)

	_, err = store.Get(ctx, "1000", "not-a-uuid")
	assert.ErrorIs(t, err, core.ErrAPRecordNotFound)
}

func TestAPRecordStore_DuplicateIsRejected(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	store := core.NewAPRecordStore(pool)
	require.NoError(t, store.Create(ctx, "1000", draftRecord(t)))

	// The builder sees the committed key.
	match, breakdown := scenarioA()
	_, err := newBuilder(store.ForCompany("1000")).Build(ctx, match, breakdown)
	assert.ErrorIs(t, err, core.ErrDuplicateAPRecord)

	// Bypassing the builder still cannot create a second row.
	err = store.Create(ctx, "1000", draftRecord(t))
	assert.ErrorIs(t, err, core.ErrDuplicateAPRecord)
}

func TestAPRecordStore_ConcurrentCreateCommitsOnce(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	store := core.NewAPRecordStore(pool)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		dupes    int
		failures []error
	)
	for i := 0; i < workers; i++ {
		rec := draftRecord(t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Create(ctx, "1000", rec)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, core.ErrDuplicateAPRecord):
				dupes++
			default:
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, failures)
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, dupes)
}

func TestAuditLog_Record(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	_, breakdown := scenarioA()
	audit := core.NewAuditLog(pool)
	err := audit.Record(ctx, core.AuditEntry{
		CompanyCode:    "1000",
		OrderNumber:    "AZ003422",
		InvoiceNumber:  "AZ003422",
		Outcome:        core.AuditFailed,
		Reason:         core.FailureMissingAccountCode,
		Confidence:     core.ConfidenceExact,
		CandidateCount: 2,
		Breakdown:      &breakdown,
	})
	require.NoError(t, err)

	require.NoError(t, audit.Record(ctx, core.AuditEntry{CompanyCode: "1000", OrderNumber: "AZ1", Outcome: core.AuditFailed, Reason: core.FailureNoMatch}))

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM reconciliation_audit WHERE company_id = 1").Scan(&count))
	assert.Equal(t, 2, count)
}
