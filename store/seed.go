package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// DefaultSeedRows is enough data to make aggregate queries interesting.
const DefaultSeedRows = 2000

const createTransactions = `CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	amount_cents INTEGER,
	currency TEXT,
	status TEXT,
	payment_method TEXT,
	country_code TEXT,
	customer_email TEXT,
	description TEXT,
	created_at DATETIME
);`

const insertTransaction = `INSERT INTO transactions
	(id, amount_cents, currency, status, payment_method, country_code, customer_email, description, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Weighted value pools approximating a real payments distribution.
var (
	currencies      = []any{"USD", "EUR", "GBP"}
	currencyWeights = []float32{0.6, 0.3, 0.1}

	statuses      = []any{"succeeded", "failed", "pending", "refunded"}
	statusWeights = []float32{0.85, 0.10, 0.03, 0.02}

	methods       = []any{"card", "paypal", "sofort", "ideal", "apple_pay"}
	methodWeights = []float32{0.7, 0.1, 0.1, 0.05, 0.05}

	countries      = []any{"US", "DE", "FR", "GB", "BR", "JP"}
	countryWeights = []float32{0.5, 0.2, 0.1, 0.1, 0.05, 0.05}
)

// Seed creates the transactions table if needed and fills it with n fake
// rows. Seeding is idempotent: when the table already holds rows, nothing is
// inserted and the existing count is returned.
func (s *Store) Seed(ctx context.Context, n int) (int, error) {
	if _, err := s.db.ExecContext(ctx, createTransactions); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM transactions").Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	if count > 0 {
		return count, nil
	}

	faker := gofakeit.New(0)
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertTransaction)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		currency := weighted(faker, currencies, currencyWeights)
		status := weighted(faker, statuses, statusWeights)
		method := weighted(faker, methods, methodWeights)
		country := weighted(faker, countries, countryWeights)

		// German transactions skew toward sofort.
		if country == "DE" && faker.Bool() {
			method = "sofort"
		}

		createdAt := now.AddDate(0, 0, -faker.Number(0, 60))

		_, err := stmt.ExecContext(ctx,
			txID(),
			faker.Number(500, 50000),
			currency,
			status,
			method,
			country,
			faker.Email(),
			"Payment for "+faker.BS(),
			createdAt.Format("2006-01-02 15:04:05"),
		)
		if err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return n, nil
}

// weighted draws from options according to weights. The pools above are
// static and well-formed, so a draw never fails; falling back to the first
// option keeps the signature simple.
func weighted(f *gofakeit.Faker, options []any, weights []float32) string {
	v, err := f.Weighted(options, weights)
	if err != nil {
		return options[0].(string)
	}
	return v.(string)
}

// txID generates a Stripe-like transaction id, tx_ plus 16 hex characters.
func txID() string {
	return "tx_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
