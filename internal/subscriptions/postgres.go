package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kosarica/deal-service/internal/types"
)

// PostgresStore keeps subscriptions in the subscriptions table. Price maps are
// stored as JSONB objects keyed by "store|url".
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const selectColumns = `
	product_name, user_identifier, channel, desired_discount_fraction,
	last_known_prices, notified_for_price, alert_reference_prices,
	created_at, updated_at`

// Upsert implements Store
func (s *PostgresStore) Upsert(ctx context.Context, sub *types.Subscription) (bool, error) {
	key := sub.Key()
	now := time.Now().UTC()

	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (
			product_key, user_identifier, channel, product_name,
			desired_discount_fraction, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (product_key, user_identifier, channel) DO UPDATE SET
			desired_discount_fraction = EXCLUDED.desired_discount_fraction,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0)
	`, key.Product, key.UserIdentifier, string(key.Channel), sub.ProductName,
		sub.DesiredDiscountFraction, now).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert subscription %s: %w", key, err)
	}
	return inserted, nil
}

// Get implements Store
func (s *PostgresStore) Get(ctx context.Context, key types.SubscriptionKey) (*types.Subscription, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM subscriptions
		WHERE product_key = $1 AND user_identifier = $2 AND channel = $3`,
		key.Product, key.UserIdentifier, string(key.Channel))
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", key, err)
	}
	return sub, nil
}

// List implements Store
func (s *PostgresStore) List(ctx context.Context) ([]*types.Subscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM subscriptions
		ORDER BY created_at, product_key, user_identifier, channel`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*types.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return out, nil
}

// Update implements Store. The row is locked with SELECT ... FOR UPDATE for
// the duration of fn.
func (s *PostgresStore) Update(ctx context.Context, key types.SubscriptionKey, fn UpdateFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM subscriptions
		WHERE product_key = $1 AND user_identifier = $2 AND channel = $3
		FOR UPDATE`,
		key.Product, key.UserIdentifier, string(key.Channel))
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock subscription %s: %w", key, err)
	}

	if err := fn(sub); err != nil {
		return err
	}

	lastKnown, err := json.Marshal(sub.LastKnownPrices)
	if err != nil {
		return fmt.Errorf("encode last known prices: %w", err)
	}
	notified, err := json.Marshal(sub.NotifiedForPrice)
	if err != nil {
		return fmt.Errorf("encode notified prices: %w", err)
	}
	reference, err := json.Marshal(sub.AlertReferencePrices)
	if err != nil {
		return fmt.Errorf("encode reference prices: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE subscriptions SET
			desired_discount_fraction = $4,
			last_known_prices = $5,
			notified_for_price = $6,
			alert_reference_prices = $7,
			updated_at = $8
		WHERE product_key = $1 AND user_identifier = $2 AND channel = $3
	`, key.Product, key.UserIdentifier, string(key.Channel),
		sub.DesiredDiscountFraction, lastKnown, notified, reference, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update subscription %s: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit subscription %s: %w", key, err)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var (
		sub                            types.Subscription
		channel                        string
		lastKnown, notified, reference []byte
	)
	err := row.Scan(
		&sub.ProductName, &sub.UserIdentifier, &channel, &sub.DesiredDiscountFraction,
		&lastKnown, &notified, &reference,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Channel = types.Channel(channel)

	if sub.LastKnownPrices, err = decodePrices(lastKnown); err != nil {
		return nil, err
	}
	if sub.NotifiedForPrice, err = decodePrices(notified); err != nil {
		return nil, err
	}
	if sub.AlertReferencePrices, err = decodePrices(reference); err != nil {
		return nil, err
	}
	return &sub, nil
}

func decodePrices(data []byte) (map[types.ItemKey]decimal.Decimal, error) {
	m := make(map[types.ItemKey]decimal.Decimal)
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode price map: %w", err)
	}
	if m == nil {
		m = make(map[types.ItemKey]decimal.Decimal)
	}
	return m, nil
}
