package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables used by the deal service
const Schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	product_key               TEXT NOT NULL,
	user_identifier           TEXT NOT NULL,
	channel                   TEXT NOT NULL,
	product_name              TEXT NOT NULL,
	desired_discount_fraction DOUBLE PRECISION NOT NULL
		CHECK (desired_discount_fraction > 0 AND desired_discount_fraction <= 1),
	last_known_prices         JSONB NOT NULL DEFAULT '{}'::jsonb,
	notified_for_price        JSONB NOT NULL DEFAULT '{}'::jsonb,
	alert_reference_prices    JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (product_key, user_identifier, channel)
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_product_key ON subscriptions (product_key);
`

// Migrate applies Schema on p
func Migrate(ctx context.Context, p *pgxpool.Pool) error {
	if _, err := p.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
