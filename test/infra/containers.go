package infra

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PGContainer wraps a disposable Postgres instance for the stress suite.
// The zero value stands in for an externally supplied database so callers
// can Terminate unconditionally.
type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 provisions a Postgres 16 container and returns its DSN.
// An overrideDSN argument or a DELIVERYDESK_TEST_PG_DSN env var short-circuits
// provisioning and reuses the given database instead.
func StartPostgres16(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	if overrideDSN != "" {
		return &PGContainer{}, overrideDSN, nil
	}
	if dsn := os.Getenv("DELIVERYDESK_TEST_PG_DSN"); dsn != "" {
		return &PGContainer{}, dsn, nil
	}

	pgC, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("deliverydesk_test"),
		postgres.WithUsername("deliverydesk"),
		postgres.WithPassword("deliverydesk"),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", err
	}
	return &PGContainer{C: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
