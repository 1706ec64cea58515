package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend periodically kills a random backend of the stress
// database so actor transactions see mid-flight disconnects. Victims are
// picked from active backends other than the one issuing the kill.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) == 0 {
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid)
					FROM pg_stat_activity
					WHERE datname = current_database() AND pid <> pg_backend_pid()
					ORDER BY random() LIMIT 1`)
			}
		}
	}
}
