//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgImage    = "postgres:16-alpine"
	pgUser     = "hms"
	pgPassword = "hms"
	pgDatabase = "hmstest"
)

// startPostgres returns a connection string for the test database. It uses
// HMS_TEST_DATABASE_URL when set, otherwise a throwaway container published
// on a Docker-assigned loopback port.
func startPostgres(ctx context.Context) (string, func(), error) {
	if url := os.Getenv("HMS_TEST_DATABASE_URL"); url != "" {
		return url, func() {}, waitForPostgres(ctx, url, 10*time.Second)
	}

	out, err := docker(ctx, "run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER="+pgUser,
		"-e", "POSTGRES_PASSWORD="+pgPassword,
		"-e", "POSTGRES_DB="+pgDatabase,
		pgImage,
	)
	if err != nil {
		return "", nil, err
	}
	id := out
	stop := func() {
		_, _ = docker(context.Background(), "stop", id)
	}

	addr, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		stop()
		return "", nil, err
	}
	// docker port may print one line per address family
	addr = strings.SplitN(addr, "\n", 2)[0]

	url := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgUser, pgPassword, addr, pgDatabase)
	if err := waitForPostgres(ctx, url, 30*time.Second); err != nil {
		stop()
		return "", nil, err
	}
	return url, stop, nil
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, out)
	}
	return strings.TrimSpace(string(out)), nil
}

func waitForPostgres(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		pool, err := pgxpool.New(ctx, url)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %v: %w", timeout, err)
		case <-tick.C:
		}
	}
}
