//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/migrations"
)

// globalPool is shared by every test in the package, initialized once in TestMain.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres: %v\n", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}
	globalPool = pool

	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// createTenant creates a fresh tenant schema with every migration applied
// and drops it when the test finishes.
func createTenant(t *testing.T, prefix string) string {
	t.Helper()
	ctx := context.Background()
	tenantID := fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.New().String()[:8], "-", ""))

	if err := db.CreateTenantSchema(ctx, globalPool, tenantID, db.NewMigrator(globalPool, migrations.FS)); err != nil {
		t.Fatalf("create tenant schema %s: %v", tenantID, err)
	}
	t.Cleanup(func() {
		schema := db.SchemaName(tenantID)
		if _, err := globalPool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
	})
	return tenantID
}

// withTenant runs fn with a pooled connection pinned to the tenant schema.
func withTenant(t *testing.T, tenantID string, fn func(ctx context.Context)) {
	t.Helper()
	ctx, release, err := db.AcquireTenant(context.Background(), globalPool, tenantID)
	if err != nil {
		t.Fatalf("acquire tenant %s: %v", tenantID, err)
	}
	defer release()
	fn(ctx)
}

func registerPatient(t *testing.T, ctx context.Context, svc *patient.Service, first, phone string) *patient.Patient {
	t.Helper()
	p := &patient.Patient{FirstName: first, LastName: "Test", Gender: patient.GenderFemale, Phone: phone, Age: ptrInt(40)}
	if err := svc.Register(ctx, p); err != nil {
		t.Fatalf("register patient %s: %v", first, err)
	}
	return p
}

func ptrStr(s string) *string { return &s }

func ptrInt(i int) *int { return &i }
