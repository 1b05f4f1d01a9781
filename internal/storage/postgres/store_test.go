package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"expenses/internal/storage"
	"expenses/internal/storage/storagetest"
)

const envTestDatabaseURL = "EXPENSES_TEST_DATABASE_URL"

func openTest(t *testing.T, opts ...storage.Option) *Store {
	t.Helper()
	url := os.Getenv(envTestDatabaseURL)
	if url == "" {
		t.Skipf("%s not set", envTestDatabaseURL)
	}
	ctx := context.Background()
	s, err := Open(ctx, url, opts...)
	require.NoError(t, err)
	// Tests share one database; start every case from empty tables.
	_, err = s.db.ExecContext(ctx, `TRUNCATE expenses, stats_snapshots`)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, opts ...storage.Option) storage.Store {
		return openTest(t, opts...)
	})
}

func TestSnapshots(t *testing.T) {
	storagetest.RunSnapshots(t, func(t *testing.T) storage.SnapshotStore {
		return openTest(t)
	})
}
