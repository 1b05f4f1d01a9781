package commands

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/metrics"
)

func openTestService(t *testing.T, backendType string) *app {
	t.Helper()
	t.Setenv("DATA_BACKEND", backendType)
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "expenses.db"))
	t.Setenv("AMQP_URL", "")

	a := &app{logOut: io.Discard}
	require.NoError(t, a.init())
	return a
}

func TestSharedStoreWithoutEventsIsUncached(t *testing.T) {
	a := openTestService(t, "sqlite")
	svc, res, err := a.openService(context.Background(), metrics.New())
	require.NoError(t, err)
	defer a.closeService(svc)

	assert.Nil(t, res.Events)
	assert.False(t, svc.CachingResults())
}

func TestMemoryStoreKeepsCache(t *testing.T) {
	a := openTestService(t, "memory")
	svc, _, err := a.openService(context.Background(), metrics.New())
	require.NoError(t, err)
	defer a.closeService(svc)

	assert.True(t, svc.CachingResults())
}

func TestInvalidateOnChange(t *testing.T) {
	ctx := context.Background()
	a := openTestService(t, "memory")
	svc, res, err := a.openService(ctx, metrics.New())
	require.NoError(t, err)
	defer a.closeService(svc)

	before, err := svc.Stats(ctx, svc.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, before.TotalExpenses)

	// Written behind the service's back, as another process would.
	_, err = res.Store.Insert(ctx, core.ExpenseInput{
		Amount: 7, Description: "Coffee", Category: core.Food, Date: core.DateOf(svc.Now()),
	})
	require.NoError(t, err)

	handle := invalidateOnChange(svc)
	require.NoError(t, handle(ctx, amqp.ChangeEvent{Op: amqp.OpCreated}))

	after, err := svc.Stats(ctx, svc.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, after.TotalExpenses)
}
