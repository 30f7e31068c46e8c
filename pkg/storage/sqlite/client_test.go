package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"marketdesk/pkg/storage"
	"marketdesk/pkg/storage/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run ^TestSettingsRoundTrip$
func TestSettingsRoundTrip(t *testing.T) {
	client, err := sqlite.InitializeAndMigrate(filepath.Join(t.TempDir(), "data", "marketdesk.db"))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	assert.True(t, client.IsHealthy(ctx))

	settings := storage.NewSettings(client.DB)

	_, ok, err := settings.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, settings.Put(ctx, "k", `{"a":1}`))
	require.NoError(t, settings.Put(ctx, "k", `{"a":2}`))

	v, ok, err := settings.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":2}`, v)

	require.NoError(t, settings.Delete(ctx, "k"))
	_, ok, err = settings.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
