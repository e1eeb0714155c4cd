package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/store/sqlite"
	"github.com/vpbank/linkcrawler/store/storetest"
)

func TestStore(t *testing.T) {
	s, err := sqlite.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storetest.Run(t, s)
}

func TestStore_ReopenKeepsCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawler.db")
	ctx := context.Background()

	s, err := sqlite.Open(path, nil)
	require.NoError(t, err)
	_, err = s.AdvanceCycle(ctx, 0)
	require.NoError(t, err)
	_, err = s.UpsertDevice(ctx, models.Device{Name: "PE1", IP: "10.0.0.1"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = sqlite.Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.CurrentCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	devs, err := s.ListDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devs, 1)
}
