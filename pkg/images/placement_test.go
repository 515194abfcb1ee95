package images

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/cyris/pkg/types"
)

func openTestTable(t *testing.T) *PlacementTable {
	t.Helper()
	path := filepath.Join(t.TempDir(), "placement.db")
	table, err := OpenPlacementTable(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })
	return table
}

func TestPlacementTablePutGetRoundtrip(t *testing.T) {
	table := openTestTable(t)

	rec := types.ImageRecord{
		Fingerprint: "abc123",
		HostID:      "host-1",
		Path:        "/var/lib/cyris/images/abc123.qcow2",
		SizeBytes:   1024,
		PlacedAt:    time.Now().Truncate(time.Second),
	}
	require.NoError(t, table.Put(rec))

	got, ok, err := table.Get("abc123", "host-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.Path, got.Path)
	require.Equal(t, rec.SizeBytes, got.SizeBytes)
}

func TestPlacementTableMissingRecord(t *testing.T) {
	table := openTestTable(t)

	_, ok, err := table.Get("nope", "host-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlacementTableDeleteAndList(t *testing.T) {
	table := openTestTable(t)

	require.NoError(t, table.Put(types.ImageRecord{Fingerprint: "fp1", HostID: "host-1", Path: "/a"}))
	require.NoError(t, table.Put(types.ImageRecord{Fingerprint: "fp2", HostID: "host-2", Path: "/b"}))

	all, err := table.List()
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, table.Delete("fp1", "host-1"))

	remaining, err := table.List()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "fp2", remaining[0].Fingerprint)
}
