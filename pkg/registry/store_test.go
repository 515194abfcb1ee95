package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cyris/pkg/types"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestStorePutGetRangeRoundtrip(t *testing.T) {
	s, _ := openTestStore(t)

	r := types.Range{ID: "r1", Name: "blue-team-1", State: types.RangeStatePending, CreatedAt: time.Unix(0, 0)}
	require.NoError(t, s.PutRange(r))

	got, err := s.GetRange("r1")
	require.NoError(t, err)
	assert.Equal(t, r.Name, got.Name)
	assert.Equal(t, types.RangeStatePending, got.State)
}

func TestStoreGetMissingRangeReturnsResourceError(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.GetRange("nope")
	require.Error(t, err)

	var coreErr *types.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, types.ErrorResource, coreErr.Kind)
}

func TestStoreListGuestsFiltersByRange(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.PutGuest(types.Guest{ID: "g1", RangeID: "r1", State: types.GuestStatePending}))
	require.NoError(t, s.PutGuest(types.Guest{ID: "g2", RangeID: "r2", State: types.GuestStatePending}))

	all, err := s.ListGuests("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyR1, err := s.ListGuests("r1")
	require.NoError(t, err)
	require.Len(t, onlyR1, 1)
	assert.Equal(t, "g1", onlyR1[0].ID)
}

func TestStoreListGuestsByHost(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.PutGuest(types.Guest{ID: "g1", HostID: "h1", State: types.GuestStateRunning}))
	require.NoError(t, s.PutGuest(types.Guest{ID: "g2", HostID: "h2", State: types.GuestStateRunning}))

	onH1, err := s.ListGuestsByHost("h1")
	require.NoError(t, err)
	require.Len(t, onH1, 1)
	assert.Equal(t, "g1", onH1[0].ID)
}

func TestStorePlanSaveIsImmutable(t *testing.T) {
	s, _ := openTestStore(t)

	plan := types.Plan{ID: "p1", RangeID: "r1", Steps: []types.Step{{ID: "s1", Kind: types.StepCreateNetwork}}}
	require.NoError(t, s.SavePlan(plan))

	got, err := s.GetPlan("r1")
	require.NoError(t, err)
	assert.Equal(t, plan.ID, got.ID)
	require.Len(t, got.Steps, 1)

	err = s.SavePlan(plan)
	assert.Error(t, err)
}

func TestStoreOverlayInventoryAccumulates(t *testing.T) {
	s, _ := openTestStore(t)

	require.NoError(t, s.RecordOverlay("r1", "/var/lib/cyris/overlays/g1.qcow2"))
	require.NoError(t, s.RecordOverlay("r1", "/var/lib/cyris/overlays/g2.qcow2"))

	paths, err := s.ListOverlays("r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"/var/lib/cyris/overlays/g1.qcow2",
		"/var/lib/cyris/overlays/g2.qcow2",
	}, paths)
}

func TestStoreReopenReplaysJournal(t *testing.T) {
	s, dir := openTestStore(t)

	require.NoError(t, s.PutRange(types.Range{ID: "r1", Name: "range-1", State: types.RangeStateActive}))
	require.NoError(t, s.PutHost(types.Host{ID: "h1", Name: "host-1", Status: types.HostStatusHealthy}))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	r, err := reopened.GetRange("r1")
	require.NoError(t, err)
	assert.Equal(t, "range-1", r.Name)

	h, err := reopened.GetHost("h1")
	require.NoError(t, err)
	assert.Equal(t, "host-1", h.Name)
}

func TestStoreSurvivesTornFinalJournalLine(t *testing.T) {
	s, dir := openTestStore(t)

	require.NoError(t, s.PutRange(types.Range{ID: "r1", Name: "range-1", State: types.RangeStateActive}))
	require.NoError(t, s.PutRange(types.Range{ID: "r2", Name: "range-2", State: types.RangeStatePending}))
	require.NoError(t, s.Close())

	journalPath := filepath.Join(dir, "journal.log")
	f, err := os.OpenFile(journalPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"op":"put_range","payload":{"id":"r3","name":"ra`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.GetRange("r1")
	assert.NoError(t, err)
	_, err = reopened.GetRange("r2")
	assert.NoError(t, err)
	_, err = reopened.GetRange("r3")
	assert.Error(t, err)
}

func TestStoreCompactTruncatesJournalAndPreservesState(t *testing.T) {
	s, dir := openTestStore(t)

	require.NoError(t, s.PutRange(types.Range{ID: "r1", Name: "range-1", State: types.RangeStateActive}))
	require.NoError(t, s.Compact())

	info, err := os.Stat(filepath.Join(dir, "journal.log"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	_, err = os.Stat(filepath.Join(dir, "registry.json"))
	require.NoError(t, err)

	require.NoError(t, s.PutHost(types.Host{ID: "h1", Name: "host-1", Status: types.HostStatusHealthy}))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	r, err := reopened.GetRange("r1")
	require.NoError(t, err)
	assert.Equal(t, "range-1", r.Name)

	h, err := reopened.GetHost("h1")
	require.NoError(t, err)
	assert.Equal(t, "host-1", h.Name)
}
