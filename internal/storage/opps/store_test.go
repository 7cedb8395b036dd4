package opps

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandevgo/oppsbot/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "opportunities.csv"))
	require.NoError(t, err)
	s.now = func() time.Time {
		return time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	}
	return s
}

func TestCreateAssignsUniqueIDs(t *testing.T) {
	s := newTestStore(t)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		id, err := s.Create(core.Opportunity{
			CustomerName: "SingTel",
			OppName:      "Deal " + string(rune('A'+i)),
			DealSize:     50000,
		})
		require.NoError(t, err)
		assert.False(t, seen[id], "id %s assigned twice", id)
		seen[id] = true
	}
}

func TestCreateRejectsDuplicateCallerID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(core.Opportunity{OppID: "X-1", OppName: "Alpha", CustomerName: "NTU"})
	require.NoError(t, err)

	_, err = s.Create(core.Opportunity{OppID: "x-1", OppName: "Beta", CustomerName: "NTU"})
	require.ErrorIs(t, err, core.ErrDuplicateID)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(core.Opportunity{OppName: "AI Platform", CustomerName: "NTU"})
	require.NoError(t, err)

	_, err = s.Create(core.Opportunity{OppName: "ai platform", CustomerName: "SingTel"})
	require.ErrorIs(t, err, core.ErrDuplicateID)
}

func TestUpdateTouchesOnlyNamedFields(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(core.Opportunity{
		CustomerName: "Acme",
		OppName:      "Acme Portal",
		DealSize:     50000,
		Deadline:     "2026-09-01",
		Stage:        "Proposal",
	})
	require.NoError(t, err)

	size := 75000.0
	_, err = s.Update(id, "", core.OpportunityUpdate{DealSize: &size})
	require.NoError(t, err)

	rows, err := s.Query("SELECT customer_name, deal_size, deadline, stage FROM opportunities WHERE opp_id = '" + id + "'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Acme", "75000", "2026-09-01", "Proposal"}, rows[0].Values)
}

func TestUpdateByNameWhenIDUnknown(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(core.Opportunity{CustomerName: "NTU", OppName: "Build AI Agents"})
	require.NoError(t, err)

	id, err := s.Update("", "build ai agents", core.OpportunityUpdate{Stage: "Won"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestUpdateNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Update("OPP-9999", "", core.OpportunityUpdate{Stage: "Won"})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateWithoutIdentifier(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Update("", "", core.OpportunityUpdate{Stage: "Won"})
	require.Error(t, err)
}

func TestDetailsAppendSemantics(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(core.Opportunity{CustomerName: "Acme", OppName: "Acme Portal"})
	require.NoError(t, err)

	// Appending onto empty details must not add a leading newline.
	_, err = s.Update(id, "", core.OpportunityUpdate{Details: "called client"})
	require.NoError(t, err)
	assert.Equal(t, "called client", s.rows[0].Details)

	_, err = s.Update(id, "", core.OpportunityUpdate{Details: "sent proposal"})
	require.NoError(t, err)
	assert.Equal(t, "called client\nsent proposal", s.rows[0].Details)

	_, err = s.Update(id, "", core.OpportunityUpdate{Details: "won deal"})
	require.NoError(t, err)
	assert.Equal(t, "called client\nsent proposal\nwon deal", s.rows[0].Details)
}

func TestCreateAutoIDSkipsCallerSuppliedIDs(t *testing.T) {
	s := newTestStore(t)

	// A caller-supplied id squatting on the next running number must
	// not be handed out again by auto-assignment.
	_, err := s.Create(core.Opportunity{OppID: "OPP-0002", OppName: "Alpha", CustomerName: "NTU"})
	require.NoError(t, err)

	id, err := s.Create(core.Opportunity{OppName: "Beta", CustomerName: "NTU"})
	require.NoError(t, err)
	assert.NotEqual(t, "OPP-0002", id)

	id2, err := s.Create(core.Opportunity{OppName: "Gamma", CustomerName: "NTU"})
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
	assert.NotEqual(t, "OPP-0002", id2)
}

func TestNewOppIDRenames(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(core.Opportunity{CustomerName: "Acme", OppName: "Acme Portal"})
	require.NoError(t, err)

	newID, err := s.Update(id, "", core.OpportunityUpdate{NewOppID: "CRM-77"})
	require.NoError(t, err)
	assert.Equal(t, "CRM-77", newID)

	_, err = s.Update(id, "", core.OpportunityUpdate{Stage: "Won"})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestNewOppIDRejectsCollision(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(core.Opportunity{OppID: "A-1", OppName: "Alpha"})
	require.NoError(t, err)
	_, err = s.Create(core.Opportunity{OppID: "B-1", OppName: "Beta"})
	require.NoError(t, err)

	_, err = s.Update("B-1", "", core.OpportunityUpdate{NewOppID: "A-1"})
	require.ErrorIs(t, err, core.ErrDuplicateID)
}

func TestNewOppNameRenames(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(core.Opportunity{CustomerName: "Acme", OppName: "Acme Portal"})
	require.NoError(t, err)

	_, err = s.Update(id, "", core.OpportunityUpdate{NewOppName: "Acme Portal Phase 2"})
	require.NoError(t, err)

	rows, err := s.Query("SELECT opp_name FROM opportunities WHERE opp_id = '" + id + "'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme Portal Phase 2", rows[0].Values[0])

	// The record is reachable by its new name, not the old one.
	_, err = s.Update("", "acme portal phase 2", core.OpportunityUpdate{Stage: "proposal"})
	require.NoError(t, err)
	_, err = s.Update("", "Acme Portal", core.OpportunityUpdate{Stage: "proposal"})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestNewOppNameRejectsCollision(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(core.Opportunity{OppID: "A-1", OppName: "Alpha"})
	require.NoError(t, err)
	_, err = s.Create(core.Opportunity{OppID: "B-1", OppName: "Beta"})
	require.NoError(t, err)

	_, err = s.Update("B-1", "", core.OpportunityUpdate{NewOppName: "alpha"})
	require.ErrorIs(t, err, core.ErrDuplicateID)

	// Re-casing a record's own name is not a collision.
	_, err = s.Update("B-1", "", core.OpportunityUpdate{NewOppName: "BETA"})
	require.NoError(t, err)
}

func TestUpdateAmbiguousName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opportunities.csv")

	// Duplicate names cannot be created through the store, but a
	// hand-edited file can carry them; updates by that name must refuse
	// to guess.
	csv := "no,created_at,customer_name,opp_id,opp_name,deal_size,deadline,stage,status,am_name,last_action_date,details\n" +
		"1,2026-08-01T00:00:00Z,Acme,O1,Portal,1000,2026-09-01,proposal,open,May,2026-08-01,\n" +
		"2,2026-08-02T00:00:00Z,Acme,O2,portal,2000,2026-10-01,proposal,open,May,2026-08-02,\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	s, err := NewStore(path)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	_, err = s.Update("", "Portal", core.OpportunityUpdate{Stage: "negotiation"})
	require.ErrorIs(t, err, core.ErrAmbiguous)

	// By id each record is still reachable.
	_, err = s.Update("O2", "", core.OpportunityUpdate{Stage: "negotiation"})
	require.NoError(t, err)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opportunities.csv")

	s, err := NewStore(path)
	require.NoError(t, err)

	id, err := s.Create(core.Opportunity{
		CustomerName: "U Mobile",
		OppName:      "5G Rollout",
		DealSize:     1200000,
		Deadline:     "2026-12-01",
		Details:      "tender briefing done",
	})
	require.NoError(t, err)

	reloaded, err := NewStore(path)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())

	rows, err := reloaded.Query("SELECT opp_id, opp_name, deal_size, details FROM opportunities")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{id, "5G Rollout", "1200000", "tender briefing done"}, rows[0].Values)
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "nope.csv"))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opportunities.csv")
	require.NoError(t, os.WriteFile(path, []byte("not,a,valid\nheader"), 0644))

	s, err := NewStore(path)
	require.ErrorIs(t, err, core.ErrStorageUnavailable)
	// The store is still usable with an empty collection.
	assert.Equal(t, 0, s.Len())
}

func TestSaveKeepsFileReadableAfterEveryMutation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opportunities.csv")

	s, err := NewStore(path)
	require.NoError(t, err)

	_, err = s.Create(core.Opportunity{OppName: "Alpha", CustomerName: "NTU", Details: "line one\nline two"})
	require.NoError(t, err)

	// Multiline details survive the CSV round trip.
	reloaded, err := NewStore(path)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
	assert.Equal(t, "line one\nline two", reloaded.rows[0].Details)
}
