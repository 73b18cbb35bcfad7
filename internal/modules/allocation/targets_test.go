package allocation

import (
	"testing"

	testingpkg "github.com/aristath/ledger/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTargetRepository(t *testing.T) *TargetRepository {
	db := testingpkg.NewMemoryDB(t, "ledger")
	return NewTargetRepository(db, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestTargetRepository_UpsertAndGet(t *testing.T) {
	repo := newTestTargetRepository(t)

	require.NoError(t, repo.SetTargets(TargetSector, map[string]decimal.Decimal{
		"Technology": dec("35"),
		"Healthcare": dec("15.5"),
	}))
	require.NoError(t, repo.Upsert(Target{Type: TargetGeography, Name: "Europe", TargetPct: dec("40")}))

	targets, err := repo.GetByType(TargetSector)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "Healthcare", targets[0].Name)
	assert.True(t, targets[0].TargetPct.Equal(dec("15.5")))
	assert.False(t, targets[0].CreatedAt.IsZero())

	require.NoError(t, repo.Upsert(Target{Type: TargetSector, Name: "Technology", TargetPct: dec("30")}))
	sectors, err := repo.GetTargets(TargetSector)
	require.NoError(t, err)
	assert.True(t, sectors["Technology"].Equal(dec("30")))
	assert.Len(t, sectors, 2)

	geo, err := repo.GetTargets(TargetGeography)
	require.NoError(t, err)
	assert.Len(t, geo, 1)
}

func TestTargetRepository_UpsertRejectsOutOfRange(t *testing.T) {
	repo := newTestTargetRepository(t)

	assert.Error(t, repo.Upsert(Target{Type: TargetSector, Name: "Tech", TargetPct: dec("101")}))
	assert.Error(t, repo.Upsert(Target{Type: TargetSector, Name: "Tech", TargetPct: dec("-1")}))
}

func TestTargetRepository_Delete(t *testing.T) {
	repo := newTestTargetRepository(t)
	require.NoError(t, repo.Upsert(Target{Type: TargetSector, Name: "Energy", TargetPct: dec("10")}))

	require.NoError(t, repo.Delete(TargetSector, "Energy"))
	require.NoError(t, repo.Delete(TargetSector, "Energy"), "deleting a missing target is not an error")

	targets, err := repo.GetTargets(TargetSector)
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestTargetRepository_Groups(t *testing.T) {
	repo := newTestTargetRepository(t)

	require.NoError(t, repo.SetGroup(TargetGeography, "Europe", []string{"Germany", "France"}))
	require.NoError(t, repo.SetGroup(TargetGeography, "Americas", []string{"United States"}))
	require.NoError(t, repo.SetGroup(TargetGeography, "Europe", []string{"Netherlands", "Germany"}))

	groups, err := repo.GetGroups(TargetGeography)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"Americas": {"United States"},
		"Europe":   {"Germany", "Netherlands"},
	}, groups)

	empty, err := repo.GetGroups(TargetSector)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
