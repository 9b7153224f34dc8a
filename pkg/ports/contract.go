package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunResultStoreContract runs a suite of tests to verify that a ResultStore implementation
// adheres to the defined interface contract.
func RunResultStoreContract(t *testing.T, store ResultStore) {
	ctx := context.Background()
	prefix := "contract-run-" + time.Now().Format("20060102150405")

	record := func(id string, at time.Time) *domain.RunRecord {
		return &domain.RunRecord{
			ID:        id,
			Label:     "two-stage",
			CreatedAt: at,
			Result: &domain.SolveResult{
				ID:        id,
				Status:    domain.StatusOptimal,
				Objective: 1300,
				Backend:   domain.BackendSimplex,
				Bundles: map[domain.NodeID]*domain.DecisionBundle{
					0: {Node: 0, Scenario: domain.NoScenario, Purchase: map[string]float64{"crude": 120}, Cost: 1200},
				},
			},
			Outcome: &domain.Outcome{ResultID: id, Status: domain.StatusOptimal, ExpectedObjective: 1300},
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		id := prefix + "-a"
		rec := record(id, time.Now().UTC().Truncate(time.Second))
		require.NoError(t, store.Save(ctx, rec), "Save should not return error")

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, rec.Label, loaded.Label)
		assert.True(t, rec.CreatedAt.Equal(loaded.CreatedAt))
		require.NotNil(t, loaded.Result)
		assert.Equal(t, domain.StatusOptimal, loaded.Result.Status)
		assert.InDelta(t, 1300, loaded.Result.Objective, 1e-9)
		require.Contains(t, loaded.Result.Bundles, domain.NodeID(0))
		assert.InDelta(t, 120, loaded.Result.Bundles[0].Purchase["crude"], 1e-9)
		require.NotNil(t, loaded.Outcome)
		assert.InDelta(t, 1300, loaded.Outcome.ExpectedObjective, 1e-9)
	})

	t.Run("Loaded Record Is Isolated", func(t *testing.T) {
		id := prefix + "-iso"
		require.NoError(t, store.Save(ctx, record(id, time.Now())))

		first, err := store.Load(ctx, id)
		require.NoError(t, err)
		first.Result.Bundles[0].Purchase["crude"] = -1

		second, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, 120, second.Result.Bundles[0].Purchase["crude"], 1e-9)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+prefix)
		assert.ErrorIs(t, err, domain.ErrResultNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		id := prefix + "-del"
		require.NoError(t, store.Save(ctx, record(id, time.Now())))

		require.NoError(t, store.Delete(ctx, id), "Delete should not return error")

		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrResultNotFound, "Load after Delete should return ErrResultNotFound")
	})

	t.Run("List", func(t *testing.T) {
		older := prefix + "-old"
		newer := prefix + "-new"
		now := time.Now()
		require.NoError(t, store.Save(ctx, record(older, now.Add(-time.Hour))))
		require.NoError(t, store.Save(ctx, record(newer, now)))
		defer func() {
			_ = store.Delete(ctx, older)
			_ = store.Delete(ctx, newer)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		require.Contains(t, ids, older)
		require.Contains(t, ids, newer)
		assert.Less(t, indexOf(ids, newer), indexOf(ids, older), "most recent first")
	})
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
