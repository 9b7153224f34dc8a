package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/plantopt/internal/adapters/file"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/ports"
)

var _ ports.ResultStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunResultStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	rec := &domain.RunRecord{ID: "run-1", CreatedAt: time.Now(), Result: &domain.SolveResult{ID: "run-1", Status: domain.StatusInfeasible}}
	require.NoError(t, store.Save(ctx, rec))

	path := filepath.Join(dir, "run-1.json")
	_, err := os.Stat(path)
	require.NoError(t, err, "run file should exist")

	t.Run("No Temp Files Left Behind", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("Overwrite", func(t *testing.T) {
		rec.Label = "second"
		require.NoError(t, store.Save(ctx, rec))
		loaded, err := store.Load(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, "second", loaded.Label)
	})

	t.Run("Rejects Path Traversal", func(t *testing.T) {
		err := store.Save(ctx, &domain.RunRecord{ID: "../escape"})
		assert.Error(t, err)
		_, err = store.Load(ctx, "")
		assert.Error(t, err)
	})

	t.Run("Delete Missing Is Idempotent", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "ghost"))
	})

	t.Run("List Missing Directory", func(t *testing.T) {
		ids, err := file.New(filepath.Join(dir, "nope")).List(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
