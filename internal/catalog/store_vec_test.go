//go:build sqlite_vec && cgo

package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"presupuestor/internal/embedding"
	"presupuestor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wideEngine pads the deterministic axis vectors out to the vec0 table
// dimensionality so rows actually land in the virtual tables.
type wideEngine struct {
	fakeEngine
}

func (w *wideEngine) pad(vec []float32) []float32 {
	out := make([]float32, embedding.DefaultDimensions)
	copy(out, vec)
	return out
}

func (w *wideEngine) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := w.fakeEngine.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return w.pad(vec), nil
}

func (w *wideEngine) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := w.fakeEngine.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range vecs {
		vecs[i] = w.pad(vecs[i])
	}
	return vecs, nil
}

func (w *wideEngine) Dimensions() int { return embedding.DefaultDimensions }

func newVecStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "vec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.True(t, s.vectorExt, "sqlite-vec extension not active")
	s.SetEmbeddingEngine(&wideEngine{})
	return s
}

func TestImportLabor_ReplacementClearsVecRows(t *testing.T) {
	s := newVecStore(t)

	item := types.LaborCandidate{Code: "PQ-01", Description: "Instalacion de parquet de roble", Unit: "m2", PriceTotal: 45.00}
	require.NoError(t, s.ImportLabor(context.Background(), []types.LaborCandidate{item}, 2025))
	item.PriceTotal = 47.00
	require.NoError(t, s.ImportLabor(context.Background(), []types.LaborCandidate{item}, 2025))

	var vecRows int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM vec_labor").Scan(&vecRows))
	assert.Equal(t, 1, vecRows, "replaced row must not leave a stale vec mirror")

	got := s.SearchLabor(context.Background(), "parquet de roble", 5, Filters{})
	require.Len(t, got, 1)
	assert.Equal(t, 47.00, got[0].PriceTotal)
}

func TestImportMaterials_ReplacementClearsVecRows(t *testing.T) {
	s := newVecStore(t)

	item := types.MaterialCandidate{SKU: "KB-2210", Name: "Azulejo Keraben", Description: "Azulejo ceramico 30x60", Price: 18.40, Unit: "m2"}
	require.NoError(t, s.ImportMaterials(context.Background(), []types.MaterialCandidate{item}))
	item.Price = 19.10
	require.NoError(t, s.ImportMaterials(context.Background(), []types.MaterialCandidate{item}))

	var vecRows int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM vec_materials").Scan(&vecRows))
	assert.Equal(t, 1, vecRows)

	got := s.SearchMaterials(context.Background(), "azulejo ceramico", 5, Filters{})
	require.Len(t, got, 1)
	assert.Equal(t, 19.10, got[0].Price)
}
