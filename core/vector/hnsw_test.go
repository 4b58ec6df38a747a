package vector

import (
	"context"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
)

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func exactTopK(vectors map[int64][]float32, query []float32, k int) []int64 {
	type scored struct {
		id  int64
		sim float64
	}
	qmag := magnitude(query)
	var all []scored
	for id, v := range vectors {
		all = append(all, scored{id, cosineSimilarity(query, v, qmag, magnitude(v))})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].sim != all[j].sim {
			return all[i].sim > all[j].sim
		}
		return all[i].id < all[j].id
	})
	ids := make([]int64, 0, k)
	for _, s := range all[:k] {
		ids = append(ids, s.id)
	}
	return ids
}

func TestIndex_InsertAndSearchSmall(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	require.NoError(t, idx.Insert(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Insert(2, []float32{0, 1, 0}))
	require.NoError(t, idx.Insert(3, []float32{0.9, 0.1, 0}))

	hits := idx.Search([]float32{1, 0, 0}, 2)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, int64(3), hits[1].ID)
}

func TestIndex_RejectsBadVectors(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	assert.ErrorIs(t, idx.Insert(1, nil), ErrEmptyVector)
	assert.ErrorIs(t, idx.Insert(1, []float32{0, 0}), ErrZeroVector)
	require.NoError(t, idx.Insert(1, []float32{1, 0}))
	assert.ErrorIs(t, idx.Insert(2, []float32{1, 0, 0}), ErrDimensionMismatch)
	assert.Equal(t, 1, idx.Len())
}

func TestIndex_SearchEdgeCases(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	assert.Nil(t, idx.Search([]float32{1}, 3), "empty index")

	require.NoError(t, idx.Insert(1, []float32{1, 0}))
	assert.Nil(t, idx.Search([]float32{0, 0}, 3), "zero query")
	assert.Nil(t, idx.Search([]float32{1, 0}, 0))
	assert.Nil(t, idx.Search([]float32{1, 0, 0}, 1), "wrong dimension")
}

func TestIndex_ReplaceAndDelete(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	require.NoError(t, idx.Insert(1, []float32{1, 0}))
	require.NoError(t, idx.Insert(2, []float32{0, 1}))
	require.NoError(t, idx.Insert(1, []float32{0, 1}))
	assert.Equal(t, 2, idx.Len())

	hits := idx.Search([]float32{0, 1}, 2)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID, "tie broken by id")

	assert.True(t, idx.Delete(1))
	assert.False(t, idx.Delete(1))
	hits = idx.Search([]float32{0, 1}, 5)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].ID)

	assert.True(t, idx.Delete(2))
	assert.Nil(t, idx.Search([]float32{0, 1}, 5))
}

func TestIndex_RecallOnLargerGraph(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	idx := NewIndex(Config{M: 16, EfConstruct: 200, EfSearch: 100, Seed: 7})
	vectors := make(map[int64][]float32)
	for id := int64(1); id <= 600; id++ {
		v := randomVector(r, 32)
		vectors[id] = v
		require.NoError(t, idx.Insert(id, v))
	}

	found, total := 0, 0
	for q := 0; q < 20; q++ {
		query := randomVector(r, 32)
		want := exactTopK(vectors, query, 10)
		got := map[int64]bool{}
		for _, h := range idx.Search(query, 10) {
			got[h.ID] = true
		}
		for _, id := range want {
			total++
			if got[id] {
				found++
			}
		}
	}
	assert.GreaterOrEqual(t, float64(found)/float64(total), 0.8)
}

func TestIndex_DeleteKeepsGraphSearchable(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	idx := NewIndex(Config{M: 8, EfConstruct: 100, EfSearch: 40, Seed: 1})
	for id := int64(1); id <= 200; id++ {
		require.NoError(t, idx.Insert(id, randomVector(r, 16)))
	}
	for id := int64(1); id <= 150; id++ {
		require.True(t, idx.Delete(id))
	}

	hits := idx.Search(randomVector(r, 16), 10)
	assert.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Greater(t, h.ID, int64(150))
	}
}

type fakeSource struct {
	rows  []fakeRow
	calls int
}

type fakeRow struct {
	id      int64
	project string
	vec     []float32
}

func (f *fakeSource) EachEmbedding(_ context.Context, projectID string, fn func(int64, string, []float32) error) error {
	f.calls++
	for _, r := range f.rows {
		if projectID != "" && r.project != projectID {
			continue
		}
		if err := fn(r.id, r.project, r.vec); err != nil {
			return err
		}
	}
	return nil
}

func TestBackend_LazyLoadSkipsZeroVectors(t *testing.T) {
	src := &fakeSource{rows: []fakeRow{
		{1, "p", []float32{1, 0}},
		{2, "p", []float32{0, 0}},
		{3, "q", []float32{0, 1}},
	}}
	b := NewBackend(src, DefaultConfig())

	hits, err := b.Search(context.Background(), []float32{1, 0}, 5, "p")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.Equal(t, 1, b.Len("p"))

	_, err = b.Search(context.Background(), []float32{1, 0}, 5, "p")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "loaded once")

	all, err := b.Search(context.Background(), []float32{1, 1}, 5, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBackend_UnknownProjectIsEmpty(t *testing.T) {
	b := NewBackend(&fakeSource{}, DefaultConfig())
	hits, err := b.Search(context.Background(), []float32{1}, 5, "nope")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBackend_FollowsStoreChanges(t *testing.T) {
	src := &fakeSource{rows: []fakeRow{{1, "p", []float32{1, 0}}}}
	b := NewBackend(src, DefaultConfig())
	ctx := context.Background()

	_, err := b.Search(ctx, []float32{1, 0}, 1, "p")
	require.NoError(t, err)

	b.FileReplaced(graph.FileChange{
		ProjectID:  "p",
		RemovedIDs: []int64{1},
		Vectors:    map[int64][]float32{5: {0, 1}, 6: {0, 0}},
	})
	hits, err := b.Search(ctx, []float32{0, 1}, 5, "p")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(5), hits[0].ID)

	b.ProjectDeleted("p")
	assert.Equal(t, 0, b.Len("p"))
}

func TestBackend_ChangeBeforeLoadIsIgnored(t *testing.T) {
	src := &fakeSource{rows: []fakeRow{{1, "p", []float32{1, 0}}}}
	b := NewBackend(src, DefaultConfig())

	b.FileReplaced(graph.FileChange{ProjectID: "p", Vectors: map[int64][]float32{9: {1, 0}}})
	assert.Equal(t, 0, b.Len("p"))

	hits, err := b.Search(context.Background(), []float32{1, 0}, 5, "p")
	require.NoError(t, err)
	assert.Len(t, hits, 1, "store is the source of truth on load")
}
