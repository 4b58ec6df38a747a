// Package vector keeps symbol embeddings in Hierarchical Navigable Small World
// graphs for approximate k-nearest-neighbour search by cosine similarity.
package vector

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

var (
	ErrEmptyVector       = errors.New("vector: vector cannot be empty")
	ErrZeroVector        = errors.New("vector: zero vector has no direction")
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")
)

type Config struct {
	M           int
	EfConstruct int
	EfSearch    int
	// Seed makes level assignment reproducible.
	Seed int64
}

func DefaultConfig() Config {
	return Config{M: 16, EfConstruct: 200, EfSearch: 50, Seed: 1}
}

// Hit is one search result.
type Hit struct {
	ID         int64
	Similarity float64
}

// Index is a single HNSW graph. It is safe for concurrent use.
type Index struct {
	mu          sync.RWMutex
	layers      []*layer
	vectors     map[int64][]float32
	magnitudes  map[int64]float64
	levels      map[int64]int
	m           int
	efConstruct int
	efSearch    int
	levelMult   float64
	maxLevel    int
	entryPoint  int64
	hasEntry    bool
	dimension   int
	rng         *rand.Rand
}

func NewIndex(cfg Config) *Index {
	def := DefaultConfig()
	if cfg.M <= 1 {
		cfg.M = def.M
	}
	if cfg.EfConstruct <= 0 {
		cfg.EfConstruct = def.EfConstruct
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = def.EfSearch
	}
	return &Index{
		vectors:     make(map[int64][]float32),
		magnitudes:  make(map[int64]float64),
		levels:      make(map[int64]int),
		m:           cfg.M,
		efConstruct: cfg.EfConstruct,
		efSearch:    cfg.EfSearch,
		levelMult:   1 / math.Log(float64(cfg.M)),
		maxLevel:    -1,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.vectors)
}

func (h *Index) Contains(id int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.vectors[id]
	return ok
}

// Insert adds or replaces the vector for id. Zero vectors are rejected.
func (h *Index) Insert(id int64, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: id %d", ErrEmptyVector, id)
	}
	mag := magnitude(vec)
	if mag == 0 {
		return fmt.Errorf("%w: id %d", ErrZeroVector, id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dimension == 0 {
		h.dimension = len(vec)
	} else if len(vec) != h.dimension {
		return fmt.Errorf("%w: id %d has %d, index has %d", ErrDimensionMismatch, id, len(vec), h.dimension)
	}

	if _, exists := h.vectors[id]; exists {
		h.deleteLocked(id)
	}

	stored := append([]float32(nil), vec...)
	h.vectors[id] = stored
	h.magnitudes[id] = mag

	level := h.randomLevel()
	h.levels[id] = level
	for len(h.layers) <= level {
		h.layers = append(h.layers, newLayer())
	}

	if !h.hasEntry {
		for l := 0; l <= level; l++ {
			h.layers[l].addNode(id)
		}
		h.entryPoint, h.hasEntry, h.maxLevel = id, true, level
		return nil
	}

	curr := h.entryPoint
	currDist := h.distanceTo(stored, mag, curr)
	for l := h.maxLevel; l > level; l-- {
		curr, currDist = h.greedy(stored, mag, curr, currDist, l)
	}

	for l := min(level, h.maxLevel); l >= 0; l-- {
		h.layers[l].addNode(id)
		candidates := h.searchLayer(stored, mag, curr, h.efConstruct, l)
		h.connect(id, candidates, l)
		if len(candidates) > 0 {
			curr = candidates[0].id
		}
	}
	for l := h.maxLevel + 1; l <= level; l++ {
		h.layers[l].addNode(id)
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = id
	}
	return nil
}

// Delete removes id. It reports whether the id was present.
func (h *Index) Delete(id int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.vectors[id]; !ok {
		return false
	}
	h.deleteLocked(id)
	return true
}

func (h *Index) deleteLocked(id int64) {
	for _, l := range h.layers {
		l.removeNode(id)
	}
	delete(h.vectors, id)
	delete(h.magnitudes, id)
	delete(h.levels, id)

	if h.hasEntry && h.entryPoint == id {
		h.hasEntry = false
		for l := len(h.layers) - 1; l >= 0; l-- {
			if next, ok := h.layers[l].anyNode(); ok {
				h.entryPoint, h.hasEntry, h.maxLevel = next, true, l
				break
			}
		}
		if !h.hasEntry {
			h.maxLevel = -1
		}
	}
}

// Search returns up to k ids ordered by descending similarity, ties by
// ascending id. Small indexes are scanned exhaustively.
func (h *Index) Search(query []float32, k int) []Hit {
	if len(query) == 0 || k <= 0 {
		return nil
	}
	qmag := magnitude(query)
	if qmag == 0 {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.hasEntry || len(query) != h.dimension {
		return nil
	}

	var found []neighbor
	if len(h.vectors) <= max(h.efSearch, k) {
		found = h.bruteForce(query, qmag)
	} else {
		curr := h.entryPoint
		currDist := h.distanceTo(query, qmag, curr)
		for l := h.maxLevel; l > 0; l-- {
			curr, currDist = h.greedy(query, qmag, curr, currDist, l)
		}
		found = h.searchLayer(query, qmag, curr, max(h.efSearch, k), 0)
	}

	hits := make([]Hit, len(found))
	for i, n := range found {
		hits[i] = Hit{ID: n.id, Similarity: 1 - n.distance}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (h *Index) bruteForce(query []float32, qmag float64) []neighbor {
	out := make([]neighbor, 0, len(h.vectors))
	for id, vec := range h.vectors {
		out = append(out, neighbor{id: id, distance: cosineDistance(query, vec, qmag, h.magnitudes[id])})
	}
	return out
}

func (h *Index) distanceTo(query []float32, qmag float64, id int64) float64 {
	return cosineDistance(query, h.vectors[id], qmag, h.magnitudes[id])
}

func (h *Index) greedy(query []float32, qmag float64, ep int64, epDist float64, level int) (int64, float64) {
	for changed := true; changed; {
		changed = false
		for _, n := range h.layers[level].neighbors(ep) {
			if d := h.distanceTo(query, qmag, n.id); d < epDist {
				ep, epDist, changed = n.id, d, true
			}
		}
	}
	return ep, epDist
}

// searchLayer is the ef-bounded best-first search of one layer, returning
// candidates closest first.
func (h *Index) searchLayer(query []float32, qmag float64, ep int64, ef int, level int) []neighbor {
	visited := map[int64]bool{ep: true}
	epDist := h.distanceTo(query, qmag, ep)

	candidates := &minHeap{{id: ep, distance: epDist}}
	results := &maxHeap{{id: ep, distance: epDist}}

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(neighbor)
		if closest.distance > (*results)[0].distance {
			break
		}
		for _, n := range h.layers[level].neighbors(closest.id) {
			if visited[n.id] {
				continue
			}
			visited[n.id] = true

			d := h.distanceTo(query, qmag, n.id)
			if results.Len() < ef || d < (*results)[0].distance {
				heap.Push(candidates, neighbor{id: n.id, distance: d})
				heap.Push(results, neighbor{id: n.id, distance: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]neighbor, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(neighbor)
	}
	return out
}

func (h *Index) connect(id int64, candidates []neighbor, level int) {
	limit := h.m
	if level == 0 {
		limit = h.m * 2
	}
	for i := range min(len(candidates), limit) {
		c := candidates[i]
		if c.id == id {
			continue
		}
		h.layers[level].addNeighbor(id, c.id, c.distance, limit)
		h.layers[level].addNeighbor(c.id, id, c.distance, limit)
	}
}

func (h *Index) randomLevel() int {
	r := h.rng.Float64()
	if r == 0 {
		r = math.SmallestNonzeroFloat64
	}
	return int(-math.Log(r) * h.levelMult)
}

type minHeap []neighbor

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].distance < h[j].distance }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(neighbor)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type maxHeap []neighbor

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return h[i].distance > h[j].distance }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(neighbor)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
