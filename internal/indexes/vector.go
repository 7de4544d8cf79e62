package indexes

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/fogfish/hnsw"
	hnswvector "github.com/fogfish/hnsw/vector"
	surface "github.com/kshard/vector"
	"github.com/vmihailenco/msgpack/v5"
)

// VectorIndex is the common contract for the vector backends: Flat (brute
// force, exact), HNSW (approximate) and the optional Qdrant server backend.
// The engine picks one at startup from configuration; the choice does not
// change with corpus size.
type VectorIndex interface {
	Upsert(memoryID string, vec []float32)
	Search(query []float32, topK int) []Scored
	Index
}

// Flat is a brute-force exact cosine index, correct for any corpus size but
// O(n) per query; the spec recommends it up to roughly 500k vectors.
type Flat struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewFlat builds an empty Flat vector index.
func NewFlat() *Flat {
	return &Flat{vectors: make(map[string][]float32)}
}

// Upsert stores or replaces memoryID's embedding.
func (f *Flat) Upsert(memoryID string, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[memoryID] = vec
}

// Remove deletes memoryID's embedding.
func (f *Flat) Remove(memoryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vectors, memoryID)
	return nil
}

// Search returns the topK memories by cosine similarity to query.
func (f *Flat) Search(query []float32, topK int) []Scored {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Scored, 0, len(f.vectors))
	for id, vec := range f.vectors {
		out = append(out, Scored{MemoryID: id, Score: float64(cosine(query, vec))})
	}
	sortScoredDesc(out)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func cosine(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math32.Sqrt(na) * math32.Sqrt(nb))
}

type flatSnapshot struct {
	Vectors map[string][]float32
}

// Snapshot serializes every stored vector.
func (f *Flat) Snapshot() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return msgpack.Marshal(flatSnapshot{Vectors: f.vectors})
}

// Load restores vectors from a Snapshot.
func (f *Flat) Load(data []byte) error {
	var snap flatSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = snap.Vectors
	if f.vectors == nil {
		f.vectors = make(map[string][]float32)
	}
	return nil
}

// HNSW is an approximate nearest-neighbor index backed by fogfish/hnsw,
// used once the corpus outgrows Flat's brute-force cost. Memory ids are
// mapped to the uint32 keys the library requires.
type HNSW struct {
	mu      sync.RWMutex
	index   *hnsw.HNSW[hnswvector.VF32]
	idToKey map[string]uint32
	keyToID map[uint32]string
	vectors map[string][]float32
	nextKey uint32
	efSearch int
}

// NewHNSW builds an empty HNSW index with the given construction/search
// parameters.
func NewHNSW(m, efConstruction, efSearch int) *HNSW {
	return &HNSW{
		index: hnsw.New(
			hnswvector.SurfaceVF32(surface.Cosine()),
			hnsw.WithM(m),
			hnsw.WithEfConstruction(efConstruction),
		),
		idToKey:  make(map[string]uint32),
		keyToID:  make(map[uint32]string),
		vectors:  make(map[string][]float32),
		nextKey:  1,
		efSearch: efSearch,
	}
}

func (h *HNSW) keyFor(memoryID string) uint32 {
	if k, ok := h.idToKey[memoryID]; ok {
		return k
	}
	k := h.nextKey
	h.nextKey++
	h.idToKey[memoryID] = k
	h.keyToID[k] = memoryID
	return k
}

// Upsert stores or replaces memoryID's embedding and inserts it into the
// HNSW graph. fogfish/hnsw does not support in-place update, so a replaced
// vector is simply re-inserted under the same key; the graph carries some
// stale edges toward superseded content until a full rebuild.
func (h *HNSW) Upsert(memoryID string, vec []float32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := h.keyFor(memoryID)
	h.vectors[memoryID] = vec
	h.index.Insert(hnswvector.VF32{Key: key, Vec: vec})
}

// Remove drops memoryID's bookkeeping; the underlying HNSW graph node is
// left in place (as with the teacher's index) until the next Rebuild.
func (h *HNSW) Remove(memoryID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if key, ok := h.idToKey[memoryID]; ok {
		delete(h.keyToID, key)
		delete(h.idToKey, memoryID)
	}
	delete(h.vectors, memoryID)
	return nil
}

// Search returns the topK approximate nearest neighbors to query.
func (h *HNSW) Search(query []float32, topK int) []Scored {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if topK <= 0 {
		topK = 10
	}
	neighbors := h.index.Search(hnswvector.VF32{Key: 0, Vec: query}, topK*2, h.efSearch)

	out := make([]Scored, 0, len(neighbors))
	for _, n := range neighbors {
		id, ok := h.keyToID[n.Key]
		if !ok {
			continue
		}
		vec, ok := h.vectors[id]
		if !ok {
			continue
		}
		out = append(out, Scored{MemoryID: id, Score: float64(cosine(query, vec))})
	}
	sortScoredDesc(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Rebuild reconstructs the HNSW graph from scratch, dropping any stale
// edges left by Upsert-over-existing-key or Remove.
func (h *HNSW) Rebuild(m, efConstruction int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.index = hnsw.New(
		hnswvector.SurfaceVF32(surface.Cosine()),
		hnsw.WithM(m),
		hnsw.WithEfConstruction(efConstruction),
	)
	for id, key := range h.idToKey {
		vec, ok := h.vectors[id]
		if !ok {
			continue
		}
		h.index.Insert(hnswvector.VF32{Key: key, Vec: vec})
	}
}

type hnswSnapshot struct {
	Vectors map[string][]float32
}

// Snapshot serializes the stored vectors; Load rebuilds the HNSW graph
// from them rather than serializing internal graph state.
func (h *HNSW) Snapshot() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return msgpack.Marshal(hnswSnapshot{Vectors: h.vectors})
}

// Load restores vectors from a Snapshot and rebuilds the graph.
func (h *HNSW) Load(data []byte) error {
	var snap hnswSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return err
	}
	h.mu.Lock()
	h.vectors = snap.Vectors
	if h.vectors == nil {
		h.vectors = make(map[string][]float32)
	}
	h.idToKey = make(map[string]uint32, len(h.vectors))
	h.keyToID = make(map[uint32]string, len(h.vectors))
	h.nextKey = 1
	for id := range h.vectors {
		h.keyFor(id)
	}
	h.mu.Unlock()

	h.Rebuild(16, 200)
	return nil
}
