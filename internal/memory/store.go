package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Embedder turns texts into vectors. The ai.Client satisfies this through
// the ModelEmbedder adapter.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Record is one remembered (intent, code) pair. Records are append-only:
// never edited, only added or wholly cleared.
type Record struct {
	ID        string            `json:"id"`
	Intent    string            `json:"intent"`
	Code      string            `json:"code"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Vector    []float32         `json:"vector"`
	CreatedAt time.Time         `json:"created_at"`

	// Distance is populated on recall; lower is more similar.
	Distance float64 `json:"-"`
}

// Store is a semantic memory of past solutions persisted as a JSON file.
// A Store constructed without an embedder is disabled: recalls return
// nothing and saves are no-ops, so the pipeline runs unaffected.
type Store struct {
	mu      sync.Mutex
	path    string
	emb     Embedder
	records []Record
	log     *zap.SugaredLogger
}

// Open loads (or initializes) a store at path. It never fails: an unreadable
// file starts the store empty with a logged warning, and a nil embedder
// yields a disabled store.
func Open(path string, emb Embedder, log *zap.SugaredLogger) *Store {
	s := &Store{path: path, emb: emb, log: log}
	if emb == nil {
		if log != nil {
			log.Warnw("semantic memory disabled: no embedder available")
		}
		return s
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && log != nil {
			log.Warnw("could not read memory file, starting empty", "path", path, "error", err)
		}
		return s
	}
	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		if log != nil {
			log.Warnw("could not parse memory file, starting empty", "path", path, "error", err)
		}
		return s
	}
	s.records = records
	return s
}

// Enabled reports whether the store can embed and therefore recall/save.
func (s *Store) Enabled() bool { return s != nil && s.emb != nil }

// Len returns the number of stored records.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// All returns a copy of every record in insertion order.
func (s *Store) All() []Record {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Recall returns up to k records ordered by ascending distance to the query.
// Failures degrade to an empty result; they never fail the caller.
func (s *Store) Recall(ctx context.Context, query string, k int) []Record {
	if !s.Enabled() || k <= 0 {
		return nil
	}
	vecs, err := s.emb.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		if s.log != nil {
			s.log.Warnw("memory recall failed", "error", err)
		}
		return nil
	}
	qv := vecs[0]

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		r.Distance = 1 - cosineSim(qv, r.Vector)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Save appends one record keyed by a fresh uuid and persists the store.
// Disabled stores make it a no-op.
func (s *Store) Save(ctx context.Context, intent, code string, metadata map[string]string) error {
	if !s.Enabled() {
		return nil
	}
	vecs, err := s.emb.Embed(ctx, []string{intent})
	if err != nil {
		return fmt.Errorf("embed intent: %w", err)
	}
	if len(vecs) == 0 {
		return fmt.Errorf("embed intent: no vector returned")
	}
	rec := Record{
		ID:        uuid.NewString(),
		Intent:    intent,
		Code:      code,
		Metadata:  metadata,
		Vector:    vecs[0],
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.persistLocked()
}

// Clear removes all records. This is the only bulk mutation.
func (s *Store) Clear() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir memory dir: %w", err)
	}
	b, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// cosineSim returns the cosine similarity of two vectors, 0 on dimension
// mismatch or zero norm.
func cosineSim(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
