// Package tree implements the carving store: an officiant role registry, a
// carving lifecycle state machine with a public gallery, and dual-mode
// authorization where operations arrive either from an authenticated
// principal or as relayed requests proven by a signature over the current
// per-carving nonce.
//
// Every mutation is check-then-act: all authorization and state checks pass
// before anything is written, the full effect is committed to the physical
// backend in one batch, and only then is in-memory state updated and the
// event emitted. A failed operation leaves no trace.
package tree

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/carvexyz/tree-node/internal/events"
	"github.com/carvexyz/tree-node/internal/observability"
	"github.com/carvexyz/tree-node/internal/tree/physical"
	"github.com/carvexyz/tree-node/pkg/carving"
	"github.com/carvexyz/tree-node/pkg/identity"
)

// galleryKey is the meta record holding gallery order across restarts.
const galleryKey = "gallery"

// Options configures a Store.
type Options struct {
	// Backend is the durable state backend. Required.
	Backend physical.Backend

	// Root is appointed as the first officiant when the store opens with
	// an empty registry. Optional once state exists.
	Root identity.Principal

	// Metrics receives operation and state meters. A fresh registry is
	// created when nil.
	Metrics *observability.Metrics

	// Emitter receives post-commit events. Defaults to logging only.
	Emitter events.Emitter
}

// Store is the carving store engine. All operations are serialized under
// one mutex; each either fully applies or is fully rejected.
type Store struct {
	mu      sync.Mutex
	backend physical.Backend
	metrics *observability.Metrics
	emitter events.Emitter
	now     func() time.Time

	carvings   map[carving.ID]*carving.Carving
	gallery    []carving.ID
	galleryPos map[carving.ID]int
	officiants map[identity.Principal]struct{}
	nonces     map[carving.ID]uint64
}

// Open loads all state from the backend and appoints the root officiant if
// the registry is empty.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("open store: backend is required")
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.SlogEmitter{}
	}

	s := &Store{
		backend:    opts.Backend,
		metrics:    metrics,
		emitter:    emitter,
		now:        time.Now,
		carvings:   make(map[carving.ID]*carving.Carving),
		galleryPos: make(map[carving.ID]int),
		officiants: make(map[identity.Principal]struct{}),
		nonces:     make(map[carving.ID]uint64),
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}

	if len(s.officiants) == 0 && opts.Root != "" {
		if err := s.backend.Put(ctx, physical.NSOfficiant, string(opts.Root), []byte("1")); err != nil {
			return nil, fmt.Errorf("open store: appoint root: %w", err)
		}
		s.officiants[opts.Root] = struct{}{}
		slog.InfoContext(ctx, "root officiant appointed", "principal", string(opts.Root))
	}

	s.syncGauges()
	slog.InfoContext(ctx, "store opened",
		"carvings", len(s.carvings),
		"gallery", len(s.gallery),
		"officiants", len(s.officiants),
	)
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	records, err := s.backend.List(ctx, physical.NSCarving)
	if err != nil {
		return fmt.Errorf("load carvings: %w", err)
	}
	for key, value := range records {
		id, err := carving.ParseID(key)
		if err != nil {
			return fmt.Errorf("load carvings: bad key %q: %w", key, err)
		}
		var c carving.Carving
		if err := json.Unmarshal(value, &c); err != nil {
			return fmt.Errorf("load carvings: decode %s: %w", key, err)
		}
		c.ID = id
		s.carvings[id] = &c
	}

	principals, err := s.backend.List(ctx, physical.NSOfficiant)
	if err != nil {
		return fmt.Errorf("load officiants: %w", err)
	}
	for key := range principals {
		s.officiants[identity.Principal(key)] = struct{}{}
	}

	nonces, err := s.backend.List(ctx, physical.NSNonce)
	if err != nil {
		return fmt.Errorf("load nonces: %w", err)
	}
	for key, value := range nonces {
		id, err := carving.ParseID(key)
		if err != nil {
			return fmt.Errorf("load nonces: bad key %q: %w", key, err)
		}
		if len(value) != 8 {
			return fmt.Errorf("load nonces: bad value for %s", key)
		}
		s.nonces[id] = binary.BigEndian.Uint64(value)
	}

	return s.loadGallery(ctx)
}

// loadGallery restores gallery order from the meta record, falling back to
// a deterministic rebuild from carving statuses when the record is absent.
func (s *Store) loadGallery(ctx context.Context) error {
	value, err := s.backend.Get(ctx, physical.NSMeta, galleryKey)
	if err == nil {
		var hexes []string
		if err := json.Unmarshal(value, &hexes); err != nil {
			return fmt.Errorf("load gallery: %w", err)
		}
		for _, h := range hexes {
			id, err := carving.ParseID(h)
			if err != nil {
				return fmt.Errorf("load gallery: bad id %q: %w", h, err)
			}
			c, ok := s.carvings[id]
			if !ok || c.Status != carving.StatusPublished {
				continue
			}
			s.galleryPos[id] = len(s.gallery)
			s.gallery = append(s.gallery, id)
		}
		return nil
	}
	if !errors.Is(err, physical.ErrNotFound) {
		return fmt.Errorf("load gallery: %w", err)
	}

	var published []carving.ID
	for id, c := range s.carvings {
		if c.Status == carving.StatusPublished {
			published = append(published, id)
		}
	}
	sort.Slice(published, func(i, j int) bool {
		return published[i].Hex() < published[j].Hex()
	})
	for _, id := range published {
		s.galleryPos[id] = len(s.gallery)
		s.gallery = append(s.gallery, id)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// status returns the lifecycle state of an identifier. Unknown identifiers
// are Free.
func (s *Store) status(id carving.ID) carving.Status {
	if c, ok := s.carvings[id]; ok {
		return c.Status
	}
	return carving.StatusFree
}

// Read returns the content of a carving. Identifiers that were never carved
// or were scratched fail with ErrCarvingNotFound.
func (s *Store) Read(ctx context.Context, id carving.ID) (*carving.Content, error) {
	op, _ := observability.StartOperation(ctx, s.metrics, "read")
	var err error
	defer func() { op.End(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carvings[id]
	if !ok || c.Status == carving.StatusDeleted {
		err = ErrCarvingNotFound
		return nil, err
	}
	return &carving.Content{
		To:         c.To,
		From:       c.From,
		Message:    c.Message,
		Properties: c.Properties,
	}, nil
}

// Peruse returns the published carvings in gallery order.
func (s *Store) Peruse(ctx context.Context) []*carving.Carving {
	op, _ := observability.StartOperation(ctx, s.metrics, "peruse")
	defer op.End(nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*carving.Carving, 0, len(s.gallery))
	for _, id := range s.gallery {
		c := *s.carvings[id]
		out = append(out, &c)
	}
	return out
}

// Nonce returns the current nonce for an identifier. Principals fetch this
// before signing a relayed request.
func (s *Store) Nonce(id carving.ID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[id]
}

// Status returns the lifecycle state of an identifier.
func (s *Store) Status(id carving.ID) carving.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status(id)
}

// IsOfficiant reports whether a principal holds the officiant capability.
func (s *Store) IsOfficiant(p identity.Principal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.officiants[p]
	return ok
}

// Officiants returns all appointed principals, sorted.
func (s *Store) Officiants() []identity.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]identity.Principal, 0, len(s.officiants))
	for p := range s.officiants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// syncGauges refreshes the state gauges. Callers hold the mutex.
func (s *Store) syncGauges() {
	counts := map[carving.Status]int{}
	for _, c := range s.carvings {
		counts[c.Status]++
	}
	for _, st := range []carving.Status{carving.StatusCreated, carving.StatusPublished, carving.StatusDeleted} {
		s.metrics.Carvings.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
	s.metrics.GallerySize.Set(float64(len(s.gallery)))
	s.metrics.Officiants.Set(float64(len(s.officiants)))
}

// emit delivers an event after commit. Failures are the emitter's problem.
func (s *Store) emit(ctx context.Context, ev *events.Event) {
	ev.At = s.now().UTC()
	_ = s.emitter.Emit(ctx, ev)
}

func encodeCarving(c *carving.Carving) ([]byte, error) {
	return json.Marshal(c)
}

func encodeNonce(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return buf[:]
}

func encodeGallery(ids []carving.ID) ([]byte, error) {
	hexes := make([]string, len(ids))
	for i, id := range ids {
		hexes[i] = id.Hex()
	}
	return json.Marshal(hexes)
}
