package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pairshare/pairshare/internal/audit"
	"github.com/pairshare/pairshare/internal/blobstore"
	"github.com/pairshare/pairshare/internal/sessions"
)

// recorder is a Notifier that keeps every delivered event per connection
type recorder struct {
	mu     sync.Mutex
	events map[sessions.ConnectionID][]Event
	closed map[sessions.ConnectionID]bool
}

func newRecorder() *recorder {
	return &recorder{
		events: make(map[sessions.ConnectionID][]Event),
		closed: make(map[sessions.ConnectionID]bool),
	}
}

func (r *recorder) Deliver(conn sessions.ConnectionID, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed[conn] {
		return fmt.Errorf("connection %s closed", conn)
	}
	r.events[conn] = append(r.events[conn], event)
	return nil
}

func (r *recorder) close(conn sessions.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[conn] = true
}

func (r *recorder) of(conn sessions.ConnectionID) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events[conn]...)
}

func (r *recorder) types(conn sessions.ConnectionID) []EventType {
	var types []EventType
	for _, e := range r.of(conn) {
		types = append(types, e.Type)
	}
	return types
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[sessions.ConnectionID][]Event)
}

// countingBlobs is an in-memory BlobStore that counts deletions per name
type countingBlobs struct {
	mu         sync.Mutex
	blobs      map[string][]byte
	deletes    map[string]int
	failDelete map[string]error
}

func newCountingBlobs() *countingBlobs {
	return &countingBlobs{
		blobs:      make(map[string][]byte),
		deletes:    make(map[string]int),
		failDelete: make(map[string]error),
	}
}

func (b *countingBlobs) Store(ctx context.Context, originalName string, r io.Reader) (blobstore.Blob, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return blobstore.Blob{}, err
	}
	name := blobstore.StoredName(originalName, time.Now())

	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[name] = data
	return blobstore.Blob{Name: name, Size: int64(len(data))}, nil
}

func (b *countingBlobs) Open(ctx context.Context, name string) (io.ReadCloser, blobstore.Blob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.blobs[name]
	if !ok {
		return nil, blobstore.Blob{}, blobstore.ErrBlobMissing
	}
	return io.NopCloser(bytes.NewReader(data)), blobstore.Blob{Name: name, Size: int64(len(data))}, nil
}

func (b *countingBlobs) Delete(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deletes[name]++
	if err := b.failDelete[name]; err != nil {
		return err
	}
	delete(b.blobs, name)
	return nil
}

func (b *countingBlobs) Exists(ctx context.Context, name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[name]
	return ok, nil
}

func (b *countingBlobs) deleteCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deletes[name]
}

func (b *countingBlobs) has(name string) bool {
	ok, _ := b.Exists(context.Background(), name)
	return ok
}

func (b *countingBlobs) upload(t *testing.T, name, content string) sessions.FileMeta {
	t.Helper()
	blob, err := b.Store(context.Background(), name, bytes.NewBufferString(content))
	require.NoError(t, err)
	return sessions.FileMeta{Filename: blob.Name, Size: blob.Size}
}

type testEnv struct {
	engine *Engine
	store  *sessions.InMemoryStore
	notes  *recorder
	blobs  *countingBlobs
	clock  clockwork.FakeClock
	audit  audit.EventLogger
}

func newTestEnv(t *testing.T, codes ...string) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))

	var gen sessions.CodeGenerator
	if len(codes) > 0 {
		var (
			mu sync.Mutex
			i  int
		)
		gen = sessions.CodeGeneratorFunc(func() string {
			mu.Lock()
			defer mu.Unlock()
			code := codes[i%len(codes)]
			i++
			return code
		})
	}

	store := sessions.NewInMemoryStore(clock, gen)
	notes := newRecorder()
	blobs := newCountingBlobs()
	eventLog := audit.NewEventLogger(audit.NewMemoryStore(1000), clock)

	engine, err := NewEngine(store, blobs, notes, eventLog, Config{
		Location: time.FixedZone("MSK", 3*60*60),
	}, zap.NewNop())
	require.NoError(t, err)

	return &testEnv{
		engine: engine,
		store:  store,
		notes:  notes,
		blobs:  blobs,
		clock:  clock,
		audit:  eventLog,
	}
}
