package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/gen"
	"github.com/freeeve/chunkworld/internal/provider"
	"github.com/freeeve/chunkworld/internal/store"
	"github.com/freeeve/chunkworld/internal/voxel"
	"github.com/freeeve/chunkworld/internal/world"
)

func newTestWorld(t *testing.T, start bool) (*provider.Provider, *chunk.Factory) {
	t.Helper()
	f, err := chunk.NewFactory(voxel.NewRegistry(), chunk.Layout{
		Block:         "sparse-16bit",
		Sunlight:      "sparse-4bit",
		Light:         "sparse-4bit",
		SunlightRegen: "sparse-8bit",
	})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	blocks, err := block.NewRegistry(block.Defaults()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	st, err := store.Open(store.Config{Backend: store.BackendMemory, Factory: f, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p, err := provider.New(provider.Config{
		Store:           st,
		Generator:       gen.Empty{},
		Blocks:          blocks,
		Factory:         f,
		Logger:          zerolog.Nop(),
		ProcessWorkers:  4,
		ShutdownTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}
	t.Cleanup(func() { _ = p.Dispose(context.Background()) })
	if start {
		if err := p.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	return p, f
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, rd))
	return rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestHealthAndReady(t *testing.T) {
	p, _ := newTestWorld(t, false)
	h := NewRouter(zerolog.Nop(), p, Options{})

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before start = %d, want 503", rec.Code)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz after start = %d, want 200", rec.Code)
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	p, _ := newTestWorld(t, false)
	h := NewRouter(zerolog.Nop(), p, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
	rec = do(t, h, http.MethodGet, "/healthz", "")
	if got := rec.Header().Get("X-Request-ID"); uuid.Validate(got) != nil {
		t.Errorf("generated X-Request-ID = %q, want a uuid", got)
	}
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "bad id\n")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); uuid.Validate(got) != nil {
		t.Errorf("unsafe X-Request-ID replaced by %q, want a uuid", got)
	}

	rec = do(t, h, http.MethodOptions, "/v1/observers", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing Access-Control-Allow-Origin")
	}
}

func TestObserverLifecycle(t *testing.T) {
	p, _ := newTestWorld(t, true)
	h := NewRouter(zerolog.Nop(), p, Options{})

	rec := do(t, h, http.MethodPost, "/v1/observers", `{"position":[16,32,16],"extent":{"x":1,"y":0,"z":1}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST observers = %d: %s", rec.Code, rec.Body)
	}
	var obs provider.Observer
	if err := json.Unmarshal(rec.Body.Bytes(), &obs); err != nil {
		t.Fatalf("decode observer: %v", err)
	}
	if obs.ID == uuid.Nil || obs.Extent != (world.Extent{X: 1, Z: 1}) {
		t.Errorf("observer = %+v", obs)
	}
	path := "/v1/observers/" + obs.ID.String()

	rec = do(t, h, http.MethodPut, path, `{"position":[100,32,16]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d: %s", rec.Code, rec.Body)
	}
	if got, _ := p.Observer(obs.ID); got.Position.X() != 100 {
		t.Errorf("moved position = %v, want x 100", got.Position)
	}

	rec = do(t, h, http.MethodGet, "/v1/observers", "")
	var list []provider.Observer
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Errorf("list = %s, %v, want one observer", rec.Body, err)
	}

	if rec := do(t, h, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE = %d, want 204", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET removed = %d, want 404", rec.Code)
	}

	bad := map[string]string{
		"no extent":       `{"position":[0,0,0]}`,
		"negative extent": `{"position":[0,0,0],"extent":{"x":-1,"y":0,"z":0}}`,
		"unknown field":   `{"position":[0,0,0],"extent":{"x":0,"y":0,"z":0},"radius":4}`,
		"not json":        `position`,
	}
	for name, body := range bad {
		if rec := do(t, h, http.MethodPost, "/v1/observers", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: POST = %d, want 400", name, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodPut, "/v1/observers/not-a-uuid", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", rec.Code)
	}
}

func TestChunkEndpoints(t *testing.T) {
	p, f := newTestWorld(t, true)
	h := NewRouter(zerolog.Nop(), p, Options{})
	origin := world.ChunkPos{}

	if rec := do(t, h, http.MethodGet, "/v1/chunks/0/0/0", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET before produce = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/chunks/0/x/0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("GET bad coordinate = %d, want 400", rec.Code)
	}

	if _, err := p.AddObserver(uuid.Nil, world.CenterOf(origin), world.Extent{}); err != nil {
		t.Fatalf("AddObserver: %v", err)
	}
	p.Tick()
	waitFor(t, "origin resident", func() bool {
		_, ok := p.GetChunk(origin)
		return ok
	})

	rec := do(t, h, http.MethodGet, "/v1/chunks/0/0/0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET chunk = %d: %s", rec.Code, rec.Body)
	}
	var cr ChunkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &cr); err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if cr.Position != origin || cr.State == "" || cr.Arrays[chunk.ChannelBlock] == "" {
		t.Errorf("chunk = %+v", cr)
	}

	rec = do(t, h, http.MethodGet, "/v1/chunks/0/0/0?format=binary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET binary = %d", rec.Code)
	}
	c, err := chunk.Unmarshal(rec.Body.Bytes(), f)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.Position() != origin {
		t.Errorf("binary position = %v, want origin", c.Position())
	}

	if rec := do(t, h, http.MethodGet, "/v1/chunks/0/0/0/reload", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET reload = %d, want 405", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/v1/chunks/0/0/0/reload", ""); rec.Code != http.StatusAccepted {
		t.Errorf("POST reload = %d, want 202", rec.Code)
	}
	waitFor(t, "origin reloaded", func() bool {
		_, ok := p.GetChunk(origin)
		return ok
	})
	if rec := do(t, h, http.MethodPost, "/v1/chunks/99/0/0/reload", ""); rec.Code != http.StatusNotFound {
		t.Errorf("reload missing = %d, want 404", rec.Code)
	}
}

func TestStatsAndPurge(t *testing.T) {
	p, _ := newTestWorld(t, false)
	h := NewRouter(zerolog.Nop(), p, Options{})

	if rec := do(t, h, http.MethodPost, "/v1/purge", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("purge before start = %d, want 503", rec.Code)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rec := do(t, h, http.MethodPost, "/v1/purge", ""); rec.Code != http.StatusAccepted {
		t.Errorf("purge = %d, want 202", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/v1/stats", "")
	var st provider.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if !st.Running || st.CacheLimit == 0 {
		t.Errorf("stats = %+v", st)
	}
	if st.Store == nil || st.Store.Backend != store.BackendMemory {
		t.Errorf("store stats = %+v", st.Store)
	}
}

func TestEventStream(t *testing.T) {
	p, _ := newTestWorld(t, true)
	srv := httptest.NewServer(NewRouter(zerolog.Nop(), p, Options{EventBuffer: 4096}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, "subscriber", func() bool { return p.Stats().Subscribers == 1 })

	if _, err := p.AddObserver(uuid.Nil, world.CenterOf(world.ChunkPos{}), world.Extent{}); err != nil {
		t.Fatalf("AddObserver: %v", err)
	}
	p.Tick()

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var msg EventMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Kind != "relevant" || msg.Pos != (world.ChunkPos{}) {
		t.Errorf("first event = %+v, want relevant at origin", msg)
	}
}

func TestRequestLoggerCarriesID(t *testing.T) {
	p, _ := newTestWorld(t, false)
	var buf bytes.Buffer
	h := NewRouter(zerolog.New(&buf), p, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/purge", nil)
	req.Header.Set("X-Request-ID", "trace-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("purge before start = %d, want 503", rec.Code)
	}

	var lines int
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		if entry["rid"] != "trace-7" {
			t.Errorf("log line without request id: %s", line)
		}
		lines++
	}
	if lines < 2 {
		t.Errorf("logged %d lines, want the start and completion lines", lines)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"status":503`)) {
		t.Errorf("access log missing status: %s", buf.String())
	}

	if RequestLogger(context.Background()).GetLevel() != zerolog.Disabled {
		t.Errorf("logger outside a request is not disabled")
	}
}

func TestChunkSummaryWhileDeflating(t *testing.T) {
	f, err := chunk.NewFactory(voxel.NewRegistry(), chunk.DefaultLayout())
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	c := f.New(world.ChunkPos{X: 2})
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = c.Edit(func(e *chunk.Editor) error {
				e.SetLight(1, 2, 3, 9)
				e.SetLight(1, 2, 3, 0)
				e.Deflate()
				return nil
			})
		}
	}()
	for i := 0; i < 500; i++ {
		resp, err := ToChunkResponse(c, false)
		if err != nil {
			t.Fatalf("ToChunkResponse: %v", err)
		}
		if len(resp.Arrays) != 4 || resp.MemoryBytes == 0 {
			t.Fatalf("summary = %+v", resp)
		}
	}
	close(stop)
	<-done

	_ = c.Edit(func(e *chunk.Editor) error {
		e.Dispose()
		return nil
	})
	if _, err := ToChunkResponse(c, false); !errors.Is(err, chunk.ErrDisposed) {
		t.Errorf("summary of disposed chunk: err = %v, want ErrDisposed", err)
	}
}

func TestBlockEndpoints(t *testing.T) {
	p, _ := newTestWorld(t, true)
	h := NewRouter(zerolog.Nop(), p, Options{})
	origin := world.ChunkPos{}
	if _, err := p.AddObserver(uuid.Nil, world.CenterOf(origin), world.Extent{}); err != nil {
		t.Fatalf("AddObserver: %v", err)
	}
	p.Tick()
	// With produce margin 2 the origin is lit in isolation and waits there.
	waitFor(t, "origin lit", func() bool {
		c, ok := p.GetChunk(origin)
		return ok && c.State() == chunk.LightPropagationPending
	})

	put := func(path string, x, y, z int, id uint16) *httptest.ResponseRecorder {
		t.Helper()
		body, _ := json.Marshal(BlockRequest{X: x, Y: y, Z: z, ID: id})
		return do(t, h, http.MethodPut, path, string(body))
	}
	light := func(x, y, z int) int {
		t.Helper()
		rec := do(t, h, http.MethodGet, fmt.Sprintf("/v1/chunks/0/0/0/blocks?x=%d&y=%d&z=%d", x, y, z), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET block = %d: %s", rec.Code, rec.Body)
		}
		var info provider.BlockInfo
		if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
			t.Fatalf("decode block: %v", err)
		}
		return int(info.Light)
	}

	rec := put("/v1/chunks/0/0/0/blocks", 16, 32, 16, block.Torch)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT torch = %d: %s", rec.Code, rec.Body)
	}
	var edit BlockEditResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &edit); err != nil || edit.Previous != block.Air || edit.Block != block.Torch {
		t.Errorf("edit = %+v, %v", edit, err)
	}
	if got := light(18, 32, 16); got != 12 {
		t.Errorf("light two from torch = %d, want 12", got)
	}

	rec = do(t, h, http.MethodGet, "/v1/chunks/0/0/0?lod=4", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET lod = %d: %s", rec.Code, rec.Body)
	}
	var lod LodResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &lod); err != nil {
		t.Fatalf("decode lod: %v", err)
	}
	if lod.Size != [3]int{8, 16, 8} || len(lod.Blocks) != 8*16*8 {
		t.Fatalf("lod size = %v with %d cells", lod.Size, len(lod.Blocks))
	}
	if i := 8*8*8 + 4*8 + 4; lod.Blocks[i] != block.Torch || lod.Light[i] != 14 {
		t.Errorf("lod cell holding the torch = block %d light %d", lod.Blocks[i], lod.Light[i])
	}
	if rec := do(t, h, http.MethodGet, "/v1/chunks/0/0/0?lod=3", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("GET lod=3 = %d, want 400", rec.Code)
	}

	// A wall beside the torch shades the cell behind it; removing the torch
	// darkens everything it lit.
	if rec := put("/v1/chunks/0/0/0/blocks", 17, 32, 16, block.Stone); rec.Code != http.StatusOK {
		t.Fatalf("PUT wall = %d: %s", rec.Code, rec.Body)
	}
	if got := light(18, 32, 16); got != 10 {
		t.Errorf("light behind wall = %d, want 10", got)
	}
	if rec := put("/v1/chunks/0/0/0/blocks", 16, 32, 16, block.Air); rec.Code != http.StatusOK {
		t.Fatalf("PUT air = %d: %s", rec.Code, rec.Body)
	}
	for _, x := range []int{15, 16, 18} {
		if got := light(x, 32, 16); got != 0 {
			t.Errorf("light at x=%d after removing torch = %d, want 0", x, got)
		}
	}
	if got := p.Stats().Edits; got != 3 {
		t.Errorf("Edits = %d, want 3", got)
	}

	// An unlit chunk takes the block and no light.
	if rec := put("/v1/chunks/2/0/0/blocks", 1, 1, 1, block.Lamp); rec.Code != http.StatusOK {
		t.Fatalf("PUT unlit = %d: %s", rec.Code, rec.Body)
	}
	info, err := p.BlockAt(world.ChunkPos{X: 2}, world.BlockPos{X: 1, Y: 1, Z: 1})
	if err != nil || info.Block != block.Lamp || info.Light != 0 || !info.Resident {
		t.Errorf("unlit block = %+v, %v", info, err)
	}

	if rec := put("/v1/chunks/99/0/0/blocks", 1, 1, 1, block.Stone); rec.Code != http.StatusNotFound {
		t.Errorf("PUT not resident = %d, want 404", rec.Code)
	}
	if rec := put("/v1/chunks/0/0/0/blocks", world.SizeX, 1, 1, block.Stone); rec.Code != http.StatusBadRequest {
		t.Errorf("PUT outside chunk = %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/chunks/0/0/0/blocks?x=1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("GET without y,z = %d, want 400", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/v1/chunks/99/0/0/blocks?x=1&y=1&z=1", "")
	var far provider.BlockInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &far); err != nil || rec.Code != http.StatusOK || far.Resident || far.Block != block.Air {
		t.Errorf("GET not resident = %d %+v", rec.Code, far)
	}
}
