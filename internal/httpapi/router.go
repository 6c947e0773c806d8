package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/provider"
	"github.com/freeeve/chunkworld/internal/world"
)

// World is the part of the chunk provider the API serves.
type World interface {
	Running() bool
	Stats() provider.Stats
	GetChunk(pos world.ChunkPos) (*chunk.Chunk, bool)
	IsChunkReady(pos world.ChunkPos) bool
	ReloadChunk(pos world.ChunkPos) (bool, error)
	PurgeWorld() error
	AddObserver(id uuid.UUID, pos mgl64.Vec3, extent world.Extent) (uuid.UUID, error)
	MoveObserver(id uuid.UUID, pos mgl64.Vec3) bool
	RemoveObserver(id uuid.UUID) bool
	Observer(id uuid.UUID) (provider.Observer, bool)
	Observers() []provider.Observer
	Subscribe(buffer int) (<-chan provider.Event, func())
	BlockAt(pos world.ChunkPos, local world.BlockPos) (provider.BlockInfo, error)
	SetBlock(pos world.ChunkPos, local world.BlockPos, id uint16) (uint16, error)
}

// Options tunes the router.
type Options struct {
	EventBuffer int // per websocket subscriber, default 256
}

// Handler serves the chunk world over HTTP.
type Handler struct {
	w        World
	opts     Options
	upgrader websocket.Upgrader
}

// NewRouter creates the HTTP router for w.
func NewRouter(log zerolog.Logger, w World, opts Options) http.Handler {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	h := &Handler{
		w:    w,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.ready))
	mux.Handle("/v1/stats", http.HandlerFunc(h.stats))
	mux.Handle("/v1/chunks/", http.HandlerFunc(h.chunks))
	mux.Handle("/v1/observers", http.HandlerFunc(h.observers))
	mux.Handle("/v1/observers/", http.HandlerFunc(h.observer))
	mux.Handle("/v1/purge", http.HandlerFunc(h.purge))
	mux.Handle("/v1/events", http.HandlerFunc(h.events))

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	handler := CORS(RequestID(log, AccessLog(mux)))
	return handler
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if !h.w.Running() {
		http.Error(w, "not running", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}
	writeJSON(w, http.StatusOK, h.w.Stats())
}

// chunks handles
//
//	GET  /v1/chunks/{x}/{y}/{z}          chunk summary; ?format=binary for the encoded record, ?lod=N for a downsampled copy
//	POST /v1/chunks/{x}/{y}/{z}/reload
//	GET  /v1/chunks/{x}/{y}/{z}/blocks   one cell, ?x=&y=&z= chunk-local
//	PUT  /v1/chunks/{x}/{y}/{z}/blocks   replace one block and relight
func (h *Handler) chunks(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/chunks/"))
	if len(parts) < 3 || len(parts) > 4 {
		writeError(w, http.StatusNotFound, "want /v1/chunks/{x}/{y}/{z}")
		return
	}
	pos, err := parseChunkPos(parts[:3])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(parts) == 4 {
		switch parts[3] {
		case "reload":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "use POST")
				return
			}
			h.reload(w, r, pos)
		case "blocks":
			h.blocks(w, r, pos)
		default:
			writeError(w, http.StatusNotFound, "unknown chunk action "+parts[3])
		}
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}
	c, ok := h.w.GetChunk(pos)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("chunk %v not resident", pos))
		return
	}
	q := r.URL.Query()
	switch {
	case q.Get("lod") != "":
		scale, err := parseLodScale(q.Get("lod"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp, err := ToLodResponse(c, scale)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case q.Get("format") == "binary":
		data, err := encodeChunk(c)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Chunk-State", c.State().String())
		_, _ = w.Write(data)
	default:
		resp, err := ToChunkResponse(c, h.w.IsChunkReady(pos))
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// encodeChunk encodes c under its borrow so no worker mutates it mid-copy.
func encodeChunk(c *chunk.Chunk) ([]byte, error) {
	var data []byte
	err := c.Edit(func(e *chunk.Editor) error {
		if c.Disposed() {
			return chunk.ErrDisposed
		}
		data = chunk.Marshal(c)
		return nil
	})
	return data, err
}

// blocks reads (GET) or replaces (PUT) one cell of the chunk at pos.
func (h *Handler) blocks(w http.ResponseWriter, r *http.Request, pos world.ChunkPos) {
	switch r.Method {
	case http.MethodGet:
		local, err := parseLocal(r.URL.Query())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		info, err := h.w.BlockAt(pos, local)
		if err != nil {
			h.writeProviderError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	case http.MethodPut:
		var req BlockRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		prev, err := h.w.SetBlock(pos, req.local(), req.ID)
		if err != nil {
			h.writeProviderError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, BlockEditResponse{Chunk: pos, Local: req.local(), Previous: prev, Block: req.ID})
	default:
		writeError(w, http.StatusMethodNotAllowed, "use GET or PUT")
	}
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request, pos world.ChunkPos) {
	ok, err := h.w.ReloadChunk(pos)
	if err != nil {
		h.writeProviderError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("chunk %v not resident", pos))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"reloading": pos})
}

// observers handles GET (list) and POST (register) on /v1/observers.
func (h *Handler) observers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.w.Observers())
	case http.MethodPost:
		var req ObserverRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Extent == nil {
			writeError(w, http.StatusBadRequest, "extent required")
			return
		}
		id, err := h.w.AddObserver(req.ID, req.vec(), *req.Extent)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		obs, _ := h.w.Observer(id)
		writeJSON(w, http.StatusCreated, obs)
	default:
		writeError(w, http.StatusMethodNotAllowed, "use GET or POST")
	}
}

// observer handles GET, PUT (move) and DELETE on /v1/observers/{id}.
func (h *Handler) observer(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/observers/"))
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "want /v1/observers/{id}")
		return
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid observer id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		obs, ok := h.w.Observer(id)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown observer")
			return
		}
		writeJSON(w, http.StatusOK, obs)
	case http.MethodPut:
		var req ObserverRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !h.w.MoveObserver(id, req.vec()) {
			writeError(w, http.StatusNotFound, "unknown observer")
			return
		}
		obs, _ := h.w.Observer(id)
		writeJSON(w, http.StatusOK, obs)
	case http.MethodDelete:
		if !h.w.RemoveObserver(id) {
			writeError(w, http.StatusNotFound, "unknown observer")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "use GET, PUT or DELETE")
	}
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	if err := h.w.PurgeWorld(); err != nil {
		h.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"purged": true})
}

func (h *Handler) writeProviderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, provider.ErrNotRunning), errors.Is(err, provider.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, provider.ErrNotResident):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, provider.ErrOutOfChunk):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chunk.ErrDisposed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		RequestLogger(r.Context()).Error().Err(err).Msg("provider request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseChunkPos(parts []string) (world.ChunkPos, error) {
	var v [3]int32
	for i, s := range parts {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return world.ChunkPos{}, fmt.Errorf("invalid chunk coordinate %q", s)
		}
		v[i] = int32(n)
	}
	return world.ChunkPos{X: v[0], Y: v[1], Z: v[2]}, nil
}

// parseLocal reads a chunk-local block position from the x, y and z query parameters.
func parseLocal(q url.Values) (world.BlockPos, error) {
	var v [3]int
	for i, k := range []string{"x", "y", "z"} {
		n, err := strconv.Atoi(q.Get(k))
		if err != nil {
			return world.BlockPos{}, fmt.Errorf("invalid or missing %s", k)
		}
		v[i] = n
	}
	return world.BlockPos{X: v[0], Y: v[1], Z: v[2]}, nil
}

// parseLodScale accepts a downsampling factor that divides every chunk dimension.
func parseLodScale(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || world.SizeX%n != 0 || world.SizeY%n != 0 || world.SizeZ%n != 0 {
		return 0, fmt.Errorf("lod %q must divide %dx%dx%d", s, world.SizeX, world.SizeY, world.SizeZ)
	}
	return n, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}
