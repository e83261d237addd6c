package spectator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sessamekesh/arena-netcode/pkg/server"
	utils "github.com/sessamekesh/arena-netcode/pkg/util"
	"go.uber.org/zap"
)

type HubParams struct {
	ListenAddress    string
	ListenEndpoint   string
	AllowAllHosts    bool
	AllowlistedHosts []string
	DenylistedHosts  []string

	// Frames buffered per observer before new ones are dropped for it.
	ObserverQueueSize int
	// Snapshots buffered between the game loop and the fan-out goroutine.
	SnapshotQueueSize int

	// Served as JSON on /metrics when set.
	Metrics func() map[string]any

	Logger *zap.Logger
}

type observer struct {
	id  string
	out chan []byte
}

// Hub streams server snapshots to WebSocket observers as FlatBuffers frames.
// Observers are read-only; anything they send is discarded.
type Hub struct {
	params   HubParams
	upgrader *websocket.Upgrader
	log      *zap.Logger

	snapshots chan server.Snapshot
	closed    chan struct{}
	closeOnce sync.Once

	mut_observers sync.RWMutex
	observers     map[string]*observer
	latest        []byte

	framesSent    atomic.Uint64
	framesDropped atomic.Uint64
}

func checkOrigin(r *http.Request, params HubParams) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if utils.Contains(origin, params.DenylistedHosts) {
		return false
	}

	if params.AllowAllHosts {
		return true
	}

	return utils.Contains(origin, params.AllowlistedHosts)
}

func CreateHub(params HubParams) *Hub {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.ListenEndpoint == "" {
		params.ListenEndpoint = "/spectate"
	}
	if params.ObserverQueueSize <= 0 {
		params.ObserverQueueSize = 8
	}
	if params.SnapshotQueueSize <= 0 {
		params.SnapshotQueueSize = 4
	}

	return &Hub{
		params: params,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, params)
			},
		},
		log:       logger.With(zap.String("handler", "Spectator")),
		snapshots: make(chan server.Snapshot, params.SnapshotQueueSize),
		closed:    make(chan struct{}),
		observers: make(map[string]*observer),
	}
}

// OnSnapshot is meant for ServerParams.OnSnapshot. It never blocks the game
// loop; if the fan-out goroutine is behind, the snapshot is dropped.
func (h *Hub) OnSnapshot(snap server.Snapshot) {
	select {
	case h.snapshots <- snap:
	default:
		h.framesDropped.Add(1)
	}
}

func (h *Hub) ObserverCount() int {
	h.mut_observers.RLock()
	defer h.mut_observers.RUnlock()
	return len(h.observers)
}

func (h *Hub) FramesSent() uint64 {
	return h.framesSent.Load()
}

func (h *Hub) FramesDropped() uint64 {
	return h.framesDropped.Load()
}

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(h.params.ListenEndpoint, h.onWsRequest)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", h.onMetricsRequest)
	return mux
}

func (h *Hub) onMetricsRequest(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"observers":     h.ObserverCount(),
		"framesSent":    h.FramesSent(),
		"framesDropped": h.FramesDropped(),
	}
	if h.params.Metrics != nil {
		payload["server"] = h.params.Metrics()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Hub) onWsRequest(w http.ResponseWriter, r *http.Request) {
	obs := &observer{
		id:  uuid.New().String(),
		out: make(chan []byte, h.params.ObserverQueueSize),
	}
	log := h.log.With(zap.String("observerId", obs.id))

	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Failed to upgrade spectator request", zap.Error(err))
		return
	}
	defer c.Close()
	c.SetReadLimit(512)

	func() {
		h.mut_observers.Lock()
		defer h.mut_observers.Unlock()
		h.observers[obs.id] = obs
		if h.latest != nil {
			obs.out <- h.latest
		}
	}()
	log.Info("Spectator joined")

	defer func() {
		h.mut_observers.Lock()
		defer h.mut_observers.Unlock()
		delete(h.observers, obs.id)
		log.Info("Spectator left")
	}()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					log.Debug("Spectator read ended", zap.Error(err))
				}
				return
			}
		}
	}()
	defer func() {
		c.Close()
		<-readerDone
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.closed:
			c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
			return
		case <-readerDone:
			return
		case frame := <-obs.out:
			c.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.Warn("Failed to write spectator frame", zap.Error(err))
				return
			}
			h.framesSent.Add(1)
		}
	}
}

// Run encodes queued snapshots and fans them out until ctx is done, then
// closes every observer connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeOnce.Do(func() { close(h.closed) })

	b := flatbuffers.NewBuilder(1024)
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-h.snapshots:
			encoded := EncodeFrame(b, snap)
			frame := make([]byte, len(encoded))
			copy(frame, encoded)
			h.publish(frame)
		}
	}
}

func (h *Hub) publish(frame []byte) {
	h.mut_observers.Lock()
	defer h.mut_observers.Unlock()

	h.latest = frame
	for _, obs := range h.observers {
		select {
		case obs.out <- frame:
		default:
			h.framesDropped.Add(1)
		}
	}
}

// Start serves the hub over HTTP and runs the fan-out loop until ctx is done.
func (h *Hub) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpServer := &http.Server{
		Addr:    h.params.ListenAddress,
		Handler: h.Handler(),
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		<-ctx.Done()

		shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownRelease()
		h.log.Info("Attempting to trigger shutdown of spectator server")

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			h.log.Error("Failed to gracefully shut down spectator server", zap.Error(err))
			return
		}
		h.log.Info("Successfully shutdown spectator server")
	}()

	h.log.Sugar().Infof("Starting spectator server at %s", h.params.ListenAddress)
	var serveErr error
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		h.log.Error("Unexpected spectator server close!", zap.Error(err))
		serveErr = err
		cancel()
	}

	wg.Wait()
	return serveErr
}
