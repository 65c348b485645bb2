package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"location-relay/models"
	"location-relay/relay"
)

// BusLister lists the buses a tracker may follow.
type BusLister interface {
	ListForTracker(ctx context.Context, trackerID int64) ([]models.Bus, error)
}

type Options struct {
	// AllowedOrigins limits browser origins for CORS and WebSocket upgrades.
	// "*" allows any origin; requests without an Origin header are always allowed.
	AllowedOrigins []string
	// SendBuffer is the number of outbound frames queued per connection.
	SendBuffer int
	// AccessLog receives combined-format access logs when set.
	AccessLog io.Writer
}

// Server exposes the relay over WebSocket and HTTP.
type Server struct {
	relay    *relay.Relay
	buses    BusLister
	opts     Options
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.Mutex
	live    map[*wsConn]struct{}
	closing bool
	sockets sync.WaitGroup
}

// NewServer builds a server for r. buses may be nil when no directory is configured.
func NewServer(r *relay.Relay, buses BusLister, opts Options, log *slog.Logger) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	s := &Server{
		relay: r,
		buses: buses,
		opts:  opts,
		log:   log,
		live:  make(map[*wsConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, "*") || slices.Contains(s.opts.AllowedOrigins, origin)
}

// Routes registers every endpoint and wraps them with CORS and access logging.
func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()

	// Live socket for drivers and trackers
	router.HandleFunc("/ws", s.ServeWS).Methods("GET")

	// Point queries
	router.HandleFunc("/drivers/{driver_id}/location", s.GetDriverLocation).Methods("GET")
	router.HandleFunc("/buses", s.ListBuses).Methods("GET")
	router.HandleFunc("/buses/nearby", s.NearbyBuses).Methods("GET")

	// Directory
	router.HandleFunc("/trackers/{tracker_id}/buses", s.ListTrackerBuses).Methods("GET")

	router.HandleFunc("/healthz", s.Health).Methods("GET")

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.opts.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)

	var h http.Handler = cors(router)
	if s.opts.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(s.opts.AccessLog, h)
	}
	return h
}
