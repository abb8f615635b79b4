package liveserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

var (
	wsActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "volume_maker_ws_active_connections",
		Help: "Current number of active websocket connections",
	})
	wsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "volume_maker_ws_rejected_total",
		Help: "Total number of rejected websocket connections",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(wsActiveConnections)
	prometheus.MustRegister(wsRejectedTotal)
}

const (
	defaultMaxConnections = 100
	writeTimeout          = 10 * time.Second
	pongTimeout           = 60 * time.Second
	pingInterval          = 54 * time.Second
)

// Server serves the websocket endpoint with origin validation, per-IP rate
// limiting, and a global connection cap.
type Server struct {
	hub            *Hub
	logger         Logger
	allowedOrigins []string
	upgrader       websocket.Upgrader

	mu  sync.Mutex
	srv *http.Server

	connSemaphore chan struct{}

	ipLimiters sync.Map // ip -> *rate.Limiter
	rateLimit  rate.Limit
	rateBurst  int
}

// NewServer creates a live server over the hub.
func NewServer(hub *Hub, logger Logger, allowedOrigins []string) *Server {
	s := &Server{
		hub:            hub,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		connSemaphore:  make(chan struct{}, defaultMaxConnections),
		rateLimit:      10,
		rateBurst:      20,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.mu.Lock()
	s.srv = &http.Server{Addr: addr, Handler: mux}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("Starting live server", "addr", addr)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return s.Stop(context.Background())
	}
}

// Stop shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Broadcast forwards a message to every connected client.
func (s *Server) Broadcast(msg Message) { s.hub.Broadcast(msg) }

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int { return s.hub.ClientCount() }

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		wsRejectedTotal.WithLabelValues("missing_origin").Inc()
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		wsRejectedTotal.WithLabelValues("invalid_origin").Inc()
		return false
	}
	originStr := parsed.Scheme + "://" + parsed.Host

	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || originStr == allowed {
			return true
		}
	}
	if s.logger != nil {
		s.logger.Warn("Rejected websocket connection from unauthorized origin",
			"origin", origin, "remote_addr", r.RemoteAddr)
	}
	wsRejectedTotal.WithLabelValues("invalid_origin").Inc()
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.ipLimiter(remoteIP(r)).Allow() {
		wsRejectedTotal.WithLabelValues("rate_limit").Inc()
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	select {
	case s.connSemaphore <- struct{}{}:
		wsActiveConnections.Inc()
		defer func() {
			<-s.connSemaphore
			wsActiveConnections.Dec()
		}()
	default:
		wsRejectedTotal.WithLabelValues("connection_limit").Inc()
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("Websocket upgrade failed", "error", err)
		}
		return
	}

	client := NewClient(uuid.New().String())
	s.hub.Register(client)
	client.Send(Message{Type: TypeHello, Data: map[string]interface{}{"client_id": client.id}})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump(conn, client)
	}()
	go func() {
		defer wg.Done()
		s.readPump(conn, client)
	}()
	wg.Wait()

	s.hub.Unregister(client)
	conn.Close()
}

func (s *Server) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.Messages():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection to service pong frames; clients never send
// application data.
func (s *Server) readPump(conn *websocket.Conn, client *Client) {
	defer s.hub.Unregister(client)

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
		"time":    time.Now().Unix(),
	})
}

func (s *Server) ipLimiter(ip string) *rate.Limiter {
	if val, ok := s.ipLimiters.Load(ip); ok {
		return val.(*rate.Limiter)
	}
	actual, _ := s.ipLimiters.LoadOrStore(ip, rate.NewLimiter(s.rateLimit, s.rateBurst))
	return actual.(*rate.Limiter)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
