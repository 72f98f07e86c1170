// Package server exposes the recommendation engine over HTTP and
// WebSocket. Dialogue state between turns lives in the session registry;
// the handlers themselves are stateless.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"muza/internal/engine"
	muzaerrors "muza/internal/errors"
	"muza/internal/logging"
	"muza/internal/observability"
	"muza/internal/session"
	"muza/internal/version"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
)

// Config wires a Server. Engine and Sessions are required.
type Config struct {
	Host string
	Port int
	// Debug leaves gin in its verbose debug mode.
	Debug        bool
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Engine   *engine.Engine
	Sessions *session.Registry
	// Breakers, when set, feeds per-dependency circuit states into /health.
	Breakers *muzaerrors.CircuitBreakerManager
	Logger   logging.Logger
	Metrics  *observability.MetricsCollector
}

// Server serves the recommendation API.
type Server struct {
	engine   *engine.Engine
	sessions *session.Registry
	breakers *muzaerrors.CircuitBreakerManager
	router   *gin.Engine
	http     *http.Server
	upgrader websocket.Upgrader
	log      logging.Logger
	metrics  *observability.MetricsCollector
	started  time.Time
}

func New(config Config) (*Server, error) {
	if config.Engine == nil || config.Sessions == nil {
		return nil, fmt.Errorf("server needs an engine and a session registry")
	}
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if config.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Requested-With"}
		corsConfig.AllowWebSockets = true
		router.Use(cors.New(corsConfig))
	}

	readTimeout := config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	writeTimeout := config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	s := &Server{
		engine:   config.Engine,
		sessions: config.Sessions,
		breakers: config.Breakers,
		router:   router,
		log:      logging.OrNop(config.Logger),
		metrics:  config.Metrics,
		started:  time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	router.Use(s.requestID())
	router.Use(s.measure())
	s.routes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	api.POST("/recommend", s.handleRecommend)
	api.POST("/sessions", s.handleStartSession)
	api.POST("/sessions/:id/answer", s.handleAnswer)
	api.GET("/sessions/:id", s.handleGetSession)
	api.DELETE("/sessions/:id", s.handleDeleteSession)
	api.GET("/ws", s.handleWebSocket)
}

// requestID tags every request context so downstream logs correlate.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := observability.NewRequestID()
		ctx := observability.ContextWithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) measure() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.metrics == nil {
			c.Next()
			return
		}
		started := time.Now()
		c.Next()
		s.metrics.RecordRequest(c.Request.Context(), "http",
			strconv.Itoa(c.Writer.Status()), time.Since(started))
	}
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info("http server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"version": version.Version(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}
	if s.breakers != nil {
		deps := gin.H{}
		for _, m := range s.breakers.GetMetrics() {
			deps[m.Name] = m.State.String()
		}
		body["dependencies"] = deps
	}
	c.JSON(http.StatusOK, body)
}
