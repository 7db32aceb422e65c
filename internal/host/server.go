package host

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/linkbridge/internal/channel"
	"github.com/danmuck/linkbridge/internal/config"
	"github.com/danmuck/linkbridge/internal/node"
	"github.com/danmuck/linkbridge/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	ID       string    `json:"id"`
	Addr     string    `json:"addr"`
	Appeared time.Time `json:"appeared"`

	host     *Host
	codec    channel.Codec
	router   *gin.Engine
	certFile string
	keyFile  string
}

var _ node.Node = (*Server)(nil)

// NewServer builds the HTTP surface of a session host. The host it returns
// announces the port parsed from cfg.Addr.
func NewServer(id string, cfg config.HostConfig, opts ...Option) (*Server, error) {
	if err := config.ValidateHostConfig(cfg); err != nil {
		return nil, err
	}
	codec, err := channel.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	observability.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(corsConfig(cfg.CorsOrigins)))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	factory := SimulatedFactory(SimulatedConfig{
		Identity:      cfg.Identity,
		AutoPairAfter: cfg.AutoPairAfter,
		PairingTTL:    cfg.PairingTTL,
	})
	opts = append([]Option{WithPort(portOf(cfg.Addr))}, opts...)

	s := &Server{
		ID:       id,
		Addr:     cfg.Addr,
		Appeared: time.Now(),
		host:     New(factory, opts...),
		codec:    codec,
		router:   r,
		certFile: cfg.TLSCertFile,
		keyFile:  cfg.TLSKeyFile,
	}
	s.RegisterRoutes()
	return s, nil
}

func (s *Server) NodeID() string {
	return s.ID
}

func (s *Server) Kind() string {
	return "sessiond"
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) Host() *Host {
	return s.host
}

func (s *Server) RegisterRoutes() {
	r := s.router
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":   "linkbridge session host",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":    true,
			"attached": s.host.Attached(),
			"uptime":   time.Since(s.Appeared).String(),
			"service":  s.ID,
			"version":  version,
		})
	})

	r.GET("/channel", func(c *gin.Context) {
		t, err := channel.AcceptWebsocket(c.Writer, c.Request, channel.WebsocketOptions{Codec: s.codec})
		if err != nil {
			log.Warn().Err(err).Str("node", s.ID).Msg("host.channel upgrade failed")
			return
		}
		if err := s.host.Attach(c.Request.Context(), t); err != nil && !errors.Is(err, context.Canceled) {
			log.Info().Err(err).Str("node", s.ID).Msg("host.channel detached")
		}
	})

	r.GET("/session", func(c *gin.Context) {
		info, ok := s.host.Session()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrNoSession.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	})

	r.POST("/pairing/confirm", func(c *gin.Context) {
		if err := s.host.ConfirmPairing(); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/connection/drop", func(c *gin.Context) {
		var body struct {
			Reason string `json:"reason"`
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if body.Reason == "" {
			body.Reason = c.Query("reason")
		}
		if err := s.host.Drop(body.Reason); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Serve listens on Addr until ctx ends, then shuts down and closes the host.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if s.certFile != "" {
			log.Info().Str("node", s.ID).Str("addr", s.Addr).Msg("host.https listening")
			errCh <- srv.ListenAndServeTLS(s.certFile, s.keyFile)
			return
		}
		log.Info().Str("node", s.ID).Str("addr", s.Addr).Msg("host.http listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = s.host.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	_ = s.host.Close()
	log.Info().Str("node", s.ID).Msg("host.http stopped")
	return err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, ErrNotPairing), errors.Is(err, ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func portOf(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 0
	}
	return port
}
