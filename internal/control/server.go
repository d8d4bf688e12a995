package control

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"order-probe-bot/internal/algo"
	"order-probe-bot/internal/config"
	"order-probe-bot/internal/market"
	"order-probe-bot/internal/state"
	"order-probe-bot/internal/strategy"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultDepth = 10
	maxDepth     = 100
)

type Runtime interface {
	Status() algo.Status
	BookDepth(n int) (market.Asset, []market.Level, []market.Level, bool)
}

type Strategy interface {
	Status() strategy.Status
}

type Deps struct {
	Runtime  Runtime
	Strategy Strategy
	// Stop ends the algorithm with an operator supplied reason.
	Stop     func(reason string)
	Store    state.Store
	Exchange string
	Pair     string
	Metrics  http.Handler
	Log      *zap.Logger
}

type Server struct {
	cfg  config.ControlConfig
	deps Deps
	log  *zap.Logger
}

func New(cfg config.ControlConfig, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, deps: deps, log: log.Named("control")}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/status", s.handleStatus)
	r.GET("/book", s.handleBook)
	r.POST("/interrupt", s.handleInterrupt)
	if s.deps.Metrics != nil && s.cfg.MetricsPath != "" {
		r.GET(s.cfg.MetricsPath, gin.WrapH(s.deps.Metrics))
	}
	return r
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("control server listening", zap.String("address", s.cfg.Address))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	body := gin.H{}
	if s.deps.Runtime != nil {
		body["runner"] = s.deps.Runtime.Status()
	}
	if s.deps.Strategy != nil {
		body["strategy"] = s.deps.Strategy.Status()
	}
	if s.deps.Store != nil {
		snap, ok, err := state.LoadRunSnapshot(c.Request.Context(), s.deps.Store, s.deps.Exchange, s.deps.Pair)
		if err != nil {
			s.log.Warn("run snapshot load failed", zap.Error(err))
		} else if ok {
			body["run"] = snap
		}
	}
	c.JSON(http.StatusOK, body)
}

type levelView struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func levelViews(levels []market.Level) []levelView {
	out := make([]levelView, len(levels))
	for i, l := range levels {
		out[i] = levelView{Price: l.Price.String(), Size: l.Size.String()}
	}
	return out
}

func (s *Server) handleBook(c *gin.Context) {
	depth := defaultDepth
	if raw := strings.TrimSpace(c.Query("depth")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be a positive integer"})
			return
		}
		depth = min(n, maxDepth)
	}
	if s.deps.Runtime == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "runtime unavailable"})
		return
	}
	asset, bids, asks, ok := s.deps.Runtime.BookDepth(depth)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order book not available yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"exchange": asset.Exchange,
		"symbol":   asset.Symbol(),
		"bids":     levelViews(bids),
		"asks":     levelViews(asks),
	})
}

type interruptRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleInterrupt(c *gin.Context) {
	if s.deps.Stop == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stop unavailable"})
		return
	}
	var req interruptRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "operator request"
	} else {
		reason = "operator request: " + reason
	}
	s.log.Info("operator interrupt", zap.String("reason", reason), zap.String("remote", c.ClientIP()))
	s.deps.Stop(reason)
	c.JSON(http.StatusAccepted, gin.H{"interrupted": true, "reason": reason})
}
