// Command hftd runs the HFT orchestrator behind a gin admin/dashboard
// HTTP surface, composed with go.uber.org/fx for lifecycle management.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/api/middleware"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/monitoring"
	"github.com/lumenfeed/hftorch/internal/orchestrator"
)

// defaultSymbols and defaultBasePrices seed the simulated feed when no
// external instrument reference data is wired in.
var defaultSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"}

var defaultBasePrices = map[string]float64{
	"AAPL":  195.00,
	"MSFT":  420.00,
	"GOOGL": 165.00,
	"AMZN":  180.00,
	"NVDA":  120.00,
}

func main() {
	fx.New(
		fx.Provide(
			newLogger,
			newConfigManager,
			newDashboardHub,
			newOrchestrator,
			newSecurityMiddleware,
			newDashboardCache,
			newHTTPServer,
		),
		fx.Invoke(registerHooks),
	).Run()
}

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

func newConfigManager(logger *zap.Logger) (*config.Manager, error) {
	path := os.Getenv("HFT_CONFIG_PATH")
	if path == "" {
		path = "config/hft.yaml"
	}
	return config.NewManager(logger, path, true)
}

func newDashboardHub(logger *zap.Logger, mgr *config.Manager) (*monitoring.Hub, error) {
	cfg := mgr.Get()
	if cfg.Monitoring.NATSUrl == "" {
		return monitoring.NewHub(logger, nil, "hft.dashboard"), nil
	}
	publisher, err := monitoring.NewNATSPublisher(cfg.Monitoring.NATSUrl, nil)
	if err != nil {
		return nil, fmt.Errorf("connect dashboard NATS publisher: %w", err)
	}
	return monitoring.NewHub(logger, publisher, "hft.dashboard"), nil
}

func newOrchestrator(logger *zap.Logger, mgr *config.Manager, hub *monitoring.Hub) (*orchestrator.Orchestrator, error) {
	cfg := mgr.Get()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return orchestrator.New(cfg, defaultSymbols, defaultBasePrices, logger, rng, hub)
}

func newSecurityMiddleware(logger *zap.Logger) *middleware.Security {
	return middleware.New(logger, 600)
}

func newDashboardCache(mgr *config.Manager) *cache.Cache {
	cfg := mgr.Get()
	ttl := time.Duration(cfg.Monitoring.DashboardCacheTTLMS) * time.Millisecond
	return cache.New(ttl, 2*ttl)
}

func newHTTPServer(logger *zap.Logger, o *orchestrator.Orchestrator, hub *monitoring.Hub, sec *middleware.Security, dashCache *cache.Cache) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sec.RequestID())
	router.Use(sec.SecurityHeaders())
	router.Use(sec.CORS())
	router.Use(sec.RateLimiter())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC()})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.Registry(), promhttp.HandlerOpts{})))

	router.GET("/api/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.GetSystemStatus())
	})

	router.GET("/api/dashboard", func(c *gin.Context) {
		if cached, ok := dashCache.Get("snapshot"); ok {
			c.JSON(http.StatusOK, cached)
			return
		}
		snap := o.GetDashboard()
		dashCache.SetDefault("snapshot", snap)
		c.JSON(http.StatusOK, snap)
	})

	router.GET("/api/orderbooks", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.GetAllOrderBooks())
	})

	router.GET("/api/orderbook/:symbol", func(c *gin.Context) {
		snap, ok := o.GetOrderBookSnapshot(c.Param("symbol"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	router.POST("/api/shock", func(c *gin.Context) {
		var req struct {
			Symbol       string  `json:"symbol" binding:"required"`
			MagnitudePct float64 `json:"magnitude_pct" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		o.InjectPriceShock(req.Symbol, req.MagnitudePct)
		c.JSON(http.StatusAccepted, gin.H{"injected": true})
	})

	router.GET("/ws", func(c *gin.Context) {
		if err := hub.ServeWS(c.Writer, c.Request); err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
		}
	})

	addr := os.Getenv("HFT_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{Addr: addr, Handler: router}
}

func registerHooks(lc fx.Lifecycle, logger *zap.Logger, mgr *config.Manager, o *orchestrator.Orchestrator, srv *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			o.Start(context.Background())
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("http server exited", zap.Error(err))
				}
			}()
			logger.Info("hftd started", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("hftd stopping")
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("http server shutdown error", zap.Error(err))
			}
			o.Stop()
			return mgr.Close()
		},
	})
}
