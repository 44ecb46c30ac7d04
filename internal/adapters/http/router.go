package http

import (
	"context"
	stdhttp "net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/coroom/internal/adapters/signal"
	"github.com/dkeye/coroom/internal/app/orch"
	"github.com/dkeye/coroom/internal/config"
	"github.com/dkeye/coroom/internal/executor"
	"github.com/dkeye/coroom/internal/languages"
	"github.com/dkeye/coroom/internal/limiter"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "ct"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token kept in the
// session cookie. It only labels logs and rate limits; it is not identity.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type Services struct {
	Orch      *orch.Orchestrator
	Executor  *executor.Executor
	Languages *languages.Resolver
}

func SetupRouter(ctx context.Context, cfg *config.Config, svc Services) *gin.Engine {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if !cfg.Production() {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("CoroomSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ctrl := signal.NewSignalWSController(svc.Orch, signal.Options{
		ReadLimit:  cfg.WS.ReadLimit,
		PingPeriod: cfg.WS.PingPeriod,
		SendBuffer: cfg.WS.SendBuffer,
	})

	rl := limiter.NewRateLimiter(0, cfg.Exec.RatePerSec, cfg.Exec.RateBurst)
	rl.StartCleanup(ctx, 5*time.Minute)

	h := &handlers{
		orch:         svc.Orch,
		executor:     svc.Executor,
		languages:    svc.Languages,
		maxBodyBytes: cfg.Exec.MaxBodyBytes,
	}

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})
	api.POST("/run", rl.Middleware(), h.run)
	api.GET("/rooms", h.rooms)
	api.GET("/languages", h.listLanguages)

	if cfg.Production() {
		serveStatic(r, cfg.StaticPath)
	} else {
		r.GET("/", func(c *gin.Context) {
			c.String(stdhttp.StatusOK, "coroom server is running in development mode")
		})
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

// serveStatic serves built assets and falls back to index.html so client
// side routes survive a reload. Unknown /api paths stay 404.
func serveStatic(r *gin.Engine, root string) {
	index := filepath.Join(root, "index.html")
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != stdhttp.MethodGet && c.Request.Method != stdhttp.MethodHead {
			c.JSON(stdhttp.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(stdhttp.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		p := filepath.Join(root, filepath.FromSlash(path.Clean("/"+c.Request.URL.Path)))
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			c.File(p)
			return
		}
		c.File(index)
	})
}
