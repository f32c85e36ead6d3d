package ansagrado

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	pprofPrefix      = "/debug"
	apiPrefix        = "/api"
	apiHealthCheck   = "/healthz"
	apiPathStore     = "/store"
	apiPathSync      = "/sync"
	apiPathConfig    = "/config"
	apiPathQuit      = "/quit"
	xRequestIDHeader = "X-Request-ID"
	bearerPrefix     = "Bearer "
)

// API is the optional admin HTTP server.
type API struct {
	bot        *Bot
	config     *APIConfig
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// httpReply represents a standard HTTP response message.
type httpReply struct {
	Message string `json:"message"`
}

// httpError represents an error message returned to the client
type httpError struct {
	Error string `json:"error"`
}

type healthCheckResponse struct {
	DiscordGatewayConnected bool   `json:"discord_gateway_connected"`
	StoreMode               string `json:"store_mode"`
	ActiveGames             int    `json:"active_games"`
}

type storeStatusResponse struct {
	Mode    string         `json:"mode"`
	Remote  bool           `json:"remote_configured"`
	Pending map[string]int `json:"pending"`
}

type runtimeConfigResponse struct {
	Settings    RuntimeSettings `json:"settings"`
	LastUpdated *time.Time      `json:"last_updated,omitempty"`
}

func newAPI(b *Bot, config *APIConfig) (*API, error) {
	r := gin.New()

	api := &API{
		bot:    b,
		config: config,
		engine: r,
		logger: newComponentLogger("api", config.LogLevel),
	}

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	if config.SSL.Enabled() {
		tlsCfg, err := tlsConfig(
			config.SSL.Cert,
			config.SSL.Key,
			config.SSL.TLSMinVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("error loading SSL certs: %w", err)
		}
		httpServer.TLSConfig = tlsCfg
	}
	api.httpServer = httpServer

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 {
		if config.Development {
			corsConfig.AllowOrigins = []string{"*"}
		} else {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	}

	if !config.Development {
		r.Use(gin.Recovery())
	}
	r.Use(
		requestIDMiddleware(),
		ginLoggingMiddleware(api.logger),
		cors.New(corsConfig),
	)

	r.GET(apiHealthCheck, api.healthCheck)

	if config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	protected := r.Group(apiPrefix)
	protected.Use(authMiddleware(config.Token))

	protected.GET(apiPathStore, api.getStore)
	protected.POST(apiPathSync, api.syncStore)
	protected.GET(apiPathConfig, api.getConfig)
	protected.PATCH(apiPathConfig, api.updateConfig)
	protected.POST(apiPathQuit, api.quit)

	return api, nil
}

// Serve listens on the configured address until the server is shut down.
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
		if err != nil {
			return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
		}
		if a.httpServer.TLSConfig != nil {
			ln = tls.NewListener(ln, a.httpServer.TLSConfig)
		}
		a.listener = ln
	}
	a.logger.InfoContext(ctx, "serving api", "addr", a.listener.Addr().String())
	return a.httpServer.Serve(a.listener)
}

func (a *API) healthCheck(c *gin.Context) {
	rv := healthCheckResponse{
		DiscordGatewayConnected: a.bot.discord.connected.Load(),
		ActiveGames:             a.bot.games.count(),
	}
	if a.bot.store != nil {
		rv.StoreMode = a.bot.store.Mode().String()
	}
	c.JSON(http.StatusOK, rv)
}

func (a *API) getStore(c *gin.Context) {
	if a.bot.store == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, httpError{Error: "store not open"})
		return
	}
	c.JSON(
		http.StatusOK, storeStatusResponse{
			Mode:    a.bot.store.Mode().String(),
			Remote:  a.bot.config.Database.RemoteConfigured(),
			Pending: a.bot.store.Pending(),
		},
	)
}

// syncStore migrates locally buffered documents to the remote backend.
func (a *API) syncStore(c *gin.Context) {
	logger := ginContextLogger(c)
	report, err := a.bot.SyncStore(c.Request.Context())
	switch {
	case err == nil:
		logger.Info("synced store", "documents", report.Documents, "backend", report.Backend)
		c.JSON(http.StatusOK, report)
	case errors.Is(err, ErrNoRemoteConfigured):
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
	case errors.Is(err, datastore.ErrConnectivity):
		logger.Error("error connecting to remote", tint.Err(err))
		c.AbortWithStatusJSON(http.StatusBadGateway, httpError{Error: err.Error()})
	default:
		logger.Error("error syncing store", tint.Err(err))
		_ = c.Error(err)
		ginReplyError(c, err.Error())
	}
}

func (a *API) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, a.runtimeConfigResponse())
}

func (a *API) runtimeConfigResponse() runtimeConfigResponse {
	rv := runtimeConfigResponse{Settings: a.bot.runtimeConfig.Get()}
	if t := a.bot.runtimeConfig.LastUpdated(); !t.IsZero() {
		rv.LastUpdated = &t
	}
	return rv
}

func (a *API) updateConfig(c *gin.Context) {
	logger := ginContextLogger(c)
	var update RuntimeSettingsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	if _, err := a.bot.runtimeConfig.Update(c.Request.Context(), update); err != nil {
		if errors.Is(err, datastore.ErrStorageUnavailable) {
			logger.Error("error saving runtime config", tint.Err(err))
			_ = c.Error(err)
			ginReplyError(c, "error saving config")
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, a.runtimeConfigResponse())
}

func (a *API) quit(c *gin.Context) {
	log := ginContextLogger(c)
	log.Warn("sending stop signal")
	if !a.bot.Stop() {
		c.JSON(http.StatusConflict, httpError{Error: "already stopping"})
		return
	}
	ginReplyMessage(c, "quitting")
}

// authMiddleware requires the configured bearer token. With no token
// configured, every request is rejected.
func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		given, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok || token == "" ||
			subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

// requestIDMiddleware assigns a unique request ID to each incoming
// request, echoed back in the X-Request-ID header.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(xRequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details included,
// and sets the logger in the context so the next call to ginContextLogger
// will return the new logger.
func ginContextLogger(c *gin.Context) *slog.Logger {
	if logger, ok := c.Get(string(loggerContextKey)); ok {
		if requestLogger, ok := logger.(*slog.Logger); ok {
			return requestLogger
		}
	}
	return setGinContextLogger(c, slog.Default())
}

func setGinContextLogger(c *gin.Context, base *slog.Logger) *slog.Logger {
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	if raw := c.Request.URL.RawQuery; raw != "" {
		path = path + "?" + raw
	}
	requestLogger := base.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware logs each request with its duration and
// response status.
func ginLoggingMiddleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := setGinContextLogger(c, base)
		c.Next()
		latency := time.Since(start)

		var errs []error
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate) {
			errs = append(errs, e.Err)
		}
		response := slog.Group(
			"response",
			"status_code", c.Writer.Status(),
			"body_size", c.Writer.Size(),
		)
		if len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf("%s %s finished with errors", c.Request.Method, c.Request.URL.Path),
				"duration", latency,
				tint.Err(errors.Join(errs...)),
				response,
			)
			return
		}
		requestLogger.Info(
			fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL.Path),
			"duration", latency,
			response,
		)
	}
}

// ginReplyMessage sends a JSON response with a message,
// with HTTP status code 200, via the gin context.
func ginReplyMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, httpReply{Message: message})
}

// ginReplyError sends a JSON response with a message,
// with HTTP status code 500, via the gin context.
func ginReplyError(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: err})
}
