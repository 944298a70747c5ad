package httpapi

import (
	"context"
	"net/http"
	"time"

	"chat_gateway/internal/gateway"
	"chat_gateway/internal/logging"
	"chat_gateway/internal/middleware"
	"chat_gateway/internal/providers"
	"chat_gateway/internal/storage"
	"chat_gateway/internal/utils"
)

const (
	defaultMaxBodyBytes = 4 << 20
	healthCheckTimeout  = 2 * time.Second
)

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Gateway *gateway.Gateway
	Sink    logging.Sink
	Logger  *utils.Logger

	// Optional backends. Nil disables transcript persistence and the
	// corresponding health check.
	DB          *storage.DB
	Transcripts *storage.TranscriptRepository
	Redis       *storage.RedisClient

	MaxBodyBytes int64
}

// NewRouter creates the HTTP handler with every route registered and the
// middleware chain applied.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Sink == nil {
		deps.Sink = logging.NewNoopSink()
	}
	if deps.Logger == nil {
		deps.Logger = utils.NewLogger("httpapi")
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps)

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.AccessLog(deps.Logger),
		middleware.Recover,
	)
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("POST /api/chat", deps.handleChat)

	mux.HandleFunc("GET /health", deps.handleHealth)
	mux.HandleFunc("GET /api/providers", handleProviders)

	// Transcript reads only make sense with a database behind them.
	if deps.Transcripts != nil {
		mux.HandleFunc("GET /api/conversations", deps.handleListConversations)
		mux.HandleFunc("GET /api/conversations/{id}", deps.handleGetConversation)
		mux.HandleFunc("DELETE /api/conversations/{id}", deps.handleDeleteConversation)
	}
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Backends map[string]backendHealth `json:"backends,omitempty"`
}

type backendHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Stats  any    `json:"stats,omitempty"`
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Backends: map[string]backendHealth{}}
	check := func(name string, fn func(context.Context) error, stats any) {
		if err := fn(ctx); err != nil {
			d.Logger.Warn("health check failed", "backend", name, "error", err)
			resp.Backends[name] = backendHealth{Status: "down", Error: err.Error()}
			resp.Status = "degraded"
			return
		}
		resp.Backends[name] = backendHealth{Status: "ok", Stats: stats}
	}
	if d.DB != nil {
		check("database", d.DB.Health, d.DB.GetStats())
	}
	if d.Redis != nil {
		check("redis", d.Redis.Health, d.Redis.GetStats())
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	utils.RespondWithJSON(w, code, resp)
}

type providersResponse struct {
	Providers       []providers.ProviderConfig `json:"providers"`
	DefaultProvider providers.ProviderID       `json:"defaultProvider"`
	DefaultModel    string                     `json:"defaultModel"`
}

func handleProviders(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, providersResponse{
		Providers:       providers.Catalog(),
		DefaultProvider: providers.DefaultProvider,
		DefaultModel:    providers.DefaultModel,
	})
}
