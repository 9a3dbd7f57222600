package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brecho-erp/brecho-erp/internal/cashier"
	"github.com/brecho-erp/brecho-erp/internal/credit"
	"github.com/brecho-erp/brecho-erp/internal/exchange"
	"github.com/brecho-erp/brecho-erp/internal/platform/httpx"
	"github.com/brecho-erp/brecho-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	CreditHandler   *credit.Handler
	ExchangeHandler *exchange.Handler
	CashierHandler  *cashier.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router for the JSON API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/credits", params.CreditHandler.MountRoutes)
		api.Route("/trocas", params.ExchangeHandler.MountRoutes)
		api.Route("/caixa", params.CashierHandler.MountRoutes)
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
