package api

import (
	"net/http"

	"github.com/JaimeStill/pallor/internal/config"
	"github.com/JaimeStill/pallor/pkg/module"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	spec http.HandlerFunc,
) {
	module.Register(
		mux,
		domain.Predictions.Handler(cfg.API.UploadDir, cfg.API.MaxUploadSizeBytes()).Routes(),
		module.Group{
			Routes: []module.Route{
				{Method: "GET", Pattern: "/openapi.json", Handler: spec},
			},
		},
	)
}
