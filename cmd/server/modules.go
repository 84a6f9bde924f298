package main

import (
	"encoding/json"
	"net/http"

	"github.com/JaimeStill/pallor/internal/api"
	"github.com/JaimeStill/pallor/internal/config"
	"github.com/JaimeStill/pallor/internal/infrastructure"
	"github.com/JaimeStill/pallor/pkg/module"
)

// Modules holds the prefixed sub-applications mounted on the root router.
type Modules struct {
	API    *module.Module
	Static *module.Module
}

// NewModules creates every module from the shared infrastructure.
func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	apiModule, err := api.NewModule(cfg, infra)
	if err != nil {
		return nil, err
	}

	staticModule, err := api.NewStaticModule(infra)
	if err != nil {
		return nil, err
	}

	return &Modules{
		API:    apiModule,
		Static: staticModule,
	}, nil
}

// Mount registers every module on router.
func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API)
	router.Mount(m.Static)
}

func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})

	router.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !infra.Lifecycle.Ready() {
			writeStatus(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})

	return router
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
