package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/JaimeStill/pallor/pkg/handlers"
	"github.com/JaimeStill/pallor/pkg/module"
	"github.com/JaimeStill/pallor/pkg/storage"
)

type artifactsHandler struct {
	store  storage.System
	logger *slog.Logger
}

func newArtifactsHandler(store storage.System, logger *slog.Logger) *artifactsHandler {
	return &artifactsHandler{
		store:  store,
		logger: logger.With("handler", "artifacts"),
	}
}

func (h *artifactsHandler) routes() module.Group {
	return module.Group{
		Prefix: "/results",
		Routes: []module.Route{
			{Method: "GET", Pattern: "/{key...}", Handler: h.download},
		},
	}
}

func (h *artifactsHandler) download(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	blob, err := h.store.Download(r.Context(), key)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}
	defer blob.Body.Close()

	w.Header().Set("Content-Type", blob.ContentType)
	if blob.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(blob.ContentLength, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(key)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, blob.Body); err != nil {
		h.logger.Warn("artifact stream interrupted", "key", key, "error", err)
	}
}
