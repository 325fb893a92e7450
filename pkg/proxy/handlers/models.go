package handlers

import (
	"net/http"
	"sort"
	"time"

	"mercator-hq/ganymede/pkg/proxy"
	"mercator-hq/ganymede/pkg/proxy/types"
)

// ModelsHandler serves GET /v1/models with the models that currently have
// session mappings.
type ModelsHandler struct {
	Broker Broker
}

// NewModelsHandler creates a new model listing handler.
func NewModelsHandler(b Broker) *ModelsHandler {
	return &ModelsHandler{Broker: b}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names := h.Broker.Models()
	sort.Strings(names)

	now := time.Now().Unix()
	list := types.ModelList{
		Object: "list",
		Data:   make([]types.ModelInfo, 0, len(names)),
	}
	for _, name := range names {
		list.Data = append(list.Data, types.ModelInfo{
			ID:      name,
			Object:  "model",
			Created: now,
			OwnedBy: "ganymede",
		})
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, list)
}
