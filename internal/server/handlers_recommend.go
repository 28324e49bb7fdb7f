package server

import (
	"net/http"

	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/service/recommend"
)

// HandleRecommend handles POST /v1/recommendations.
func (h *Handlers) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	var req model.RecommendationRequest
	if !h.decode(w, r, &req) {
		return
	}
	ranked, err := h.engine.Recommend(r.Context(), recommend.Query{
		EventID:  req.EventID,
		Limit:    req.Limit,
		FromDate: req.FromDate.TimePtr(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := recommend.Hydrate(r.Context(), h.db, ranked)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}
