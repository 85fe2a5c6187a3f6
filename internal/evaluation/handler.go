package evaluation

import (
	"context"
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=evaluation_test

type rebuilder interface {
	RebuildAll(ctx context.Context) (int, error)
}

type RebuildResponse struct {
	ReplayedSessions int `json:"replayedSessions"`
}

// Handler exposes the rebuild as an admin endpoint. The route must sit
// behind the admin auth middleware, a rebuild rewrites the whole record
// table.
type Handler struct {
	rebuilder rebuilder
}

func NewHandler(rebuilder rebuilder) *Handler {
	return &Handler{
		rebuilder: rebuilder,
	}
}

func (handler *Handler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.evaluation.rebuild")
	defer span.End()

	replayed, err := handler.rebuilder.RebuildAll(ctx)
	if err != nil {
		log.Errorf("rebuild records: %s", err)
		http.Error(w, "rebuild failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(RebuildResponse{
		ReplayedSessions: replayed,
	})
	if err != nil {
		log.Errorf("rebuild records, marshal response: %s", err)
		http.Error(w, "rebuild failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}
