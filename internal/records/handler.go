package records

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=records_test

type podiumService interface {
	ExercisePodiums(ctx context.Context, exerciseID int) ([]Podium, error)
	AllPodiums(ctx context.Context) ([]Podium, error)
}

type PodiumsResponse struct {
	Podiums []Podium `json:"podiums"`
	Total   int      `json:"total"`
}

type Handler struct {
	podiums podiumService
}

func NewHandler(podiums podiumService) *Handler {
	return &Handler{
		podiums: podiums,
	}
}

func (handler *Handler) HandleExercisePodiums(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.records.exercisepodiums")
	defer span.End()

	exerciseID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, exercise id NaN", http.StatusBadRequest)
		return
	}

	podiums, err := handler.podiums.ExercisePodiums(ctx, exerciseID)
	if err != nil {
		log.Errorf("failed to get podiums for exercise %d: %s", exerciseID, err)
		http.Error(w, "failed to get podiums", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(PodiumsResponse{
		Podiums: podiums,
		Total:   len(podiums),
	})
	if err != nil {
		log.Errorf("failed to marshal podiums for exercise %d: %s", exerciseID, err)
		http.Error(w, "failed to get podiums", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandleAllPodiums(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.records.allpodiums")
	defer span.End()

	podiums, err := handler.podiums.AllPodiums(ctx)
	if err != nil {
		log.Errorf("failed to get all podiums: %s", err)
		http.Error(w, "failed to get podiums", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(PodiumsResponse{
		Podiums: podiums,
		Total:   len(podiums),
	})
	if err != nil {
		log.Errorf("failed to marshal all podiums: %s", err)
		http.Error(w, "failed to get podiums", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}
