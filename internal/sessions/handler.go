package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=sessions_test

type sessionsRepo interface {
	Add(ctx context.Context, session Session) (*Session, error)
	Complete(ctx context.Context, params CompleteParams) (*Session, error)
	Get(ctx context.Context, id int) (*Session, error)
	List(ctx context.Context, params ListParams) (_ []Session, total int, err error)
	Delete(ctx context.Context, id int) error
}

// evaluator runs the post-workout evaluation pipeline. It never fails the
// session save, whatever goes wrong inside is logged there.
type evaluator interface {
	EvaluateSession(ctx context.Context, session *Session)
}

type StartSessionRequest struct {
	StartedAt     time.Time `json:"startedAt"`
	TargetMinutes *int      `json:"targetMinutes,omitempty"`
}

type CompleteSessionRequest struct {
	CompletedAt   time.Time           `json:"completedAt"`
	TargetMinutes *int                `json:"targetMinutes,omitempty"`
	Exercises     []PerformedExercise `json:"exercises"`
}

type DeleteSessionResponse struct {
	DeletedID int `json:"deletedId"`
}

type SessionsListResponse struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}

type Handler struct {
	repo      sessionsRepo
	evaluator evaluator
}

func NewHandler(repo sessionsRepo, evaluator evaluator) *Handler {
	return &Handler{
		repo:      repo,
		evaluator: evaluator,
	}
}

func (handler *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.start")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var startReq StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&startReq); err != nil {
		log.Errorf("start session, unmarshal json params: %s", err)
		http.Error(w, "start session failed", http.StatusBadRequest)
		return
	}

	if startReq.StartedAt.IsZero() {
		startReq.StartedAt = time.Now()
	}

	addedSession, err := handler.repo.Add(ctx, Session{
		StartedAt:     startReq.StartedAt,
		TargetMinutes: startReq.TargetMinutes,
	})
	if err != nil {
		log.Errorf("failed to start new session: %s", err)
		http.Error(w, "error, failed to start new session", http.StatusInternalServerError)
		return
	}

	log.Debugf("new session started: %d", addedSession.ID)

	sessionJson, err := json.Marshal(addedSession)
	if err != nil {
		log.Errorf("failed to marshal started session: %s", err)
		http.Error(w, "error, failed to start new session", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, sessionJson, http.StatusCreated)
}

func (handler *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.complete")
	defer span.End()

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	var completeReq CompleteSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&completeReq); err != nil {
		log.Errorf("complete session %d, unmarshal json params: %s", id, err)
		http.Error(w, "complete session failed", http.StatusBadRequest)
		return
	}

	if completeReq.CompletedAt.IsZero() {
		http.Error(w, "error, completedAt empty", http.StatusBadRequest)
		return
	}

	completedSession, err := handler.repo.Complete(ctx, CompleteParams{
		SessionID:     id,
		CompletedAt:   completeReq.CompletedAt,
		TargetMinutes: completeReq.TargetMinutes,
		Exercises:     completeReq.Exercises,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			http.Error(w, "session not found", http.StatusNotFound)
		case errors.Is(err, ErrSessionAlreadyCompleted):
			http.Error(w, "session already completed", http.StatusConflict)
		case errors.Is(err, ErrExerciseNotFound):
			http.Error(w, "error, exercise not found", http.StatusBadRequest)
		default:
			log.Errorf("failed to complete session %d: %s", id, err)
			http.Error(w, "error, failed to complete session", http.StatusInternalServerError)
		}
		return
	}

	// the save is done, evaluation cannot fail it anymore
	handler.evaluator.EvaluateSession(ctx, completedSession)

	log.Debugf(
		"session %d completed: %d min, status [%s]",
		completedSession.ID, completedSession.DurationMinutes(), completedSession.Status,
	)

	sessionJson, err := json.Marshal(completedSession)
	if err != nil {
		log.Errorf("failed to marshal completed session %d: %s", id, err)
		http.Error(w, "error, failed to complete session", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, sessionJson, http.StatusOK)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.get")
	defer span.End()

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	session, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get session %d: %s", id, err)
		http.Error(w, "failed to get session", http.StatusInternalServerError)
		return
	}

	sessionJson, err := json.Marshal(session)
	if err != nil {
		log.Errorf("failed to marshal session %d: %s", id, err)
		http.Error(w, "failed to get session", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, sessionJson, http.StatusOK)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.list")
	defer span.End()

	vars := mux.Vars(r)
	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		http.Error(w, "error, page NaN", http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(vars["size"])
	if err != nil {
		http.Error(w, "error, size NaN", http.StatusBadRequest)
		return
	}

	found, total, err := handler.repo.List(ctx, ListParams{
		Page: page,
		Size: size,
	})
	if err != nil {
		log.Errorf("failed to list sessions [page %d size %d]: %s", page, size, err)
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(SessionsListResponse{
		Sessions: found,
		Total:    total,
	})
	if err != nil {
		log.Errorf("failed to marshal sessions list: %s", err)
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.delete")
	defer span.End()

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to delete session %d: %s", id, err)
		http.Error(w, "error, failed to delete session", http.StatusInternalServerError)
		return
	}

	deleteRespJson, err := json.Marshal(DeleteSessionResponse{
		DeletedID: id,
	})
	if err != nil {
		log.Errorf("failed to marshal delete session response: %s", err)
		http.Error(w, "error, failed to delete session", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, deleteRespJson, http.StatusOK)
}
