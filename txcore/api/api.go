package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"sova-txcore/bridge"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/health"
	"sova-txcore/goutils/txerrors"
	"sova-txcore/orchestrator"
	"sova-txcore/txcore/service"
)

// Backend is what the API serves.
type Backend interface {
	State() service.Dashboard
	Flows() []orchestrator.FlowView
	SubscribeFlows(fn func(orchestrator.FlowView))
	Submit(ctx context.Context, kind datamodel.Action, req service.ActionRequest) (orchestrator.FlowView, error)
	Reset(id string) error
	Abort(id string) error
	Retry(ctx context.Context, id string) (orchestrator.FlowView, error)
	Quote(ctx context.Context, req service.ActionRequest) (*service.QuoteView, error)
	ObserveSettlement(id string) (bridge.View, error)
}

type Server struct {
	backend        Backend
	hub            *Hub
	healthEndpoint string
	checks         map[string]health.Check
}

type flowRequest struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string        `json:"error"`
	Kind  txerrors.Kind `json:"kind,omitempty"`
	Step  txerrors.Step `json:"step,omitempty"`
}

// NewServer subscribes the websocket hub to flow transitions.
func NewServer(backend Backend, healthEndpoint string, checks map[string]health.Check) *Server {
	s := &Server{backend: backend, hub: NewHub(), healthEndpoint: healthEndpoint, checks: checks}

	backend.SubscribeFlows(func(view orchestrator.FlowView) {
		s.hub.Broadcast("flow", view)
	})

	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Handle(s.healthEndpoint, health.HealthCheckHandler(s.checks)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/flows", s.handleFlows).Methods(http.MethodGet)
	r.HandleFunc("/actions/{action}", s.handleAction).Methods(http.MethodPost)
	r.HandleFunc("/flows/reset", s.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/flows/abort", s.handleAbort).Methods(http.MethodPost)
	r.HandleFunc("/flows/retry", s.handleRetry).Methods(http.MethodPost)
	r.HandleFunc("/bridge/quote", s.handleQuote).Methods(http.MethodPost)
	r.HandleFunc("/bridge/settlement", s.handleSettlement).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	return r
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("api server shutdown failed")
		}
	}()

	log.WithField("port", port).Info("starting txcore api")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("failed to write response")
	}
}

func statusFor(err error) int {
	if errors.Is(err, orchestrator.ErrNoFlow) {
		return http.StatusNotFound
	}

	switch txerrors.KindOf(err) {
	case txerrors.KindInvalidAmount, txerrors.KindInvalidRecipient, txerrors.KindUnsupportedRoute,
		txerrors.KindInsufficientBalance, txerrors.KindInsufficientFeeBalance:
		return http.StatusBadRequest
	case txerrors.KindAlreadyInProgress, txerrors.KindFlowNotReset, txerrors.KindIdentityChanged:
		return http.StatusConflict
	case txerrors.KindContractRead, txerrors.KindQuoteStale:
		return http.StatusBadGateway
	case "":
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	if typed := txerrors.As(err); typed != nil {
		resp.Kind = typed.Kind
		resp.Step = typed.Step
	}

	writeJSON(w, statusFor(err), resp)
}

func decode(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})

		return false
	}

	return true
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.State())
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Flows())
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	kind := datamodel.Action(mux.Vars(r)["action"])
	if !kind.Valid() {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown action %q", kind)})

		return
	}

	req := service.ActionRequest{}
	if !decode(w, r, &req) {
		return
	}

	view, err := s.backend.Submit(r.Context(), kind, req)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusAccepted, view)
}

func (s *Server) flowID(w http.ResponseWriter, r *http.Request) (string, bool) {
	req := flowRequest{}
	if !decode(w, r, &req) {
		return "", false
	}

	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "id is required"})

		return "", false
	}

	return req.ID, true
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.flowID(w, r)
	if !ok {
		return
	}

	if err := s.backend.Reset(id); err != nil {
		writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	id, ok := s.flowID(w, r)
	if !ok {
		return
	}

	if err := s.backend.Abort(id); err != nil {
		writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.flowID(w, r)
	if !ok {
		return
	}

	// the retried flow runs in the background; the client watches it over /ws
	view, err := s.backend.Retry(r.Context(), id)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusAccepted, view)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	req := service.ActionRequest{}
	if !decode(w, r, &req) {
		return
	}

	quote, err := s.backend.Quote(r.Context(), req)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request) {
	id, ok := s.flowID(w, r)
	if !ok {
		return
	}

	view, err := s.backend.ObserveSettlement(id)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoFlow) {
			writeError(w, err)

			return
		}

		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, s.backend.Flows())
}
