package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halladj/vtc-sahra/internal/auth"
	"github.com/halladj/vtc-sahra/internal/dispatch"
	"github.com/halladj/vtc-sahra/internal/ledger"
	"github.com/halladj/vtc-sahra/internal/location"
	"github.com/halladj/vtc-sahra/internal/models"
	"github.com/halladj/vtc-sahra/internal/payments"
	"github.com/halladj/vtc-sahra/internal/realtime"
	"github.com/halladj/vtc-sahra/internal/rides"
)

// ReadyCheck reports whether a backing store is reachable.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Rides    *rides.Service
	Ledger   *ledger.Ledger
	TopUps   *payments.TopUps
	Dispatch *dispatch.Broadcaster
	Location *location.Handler
	Hub      *realtime.Hub
	Auth     *auth.Verifier
	Ready    []ReadyCheck
	Logger   *slog.Logger
}

type Server struct {
	Deps
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(d Deps) *Server {
	s := &Server{Deps: d, logger: d.Logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/readyz", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/rides", s.requireRole(s.handleCreateRide, auth.RolePassenger)).Methods("POST")
	api.HandleFunc("/rides/{id}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{id}", s.requireRole(s.handleUpdateRide, auth.RolePassenger)).Methods("PATCH")
	api.HandleFunc("/rides/{id}/accept", s.requireRole(s.handleAcceptRide, auth.RoleDriver)).Methods("POST")
	api.HandleFunc("/rides/{id}/status", s.handleRideStatus).Methods("POST")
	api.HandleFunc("/rides/{id}/cancel", s.handleCancelRide).Methods("POST")

	api.HandleFunc("/wallet", s.handleMyBalance).Methods("GET")
	api.HandleFunc("/wallet/transactions", s.handleMyTransactions).Methods("GET")
	api.HandleFunc("/wallet/topup", s.handleTopUp).Methods("POST")
	api.HandleFunc("/wallets/{owner_id}", s.requireRole(s.handleOpenWallet, auth.RoleAdmin)).Methods("PUT")
	api.HandleFunc("/wallets/{owner_id}", s.requireRole(s.handleWalletBalance, auth.RoleAdmin)).Methods("GET")
	api.HandleFunc("/wallets/{owner_id}/credit", s.requireRole(s.handleCredit, auth.RoleAdmin)).Methods("POST")
	api.HandleFunc("/wallets/{owner_id}/debit", s.requireRole(s.handleDebit, auth.RoleAdmin)).Methods("POST")

	ws := s.mux.PathPrefix("/ws").Subrouter()
	ws.Use(s.authMiddleware)
	ws.HandleFunc("/driver", s.requireRole(s.handleDriverWS, auth.RoleDriver))
	ws.HandleFunc("/passenger", s.requireRole(s.handlePassengerWS, auth.RolePassenger))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]string{}
	ok := true
	for _, c := range s.Ready {
		if err := c.Check(ctx); err != nil {
			status[c.Name] = err.Error()
			ok = false
			continue
		}
		status[c.Name] = "ok"
	}
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

type acceptRequest struct {
	VehicleID string `json:"vehicle_id"`
}

type statusRequest struct {
	Status models.RideStatus `json:"status"`
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	var p rides.CreateParams
	if !decode(w, r, &p) {
		return
	}
	ride, err := s.Rides.Create(r.Context(), actor.ID, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Rides.Get(r.Context(), mux.Vars(r)["id"], mustActor(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleUpdateRide(w http.ResponseWriter, r *http.Request) {
	var p rides.UpdateParams
	if !decode(w, r, &p) {
		return
	}
	ride, err := s.Rides.Update(r.Context(), mux.Vars(r)["id"], mustActor(r).ID, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleAcceptRide(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !decode(w, r, &req) {
		return
	}
	ride, err := s.Rides.Accept(r.Context(), mux.Vars(r)["id"], mustActor(r).ID, req.VehicleID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleRideStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	ride, err := s.Rides.UpdateStatus(r.Context(), mux.Vars(r)["id"], mustActor(r).ID, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	res, err := s.Rides.Cancel(r.Context(), mux.Vars(r)["id"], mustActor(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "INVALID_INPUT", Message: "malformed request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
