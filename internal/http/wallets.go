package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/halladj/vtc-sahra/internal/apperr"
)

const defaultTxLimit = 50

type amountRequest struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

type topUpRequest struct {
	Amount          int64  `json:"amount"`
	PaymentMethodID string `json:"payment_method_id"`
}

type balanceResponse struct {
	OwnerID string `json:"owner_id"`
	Balance int64  `json:"balance"`
}

func (s *Server) handleMyBalance(w http.ResponseWriter, r *http.Request) {
	s.writeBalance(w, r, mustActor(r).ID)
}

func (s *Server) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	s.writeBalance(w, r, mux.Vars(r)["owner_id"])
}

func (s *Server) writeBalance(w http.ResponseWriter, r *http.Request, ownerID string) {
	bal, err := s.Ledger.Balance(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{OwnerID: ownerID, Balance: bal})
}

func (s *Server) handleMyTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultTxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, r, apperr.InvalidInput("http.transactions", "limit must be between 1 and 500"))
			return
		}
		limit = n
	}
	txs, err := s.Ledger.Transactions(r.Context(), mustActor(r).ID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	if s.TopUps == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "NOT_CONFIGURED", Message: "card top-up is not configured"})
		return
	}
	var req topUpRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := s.TopUps.TopUp(r.Context(), mustActor(r).ID, req.Amount, req.PaymentMethodID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleOpenWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.Ledger.OpenWallet(r.Context(), mux.Vars(r)["owner_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := s.Ledger.Credit(r.Context(), mux.Vars(r)["owner_id"], req.Amount, adminRef(req.Reference))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := s.Ledger.Debit(r.Context(), mux.Vars(r)["owner_id"], req.Amount, adminRef(req.Reference))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func adminRef(ref string) string {
	if ref == "" {
		return "admin:" + newID()
	}
	return "admin:" + ref
}
