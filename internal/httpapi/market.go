package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleMarketSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Market.Summary())
}

func (s *Server) handleOrders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Market.Orders.Snapshot())
}

func (s *Server) handleAuctions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Market.Auctions.Snapshot())
}

func (s *Server) handleTransactions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Market.Transactions.Snapshot())
}

func (s *Server) handleChats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Market.Chats.Snapshot())
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Market.MessagesFor(mux.Vars(r)["id"]))
}

func (s *Server) handleUser(w http.ResponseWriter, _ *http.Request) {
	u, ok := s.deps.Market.User()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not signed in"})
		return
	}
	writeJSON(w, http.StatusOK, u)
}
