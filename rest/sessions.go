package rest

import (
	"net/http"

	"bitbucket.org/kleinnic74/tourist/fetcher"

	"github.com/gorilla/mux"
)

// SessionsHandler exposes the in-flight fetch cycles, mostly useful
// when debugging a stuck gallery
type SessionsHandler struct {
	coord *fetcher.Coordinator
}

func NewSessionsHandler(coord *fetcher.Coordinator) *SessionsHandler {
	return &SessionsHandler{coord: coord}
}

func (s *SessionsHandler) InitRoutes(r *mux.Router) {
	r.HandleFunc("/fetch/sessions", s.getSessions).Methods("GET")
}

func (s *SessionsHandler) getSessions(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.coord.Sessions())
}
