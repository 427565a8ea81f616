package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/user/edgar-fetcher/internal/report"
)

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	summary := report.Build(s.store.Snapshot())
	s.respondWithJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
