// Package server exposes the risk engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/prradar/prradar/pkg/analysis"
	"github.com/prradar/prradar/pkg/apis/risk"
)

// Reporter is the aggregator surface the server needs.
type Reporter interface {
	Report(ctx context.Context, owner, repo string, opts analysis.Options) (*risk.RepositoryReport, error)
	Cached(ctx context.Context, owner, repo string) (*risk.RepositoryReport, error)
}

type Server struct {
	listenAddr string
	reporter   Reporter
	httpServer *http.Server
}

func New(listenAddr string, reporter Reporter) *Server {
	return &Server{
		listenAddr: listenAddr,
		reporter:   reporter,
	}
}

func (s *Server) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/health", s.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/api/risk/analyze", s.analyzeRepository).Methods(http.MethodPost)
	router.HandleFunc("/api/risk/repos/{owner}/{repo}", s.repositoryReport).Methods(http.MethodGet)
	router.HandleFunc("/api/risk/repos/{owner}/{repo}/summary", s.repositorySummary).Methods(http.MethodGet)
	router.HandleFunc("/api/risk/repos/{owner}/{repo}/prs", s.listPullRequests).Methods(http.MethodGet)
	router.HandleFunc("/api/risk/repos/{owner}/{repo}/prs/{number}", s.pullRequestAnalysis).Methods(http.MethodGet)
	return router
}

func (s *Server) Serve() {
	s.httpServer = &http.Server{
		Addr:    s.listenAddr,
		Handler: s.router(),
	}

	log.Infof("Serving risk reports on %s", s.listenAddr)

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.WithError(err).Fatal("server exited")
	}
}

func (s *Server) GetHTTPServer() *http.Server {
	return s.httpServer
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	RespondWithJSON(http.StatusOK, w, map[string]interface{}{"status": "ok"})
}

// RespondWithJSON writes data as the JSON response body with the given code.
func RespondWithJSON(statusCode int, w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("could not write JSON response")
	}
}

func failureResponse(w http.ResponseWriter, statusCode int, message string) {
	RespondWithJSON(statusCode, w, map[string]interface{}{
		"code":    statusCode,
		"message": message,
	})
}
