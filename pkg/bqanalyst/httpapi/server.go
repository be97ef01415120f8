// Package httpapi exposes the analyst over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst"
)

const (
	serviceName    = "bq-analyst-agent"
	serviceVersion = "2.0.0"
)

// Agent is the part of the analyst the HTTP surface needs.
type Agent interface {
	Query(ctx context.Context, threadID, input string) (*bqanalyst.QueryResult, error)
	History(ctx context.Context, threadID string, limit int) ([]bqanalyst.HistoryEntry, error)
}

// Server is the HTTP handler for the analyst API.
type Server struct {
	agent  Agent
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates the analyst HTTP handler.
func NewServer(agent Agent, logger *slog.Logger) *Server {
	s := &Server{
		agent:  agent,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /agent/query", s.handleQuery)
	s.mux.HandleFunc("GET /agent/history/{thread_id}", s.handleHistory)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Service: serviceName,
		Version: serviceVersion,
	})
}

// queryRequest is the JSON body for POST /agent/query.
type queryRequest struct {
	// Text is the user's question. Query is an accepted alias and takes
	// precedence when both are present.
	Text  string `json:"text"`
	Query string `json:"query,omitempty"`

	// ThreadID continues an existing conversation; omitted starts a new
	// thread and the generated id comes back in the response.
	ThreadID string `json:"thread_id,omitempty"`
}

func (r queryRequest) input() string {
	if r.Query != "" {
		return r.Query
	}
	return r.Text
}

// queryResponse is the JSON body for a successful POST /agent/query.
type queryResponse struct {
	Response string        `json:"response"`
	ThreadID string        `json:"thread_id"`
	Metadata queryMetadata `json:"metadata"`
}

type queryMetadata struct {
	Steps       int `json:"steps"`
	ToolCalls   int `json:"tool_calls"`
	ToolResults int `json:"tool_results"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	input := req.input()
	if input == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	result, err := s.agent.Query(r.Context(), req.ThreadID, input)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("query failed",
				slog.String("thread_id", req.ThreadID),
				slog.String("error", err.Error()),
			)
		}
		status := http.StatusInternalServerError
		if errors.Is(err, bqanalyst.ErrRecursionLimit) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Response: result.Response,
		ThreadID: result.ThreadID,
		Metadata: queryMetadata{
			Steps:       result.Steps,
			ToolCalls:   result.ToolCalls,
			ToolResults: result.ToolResults,
		},
	})
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// historyResponse is the JSON body for GET /agent/history/{thread_id}:
// the thread's current transcript as role/content pairs.
type historyResponse struct {
	ThreadID string           `json:"thread_id"`
	Messages []historyMessage `json:"messages"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	// The latest checkpoint carries the full transcript.
	entries, err := s.agent.History(r.Context(), threadID, 1)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("history failed",
				slog.String("thread_id", threadID),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	messages := []historyMessage{}
	if len(entries) > 0 {
		for _, m := range entries[0].Messages {
			messages = append(messages, historyMessage{Role: m.Role, Content: m.Content})
		}
	}
	writeJSON(w, http.StatusOK, historyResponse{ThreadID: threadID, Messages: messages})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
