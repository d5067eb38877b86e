package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/okulov/polyqa/internal/core/domain"
	"github.com/okulov/polyqa/internal/core/ports"
)

type Router struct {
	answerer ports.QueryAnswerer
	ingestor ports.DocumentIngestor
	docs     ports.DocumentReader
}

func NewRouter(
	answerer ports.QueryAnswerer,
	ingestor ports.DocumentIngestor,
	docs ports.DocumentReader,
) *Router {
	return &Router{
		answerer: answerer,
		ingestor: ingestor,
		docs:     docs,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.answerQuery)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	return requestIDMiddleware(accessLogMiddleware(recoveryMiddleware(mux)))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryBudget struct {
	MaxElapsedMS   int64 `json:"max_elapsed_ms"`
	MaxInvocations int   `json:"max_invocations"`
	MaxTokens      int   `json:"max_tokens"`
}

type queryRequest struct {
	Text    string            `json:"text"`
	Filters map[string]string `json:"filters"`
	TopK    int               `json:"top_k"`
	Budget  queryBudget       `json:"budget"`
}

func (rt *Router) answerQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	result, err := rt.answerer.AnswerQuery(r.Context(), domain.QueryRequest{
		Text:    req.Text,
		Filters: domain.SearchFilter(req.Filters),
		TopK:    req.TopK,
		Budget: domain.Budget{
			MaxElapsed:     time.Duration(req.Budget.MaxElapsedMS) * time.Millisecond,
			MaxInvocations: req.Budget.MaxInvocations,
			MaxTokens:      req.Budget.MaxTokens,
		},
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
