// Package handlers maps HTTP requests onto the analysis pipeline and the
// account store. Every response body is JSON; errors are {"detail": "..."}.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"nutrilabel/internal/analysis"
	"nutrilabel/internal/apperr"
	"nutrilabel/internal/auth"
	"nutrilabel/internal/db"
	applog "nutrilabel/internal/log"
	"nutrilabel/models"
)

// Analyses is the pipeline surface the handlers call. *analysis.Service
// satisfies it.
type Analyses interface {
	Analyze(ctx context.Context, req analysis.Request) (*models.Analysis, error)
	Get(ctx context.Context, requestID string, owner db.Owner) (*models.Analysis, error)
	DailyLog(ctx context.Context, owner db.Owner, date string) (analysis.DailyLog, error)
}

// Deps are the collaborators shared by every handler.
type Deps struct {
	Analyses Analyses
	Users    db.UserRepository
	Tokens   *auth.Tokens
	// Store is pinged by Health. Optional.
	Store Pinger
	// RequireAnalyzeAuth rejects anonymous calls to the analysis routes.
	RequireAnalyzeAuth bool
}

// Handlers serves the JSON API.
type Handlers struct {
	analyses           Analyses
	users              db.UserRepository
	tokens             *auth.Tokens
	store              Pinger
	requireAnalyzeAuth bool
}

// New validates deps and returns the handler set.
func New(deps Deps) (*Handlers, error) {
	switch {
	case deps.Analyses == nil:
		return nil, errors.New("handlers: analyses must not be nil")
	case deps.Users == nil:
		return nil, errors.New("handlers: users must not be nil")
	case deps.Tokens == nil:
		return nil, errors.New("handlers: tokens must not be nil")
	}
	return &Handlers{
		analyses:           deps.Analyses,
		users:              deps.Users,
		tokens:             deps.Tokens,
		store:              deps.Store,
		requireAnalyzeAuth: deps.RequireAnalyzeAuth,
	}, nil
}

type errorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
	Result any    `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.Error(r.Context(), "failed to encode response", "error", err)
	}
}

// writeError logs err and answers with the status and public message of its
// kind. Internal error text never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.Status(kind)
	if status >= http.StatusInternalServerError {
		applog.Error(r.Context(), "request failed", "kind", kind.String(), "status", status, "error", err)
	} else {
		applog.Debug(r.Context(), "request rejected", "kind", kind.String(), "status", status, "error", err)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, r, status, errorResponse{Detail: apperr.PublicMessage(err)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return apperr.Msg(apperr.KindValidation, "handlers.decode", "Request body must be a JSON object")
	}
	return nil
}

// NotFound answers unknown routes in the API's error format.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusNotFound, errorResponse{Detail: "Not Found"})
}

// MethodNotAllowed answers known routes called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusMethodNotAllowed, errorResponse{Detail: "Method Not Allowed"})
}
