package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"nutrilabel/internal/analysis"
	"nutrilabel/internal/apperr"
	"nutrilabel/internal/db"
	applog "nutrilabel/internal/log"
)

type analyzeRequest struct {
	UserUUID string   `json:"user_uuid"`
	FoodName string   `json:"food_name"`
	MealType string   `json:"meal_type"`
	Tags     []string `json:"tags"`
	ImageURL string   `json:"image_url"`
}

// Analyze runs the extraction pipeline and returns the stored record.
//
// When the model answered but the record could not be saved the response is
// a 500 carrying the computed record under "result".
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req := analysis.Request{
		UserUUID: body.UserUUID,
		FoodName: body.FoodName,
		MealType: body.MealType,
		Tags:     body.Tags,
		ImageURL: body.ImageURL,
	}
	if p, ok := PrincipalFrom(r.Context()); ok {
		req.UserID = p.UserUUID
	}

	record, err := h.analyses.Analyze(r.Context(), req)
	if err != nil {
		if apperr.Is(err, apperr.KindPersistence) && record != nil {
			applog.Error(r.Context(), "returning unsaved analysis", "analysisId", record.RequestID, "error", err)
			writeJSON(w, r, http.StatusInternalServerError, errorResponse{
				Detail: apperr.PublicMessage(err),
				Code:   apperr.KindPersistence.String(),
				Result: record,
			})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, record)
}

// userScope picks whose data a read route may see: the records created by
// the token's account when authenticated, otherwise the anonymous records
// filed under the user_uuid query parameter.
func userScope(r *http.Request) db.Owner {
	if p, ok := PrincipalFrom(r.Context()); ok {
		return db.Owner{AccountID: p.UserUUID}
	}
	return db.Owner{UserUUID: strings.TrimSpace(r.URL.Query().Get("user_uuid"))}
}

// GetAnalysis returns one stored analysis.
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	record, err := h.analyses.Get(r.Context(), chi.URLParam(r, "requestID"), userScope(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, record)
}

// DailyLogs returns a user's analyses for one calendar day with totals.
func (h *Handlers) DailyLogs(w http.ResponseWriter, r *http.Request) {
	day, err := h.analyses.DailyLog(r.Context(), userScope(r), chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, day)
}
