package handlers

import "net/http"

// Endpoint describes one public route.
type Endpoint struct {
	Path        string         `json:"path"`
	Method      string         `json:"method"`
	Description string         `json:"description"`
	Tags        []string       `json:"tags"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Catalog lists every route the server exposes.
var Catalog = []Endpoint{
	{
		Path:        "/api/auth/register",
		Method:      http.MethodPost,
		Description: "Create an account",
		Tags:        []string{"auth"},
		Payload:     map[string]any{"email": "string", "password": "string", "display_name": "string"},
	},
	{
		Path:        "/api/auth/login",
		Method:      http.MethodPost,
		Description: "Exchange email and password for a bearer token",
		Tags:        []string{"auth"},
		Payload:     map[string]any{"email": "string", "password": "string"},
	},
	{
		Path:        "/api/auth/token",
		Method:      http.MethodPost,
		Description: "OAuth2 password grant returning a bearer token",
		Tags:        []string{"auth"},
		Payload:     map[string]any{"username": "form field", "password": "form field"},
	},
	{
		Path:        "/api/auth/users/me",
		Method:      http.MethodGet,
		Description: "Return the account behind the bearer token",
		Tags:        []string{"auth"},
	},
	{
		Path:        "/api/analyze",
		Method:      http.MethodPost,
		Description: "Extract nutrition facts from a label image",
		Tags:        []string{"analysis"},
		Payload: map[string]any{
			"user_uuid": "string",
			"food_name": "string",
			"meal_type": "breakfast | lunch | dinner | snack",
			"tags":      []string{"string"},
			"image_url": "string",
		},
	},
	{
		Path:        "/api/analyses/{request_id}",
		Method:      http.MethodGet,
		Description: "Fetch a stored analysis",
		Tags:        []string{"analysis"},
	},
	{
		Path:        "/api/nutrition/logs/{date}",
		Method:      http.MethodGet,
		Description: "List a day's analyses with nutrient totals",
		Tags:        []string{"analysis"},
	},
	{
		Path:        "/api/endpoints",
		Method:      http.MethodGet,
		Description: "List the available endpoints",
		Tags:        []string{"endpoints"},
	},
	{
		Path:        "/healthz",
		Method:      http.MethodGet,
		Description: "Readiness probe",
		Tags:        []string{"health"},
	},
}

// Endpoints serves Catalog.
func Endpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, Catalog)
}
