package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"nutrilabel/internal/apperr"
	"nutrilabel/internal/auth"
	"nutrilabel/internal/db"
	applog "nutrilabel/internal/log"
	"nutrilabel/models"
)

const invalidLogin = "Incorrect email or password"

type principalKey struct{}

// Principal is the account behind a verified bearer token.
type Principal struct {
	Email    string
	UserUUID string
}

// PrincipalFrom returns the authenticated account stored on ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type registerResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type loginResponse struct {
	User *models.User `json:"user"`
	tokenResponse
}

// Register creates an account.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Register"

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	email := models.NormalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		writeError(w, r, apperr.Msg(apperr.KindValidation, op, "A valid email is required"))
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		writeError(w, r, apperr.Msg(apperr.KindValidation, op, "Password must be at least 8 characters"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, apperr.E(apperr.KindInternal, op, err))
		return
	}

	user := &models.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			writeError(w, r, apperr.Msg(apperr.KindConflict, op, "Email already registered"))
			return
		}
		writeError(w, r, apperr.E(apperr.KindInternal, op, err))
		return
	}

	applog.Info(r.Context(), "user registered", "userUuid", user.UUID)
	writeJSON(w, r, http.StatusCreated, registerResponse{Message: "User registered successfully", User: user})
}

// authenticate checks credentials. Unknown accounts and wrong passwords are
// indistinguishable to the caller.
func (h *Handlers) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	const op = "handlers.authenticate"

	user, err := h.users.FindUserByEmail(ctx, email)
	switch {
	case errors.Is(err, db.ErrNotFound):
		_ = auth.CheckPassword("", password)
		return nil, apperr.Msg(apperr.KindAuth, op, invalidLogin)
	case err != nil:
		return nil, apperr.E(apperr.KindInternal, op, err)
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrMismatch) {
			return nil, apperr.Msg(apperr.KindAuth, op, invalidLogin)
		}
		return nil, apperr.E(apperr.KindInternal, op, err)
	}
	return user, nil
}

func (h *Handlers) issue(ctx context.Context, user *models.User) (tokenResponse, error) {
	token, err := h.tokens.Issue(user.Email, user.UUID)
	if err != nil {
		return tokenResponse{}, apperr.E(apperr.KindInternal, "handlers.issue", err)
	}
	applog.SetUserID(ctx, user.UUID)
	return tokenResponse{AccessToken: token, TokenType: auth.TokenType}, nil
}

// Login exchanges a JSON email and password for an access token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.issue(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, loginResponse{User: user, tokenResponse: token})
}

// Token is the OAuth2 password-grant form of Login: it reads username and
// password form fields and answers with the bare token.
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, apperr.Msg(apperr.KindValidation, "handlers.Token", "Invalid form submission"))
		return
	}

	user, err := h.authenticate(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.issue(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, token)
}

// Me returns the account behind the bearer token.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Me"

	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, apperr.Msg(apperr.KindAuth, op, "Not authenticated"))
		return
	}
	user, err := h.users.FindUserByEmail(r.Context(), principal.Email)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, r, apperr.Msg(apperr.KindAuth, op, "Could not validate credentials"))
		return
	}
	if err != nil {
		writeError(w, r, apperr.E(apperr.KindInternal, op, err))
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

// Authenticate verifies a bearer token when one is presented and stores the
// principal on the request context. Requests without an Authorization header
// pass through anonymously; a bad token is rejected.
func (h *Handlers) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if strings.TrimSpace(header) == "" {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := auth.BearerToken(header)
		if !ok {
			writeError(w, r, apperr.Msg(apperr.KindAuth, "handlers.Authenticate", "Could not validate credentials"))
			return
		}
		claims, err := h.tokens.Parse(raw)
		if err != nil {
			writeError(w, r, apperr.E(apperr.KindAuth, "handlers.Authenticate", err))
			return
		}

		applog.SetUserID(r.Context(), claims.UserUUID)
		ctx := context.WithValue(r.Context(), principalKey{}, Principal{Email: claims.Subject, UserUUID: claims.UserUUID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests that Authenticate left anonymous.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFrom(r.Context()); !ok {
			writeError(w, r, apperr.Msg(apperr.KindAuth, "handlers.RequireUser", "Not authenticated"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAnalyzeUser applies RequireUser only when the analysis routes are
// configured to need an account.
func (h *Handlers) RequireAnalyzeUser(next http.Handler) http.Handler {
	if !h.requireAnalyzeAuth {
		return next
	}
	return RequireUser(next)
}
