package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmbot/dmbot/internal/bot"
	"github.com/dmbot/dmbot/internal/core"
	apperrors "github.com/dmbot/dmbot/internal/errors"
	"github.com/dmbot/dmbot/internal/reddit"
)

const (
	maxBodyBytes         = 64 << 10
	defaultActivityLimit = 100
)

// BotController is the control surface the dashboard drives.
type BotController interface {
	Authenticate(ctx context.Context, creds *reddit.Credentials) (string, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetTarget(raw string) (string, error)
	UpdateProtectedUsers(users []string) []string
	Status() bot.Status
	Activity(limit int) []core.ActivityEntry
}

// API serves the /api routes.
type API struct {
	bot BotController
	// lifetime outlives individual requests; the worker started by /api/start
	// is bound to it.
	lifetime context.Context
}

// NewAPI returns handlers bound to ctrl.
func NewAPI(lifetime context.Context, ctrl BotController) *API {
	if lifetime == nil {
		lifetime = context.Background()
	}
	return &API{bot: ctrl, lifetime: lifetime}
}

// Response is the success body shared by the control endpoints.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type authenticateRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type targetRequest struct {
	Subreddit string `json:"subreddit"`
}

type protectedUsersRequest struct {
	Usernames json.RawMessage `json:"usernames"`
}

// Authenticate handles POST /api/authenticate. An empty body reuses the
// configured credentials.
func (a *API) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	empty, err := decodeJSON(r, &req)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid JSON body"))
		return
	}

	var creds *reddit.Credentials
	if !empty {
		c := reddit.Credentials{
			Username:     strings.TrimSpace(req.Username),
			Password:     req.Password,
			ClientID:     strings.TrimSpace(req.ClientID),
			ClientSecret: req.ClientSecret,
		}
		if missing := missingCredentialFields(c); len(missing) > 0 {
			env := apperrors.NewInvalidInputError("missing required field: " + missing[0]).
				WithDetails(map[string]interface{}{"missing": missing})
			respondWithError(w, r, env)
			return
		}
		creds = &c
	}

	username, err := a.bot.Authenticate(r.Context(), creds)
	if err != nil {
		respondWithError(w, r, envelopeFor(r.Context(), err, "authentication failed"))
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Status:  "success",
		Message: "Authenticated as u/" + username,
		Data:    map[string]string{"username": username},
	})
}

// Start handles POST /api/start.
func (a *API) Start(w http.ResponseWriter, r *http.Request) {
	if err := a.bot.Start(a.lifetime); err != nil {
		respondWithError(w, r, envelopeFor(r.Context(), err, "failed to start bot"))
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "success", Message: "Bot started successfully"})
}

// Stop handles POST /api/stop.
func (a *API) Stop(w http.ResponseWriter, r *http.Request) {
	if err := a.bot.Stop(r.Context()); err != nil {
		respondWithError(w, r, envelopeFor(r.Context(), err, "failed to stop bot"))
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "success", Message: "Bot stopped successfully"})
}

// Status handles GET /api/status.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: "success", Data: a.bot.Status()})
}

// SetTarget handles POST /api/set-target.
func (a *API) SetTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if _, err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Subreddit) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("no subreddit provided"))
		return
	}

	name, err := a.bot.SetTarget(req.Subreddit)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Status:  "success",
		Message: "Target subreddit set to r/" + name,
		Data:    map[string]string{"subreddit": name},
	})
}

// UpdateProtectedUsers handles POST /api/update-dnd. usernames may be a JSON
// array or a comma separated string.
func (a *API) UpdateProtectedUsers(w http.ResponseWriter, r *http.Request) {
	var req protectedUsersRequest
	if _, err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid JSON body"))
		return
	}
	if len(req.Usernames) == 0 || string(req.Usernames) == "null" {
		respondWithError(w, r, apperrors.NewInvalidInputError("no usernames provided"))
		return
	}

	users, err := parseUsernames(req.Usernames)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "usernames must be a list or comma separated string"))
		return
	}

	updated := a.bot.UpdateProtectedUsers(users)
	writeJSON(w, http.StatusOK, Response{
		Status:  "success",
		Message: "DND list updated with " + strconv.Itoa(len(updated)) + " usernames",
		Data:    map[string][]string{"usernames": updated},
	})
}

// Activity handles GET /api/activity?limit=N.
func (a *API) Activity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithError(w, r, apperrors.NewInvalidInputError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, Response{Status: "success", Data: a.bot.Activity(limit)})
}

func parseUsernames(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil {
		return nil, err
	}
	return strings.Split(joined, ","), nil
}

func missingCredentialFields(c reddit.Credentials) []string {
	var missing []string
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	return missing
}

// decodeJSON reads at most maxBodyBytes. empty reports a missing body.
func decodeJSON(r *http.Request, dst any) (empty bool, err error) {
	if r.Body == nil {
		return true, nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
