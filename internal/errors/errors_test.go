package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmbot/dmbot/internal/server/middleware"
)

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		CodeInvalidInput:       http.StatusBadRequest,
		CodeValidationFailed:   http.StatusBadRequest,
		CodeUnauthorized:       http.StatusUnauthorized,
		CodeNotAuthenticated:   http.StatusPreconditionFailed,
		CodeNotFound:           http.StatusNotFound,
		CodeConflict:           http.StatusConflict,
		CodeRateLimited:        http.StatusTooManyRequests,
		CodeExternalService:    http.StatusBadGateway,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		CodeStateError:         http.StatusInternalServerError,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(nil))
}

func TestEnsureEnvelope(t *testing.T) {
	env := EnsureEnvelope(fmt.Errorf("disk full"))
	assert.Equal(t, CodeInternal, env.Code)
	assert.Equal(t, "disk full", env.Context["wrapped_error"])

	original := NewConflictError("bot already running")
	assert.Same(t, original, EnsureEnvelope(original))

	assert.Equal(t, gferrors.SeverityCritical, EnsureEnvelope(nil).Severity)
}

func TestWrapUsesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDContextKey, "req-42")
	env := WrapStateError(ctx, fmt.Errorf("locked"), "persist failed")

	assert.Equal(t, CodeStateError, env.Code)
	assert.Equal(t, "req-42", env.CorrelationID)
	assert.Equal(t, "locked", env.Context["wrapped_error"])

	env = WrapInternal(context.Background(), nil, "no request id")
	assert.NotEmpty(t, env.CorrelationID)
}

func TestRespondWithEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/start", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDContextKey, "req-7"))
	rec := httptest.NewRecorder()

	RespondWithEnvelope(rec, req, NewConflictError("bot is already running"))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeConflict, body.Error.Code)
	assert.Equal(t, "bot is already running", body.Error.Message)
	assert.Equal(t, "req-7", body.Error.RequestID)
}

func TestResponseDetailsMerge(t *testing.T) {
	env := NewInvalidInputError("bad subreddit").WithDetails(map[string]interface{}{"field": "subreddit"})
	env, _ = env.WithContext(map[string]interface{}{"field": "ignored", "value": "r/"})

	details := ResponseDetails(env)
	assert.Equal(t, "subreddit", details["field"])
	assert.Equal(t, "r/", details["value"])
	assert.Nil(t, ResponseDetails(NewNotFoundError("nothing")))
}
