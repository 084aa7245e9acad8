package handlers

import (
	"context"
	"errors"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/dmbot/dmbot/internal/bot"
	apperrors "github.com/dmbot/dmbot/internal/errors"
	"github.com/dmbot/dmbot/internal/reddit"
)

var defaultHTTPErrorResponder = func(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

var httpErrorResponder = defaultHTTPErrorResponder

// SetHTTPErrorResponder lets the server package inject its error handler.
func SetHTTPErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder == nil {
		httpErrorResponder = defaultHTTPErrorResponder
		return
	}
	httpErrorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

func errServiceUnavailable(message string) error {
	return apperrors.NewServiceUnavailableError(message)
}

// envelopeFor maps bot and Reddit errors onto API envelopes.
func envelopeFor(ctx context.Context, err error, message string) *gferrors.ErrorEnvelope {
	var apiErr *reddit.APIError
	switch {
	case errors.Is(err, bot.ErrNotAuthenticated):
		return apperrors.Wrap(ctx, apperrors.CodeNotAuthenticated, err, "bot is not authenticated")
	case errors.Is(err, bot.ErrAlreadyRunning), errors.Is(err, bot.ErrNotRunning):
		return apperrors.Wrap(ctx, apperrors.CodeConflict, err, err.Error())
	case errors.Is(err, reddit.ErrNoCredentials):
		return apperrors.WrapInvalidInput(ctx, err, "missing reddit credentials")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(ctx, apperrors.CodeTimeout, err, message)
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return apperrors.Wrap(ctx, apperrors.CodeUnauthorized, err, "reddit rejected the credentials")
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return apperrors.Wrap(ctx, apperrors.CodeRateLimited, err, "reddit rate limit reached")
		default:
			return apperrors.WrapExternalService(ctx, err, message)
		}
	default:
		return apperrors.WrapInternal(ctx, err, message)
	}
}
