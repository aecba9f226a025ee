package server

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/jamiechicago312/agent-sdk/internal/conversation"
	"github.com/jamiechicago312/agent-sdk/internal/llm"
	"github.com/jamiechicago312/agent-sdk/internal/tools"
)

// mapError maps runtime errors to HTTP error responses.
func mapError(err error) *echo.HTTPError {
	if errors.Is(err, conversation.ErrAlreadyRunning) {
		return echo.NewHTTPError(http.StatusConflict, "conversation is already running")
	}
	if errors.Is(err, conversation.ErrNotWaitingForConfirmation) {
		return echo.NewHTTPError(http.StatusConflict, "conversation is not waiting for confirmation")
	}
	if errors.Is(err, conversation.ErrClosed) {
		return echo.NewHTTPError(http.StatusConflict, "conversation is closed")
	}

	var validErr *tools.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, validErr.Error())
	}
	var optErr *llm.UnsupportedOptionError
	if errors.As(err, &optErr) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, optErr.Error())
	}
	var authErr *llm.AuthError
	if errors.As(err, &authErr) {
		return echo.NewHTTPError(http.StatusBadGateway, authErr.Error())
	}
	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		return echo.NewHTTPError(http.StatusBadGateway, provErr.Error())
	}

	slog.Error("unexpected server error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
