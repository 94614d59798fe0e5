package util

import (
	"context"
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/caseboard/backend/internal/workspace"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/graph"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/leaselock"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

type MessageResponse struct {
	Message string `json:"message"`
}

func Message(c echo.Context, status int, msg string) error {
	return c.JSON(status, MessageResponse{Message: msg})
}

// StatusFor maps a workspace error to the HTTP status it is reported with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound
	case workspace.IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.Is(err, leaselock.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, graph.ErrNoAIClient):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as a message response. Internal errors are logged and
// reported without detail.
func Error(c echo.Context, err error, action string) error {
	status := StatusFor(err)
	switch status {
	case http.StatusNotFound:
		return Message(c, status, "Not found")
	case http.StatusInternalServerError:
		logger.Error("[Server] "+action+" failed", "path", c.Path(), "err", err)
		return Message(c, status, "Internal server error")
	default:
		return Message(c, status, err.Error())
	}
}
