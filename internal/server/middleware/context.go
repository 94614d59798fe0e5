package middleware

import (
	"context"
	"io"

	"github.com/OFFIS-RIT/caseboard/backend/internal/queue"
	"github.com/OFFIS-RIT/caseboard/backend/internal/workspace"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

// CaptureFiles stores capture screenshots in object storage.
type CaptureFiles interface {
	PutCaptureImage(ctx context.Context, investigationID, captureID, name string, file io.Reader) (string, error)
	DownloadLink(ctx context.Context, key string) (string, error)
	DeleteInvestigationFiles(ctx context.Context, investigationID string) error
}

type App struct {
	Workspace *workspace.Workspace
	// Queue is nil when captures are processed synchronously.
	Queue queue.Publisher
	// Files is nil when no object storage is configured.
	Files CaptureFiles
	// Key verifies bearer JWTs. Nil disables JWT auth.
	Key          keyfunc.Keyfunc
	MasterAPIKey string
	// AuthDisabled lets every request through as an admin. Only meant for a
	// single user running the server locally.
	AuthDisabled bool
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
