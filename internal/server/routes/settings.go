package routes

import (
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/caseboard/backend/internal/server/middleware"
	serverutil "github.com/OFFIS-RIT/caseboard/backend/internal/server/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"

	"github.com/labstack/echo/v4"
)

// maskKey keeps the last four characters of a secret.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func maskSettings(s common.Settings) common.Settings {
	s.APIKey = maskKey(s.APIKey)
	s.GoogleAPIKey = maskKey(s.GoogleAPIKey)
	s.FirecrawlAPIKey = maskKey(s.FirecrawlAPIKey)
	return s
}

// GetSettingsHandler returns the saved settings. Secrets are masked for
// everyone but admins.
func GetSettingsHandler(c echo.Context) error {
	settings, err := app(c).Workspace.Settings(c.Request().Context())
	if err != nil {
		return serverutil.Error(c, err, "Get settings")
	}
	if !middleware.IsAdmin(c.(*middleware.AppContext).User) {
		settings = maskSettings(settings)
	}
	return c.JSON(http.StatusOK, settings)
}

func SaveSettingsHandler(c echo.Context) error {
	data := new(common.Settings)
	if err := c.Bind(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}

	settings, err := app(c).Workspace.SaveSettings(c.Request().Context(), *data)
	if err != nil {
		return serverutil.Error(c, err, "Save settings")
	}
	return c.JSON(http.StatusOK, settings)
}
