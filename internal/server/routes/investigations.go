package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/caseboard/backend/internal/server/middleware"
	serverutil "github.com/OFFIS-RIT/caseboard/backend/internal/server/util"
	"github.com/OFFIS-RIT/caseboard/backend/internal/workspace"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

type investigationParams struct {
	InvestigationID string `param:"id" validate:"required"`
}

func app(c echo.Context) *middleware.App {
	return c.(*middleware.AppContext).App
}

// bindParams binds and validates path and query parameters. Handlers with a
// body bind a single struct instead, since the body can only be read once.
func bindParams(c echo.Context, params any) error {
	if err := c.Bind(params); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request params")
	}
	return nil
}

func GetInvestigationsHandler(c echo.Context) error {
	res, err := app(c).Workspace.ListInvestigations(c.Request().Context())
	if err != nil {
		return serverutil.Error(c, err, "List investigations")
	}
	return c.JSON(http.StatusOK, res)
}

func GetInvestigationHandler(c echo.Context) error {
	params := new(investigationParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	inv, err := app(c).Workspace.GetInvestigation(c.Request().Context(), params.InvestigationID)
	if err != nil {
		return serverutil.Error(c, err, "Get investigation")
	}
	return c.JSON(http.StatusOK, inv)
}

func CreateInvestigationHandler(c echo.Context) error {
	type createInvestigationBody struct {
		Title      string   `json:"title" validate:"required"`
		Objective  string   `json:"objective"`
		Hypotheses []string `json:"hypotheses"`
		Signals    []string `json:"signals"`
	}

	data := new(createInvestigationBody)
	if err := c.Bind(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}

	inv, err := app(c).Workspace.CreateInvestigation(c.Request().Context(), workspace.NewInvestigation{
		Title:      data.Title,
		Objective:  data.Objective,
		Hypotheses: data.Hypotheses,
		Signals:    data.Signals,
	})
	if err != nil {
		return serverutil.Error(c, err, "Create investigation")
	}
	return c.JSON(http.StatusCreated, inv)
}

func EditInvestigationHandler(c echo.Context) error {
	type editInvestigationBody struct {
		InvestigationID string `param:"id" json:"-" validate:"required"`
		workspace.InvestigationUpdate
	}

	data := new(editInvestigationBody)
	if err := c.Bind(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}

	inv, err := app(c).Workspace.UpdateInvestigation(c.Request().Context(), data.InvestigationID, data.InvestigationUpdate)
	if err != nil {
		return serverutil.Error(c, err, "Update investigation")
	}
	return c.JSON(http.StatusOK, inv)
}

func DeleteInvestigationHandler(c echo.Context) error {
	params := new(investigationParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	ctx := c.Request().Context()
	a := app(c)
	if err := a.Workspace.DeleteInvestigation(ctx, params.InvestigationID); err != nil {
		return serverutil.Error(c, err, "Delete investigation")
	}
	if a.Files != nil {
		if err := a.Files.DeleteInvestigationFiles(ctx, params.InvestigationID); err != nil {
			logger.Warn("[Server] Failed to delete capture files", "investigation", params.InvestigationID, "err", err)
		}
	}
	return serverutil.Message(c, http.StatusOK, "Investigation deleted")
}

func GetActiveInvestigationHandler(c echo.Context) error {
	type activeResponse struct {
		InvestigationID string `json:"investigationId"`
	}

	id, err := app(c).Workspace.ActiveInvestigationID(c.Request().Context())
	if err != nil {
		return serverutil.Error(c, err, "Get active investigation")
	}
	return c.JSON(http.StatusOK, activeResponse{InvestigationID: id})
}

func SetActiveInvestigationHandler(c echo.Context) error {
	type setActiveBody struct {
		InvestigationID string `json:"investigationId"`
	}

	data := new(setActiveBody)
	if err := c.Bind(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}

	if err := app(c).Workspace.SetActiveInvestigation(c.Request().Context(), data.InvestigationID); err != nil {
		return serverutil.Error(c, err, "Set active investigation")
	}
	return c.JSON(http.StatusOK, data)
}
