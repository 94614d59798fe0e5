package routes

import (
	"net/http"

	serverutil "github.com/OFFIS-RIT/caseboard/backend/internal/server/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/graph"

	"github.com/labstack/echo/v4"
)

func AddEntityHandler(c echo.Context) error {
	type addEntityBody struct {
		InvestigationID string `param:"id" json:"-" validate:"required"`
		graph.ManualEntity
	}

	data := new(addEntityBody)
	if err := c.Bind(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}

	e, err := app(c).Workspace.AddEntity(c.Request().Context(), data.InvestigationID, data.ManualEntity)
	if err != nil {
		return serverutil.Error(c, err, "Add entity")
	}
	return c.JSON(http.StatusCreated, e)
}

func DeleteEntityHandler(c echo.Context) error {
	type entityParams struct {
		InvestigationID string `param:"id" validate:"required"`
		EntityID        string `param:"entity_id" validate:"required"`
	}

	params := new(entityParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	if err := app(c).Workspace.DeleteEntity(c.Request().Context(), params.InvestigationID, params.EntityID); err != nil {
		return serverutil.Error(c, err, "Delete entity")
	}
	return serverutil.Message(c, http.StatusOK, "Entity deleted")
}

func AddRelationshipHandler(c echo.Context) error {
	type addRelationshipBody struct {
		InvestigationID string `param:"id" json:"-" validate:"required"`
		graph.ManualRelationship
	}

	data := new(addRelationshipBody)
	if err := c.Bind(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}

	r, err := app(c).Workspace.AddRelationship(c.Request().Context(), data.InvestigationID, data.ManualRelationship)
	if err != nil {
		return serverutil.Error(c, err, "Add relationship")
	}
	return c.JSON(http.StatusCreated, r)
}

func DeleteRelationshipHandler(c echo.Context) error {
	type relationshipParams struct {
		InvestigationID string `param:"id" validate:"required"`
		RelationshipID  string `param:"relationship_id" validate:"required"`
	}

	params := new(relationshipParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	if err := app(c).Workspace.DeleteRelationship(c.Request().Context(), params.InvestigationID, params.RelationshipID); err != nil {
		return serverutil.Error(c, err, "Delete relationship")
	}
	return serverutil.Message(c, http.StatusOK, "Relationship deleted")
}

// ApplyActionsHandler applies graph actions, usually the ones suggested in
// an agent answer.
func ApplyActionsHandler(c echo.Context) error {
	type applyActionsBody struct {
		InvestigationID string          `param:"id" json:"-" validate:"required"`
		Actions         []common.Action `json:"actions" validate:"required,min=1"`
	}

	data := new(applyActionsBody)
	if err := c.Bind(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}

	res, err := app(c).Workspace.ApplyActions(c.Request().Context(), data.InvestigationID, data.Actions)
	if err != nil {
		return serverutil.Error(c, err, "Apply actions")
	}
	return c.JSON(http.StatusOK, res)
}

func GetLayoutHandler(c echo.Context) error {
	type layoutParams struct {
		InvestigationID string `param:"id" validate:"required"`
		Iterations      int    `query:"iterations" validate:"min=0,max=1000"`
		Seed            uint64 `query:"seed"`
	}

	params := new(layoutParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	var opts *graph.LayoutOptions
	if params.Iterations > 0 || params.Seed > 0 {
		o := graph.DefaultLayoutOptions()
		if params.Iterations > 0 {
			o.Iterations = params.Iterations
		}
		if params.Seed > 0 {
			o.Seed = params.Seed
		}
		opts = &o
	}

	res, err := app(c).Workspace.Layout(c.Request().Context(), params.InvestigationID, opts)
	if err != nil {
		return serverutil.Error(c, err, "Layout graph")
	}
	return c.JSON(http.StatusOK, res)
}

func GetPathHandler(c echo.Context) error {
	type pathParams struct {
		InvestigationID string `param:"id" validate:"required"`
		Source          string `query:"source" validate:"required"`
		Target          string `query:"target" validate:"required"`
	}

	params := new(pathParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	res, err := app(c).Workspace.Path(c.Request().Context(), params.InvestigationID, params.Source, params.Target)
	if err != nil {
		return serverutil.Error(c, err, "Find path")
	}
	return c.JSON(http.StatusOK, res)
}

func GetNeighborhoodHandler(c echo.Context) error {
	type neighborhoodParams struct {
		InvestigationID string `param:"id" validate:"required"`
		Entity          string `query:"entity" validate:"required"`
		Depth           int    `query:"depth" validate:"min=0"`
	}

	params := new(neighborhoodParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	res, err := app(c).Workspace.Neighborhood(c.Request().Context(), params.InvestigationID, params.Entity, params.Depth)
	if err != nil {
		return serverutil.Error(c, err, "Explore neighborhood")
	}
	return c.JSON(http.StatusOK, res)
}

func GetEntityDetailsHandler(c echo.Context) error {
	type detailsParams struct {
		InvestigationID string `param:"id" validate:"required"`
		Entity          string `query:"entity" validate:"required"`
	}

	params := new(detailsParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	res, err := app(c).Workspace.EntityDetails(c.Request().Context(), params.InvestigationID, params.Entity)
	if err != nil {
		return serverutil.Error(c, err, "Get entity details")
	}
	return c.JSON(http.StatusOK, res)
}
