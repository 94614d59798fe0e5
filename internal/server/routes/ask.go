package routes

import (
	"net/http"

	serverutil "github.com/OFFIS-RIT/caseboard/backend/internal/server/util"
	"github.com/OFFIS-RIT/caseboard/backend/internal/workspace"

	"github.com/labstack/echo/v4"
)

// AskHandler answers a question about an investigation. Agent failures are
// returned as an error message in the conversation with status 200.
func AskHandler(c echo.Context) error {
	type askBody struct {
		InvestigationID string `param:"id" json:"-" validate:"required"`
		ConversationID  string `json:"conversationId"`
		Question        string `json:"question" validate:"required"`
	}

	data := new(askBody)
	if err := c.Bind(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}

	res, err := app(c).Workspace.Ask(c.Request().Context(), workspace.AskRequest{
		InvestigationID: data.InvestigationID,
		ConversationID:  data.ConversationID,
		Question:        data.Question,
	})
	if err != nil {
		return serverutil.Error(c, err, "Ask")
	}
	return c.JSON(http.StatusOK, res)
}

func GetConversationsHandler(c echo.Context) error {
	params := new(investigationParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	res, err := app(c).Workspace.Conversations(c.Request().Context(), params.InvestigationID)
	if err != nil {
		return serverutil.Error(c, err, "List conversations")
	}
	return c.JSON(http.StatusOK, res)
}

type conversationParams struct {
	InvestigationID string `param:"id" validate:"required"`
	ConversationID  string `param:"conversation_id" validate:"required"`
}

func GetConversationHandler(c echo.Context) error {
	params := new(conversationParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	conv, err := app(c).Workspace.Conversation(c.Request().Context(), params.InvestigationID, params.ConversationID)
	if err != nil {
		return serverutil.Error(c, err, "Get conversation")
	}
	return c.JSON(http.StatusOK, conv)
}

func DeleteConversationHandler(c echo.Context) error {
	params := new(conversationParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	if err := app(c).Workspace.DeleteConversation(c.Request().Context(), params.InvestigationID, params.ConversationID); err != nil {
		return serverutil.Error(c, err, "Delete conversation")
	}
	return serverutil.Message(c, http.StatusOK, "Conversation deleted")
}
