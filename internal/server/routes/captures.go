package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/caseboard/backend/internal/queue"
	serverutil "github.com/OFFIS-RIT/caseboard/backend/internal/server/util"
	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"

	"github.com/labstack/echo/v4"
)

// ExtractCaptureHandler runs extraction on a capture and returns the result
// without committing it, so the user can review it first.
func ExtractCaptureHandler(c echo.Context) error {
	type extractBody struct {
		InvestigationID string `param:"id" json:"-" validate:"required"`
		common.Capture
	}

	data := new(extractBody)
	if err := c.Bind(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}

	ext, err := app(c).Workspace.ExtractPreview(c.Request().Context(), data.InvestigationID, &data.Capture)
	if err != nil {
		return serverutil.Error(c, err, "Extract capture")
	}
	return c.JSON(http.StatusOK, ext)
}

// CommitCaptureHandler commits a capture. A reviewed extraction is merged
// right away. Without one the capture is queued for the worker, or extracted
// inline when no queue is configured.
func CommitCaptureHandler(c echo.Context) error {
	type commitBody struct {
		InvestigationID string             `param:"id" json:"-" validate:"required"`
		Capture         *common.Capture    `json:"capture" validate:"required"`
		Extraction      *common.Extraction `json:"extraction"`
		ImageKey        string             `json:"imageKey"`
	}

	type queuedResponse struct {
		Message   string `json:"message"`
		CaptureID string `json:"captureId"`
	}

	data := new(commitBody)
	if err := c.Bind(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid request body")
	}
	if data.ImageKey != "" {
		data.Capture.ImageKey = data.ImageKey
	}

	ctx := c.Request().Context()
	a := app(c)

	if data.Extraction != nil {
		res, err := a.Workspace.Ingest(ctx, data.InvestigationID, data.Capture, data.Extraction)
		if err != nil {
			return serverutil.Error(c, err, "Commit capture")
		}
		return c.JSON(http.StatusOK, res)
	}

	if a.Queue != nil {
		if _, err := a.Workspace.GetInvestigation(ctx, data.InvestigationID); err != nil {
			return serverutil.Error(c, err, "Queue capture")
		}
		id, err := queue.EnqueueCapture(a.Queue, queue.CaptureMsg{
			InvestigationID: data.InvestigationID,
			Capture:         data.Capture,
			ImageKey:        data.Capture.ImageKey,
		})
		if err != nil {
			return serverutil.Error(c, err, "Queue capture")
		}
		return c.JSON(http.StatusAccepted, queuedResponse{Message: "Capture queued", CaptureID: id})
	}

	if data.Capture.ImageKey != "" && data.Capture.ImageData == "" {
		return serverutil.Message(c, http.StatusBadRequest, "Stored screenshots need the capture worker")
	}
	res, err := a.Workspace.Capture(ctx, data.InvestigationID, data.Capture)
	if err != nil {
		return serverutil.Error(c, err, "Commit capture")
	}
	return c.JSON(http.StatusOK, res)
}

// UploadCaptureImageHandler stores a screenshot from multipart/form-data and
// returns the key to reference it in a capture.
func UploadCaptureImageHandler(c echo.Context) error {
	type uploadParams struct {
		InvestigationID string `param:"id" validate:"required"`
	}

	type uploadResponse struct {
		CaptureID string `json:"captureId"`
		ImageKey  string `json:"imageKey"`
	}

	params := new(uploadParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	a := app(c)
	if a.Files == nil {
		return serverutil.Message(c, http.StatusServiceUnavailable, "Object storage is not configured")
	}

	ctx := c.Request().Context()
	if _, err := a.Workspace.GetInvestigation(ctx, params.InvestigationID); err != nil {
		return serverutil.Error(c, err, "Upload capture image")
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Missing image")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid image")
	}
	defer file.Close()

	captureID := c.FormValue("captureId")
	if captureID == "" {
		captureID = util.NewID(util.PrefixCapture)
	} else if !util.HasPrefix(captureID, util.PrefixCapture) {
		return serverutil.Message(c, http.StatusBadRequest, "Invalid capture id")
	}

	key, err := a.Files.PutCaptureImage(ctx, params.InvestigationID, captureID, fileHeader.Filename, file)
	if err != nil {
		return serverutil.Error(c, err, "Upload capture image")
	}
	return c.JSON(http.StatusCreated, uploadResponse{CaptureID: captureID, ImageKey: key})
}

// GetCaptureImageHandler returns a short lived download link for a stored
// screenshot.
func GetCaptureImageHandler(c echo.Context) error {
	type captureParams struct {
		InvestigationID string `param:"id" validate:"required"`
		CaptureID       string `param:"capture_id" validate:"required"`
	}

	type linkResponse struct {
		URL string `json:"url"`
	}

	params := new(captureParams)
	if err := bindParams(c, params); err != nil {
		return err
	}

	a := app(c)
	ctx := c.Request().Context()
	inv, err := a.Workspace.GetInvestigation(ctx, params.InvestigationID)
	if err != nil {
		return serverutil.Error(c, err, "Get capture image")
	}

	var capture *common.Capture
	for _, cp := range inv.Captures {
		if cp.ID == params.CaptureID {
			capture = cp
			break
		}
	}
	if capture == nil {
		return serverutil.Message(c, http.StatusNotFound, "Not found")
	}
	if capture.ImageKey == "" {
		if capture.ImageData != "" {
			return c.JSON(http.StatusOK, linkResponse{URL: capture.ImageData})
		}
		return serverutil.Message(c, http.StatusNotFound, "Capture has no image")
	}
	if a.Files == nil {
		return serverutil.Message(c, http.StatusServiceUnavailable, "Object storage is not configured")
	}

	link, err := a.Files.DownloadLink(ctx, capture.ImageKey)
	if err != nil {
		return serverutil.Error(c, err, "Get capture image")
	}
	return c.JSON(http.StatusOK, linkResponse{URL: link})
}
