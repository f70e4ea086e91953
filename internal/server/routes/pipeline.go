package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/faro-watch/faro/backend/internal/server/middleware"
	"github.com/faro-watch/faro/backend/pkg/pipeline"
)

// RunPipelineHandler processes a batch of unprocessed articles synchronously.
func RunPipelineHandler(c echo.Context) error {
	type runPipelineData struct {
		Limit int `json:"limit" validate:"omitempty,min=1,max=1000"`
	}

	type runPipelineResponse struct {
		Processed int               `json:"processed"`
		Failed    int               `json:"failed"`
		Results   []pipeline.Result `json:"results"`
	}

	data := new(runPipelineData)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	app := c.(*middleware.AppContext).App
	limit := data.Limit
	if limit == 0 {
		limit = max(app.BatchSize, 1)
	}

	results, err := app.Pipeline.ProcessBatch(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, err)
	}

	res := runPipelineResponse{Processed: len(results), Results: results}
	if res.Results == nil {
		res.Results = []pipeline.Result{}
	}
	for _, r := range results {
		if r.Failed() {
			res.Failed++
		}
	}
	return c.JSON(http.StatusOK, res)
}
