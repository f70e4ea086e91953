package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/faro-watch/faro/backend/pkg/curation"
	"github.com/faro-watch/faro/backend/pkg/graph"
	"github.com/faro-watch/faro/backend/pkg/leaselock"
	"github.com/faro-watch/faro/backend/pkg/logger"
	"github.com/faro-watch/faro/backend/pkg/store"
)

type errorResponse struct {
	Message string `json:"message"`
}

// errorStatus maps domain errors onto HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, curation.ErrItemNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, graph.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, curation.ErrInvalidTransition),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, leaselock.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
		return c.JSON(status, errorResponse{Message: "Internal server error"})
	}
	return c.JSON(status, errorResponse{Message: err.Error()})
}

type admissionPendingResponse struct {
	Message string `json:"message"`
	Result  any    `json:"result"`
}

// respondDecision answers a curator action. A decision that was stored but
// could not be admitted into the graph is reported as 202 with the decided
// result, since retrying the action itself would fail.
func respondDecision(c echo.Context, result any, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, result)
	}
	if errors.Is(err, curation.ErrAdmission) {
		logger.Error("[Server] Decision stored but admission failed", "path", c.Path(), "err", err)
		return c.JSON(http.StatusAccepted, admissionPendingResponse{
			Message: "Decision recorded; graph admission failed and can be retried",
			Result:  result,
		})
	}
	return respondError(c, err)
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request params"})
}
