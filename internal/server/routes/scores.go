package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/faro-watch/faro/backend/internal/server/middleware"
	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/score"
)

type scoreData struct {
	ID string `param:"id" validate:"required"`
}

func GetNodeScoreHandler(c echo.Context) error {
	type nodeScoreResponse struct {
		Node  common.GraphNode `json:"node"`
		Score score.NodeScore  `json:"score"`
	}

	data := new(scoreData)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	app := c.(*middleware.AppContext).App
	node, err := app.Store.GetNode(c.Request().Context(), data.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, nodeScoreResponse{Node: node, Score: app.Scorer.ScoreNode(node)})
}

func GetEdgeScoreHandler(c echo.Context) error {
	type edgeScoreResponse struct {
		Edge  common.GraphEdge `json:"edge"`
		Score score.EdgeScore  `json:"score"`
	}

	data := new(scoreData)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	edge, err := app.Store.GetEdge(ctx, data.ID)
	if err != nil {
		return respondError(c, err)
	}
	src, err := app.Store.GetNode(ctx, edge.SrcNodeID)
	if err != nil {
		return respondError(c, err)
	}
	dst, err := app.Store.GetNode(ctx, edge.DstNodeID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, edgeScoreResponse{Edge: edge, Score: app.Scorer.ScoreEdge(edge, src, dst)})
}
