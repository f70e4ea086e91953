package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/faro-watch/faro/backend/internal/server/middleware"
	"github.com/faro-watch/faro/backend/pkg/common"
)

// ListReviewHandler lists queue items, optionally filtered by status.
func ListReviewHandler(c echo.Context) error {
	type listReviewData struct {
		Status string `query:"status" validate:"omitempty,oneof=PENDING APPROVED REJECTED MERGED AUTO_APPROVED"`
	}

	data := new(listReviewData)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	app := c.(*middleware.AppContext).App
	items, err := app.Curation.List(c.Request().Context(), common.ReviewStatus(data.Status))
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []common.ReviewQueueItem{}
	}
	return c.JSON(http.StatusOK, items)
}

func GetReviewHandler(c echo.Context) error {
	type getReviewData struct {
		MentionID string `param:"id" validate:"required"`
	}

	type getReviewResponse struct {
		Item    common.ReviewQueueItem `json:"item"`
		Mention *common.Mention        `json:"mention,omitempty"`
	}

	data := new(getReviewData)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	item, err := app.Curation.Get(ctx, data.MentionID)
	if err != nil {
		return respondError(c, err)
	}

	res := getReviewResponse{Item: item}
	if mention, err := app.Store.GetMention(ctx, data.MentionID); err == nil {
		res.Mention = &mention
	}
	return c.JSON(http.StatusOK, res)
}

// ApproveReviewHandler approves a PENDING item as the calling curator.
func ApproveReviewHandler(c echo.Context) error {
	type approveReviewData struct {
		MentionID string `param:"id" validate:"required"`
		Notes     string `json:"notes" validate:"max=2000"`
	}

	data := new(approveReviewData)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	user := c.(*middleware.AppContext).User
	app := c.(*middleware.AppContext).App
	item, err := app.Curation.Approve(c.Request().Context(), data.MentionID, user.UserID, data.Notes)
	return respondDecision(c, item, err)
}

// RejectReviewHandler rejects a PENDING item as the calling curator.
func RejectReviewHandler(c echo.Context) error {
	type rejectReviewData struct {
		MentionID string `param:"id" validate:"required"`
		Reason    string `json:"reason" validate:"required,max=2000"`
	}

	data := new(rejectReviewData)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	user := c.(*middleware.AppContext).User
	app := c.(*middleware.AppContext).App
	item, err := app.Curation.Reject(c.Request().Context(), data.MentionID, user.UserID, data.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

// MergeReviewHandler merges duplicate PENDING items into a primary.
func MergeReviewHandler(c echo.Context) error {
	type mergeReviewData struct {
		PrimaryID    string   `json:"primary_id" validate:"required"`
		DuplicateIDs []string `json:"duplicate_ids" validate:"required,min=1,dive,required"`
	}

	data := new(mergeReviewData)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	user := c.(*middleware.AppContext).User
	app := c.(*middleware.AppContext).App
	items, err := app.Curation.MergeDuplicates(c.Request().Context(), data.PrimaryID, data.DuplicateIDs, user.UserID)
	if err != nil && items == nil {
		return respondError(c, err)
	}
	return respondDecision(c, items, err)
}

// ReadmitReviewHandler retries the graph admission of an approved item.
func ReadmitReviewHandler(c echo.Context) error {
	type readmitReviewData struct {
		MentionID string `param:"id" validate:"required"`
	}

	type readmitReviewResponse struct {
		Item        common.ReviewQueueItem `json:"item"`
		NodeID      string                 `json:"node_id,omitempty"`
		NodeCreated bool                   `json:"node_created"`
	}

	data := new(readmitReviewData)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	app := c.(*middleware.AppContext).App
	item, adm, err := app.Curation.Readmit(c.Request().Context(), data.MentionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, readmitReviewResponse{Item: item, NodeID: adm.Node.ID, NodeCreated: adm.NodeCreated})
}
