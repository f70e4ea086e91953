package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/faro-watch/faro/backend/internal/server/middleware"
	"github.com/faro-watch/faro/backend/internal/util"
	"github.com/faro-watch/faro/backend/pkg/common"
)

// SubmitArticleHandler stores an article and queues it for the pipeline.
func SubmitArticleHandler(c echo.Context) error {
	type submitArticleData struct {
		ID          string     `json:"id" validate:"omitempty,max=200"`
		Outlet      string     `json:"outlet" validate:"max=200"`
		Title       string     `json:"title"`
		URL         string     `json:"url" validate:"omitempty,url"`
		Language    string     `json:"language" validate:"required,min=2,max=8"`
		PublishedAt *time.Time `json:"published_at"`
		RawText     string     `json:"raw_text" validate:"required"`
	}

	type submitArticleResponse struct {
		Message   string `json:"message"`
		JobID     string `json:"job_id,omitempty"`
		ArticleID string `json:"article_id,omitempty"`
	}

	data := new(submitArticleData)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	app := c.(*middleware.AppContext).App
	article := util.SanitizeArticle(common.Article{
		ID:          data.ID,
		Outlet:      data.Outlet,
		Title:       data.Title,
		URL:         data.URL,
		Language:    data.Language,
		PublishedAt: data.PublishedAt,
		RawText:     data.RawText,
	})
	if strings.TrimSpace(article.RawText) == "" {
		return badRequest(c)
	}

	job, err := app.Submitter.Submit(c.Request().Context(), article)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusAccepted, submitArticleResponse{
		Message:   "Article queued",
		JobID:     job.ID,
		ArticleID: job.ArticleID,
	})
}

func GetJobHandler(c echo.Context) error {
	type getJobData struct {
		JobID string `param:"id" validate:"required"`
	}

	data := new(getJobData)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	app := c.(*middleware.AppContext).App
	job, err := app.Store.GetJob(c.Request().Context(), data.JobID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}
