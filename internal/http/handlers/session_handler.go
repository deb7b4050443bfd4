// Session listing handler.
//
// Exposes GET /sessions: the durable metadata records for every pairing
// request that ever reached readiness, sourced from the write-once store and
// not from the live registry.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ADDICT-HUB/X-guru-pair/internal/domain"
	"github.com/ADDICT-HUB/X-guru-pair/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListSessionsResponse wraps a page of durable session metadata.
type ListSessionsResponse struct {
	Sessions []domain.SessionMeta `json:"sessions"`
	Total    int64                `json:"total" example:"42"`
	Page     int                  `json:"page" example:"1"`
	PageSize int                  `json:"page_size" example:"20"`
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List completed sessions
// @Description Returns the persisted metadata of every pairing request that reached readiness, newest first.
// @Tags        Sessions
// @Produce     json
//
// @Param       page       query  int  false  "Page number (1-based)"       default(1)
// @Param       page_size  query  int  false  "Items per page (max 100)"    default(20)
//
// @Success     200  {object} handlers.ListSessionsResponse
// @Failure     500  {object} handlers.ErrorResponse "Listing failed"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	page := utils.AtoiDefault(c.Query("page"), 1)
	pageSize := utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	items, total, err := h.svc.Sessions(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions: items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}
