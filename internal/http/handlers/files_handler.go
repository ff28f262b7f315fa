package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/filegate-bot/internal/domain"
	"github.com/tbourn/filegate-bot/internal/http/middleware"
	"github.com/tbourn/filegate-bot/internal/utils"
)

// FileResponse is the public view of a stored entry. The Telegram file id
// is not exposed.
type FileResponse struct {
	ID        string          `json:"id" example:"0a1b2c3d"`
	Kind      domain.FileKind `json:"kind" example:"document"`
	FileName  string          `json:"file_name,omitempty" example:"report.pdf"`
	Text      string          `json:"text,omitempty" example:"meeting notes"`
	Link      string          `json:"link,omitempty" example:"https://t.me/filestoragebot?start=0a1b2c3d"`
	CreatedAt time.Time       `json:"created_at" example:"2026-10-17T09:30:00Z"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListFilesResponse wraps a page of an owner's entries.
type ListFilesResponse struct {
	OwnerID    int64          `json:"owner_id" example:"42"`
	Files      []FileResponse `json:"files"`
	Pagination Pagination     `json:"pagination"`
}

// fileStatser is implemented by registries that can summarize an owner's
// listing. When available, ListFiles answers conditional requests.
type fileStatser interface {
	Stats(ctx context.Context, ownerID int64) (int64, *time.Time, error)
}

// listETag builds a weak validator for one page of an owner's listing.
func listETag(ownerID, count int64, latest *time.Time, page, pageSize int) string {
	var ts int64
	if latest != nil {
		ts = latest.UTC().UnixNano()
	}
	return fmt.Sprintf(`W/"files:%d:%d:%d:%d:%d"`, ownerID, count, ts, page, pageSize)
}

func (h *Handlers) fileResponse(f domain.FileEntry) FileResponse {
	out := FileResponse{
		ID:        f.ID,
		Kind:      f.Kind,
		FileName:  f.FileName,
		Text:      f.Text,
		CreatedAt: f.CreatedAt,
	}
	if h.opts.DeepLink != nil {
		out.Link = h.opts.DeepLink(f.ID)
	}
	return out
}

// ListFiles godoc
// @ID          listFiles
// @Summary     List a user's files (paginated)
// @Description Returns the entries stored by the user, oldest first.
// @Tags        Files
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       id         path   int  true   "Telegram user id"  example(42)
// @Param       page       query  int  false  "Page number"       minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"    minimum(1) maximum(100) default(20)
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
//
// @Success     200  {object}  handlers.ListFilesResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid user id"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid API key"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/files [get]
func (h *Handlers) ListFiles(c *gin.Context) {
	uid, valid := pathUserID(c)
	if !valid {
		return
	}
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	// Best effort: a stats failure only skips the pre-check.
	if st, has := h.registry.(fileStatser); has {
		if count, latest, err := st.Stats(c.Request.Context(), uid); err == nil {
			etag := listETag(uid, count, latest, page, pageSize)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.registry.Page(c.Request.Context(), uid, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}

	files := make([]FileResponse, 0, len(items))
	for _, f := range items {
		files = append(files, h.fileResponse(f))
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListFilesResponse{
		OwnerID: uid,
		Files:   files,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// DeleteFile godoc
// @ID          deleteFile
// @Summary     Delete a stored file
// @Description Removes the entry on behalf of the requesting user and retracts the channel copy. Only the uploader may delete an entry.
// @Tags        Files
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       X-User-ID  header  int     true  "Requesting Telegram user id"  example(42)
// @Param       id         path    string  true  "File id (8 hex characters)"   example(0a1b2c3d)
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing requester"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid API key"
// @Failure     403  {object}  handlers.ErrorResponse  "File belongs to another user"
// @Failure     404  {object}  handlers.ErrorResponse  "File not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /files/{id} [delete]
func (h *Handlers) DeleteFile(c *gin.Context) {
	requester, found := middleware.UserIDFrom(c)
	if !found {
		fail(c, http.StatusBadRequest, ErrCodeMissingUser, "X-User-ID header must carry a positive user id")
		return
	}

	deleted, err := h.registry.Delete(c.Request.Context(), requester, c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeDeleteFailed)
		return
	}
	if !deleted {
		fail(c, http.StatusNotFound, ErrCodeFileNotFound, "file not found")
		return
	}
	noContent(c)
}
