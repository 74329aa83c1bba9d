package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	ingestdomain "github.com/smallbiznis/quicksearch/internal/ingest/domain"
	"github.com/smallbiznis/quicksearch/pkg/db/pagination"
)

const (
	uploadFormField       = "files"
	defaultUploadMaxBytes = 32 << 20
	multipartMemoryBytes  = 8 << 20
)

func (s *Server) CreateUpload(c *gin.Context) {
	limit := s.cfg.UploadMaxBytes
	if limit <= 0 {
		limit = defaultUploadMaxBytes
	}
	if c.Request.ContentLength > limit {
		AbortWithError(c, ErrPayloadTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	if err := c.Request.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, ErrPayloadTooLarge)
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	var headers []*multipart.FileHeader
	if c.Request.MultipartForm != nil {
		headers = c.Request.MultipartForm.File[uploadFormField]
	}
	if len(headers) == 0 {
		AbortWithError(c, ingestdomain.ErrNoFiles)
		return
	}

	files := make([]ingestdomain.File, 0, len(headers))
	for _, header := range headers {
		data, err := readFormFile(header)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		files = append(files, ingestdomain.File{Name: header.Filename, Data: data})
	}

	resp, err := s.ingestSvc.ImportFiles(c.Request.Context(), files)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) ListUploads(c *gin.Context) {
	var query struct {
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ingestSvc.ListUploads(c.Request.Context(), query.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteUpload(c *gin.Context) {
	if err := s.ingestSvc.DeleteUpload(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
