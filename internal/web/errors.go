package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"book-reader/internal/models"
)

// statusFor maps the error taxonomy onto HTTP statuses and error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported_format"
	case errors.Is(err, models.ErrRead):
		return http.StatusUnprocessableEntity, "read_error"
	case errors.Is(err, models.ErrEmbedding):
		return http.StatusBadGateway, "embedding_error"
	case errors.Is(err, models.ErrEmptyIndex):
		return http.StatusConflict, "empty_index"
	case errors.Is(err, models.ErrDuplicateBook):
		return http.StatusConflict, "duplicate_book"
	case errors.Is(err, models.ErrNoAnswerFound):
		return http.StatusNotFound, "no_answer_found"
	case errors.Is(err, models.ErrBookNotFound):
		return http.StatusNotFound, "book_not_found"
	case errors.Is(err, models.ErrInvalidQuery), errors.Is(err, models.ErrInvalidChunking):
		return http.StatusBadRequest, "invalid_input"
	}
	return http.StatusInternalServerError, "internal_error"
}

func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", GetRequestID(c)).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error_code": code, "message": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error_code": "invalid_input", "message": message})
}
