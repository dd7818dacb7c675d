package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"book-reader/internal/models"
	"book-reader/internal/parser"
	"book-reader/internal/rag"
)

const maxTopK = 10

type askRequest struct {
	Question string `json:"question" form:"question"`
	TopK     int    `json:"top_k" form:"top_k"`
}

// wantsHTML reports whether the request came from the page's forms.
func wantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}

func redirectHome(c *gin.Context, msg string) {
	c.Redirect(http.StatusSeeOther, "/?msg="+url.QueryEscape(msg))
}

func (s *Server) fail(c *gin.Context, err error) {
	if wantsHTML(c) {
		redirectHome(c, "Error: "+err.Error())
		return
	}
	respondError(c, err)
}

func (s *Server) handleListBooks(c *gin.Context) {
	books, err := s.rag.Books(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if books == nil {
		books = []models.Book{}
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

func (s *Server) handleUpload(c *gin.Context) {
	if s.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	}
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error_code": "request_too_large", "message": fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes)})
			return
		}
		badRequest(c, "no file uploaded")
		return
	}

	name := filepath.Base(file.Filename)
	if _, err := parser.DetectFormat(name); err != nil {
		s.fail(c, err)
		return
	}
	replace := c.Query("replace") == "true" || c.PostForm("replace") == "true"
	ctx := c.Request.Context()
	if !replace {
		existing, err := s.rag.Book(ctx, name)
		if err != nil {
			s.fail(c, err)
			return
		}
		if existing != nil {
			s.fail(c, fmt.Errorf("%w: %s", models.ErrDuplicateBook, name))
			return
		}
	}

	dest := filepath.Join(s.cfg.UploadDir, name)
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		s.fail(c, err)
		return
	}
	// the previous upload stays on disk until the replacement is indexed
	backup := ""
	if replace {
		if _, err := os.Stat(dest); err == nil {
			backup = dest + ".prev"
			if err := os.Rename(dest, backup); err != nil {
				s.fail(c, fmt.Errorf("keep previous upload: %v", err))
				return
			}
		}
	}
	if err := c.SaveUploadedFile(file, dest); err != nil {
		restoreUpload(dest, backup)
		s.fail(c, fmt.Errorf("save upload: %v", err))
		return
	}

	res, err := s.rag.AddBook(ctx, dest, rag.AddOptions{Replace: replace})
	if err != nil {
		restoreUpload(dest, backup)
		s.fail(c, err)
		return
	}
	if backup != "" {
		os.Remove(backup)
	}
	log.Info().Str("request_id", GetRequestID(c)).Str("book", res.Book.ID).Int("chunks", res.Book.Chunks).Msg("Book uploaded")
	if wantsHTML(c) {
		redirectHome(c, fmt.Sprintf("Added %s (%d chunks)", res.Book.ID, res.Book.Chunks))
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handleDeleteBook(c *gin.Context) {
	id := c.Param("id")
	if err := s.rag.RemoveBook(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	if wantsHTML(c) {
		redirectHome(c, "Removed "+id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": id})
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.rag.Reset(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	if wantsHTML(c) {
		redirectHome(c, "Index cleared")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// bindAsk reads a question from JSON or form data and validates top_k.
func (s *Server) bindAsk(c *gin.Context) (models.Query, error) {
	var req askRequest
	if err := c.ShouldBind(&req); err != nil {
		return models.Query{}, fmt.Errorf("%w: %v", models.ErrInvalidQuery, err)
	}
	if strings.TrimSpace(req.Question) == "" {
		return models.Query{}, fmt.Errorf("%w: question is required", models.ErrInvalidQuery)
	}
	if req.TopK == 0 {
		req.TopK = s.rag.Config().RAG.TopK
	}
	if req.TopK < 1 || req.TopK > maxTopK {
		return models.Query{}, fmt.Errorf("%w: top_k must be between 1 and %d", models.ErrInvalidQuery, maxTopK)
	}
	return models.Query{Question: req.Question, TopK: req.TopK}, nil
}

func (s *Server) handleAsk(c *gin.Context) {
	q, err := s.bindAsk(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ans, err := s.rag.Ask(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ans)
}

func (s *Server) handleIndex(c *gin.Context) {
	ctx := c.Request.Context()
	data := pageData{
		Message: c.Query("msg"),
		TopK:    s.rag.Config().RAG.TopK,
		TopKs:   make([]int, maxTopK),
	}
	for i := range data.TopKs {
		data.TopKs[i] = i + 1
	}

	books, err := s.rag.Books(ctx)
	if err != nil {
		data.Error = err.Error()
	}
	data.Books = books

	if question := c.Query("question"); question != "" {
		data.Question = question
		if k, err := strconv.Atoi(c.Query("top_k")); err == nil && k >= 1 && k <= maxTopK {
			data.TopK = k
		}
		ans, err := s.rag.Ask(ctx, models.Query{Question: question, TopK: data.TopK})
		if err != nil {
			data.Error = err.Error()
		} else if data.Answer, err = newAnswerView(ans); err != nil {
			data.Error = err.Error()
		}
	}
	c.HTML(http.StatusOK, "page", data)
}

// restoreUpload drops a failed upload and puts back the file it replaced.
func restoreUpload(dest, backup string) {
	os.Remove(dest)
	if backup == "" {
		return
	}
	if err := os.Rename(backup, dest); err != nil {
		log.Error().Err(err).Str("file", dest).Msg("Failed to restore previous upload")
	}
}

type pageData struct {
	Message  string
	Error    string
	Books    []models.Book
	Question string
	TopK     int
	TopKs    []int
	Answer   *answerView
}

type answerView struct {
	*models.Answer
	Highlighted template.HTML
}

func newAnswerView(ans *models.Answer) (*answerView, error) {
	html, err := highlight(ans.Citation.Chunk.Text, ans.Citation.Start, ans.Citation.End)
	if err != nil {
		return nil, err
	}
	return &answerView{Answer: ans, Highlighted: html}, nil
}
