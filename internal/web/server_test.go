package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"book-reader/internal/config"
	"book-reader/internal/rag"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.VectorDB.InMemory = true
	cfg.RAG.ChunkSize = 200
	cfg.RAG.ChunkOverlap = 40
	cfg.Web.UploadDir = t.TempDir()
	cfg.Web.RateLimitRPS = 0
	if mutate != nil {
		mutate(cfg)
	}
	r, err := rag.New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return NewServer(r, cfg.Web)
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func upload(t *testing.T, s *Server, name, content, query string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/books"+query, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(s, req)
}

func askJSON(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(s, req)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad error body %q: %v", w.Body.String(), err)
	}
	return resp.ErrorCode
}

const france = "The capital of France is Paris. The Seine flows through Paris. France borders Spain and Italy."

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t, nil)
	w := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatal("missing request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	if got := do(s, req).Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
}

func TestUploadAndAsk(t *testing.T) {
	s := newTestServer(t, nil)

	w := askJSON(s, `{"question": "What is the capital of France?"}`)
	if w.Code != http.StatusConflict || errorCode(t, w) != "empty_index" {
		t.Fatalf("ask on empty index = %d %s", w.Code, w.Body.String())
	}

	w = upload(t, s, "france.txt", france, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d %s", w.Code, w.Body.String())
	}

	w = askJSON(s, `{"question": "What is the capital of France?", "top_k": 3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ask = %d %s", w.Code, w.Body.String())
	}
	var ans struct {
		Answer     string  `json:"answer"`
		Confidence float64 `json:"confidence"`
		Citation   struct {
			Chunk struct {
				BookID string `json:"book_id"`
			} `json:"chunk"`
		} `json:"citation"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ans); err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "Paris" || ans.Citation.Chunk.BookID != "france.txt" || ans.Confidence <= 0 {
		t.Fatalf("answer = %+v", ans)
	}

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader("question=What+is+the+capital+of+France%3F&top_k=2"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if w := do(s, req); w.Code != http.StatusOK {
		t.Fatalf("form ask = %d %s", w.Code, w.Body.String())
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/books", nil))
	var list struct {
		Books []struct {
			ID     string `json:"id"`
			Chunks int    `json:"chunks"`
		} `json:"books"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Books) != 1 || list.Books[0].ID != "france.txt" || list.Books[0].Chunks == 0 {
		t.Fatalf("books = %+v", list.Books)
	}
}

func TestUploadErrors(t *testing.T) {
	s := newTestServer(t, nil)
	if w := upload(t, s, "france.txt", france, ""); w.Code != http.StatusCreated {
		t.Fatalf("upload = %d", w.Code)
	}

	tests := []struct {
		name    string
		file    string
		content string
		query   string
		status  int
		code    string
	}{
		{"duplicate", "france.txt", france, "", http.StatusConflict, "duplicate_book"},
		{"unsupported", "notes.md", "# notes", "", http.StatusUnsupportedMediaType, "unsupported_format"},
		{"unreadable", "empty.txt", "   ", "", http.StatusUnprocessableEntity, "read_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := upload(t, s, tt.file, tt.content, tt.query)
			if w.Code != tt.status || errorCode(t, w) != tt.code {
				t.Fatalf("upload = %d %s", w.Code, w.Body.String())
			}
		})
	}

	w := upload(t, s, "france.txt", "The capital of Italy is Rome.", "?replace=true")
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"replaced":true`) {
		t.Fatalf("replace = %d %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/books", strings.NewReader("nothing"))
	if w := do(s, req); w.Code != http.StatusBadRequest {
		t.Fatalf("missing file = %d", w.Code)
	}
}

func TestFailedReplaceKeepsUpload(t *testing.T) {
	s := newTestServer(t, nil)
	if w := upload(t, s, "france.txt", france, ""); w.Code != http.StatusCreated {
		t.Fatalf("upload = %d", w.Code)
	}

	w := upload(t, s, "france.txt", "   ", "?replace=true")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("replace with empty file = %d %s", w.Code, w.Body.String())
	}

	data, err := os.ReadFile(filepath.Join(s.cfg.UploadDir, "france.txt"))
	if err != nil || string(data) != france {
		t.Fatalf("previous upload not restored: %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(s.cfg.UploadDir, "france.txt.prev")); !os.IsNotExist(err) {
		t.Fatalf("backup left behind: %v", err)
	}
	if w := askJSON(s, `{"question": "What is the capital of France?"}`); w.Code != http.StatusOK {
		t.Fatalf("ask after failed replace = %d %s", w.Code, w.Body.String())
	}
}

func TestAskErrors(t *testing.T) {
	s := newTestServer(t, nil)
	upload(t, s, "france.txt", france, "")

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"blank question", `{"question": "  "}`, http.StatusBadRequest, "invalid_input"},
		{"top_k too large", `{"question": "capital?", "top_k": 11}`, http.StatusBadRequest, "invalid_input"},
		{"negative top_k", `{"question": "capital?", "top_k": -1}`, http.StatusBadRequest, "invalid_input"},
		{"malformed json", `{"question":`, http.StatusBadRequest, "invalid_input"},
		{"unanswerable", `{"question": "Who painted the Mona Lisa?"}`, http.StatusNotFound, "no_answer_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := askJSON(s, tt.body)
			if w.Code != tt.status || errorCode(t, w) != tt.code {
				t.Fatalf("ask = %d %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestDeleteAndReset(t *testing.T) {
	s := newTestServer(t, nil)
	upload(t, s, "france.txt", france, "")

	w := do(s, httptest.NewRequest(http.MethodDelete, "/books/missing.txt", nil))
	if w.Code != http.StatusNotFound || errorCode(t, w) != "book_not_found" {
		t.Fatalf("delete missing = %d %s", w.Code, w.Body.String())
	}
	if w := do(s, httptest.NewRequest(http.MethodDelete, "/books/france.txt", nil)); w.Code != http.StatusOK {
		t.Fatalf("delete = %d %s", w.Code, w.Body.String())
	}

	upload(t, s, "france.txt", france, "")
	if w := do(s, httptest.NewRequest(http.MethodPost, "/reset", nil)); w.Code != http.StatusOK {
		t.Fatalf("reset = %d", w.Code)
	}
	if w := askJSON(s, `{"question": "What is the capital of France?"}`); w.Code != http.StatusConflict {
		t.Fatalf("ask after reset = %d", w.Code)
	}
}

func TestIndexPage(t *testing.T) {
	s := newTestServer(t, nil)
	upload(t, s, "france.txt", france, "")

	w := do(s, httptest.NewRequest(http.MethodGet, "/?question=What+is+the+capital+of+France%3F&top_k=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("index = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"france", "<strong>Paris</strong>", `<option value="2" selected>`} {
		if !strings.Contains(body, want) {
			t.Fatalf("page misses %q", want)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/books/france.txt/delete", nil)
	req.Header.Set("Accept", "text/html")
	w = do(s, req)
	if w.Code != http.StatusSeeOther || !strings.HasPrefix(w.Header().Get("Location"), "/?msg=") {
		t.Fatalf("html delete = %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Web.RateLimitRPS = 0.001
		cfg.Web.RateLimitBurst = 1
	})
	if w := do(s, httptest.NewRequest(http.MethodGet, "/books", nil)); w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}
	w := do(s, httptest.NewRequest(http.MethodGet, "/books", nil))
	if w.Code != http.StatusTooManyRequests || errorCode(t, w) != "rate_limit_exceeded" {
		t.Fatalf("second request = %d", w.Code)
	}
	if w := do(s, httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusOK {
		t.Fatalf("health is rate limited: %d", w.Code)
	}
}

func TestHighlight(t *testing.T) {
	text := "The capital of France is Paris."
	got, err := highlight(text, strings.Index(text, "Paris"), strings.Index(text, "Paris")+5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "<p>The capital of France is <strong>Paris</strong>.</p>" {
		t.Fatalf("highlight = %q", got)
	}

	got, _ = highlight("<script>alert(1)</script> *x* 1. done", 0, 0)
	if strings.Contains(string(got), "<script>") || strings.Contains(string(got), "<em>") {
		t.Fatalf("unescaped html: %q", got)
	}

	got, _ = highlight("- 1984 was published", 2, 6)
	if strings.Contains(string(got), "<li>") || !strings.Contains(string(got), "<strong>1984</strong>") {
		t.Fatalf("list marker not escaped: %q", got)
	}
}
