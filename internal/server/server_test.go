package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"inkwell/internal/model"
	"inkwell/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeImporter struct {
	st  store.Store
	err error
}

func (f *fakeImporter) Import(ctx context.Context, rawURL, author string) (*model.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.st.Create(ctx, "Imported", "from "+rawURL, author)
}

type postBody struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func newTestServer(t *testing.T) (*Server, *fakeImporter) {
	t.Helper()
	st := store.NewFileStore(filepath.Join(t.TempDir(), store.DefaultFile), zap.NewNop())
	imp := &fakeImporter{st: st}
	return NewServer(st, imp, zap.NewNop()), imp
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestServer_CRUD(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "POST", "/posts", `{"title":"Hello","content":"World","author":"Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created postBody
	decodeBody(t, rec, &created)
	assert.Equal(t, 1, created.ID)
	assert.Equal(t, "Alice", created.Author)
	assert.Len(t, created.CreatedAt, len(model.TimeLayout))

	rec = do(t, s, "GET", "/posts/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, "PUT", "/posts/1", `{"title":"Hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated postBody
	decodeBody(t, rec, &updated)
	assert.Equal(t, "Hi", updated.Title)
	assert.Equal(t, "World", updated.Content, "omitted content keeps its value")
	assert.Equal(t, "Alice", updated.Author)

	rec = do(t, s, "DELETE", "/posts/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, "GET", "/posts/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Post not found")

	rec = do(t, s, "POST", "/posts", `{"title":"","content":"","author":""}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	decodeBody(t, rec, &created)
	assert.Equal(t, 2, created.ID)
}

func TestServer_ListAndSearch(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "GET", "/posts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	do(t, s, "POST", "/posts", `{"title":"Go","content":"a","author":"x"}`)
	do(t, s, "POST", "/posts", `{"title":"Rust","content":"b","author":"y"}`)
	do(t, s, "POST", "/posts", `{"title":"Zig","content":"about go too","author":"z"}`)

	var posts []postBody
	rec = do(t, s, "GET", "/posts", "")
	decodeBody(t, rec, &posts)
	require.Len(t, posts, 3)
	assert.Equal(t, "Go", posts[0].Title)

	rec = do(t, s, "GET", "/posts?q=GO", "")
	decodeBody(t, rec, &posts)
	require.Len(t, posts, 2)
	assert.Equal(t, 1, posts[0].ID)
	assert.Equal(t, 3, posts[1].ID)

	rec = do(t, s, "GET", "/posts?q=", "")
	decodeBody(t, rec, &posts)
	assert.Len(t, posts, 3)
}

func TestServer_BadInput(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name, method, path, body string
		want                     int
	}{
		{"bad json", "POST", "/posts", `{"title":`, http.StatusBadRequest},
		{"newline title", "POST", "/posts", `{"title":"a\nb"}`, http.StatusBadRequest},
		{"author too long", "POST", "/posts", `{"author":"` + strings.Repeat("x", 101) + `"}`, http.StatusBadRequest},
		{"non-numeric id", "GET", "/posts/abc", "", http.StatusBadRequest},
		{"update missing", "PUT", "/posts/99", `{"title":"x"}`, http.StatusNotFound},
		{"delete missing", "DELETE", "/posts/99", "", http.StatusNotFound},
		{"import without url", "POST", "/posts/import", `{}`, http.StatusBadRequest},
		{"wrong method", "PATCH", "/posts/1", `{}`, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, s, "POST", "/posts", `{"title":"a\nb"}`)
	assert.Contains(t, rec.Body.String(), "title must not contain line breaks")
}

func TestServer_Import(t *testing.T) {
	s, imp := newTestServer(t)

	rec := do(t, s, "POST", "/posts/import", `{"url":"https://example.com/a","author":"me"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var p postBody
	decodeBody(t, rec, &p)
	assert.Equal(t, "from https://example.com/a", p.Content)

	imp.err = errors.New("boom")
	rec = do(t, s, "POST", "/posts/import", `{"url":"https://example.com/b"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_RequestID(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "GET", "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
	assert.Contains(t, rec.Body.String(), "Welcome to the Blog API!")

	req := httptest.NewRequest("GET", "/posts", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(headerRequestID))
}

func TestServer_ConcurrentGetAndPartialPut(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "POST", "/posts", `{"title":"t0","content":"c0","author":"a"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	serve := func(method, path, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			assert.Equal(t, http.StatusOK, serve("PUT", "/posts/1", `{"title":"new title"}`))
		}()
		go func() {
			defer wg.Done()
			assert.Equal(t, http.StatusOK, serve("PUT", "/posts/1", `{"content":"new content"}`))
		}()
		go func() {
			defer wg.Done()
			assert.Equal(t, http.StatusOK, serve("GET", "/posts/1", ""))
		}()
	}
	wg.Wait()

	var p postBody
	rec = do(t, s, "GET", "/posts/1", "")
	decodeBody(t, rec, &p)
	assert.Equal(t, "new title", p.Title, "title-only PUTs must not be undone")
	assert.Equal(t, "new content", p.Content, "content-only PUTs must not be undone")
	assert.Equal(t, "a", p.Author)
}
