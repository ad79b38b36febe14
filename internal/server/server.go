package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"inkwell/internal/model"
	"inkwell/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Importer creates a post from a web page.
type Importer interface {
	Import(ctx context.Context, rawURL, author string) (*model.Post, error)
}

type Server struct {
	store    store.Store
	importer Importer
	logger   *zap.Logger
	validate *validator.Validate
	router   *mux.Router
	server   *http.Server
}

func NewServer(st store.Store, imp Importer, logger *zap.Logger) *Server {
	s := &Server{
		store:    st,
		importer: imp,
		logger:   logger,
		validate: newValidator(),
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID, s.logRequests)

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/posts", s.handleList).Methods("GET")
	s.router.HandleFunc("/posts", s.handleCreate).Methods("POST")
	s.router.HandleFunc("/posts/import", s.handleImport).Methods("POST")
	s.router.HandleFunc("/posts/{id}", s.handleGet).Methods("GET")
	s.router.HandleFunc("/posts/{id}", s.handleUpdate).Methods("PUT")
	s.router.HandleFunc("/posts/{id}", s.handleDelete).Methods("DELETE")
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start launches the HTTP server
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("Web server listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "Welcome to the Blog API!\n\nAvailable endpoints:\n"+
		"GET    /posts?q=     - List posts, optionally filtered by keyword\n"+
		"POST   /posts        - Create a new post\n"+
		"POST   /posts/import - Create a post from a web page\n"+
		"GET    /posts/{id}   - Get a specific post\n"+
		"PUT    /posts/{id}   - Update a post's title and content\n"+
		"DELETE /posts/{id}   - Delete a post\n")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var (
		posts []model.Post
		err   error
	)
	if q, ok := r.URL.Query()["q"]; ok {
		posts, err = s.store.Search(r.Context(), q[0])
	} else {
		posts, err = s.store.All(r.Context())
	}
	if err != nil {
		s.fail(w, r, "Failed to list posts", err)
		return
	}
	respondJSON(w, posts, http.StatusOK)
}

type createRequest struct {
	Title   string `json:"title" validate:"singleline,max=200"`
	Content string `json:"content" validate:"singleline,max=100000"`
	Author  string `json:"author" validate:"singleline,max=100"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !s.decode(w, r, &req) {
		return
	}

	post, err := s.store.Create(r.Context(), req.Title, req.Content, req.Author)
	if err != nil {
		s.fail(w, r, "Failed to create post", err)
		return
	}
	respondJSON(w, post, http.StatusCreated)
}

type importRequest struct {
	URL    string `json:"url" validate:"required,url"`
	Author string `json:"author" validate:"singleline,max=100"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !s.decode(w, r, &req) {
		return
	}

	post, err := s.importer.Import(r.Context(), req.URL, req.Author)
	if err != nil {
		s.logger.Warn("Import failed", zap.String("url", req.URL), zap.Error(err))
		httpError(w, "Failed to import page", http.StatusBadGateway)
		return
	}
	respondJSON(w, post, http.StatusCreated)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}

	post, err := s.store.View(r.Context(), id)
	if err != nil {
		s.fail(w, r, "Failed to get post", err)
		return
	}
	respondJSON(w, &post, http.StatusOK)
}

// updateRequest fields left out keep their current value.
type updateRequest struct {
	Title   *string `json:"title" validate:"omitnil,singleline,max=200"`
	Content *string `json:"content" validate:"omitnil,singleline,max=100000"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}

	post, err := s.store.Patch(r.Context(), id, req.Title, req.Content)
	if err != nil {
		s.fail(w, r, "Failed to update post", err)
		return
	}
	respondJSON(w, post, http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.fail(w, r, "Failed to delete post", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func postID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		httpError(w, "Invalid post ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// fail maps store errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpError(w, "Post not found", http.StatusNotFound)
	case errors.Is(err, store.ErrMultiline), errors.Is(err, store.ErrTooLong):
		httpError(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error(msg, zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
		httpError(w, msg, http.StatusInternalServerError)
	}
}
