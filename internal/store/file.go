package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"inkwell/internal/model"
	"inkwell/internal/record"

	"go.uber.org/zap"
)

// DefaultFile is the backing file used when none is configured.
const DefaultFile = "blog_posts.txt"

// FileStore keeps every post in memory and rewrites the whole backing file
// after each change. All methods are safe for concurrent use; the post
// returned by Get is not.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	posts  []*model.Post
	nextID int
}

// NewFileStore loads path into a new store. A missing file gives an empty
// store; any other load failure is logged and also gives an empty store.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	s := &FileStore{
		path:   path,
		logger: logger.With(zap.String("file", path)),
		nextID: 1,
	}
	s.load()
	return s
}

func (s *FileStore) load() {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("No post file yet, starting empty")
		return
	}
	if err != nil {
		s.logger.Error("Failed to open post file", zap.Error(err))
		return
	}
	defer f.Close()

	snap, err := record.Decode(f)
	if err != nil {
		s.logger.Error("Failed to load posts", zap.Error(err))
		return
	}
	for _, skipped := range snap.Skipped {
		s.logger.Warn("Skipping corrupt record", zap.Int("line", skipped.Line), zap.Error(skipped.Err))
	}

	s.posts = snap.Posts
	s.nextID = snap.NextID
	s.logger.Info("Posts loaded", zap.Int("count", len(s.posts)), zap.Int("next_id", s.nextID))
}

// save rewrites the file from memory. Failures are logged only; the
// in-memory state is kept either way. Callers hold s.mu.
func (s *FileStore) save() {
	if err := s.writeFile(); err != nil {
		s.logger.Error("Failed to save posts", zap.Error(err))
	}
}

// writeFile replaces the backing file through a temp file and a rename, so
// readers see either the old or the new contents. The file keeps its
// permissions; a new one gets 0644.
func (s *FileStore) writeFile() error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(s.path); err == nil {
		mode = fi.Mode().Perm()
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := record.Encode(tmp, s.posts, s.nextID); err != nil {
		tmp.Close()
		return fmt.Errorf("encode posts: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace post file: %w", err)
	}
	return nil
}

// Create adds a post with the next id and returns a copy of it. Empty
// values are accepted; values with line breaks are not.
func (s *FileStore) Create(ctx context.Context, title, content, author string) (*model.Post, error) {
	if err := record.CheckValues(title, content, author); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := model.New(s.nextID, title, content, author)
	s.nextID++
	s.posts = append(s.posts, p)
	s.save()
	snap := *p
	return &snap, nil
}

// All returns copies of every post in insertion order.
func (s *FileStore) All(ctx context.Context) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Post, len(s.posts))
	for i, p := range s.posts {
		out[i] = *p
	}
	return out, nil
}

// Get returns the stored post itself, not a copy. Reading or changing it
// bypasses the store lock, so it is only for callers that do not share the
// store across goroutines; use View otherwise. Changes made through it
// reach the file on the next save.
func (s *FileStore) Get(ctx context.Context, id int) (*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, p := s.find(id)
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// View returns a copy of one post.
func (s *FileStore) View(ctx context.Context, id int) (model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, p := s.find(id)
	if p == nil {
		return model.Post{}, ErrNotFound
	}
	return *p, nil
}

func (s *FileStore) find(id int) (int, *model.Post) {
	for i, p := range s.posts {
		if p.ID() == id {
			return i, p
		}
	}
	return -1, nil
}

// Update replaces title and content. The author cannot be changed here.
func (s *FileStore) Update(ctx context.Context, id int, title, content string) (*model.Post, error) {
	return s.Patch(ctx, id, &title, &content)
}

// Patch sets title and content, keeping the current value for a nil
// argument. Both setters run either way, so the update time is refreshed.
func (s *FileStore) Patch(ctx context.Context, id int, title, content *string) (*model.Post, error) {
	for _, v := range []*string{title, content} {
		if v == nil {
			continue
		}
		if err := record.CheckValues(*v); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, p := s.find(id)
	if p == nil {
		return nil, ErrNotFound
	}
	applyPatch(p, title, content)
	s.save()
	snap := *p
	return &snap, nil
}

func applyPatch(p *model.Post, title, content *string) {
	t, c := p.Title(), p.Content()
	if title != nil {
		t = *title
	}
	if content != nil {
		c = *content
	}
	p.SetTitle(t)
	p.SetContent(c)
}

// Delete removes a post. Its id is never handed out again.
func (s *FileStore) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, p := s.find(id)
	if p == nil {
		return ErrNotFound
	}
	s.posts = append(s.posts[:i], s.posts[i+1:]...)
	s.save()
	return nil
}

// Search returns copies of the posts matching keyword, in insertion order.
func (s *FileStore) Search(ctx context.Context, keyword string) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Post{}
	for _, p := range s.posts {
		if p.Matches(keyword) {
			out = append(out, *p)
		}
	}
	return out, nil
}

// NextID reports the id the next Create will use.
func (s *FileStore) NextID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}
