package store

import (
	"context"
	"errors"

	"inkwell/internal/model"
	"inkwell/internal/record"
)

var (
	ErrNotFound = errors.New("post not found")
	// ErrMultiline and ErrTooLong reject values the record file cannot hold.
	ErrMultiline = record.ErrMultiline
	ErrTooLong   = record.ErrTooLong
)

// Store is the post repository used by the CLI, the menu and the HTTP API.
//
// There are two ways to read a post. Get returns the store's own post
// where the backend keeps one in memory; it is meant for single-threaded
// callers such as the menu. View, All and Search return snapshots that are
// safe to read while other goroutines write. Create, Update and Patch also
// return snapshots.
type Store interface {
	Create(ctx context.Context, title, content, author string) (*model.Post, error)
	All(ctx context.Context) ([]model.Post, error)
	Get(ctx context.Context, id int) (*model.Post, error)
	View(ctx context.Context, id int) (model.Post, error)
	Update(ctx context.Context, id int, title, content string) (*model.Post, error)
	// Patch is Update with nil meaning "keep the current value". The merge
	// happens atomically with the write.
	Patch(ctx context.Context, id int, title, content *string) (*model.Post, error)
	Delete(ctx context.Context, id int) error
	Search(ctx context.Context, keyword string) ([]model.Post, error)
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*HybridStore)(nil)
)
