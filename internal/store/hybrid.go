package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"inkwell/internal/model"
	"inkwell/internal/record"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyOrder   = "list:posts"
	keyCounter = "counter:post_id"
	gcInterval = 5 * time.Minute
)

func postKey(id int) string { return fmt.Sprintf("post:%d", id) }

// postMeta is what Redis holds per post. Content only lands here when no
// Badger directory is configured.
type postMeta struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HybridStore combines Redis (metadata, ordering, id counter) and Badger
// (post bodies). Ids come from INCR, so several processes can share it.
type HybridStore struct {
	rdb    *redis.Client
	db     *badger.DB
	logger *zap.Logger

	mu        sync.Mutex // serializes read-modify-write in Patch
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewHybridStore connects to Redis and opens Badger at badgerPath.
// Pass badgerPath="" to keep post bodies in Redis too.
func NewHybridStore(redisAddr string, badgerPath string, logger *zap.Logger) (*HybridStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var db *badger.DB
	if badgerPath != "" {
		opts := badger.DefaultOptions(badgerPath)
		opts.Logger = nil // Silence default logger
		var err error
		db, err = badger.Open(opts)
		if err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to open badger: %w", err)
		}
	}

	return newHybridStore(rdb, db, logger), nil
}

func newHybridStore(rdb *redis.Client, db *badger.DB, logger *zap.Logger) *HybridStore {
	s := &HybridStore{rdb: rdb, db: db, logger: logger, done: make(chan struct{})}
	if db != nil {
		s.wg.Add(1)
		go s.gcLoop(gcInterval)
	}
	return s
}

// gcLoop reclaims Badger value-log space until Close.
func (s *HybridStore) gcLoop(every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			err := s.db.RunValueLogGC(0.7)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("Badger value log GC failed", zap.Error(err))
			}
		}
	}
}

// Close stops the GC loop and closes both databases. Later calls do nothing.
func (s *HybridStore) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.rdb != nil {
			s.rdb.Close()
		}
		if s.db != nil {
			s.db.Close()
		}
	})
}

// save writes metadata to Redis and the body to Badger.
func (s *HybridStore) save(ctx context.Context, p *model.Post, isNew bool) error {
	meta := postMeta{
		ID:        p.ID(),
		Title:     p.Title(),
		Author:    p.Author(),
		CreatedAt: p.CreatedAt(),
		UpdatedAt: p.UpdatedAt(),
	}
	if s.db == nil {
		meta.Content = p.Content()
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	// Body first, so a listed post always has one.
	if s.db != nil {
		err = s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(postKey(p.ID())), []byte(p.Content()))
		})
		if err != nil {
			return fmt.Errorf("failed to save content: %w", err)
		}
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, postKey(p.ID()), data, 0)
	if isNew {
		pipe.RPush(ctx, keyOrder, p.ID())
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *HybridStore) Create(ctx context.Context, title, content, author string) (*model.Post, error) {
	if err := record.CheckValues(title, content, author); err != nil {
		return nil, err
	}

	id, err := s.rdb.Incr(ctx, keyCounter).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate id: %w", err)
	}

	p := model.New(int(id), title, content, author)
	if err := s.save(ctx, p, true); err != nil {
		return nil, err
	}
	return p, nil
}

// Get loads a post. Unlike FileStore, the result is a fresh copy.
func (s *HybridStore) Get(ctx context.Context, id int) (*model.Post, error) {
	val, err := s.rdb.Get(ctx, postKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	var meta postMeta
	if err := json.Unmarshal(val, &meta); err != nil {
		return nil, err
	}

	posts, err := s.withContent([]postMeta{meta})
	if err != nil {
		return nil, err
	}
	return posts[0], nil
}

// View is Get by value; every HybridStore read is already a copy.
func (s *HybridStore) View(ctx context.Context, id int) (model.Post, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return model.Post{}, err
	}
	return *p, nil
}

// withContent attaches Badger bodies to metadata in one read transaction.
func (s *HybridStore) withContent(metas []postMeta) ([]*model.Post, error) {
	if s.db != nil {
		err := s.db.View(func(txn *badger.Txn) error {
			for i := range metas {
				item, err := txn.Get([]byte(postKey(metas[i].ID)))
				if err == badger.ErrKeyNotFound {
					continue
				} else if err != nil {
					return err
				}
				err = item.Value(func(val []byte) error {
					metas[i].Content = string(val)
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	posts := make([]*model.Post, len(metas))
	for i, m := range metas {
		posts[i] = model.Restore(m.ID, m.Title, m.Content, m.Author, m.CreatedAt, m.UpdatedAt)
	}
	return posts, nil
}

func (s *HybridStore) All(ctx context.Context) ([]model.Post, error) {
	ids, err := s.rdb.LRange(ctx, keyOrder, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Post{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, idStr := range ids {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			s.logger.Warn("Bad id in order list", zap.String("id", idStr))
			continue
		}
		keys = append(keys, postKey(id))
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	metas := make([]postMeta, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// listed but deleted in between
			continue
		}
		var m postMeta
		if err := json.Unmarshal([]byte(str), &m); err != nil {
			s.logger.Warn("Bad post metadata", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		metas = append(metas, m)
	}

	posts, err := s.withContent(metas)
	if err != nil {
		return nil, err
	}
	out := make([]model.Post, len(posts))
	for i, p := range posts {
		out[i] = *p
	}
	return out, nil
}

func (s *HybridStore) Update(ctx context.Context, id int, title, content string) (*model.Post, error) {
	return s.Patch(ctx, id, &title, &content)
}

// Patch merges under a process-local lock; writers in other processes
// sharing the same Redis are last-writer-wins.
func (s *HybridStore) Patch(ctx context.Context, id int, title, content *string) (*model.Post, error) {
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

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyPatch(p, title, content)
	if err := s.save(ctx, p, false); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *HybridStore) Delete(ctx context.Context, id int) error {
	n, err := s.rdb.Del(ctx, postKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := s.rdb.LRem(ctx, keyOrder, 0, strconv.Itoa(id)).Err(); err != nil {
		return err
	}

	if s.db != nil {
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(postKey(id)))
		})
	}
	return nil
}

func (s *HybridStore) Search(ctx context.Context, keyword string) ([]model.Post, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.Post{}
	for i := range all {
		if all[i].Matches(keyword) {
			out = append(out, all[i])
		}
	}
	return out, nil
}
