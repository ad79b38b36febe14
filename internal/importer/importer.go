package importer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"inkwell/internal/model"
	"inkwell/internal/store"

	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

var ErrEmptyPage = errors.New("page has no readable text")

// Scraper fetches a page and extracts its readable article.
type Scraper interface {
	Scrape(pageURL string, timeout time.Duration) (*readability.Article, error)
}

// DefaultScraper fetches over HTTP with go-readability.
type DefaultScraper struct{}

func (s *DefaultScraper) Scrape(pageURL string, timeout time.Duration) (*readability.Article, error) {
	art, err := readability.FromURL(pageURL, timeout)
	return &art, err
}

// Importer turns a web page into a post.
type Importer struct {
	store   store.Store
	logger  *zap.Logger
	scraper Scraper
	timeout time.Duration
}

// NewImporter returns an importer that writes to st.
func NewImporter(st store.Store, logger *zap.Logger) *Importer {
	return &Importer{
		store:   st,
		logger:  logger,
		scraper: &DefaultScraper{},
		timeout: defaultTimeout,
	}
}

// Import fetches rawURL and stores its readable text as a new post. The
// author falls back to the page byline, then to the site's host name.
// Page text is collapsed to one line to fit the record file.
func (im *Importer) Import(ctx context.Context, rawURL, author string) (*model.Post, error) {
	logger := im.logger.With(zap.String("url", rawURL))

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	logger.Info("Downloading")
	art, err := im.scraper.Scrape(rawURL, im.timeout)
	if err != nil {
		logger.Error("Scraping failed", zap.Error(err))
		return nil, fmt.Errorf("scrape %s: %w", rawURL, err)
	}

	content := flatten(art.TextContent)
	if content == "" {
		content = flatten(art.Excerpt)
	}
	if content == "" {
		return nil, ErrEmptyPage
	}

	title := flatten(art.Title)
	if title == "" {
		title = rawURL
	}
	if author == "" {
		author = flatten(art.Byline)
	}
	if author == "" {
		author = u.Hostname()
	}

	post, err := im.store.Create(ctx, title, content, flatten(author))
	if err != nil {
		return nil, err
	}
	logger.Info("Import complete", zap.Int("id", post.ID()), zap.String("title", post.Title()))
	return post, nil
}

// flatten joins all whitespace-separated words with single spaces.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
