package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the second-precision timestamp format used for display and
// for the record file.
const TimeLayout = "2006-01-02 15:04:05"

// now is swapped out in tests.
var now = time.Now

// Post is a single blog entry. The id is fixed at construction; the
// timestamp policy lives in the setters, so fields are only reachable
// through accessors.
type Post struct {
	id        int
	title     string
	content   string
	author    string
	createdAt time.Time
	updatedAt time.Time
}

// New creates a post with both timestamps set to the current time.
func New(id int, title, content, author string) *Post {
	t := now()
	return &Post{
		id:        id,
		title:     title,
		content:   content,
		author:    author,
		createdAt: t,
		updatedAt: t,
	}
}

// Restore rebuilds a post from persisted values. An updated time earlier
// than the creation time is clamped to it.
func Restore(id int, title, content, author string, created, updated time.Time) *Post {
	if updated.Before(created) {
		updated = created
	}
	return &Post{
		id:        id,
		title:     title,
		content:   content,
		author:    author,
		createdAt: created,
		updatedAt: updated,
	}
}

func (p *Post) ID() int              { return p.id }
func (p *Post) Title() string        { return p.title }
func (p *Post) Content() string      { return p.content }
func (p *Post) Author() string       { return p.author }
func (p *Post) CreatedAt() time.Time { return p.createdAt }
func (p *Post) UpdatedAt() time.Time { return p.updatedAt }

// SetTitle replaces the title and refreshes the update time.
func (p *Post) SetTitle(title string) {
	p.title = title
	p.touch()
}

// SetContent replaces the content and refreshes the update time.
func (p *Post) SetContent(content string) {
	p.content = content
	p.touch()
}

// SetAuthor replaces the author. The update time is left alone.
func (p *Post) SetAuthor(author string) {
	p.author = author
}

// touch never moves updatedAt backwards, even if the wall clock does.
func (p *Post) touch() {
	if t := now(); t.After(p.updatedAt) {
		p.updatedAt = t
	}
}

// Matches reports whether keyword occurs, ignoring case, in the title,
// content or author. The empty keyword matches every post.
func (p *Post) Matches(keyword string) bool {
	kw := strings.ToLower(keyword)
	return strings.Contains(strings.ToLower(p.title), kw) ||
		strings.Contains(strings.ToLower(p.content), kw) ||
		strings.Contains(strings.ToLower(p.author), kw)
}

// String renders the post for humans.
func (p *Post) String() string {
	return fmt.Sprintf("BlogPost #%d\nTitle: %s\nAuthor: %s\nCreated: %s\nUpdated: %s\nContent: %s\n",
		p.id, p.title, p.author,
		p.createdAt.Format(TimeLayout), p.updatedAt.Format(TimeLayout),
		p.content)
}

type postJSON struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// MarshalJSON exposes the post to API clients.
func (p *Post) MarshalJSON() ([]byte, error) {
	return json.Marshal(postJSON{
		ID:        p.id,
		Title:     p.title,
		Content:   p.content,
		Author:    p.author,
		CreatedAt: p.createdAt.Format(TimeLayout),
		UpdatedAt: p.updatedAt.Format(TimeLayout),
	})
}
