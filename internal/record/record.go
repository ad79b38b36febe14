// Package record reads and writes the tagged-line post file.
//
// Each post is a block of tagged lines closed by an end marker, and the
// file ends with the id counter:
//
//	ID:1
//	TITLE:Hello
//	AUTHOR:Alice
//	CREATED:2024-01-02 15:04:05
//	UPDATED:2024-01-02 15:04:05
//	CONTENT:World
//	---END---
//	NEXT_ID:2
//
// Values are single lines; there is no escaping.
package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"inkwell/internal/model"
)

const (
	tagID      = "ID:"
	tagTitle   = "TITLE:"
	tagAuthor  = "AUTHOR:"
	tagCreated = "CREATED:"
	tagUpdated = "UPDATED:"
	tagContent = "CONTENT:"
	tagNextID  = "NEXT_ID:"
	endMarker  = "---END---"
)

// MaxLineBytes is the longest line Decode accepts. Values are capped a
// little below it so that anything Encode writes can be read back.
const MaxLineBytes = 16 << 20

// maxValueBytes leaves room for the longest tag.
const maxValueBytes = MaxLineBytes - len(tagContent)

var (
	// ErrMultiline is returned when a value cannot be stored on a single line.
	ErrMultiline = errors.New("value contains a line break")
	// ErrTooLong is returned for values that would exceed MaxLineBytes.
	ErrTooLong = errors.New("value too long")
)

// Snapshot is the full persisted state of a store.
type Snapshot struct {
	Posts  []*model.Post
	NextID int
	// Skipped holds the records Decode dropped as corrupt.
	Skipped []*CorruptError
}

// CorruptError describes a record that could not be turned into a post.
type CorruptError struct {
	Line int // line of the end marker, or of the bad NEXT_ID line
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt record ending at line %d: %v", e.Line, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Encode writes every post followed by the NEXT_ID line. Nothing is
// written if any value fails CheckValues.
func Encode(w io.Writer, posts []*model.Post, nextID int) error {
	for _, p := range posts {
		if err := CheckValues(p.Title(), p.Content(), p.Author()); err != nil {
			return fmt.Errorf("post %d: %w", p.ID(), err)
		}
	}

	bw := bufio.NewWriter(w)
	for _, p := range posts {
		fmt.Fprintf(bw, "%s%d\n", tagID, p.ID())
		fmt.Fprintf(bw, "%s%s\n", tagTitle, p.Title())
		fmt.Fprintf(bw, "%s%s\n", tagAuthor, p.Author())
		fmt.Fprintf(bw, "%s%s\n", tagCreated, p.CreatedAt().Format(model.TimeLayout))
		fmt.Fprintf(bw, "%s%s\n", tagUpdated, p.UpdatedAt().Format(model.TimeLayout))
		fmt.Fprintf(bw, "%s%s\n", tagContent, p.Content())
		fmt.Fprintln(bw, endMarker)
	}
	fmt.Fprintf(bw, "%s%d\n", tagNextID, nextID)
	return bw.Flush()
}

// CheckValues returns ErrMultiline if any value holds '\n' or '\r', and
// ErrTooLong if any would not fit on a line Decode can read.
func CheckValues(values ...string) error {
	for _, v := range values {
		if strings.ContainsAny(v, "\r\n") {
			return ErrMultiline
		}
		if len(v) > maxValueBytes {
			return ErrTooLong
		}
	}
	return nil
}

// scratch collects one record's fields between end markers.
type scratch struct {
	id, title, author, created, updated, content *string
}

func (s *scratch) build() (*model.Post, error) {
	missing := []string{}
	for _, f := range []struct {
		name string
		v    *string
	}{
		{"ID", s.id}, {"TITLE", s.title}, {"AUTHOR", s.author},
		{"CREATED", s.created}, {"UPDATED", s.updated}, {"CONTENT", s.content},
	} {
		if f.v == nil {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}

	id, err := strconv.Atoi(*s.id)
	if err != nil {
		return nil, fmt.Errorf("bad id: %w", err)
	}
	created, err := time.ParseInLocation(model.TimeLayout, *s.created, time.Local)
	if err != nil {
		return nil, fmt.Errorf("bad created time: %w", err)
	}
	updated, err := time.ParseInLocation(model.TimeLayout, *s.updated, time.Local)
	if err != nil {
		return nil, fmt.Errorf("bad updated time: %w", err)
	}
	return model.Restore(id, *s.title, *s.content, *s.author, created, updated), nil
}

// Decode reads a snapshot. Fields are reset after every end marker, so a
// record that lacks a field, has an unparsable value, or repeats an id
// already seen is skipped and reported in Snapshot.Skipped. Lines with an
// unknown tag are ignored. The returned NextID is always greater than
// every decoded id and at least 1.
//
// The only error returned is a read error from r.
func Decode(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{NextID: 1}
	seen := make(map[int]bool)
	maxID := 0

	var cur scratch
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes+1)
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := sc.Text()
		val := func(tag string) *string {
			v := line[len(tag):]
			return &v
		}

		switch {
		case strings.HasPrefix(line, tagID):
			cur.id = val(tagID)
		case strings.HasPrefix(line, tagTitle):
			cur.title = val(tagTitle)
		case strings.HasPrefix(line, tagAuthor):
			cur.author = val(tagAuthor)
		case strings.HasPrefix(line, tagCreated):
			cur.created = val(tagCreated)
		case strings.HasPrefix(line, tagUpdated):
			cur.updated = val(tagUpdated)
		case strings.HasPrefix(line, tagContent):
			cur.content = val(tagContent)
		case line == endMarker:
			p, err := cur.build()
			cur = scratch{}
			if err == nil && seen[p.ID()] {
				err = fmt.Errorf("duplicate id %d", p.ID())
			}
			if err != nil {
				snap.Skipped = append(snap.Skipped, &CorruptError{Line: lineNo, Err: err})
				continue
			}
			seen[p.ID()] = true
			if p.ID() > maxID {
				maxID = p.ID()
			}
			snap.Posts = append(snap.Posts, p)
		case strings.HasPrefix(line, tagNextID):
			n, err := strconv.Atoi(line[len(tagNextID):])
			if err != nil {
				snap.Skipped = append(snap.Skipped, &CorruptError{Line: lineNo, Err: fmt.Errorf("bad next id: %w", err)})
				continue
			}
			snap.NextID = n
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if snap.NextID <= maxID {
		snap.NextID = maxID + 1
	}
	if snap.NextID < 1 {
		snap.NextID = 1
	}
	return snap, nil
}
