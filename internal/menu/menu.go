// Package menu is the numbered interactive front end over a post store.
package menu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"inkwell/internal/model"
	"inkwell/internal/record"
	"inkwell/internal/store"
)

// errQuit ends the loop when input runs out.
var errQuit = errors.New("input closed")

type Menu struct {
	store store.Store
	in    *bufio.Scanner
	out   io.Writer
}

func New(st store.Store, in io.Reader, out io.Writer) *Menu {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), record.MaxLineBytes+1)
	return &Menu{store: st, in: sc, out: out}
}

// Run shows the menu until the user picks Exit or input ends. Store
// errors other than not-found are returned.
func (m *Menu) Run(ctx context.Context) error {
	m.println("=================================")
	m.println("   Welcome to Simple Blog App")
	m.println("=================================")

	actions := map[int]func(context.Context) error{
		1: m.createPost,
		2: m.viewAll,
		3: m.viewByID,
		4: m.updatePost,
		5: m.deletePost,
		6: m.searchPosts,
	}

	for {
		m.showMenu()
		choice, err := m.readInt("Enter your choice: ")
		if err != nil {
			return m.finish(err)
		}
		if choice == 7 {
			m.println("\nThank you for using Simple Blog App. Goodbye!")
			return nil
		}
		action, ok := actions[choice]
		if !ok {
			m.println("\nInvalid choice. Please try again.")
			continue
		}
		if err := action(ctx); err != nil {
			return m.finish(err)
		}
	}
}

func (m *Menu) finish(err error) error {
	if errors.Is(err, errQuit) {
		m.println("\nGoodbye!")
		return nil
	}
	return err
}

func (m *Menu) showMenu() {
	m.println("\n----- MENU -----")
	m.println("1. Create New Post")
	m.println("2. View All Posts")
	m.println("3. View Post by ID")
	m.println("4. Update Post")
	m.println("5. Delete Post")
	m.println("6. Search Posts")
	m.println("7. Exit")
	m.println("----------------")
}

func (m *Menu) println(a ...interface{}) { fmt.Fprintln(m.out, a...) }

func (m *Menu) readLine(prompt string) (string, error) {
	fmt.Fprint(m.out, prompt)
	if !m.in.Scan() {
		if err := m.in.Err(); err != nil {
			return "", err
		}
		return "", errQuit
	}
	return m.in.Text(), nil
}

// readOptional returns nil for an empty answer.
func (m *Menu) readOptional(prompt string) (*string, error) {
	line, err := m.readLine(prompt)
	if err != nil || line == "" {
		return nil, err
	}
	return &line, nil
}

// readInt prompts until it gets a number.
func (m *Menu) readInt(prompt string) (int, error) {
	for {
		line, err := m.readLine(prompt)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil {
			return n, nil
		}
		m.println("Invalid input. Please enter a number.")
	}
}

func (m *Menu) createPost(ctx context.Context) error {
	m.println("\n--- Create New Post ---")
	title, err := m.readLine("Enter title: ")
	if err != nil {
		return err
	}
	author, err := m.readLine("Enter author: ")
	if err != nil {
		return err
	}
	content, err := m.readLine("Enter content: ")
	if err != nil {
		return err
	}

	post, err := m.store.Create(ctx, title, content, author)
	if err != nil {
		return err
	}
	m.println("\n✓ Post created successfully!")
	m.println(post)
	return nil
}

func (m *Menu) printList(posts []model.Post) {
	for i := range posts {
		m.println(&posts[i])
		m.println("---")
	}
}

func (m *Menu) viewAll(ctx context.Context) error {
	m.println("\n--- All Blog Posts ---")
	posts, err := m.store.All(ctx)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		m.println("No posts available.")
		return nil
	}
	m.printList(posts)
	m.println("Total posts:", len(posts))
	return nil
}

// lookup reads an id and fetches the post, reporting a miss to the user.
func (m *Menu) lookup(ctx context.Context, prompt string) (*model.Post, error) {
	id, err := m.readInt(prompt)
	if err != nil {
		return nil, err
	}
	post, err := m.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		m.println("\n✗ Post not found with ID:", id)
		return nil, nil
	}
	return post, err
}

func (m *Menu) viewByID(ctx context.Context) error {
	post, err := m.lookup(ctx, "\nEnter post ID: ")
	if post != nil {
		m.println("\n" + post.String())
	}
	return err
}

func (m *Menu) updatePost(ctx context.Context) error {
	m.println("\n--- Update Post ---")
	post, err := m.lookup(ctx, "Enter post ID to update: ")
	if post == nil {
		return err
	}

	m.println("\nCurrent post:")
	m.println(post)

	title, err := m.readOptional("Enter new title (or press Enter to keep current): ")
	if err != nil {
		return err
	}
	content, err := m.readOptional("Enter new content (or press Enter to keep current): ")
	if err != nil {
		return err
	}

	updated, err := m.store.Patch(ctx, post.ID(), title, content)
	if errors.Is(err, store.ErrNotFound) {
		m.println("\n✗ Failed to update post.")
		return nil
	} else if err != nil {
		return err
	}
	m.println("\n✓ Post updated successfully!")
	m.println(updated)
	return nil
}

func (m *Menu) deletePost(ctx context.Context) error {
	m.println("\n--- Delete Post ---")
	post, err := m.lookup(ctx, "Enter post ID to delete: ")
	if post == nil {
		return err
	}

	m.println("\nPost to delete:")
	m.println(post)

	answer, err := m.readLine("Are you sure you want to delete this post? (yes/no): ")
	if err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(answer), "yes") {
		m.println("\nDeletion cancelled.")
		return nil
	}

	err = m.store.Delete(ctx, post.ID())
	if errors.Is(err, store.ErrNotFound) {
		m.println("\n✗ Failed to delete post.")
		return nil
	} else if err != nil {
		return err
	}
	m.println("\n✓ Post deleted successfully!")
	return nil
}

func (m *Menu) searchPosts(ctx context.Context) error {
	m.println("\n--- Search Posts ---")
	keyword, err := m.readLine("Enter search keyword: ")
	if err != nil {
		return err
	}

	results, err := m.store.Search(ctx, keyword)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		m.println("\nNo posts found matching:", keyword)
		return nil
	}
	m.println(fmt.Sprintf("\nSearch results for '%s':", keyword))
	m.printList(results)
	m.println(fmt.Sprintf("Found %d post(s)", len(results)))
	return nil
}
