// Package post holds the set of posts of one build and resolves links
// between them.
package post

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"git.sr.ht/~dvko/campfire/internal/markdown"
)

// ErrDuplicateSlug is returned by Set.Add when another post already uses the slug.
var ErrDuplicateSlug = errors.New("duplicate slug")

// Post is a single Markdown source file of the site.
type Post struct {
	// Path is the file path on disk.
	Path string
	// Source is the path relative to the site root with forward slashes.
	Source string

	Frontmatter markdown.Frontmatter
	Slug        string
	Title       string
	Body        string
}

// New parses the document read from file. It returns
// markdown.ErrMalformedDocument or markdown.ErrInvalidFrontmatter for
// documents that cannot be published.
func New(root string, file string, content string) (*Post, error) {
	frontmatter, body, err := markdown.Split(content)
	if err != nil {
		return nil, err
	}

	fm, err := markdown.Decode(frontmatter)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(root, file)
	if err != nil {
		return nil, err
	}

	title := fm.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(file), ".md")
	}

	slug, err := Slug(root, file, title)
	if err != nil {
		return nil, err
	}

	return &Post{
		Path:        file,
		Source:      filepath.ToSlash(rel),
		Frontmatter: fm,
		Slug:        slug,
		Title:       title,
		Body:        body,
	}, nil
}

// URL returns the post URL relative to the site root.
func (p *Post) URL() string {
	return p.Slug + "/"
}

// Set is the collection of all posts of a build. It is filled before any
// post is rendered and only read afterwards, so it needs no locking.
type Set struct {
	posts    []*Post
	bySource map[string]*Post
	bySlug   map[string]*Post
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{
		bySource: make(map[string]*Post),
		bySlug:   make(map[string]*Post),
	}
}

// Add appends p to the set. A post whose slug is taken is not added.
func (s *Set) Add(p *Post) error {
	if other, ok := s.bySlug[p.Slug]; ok {
		return fmt.Errorf("%w %q: %s and %s", ErrDuplicateSlug, p.Slug, other.Source, p.Source)
	}
	s.posts = append(s.posts, p)
	s.bySource[p.Source] = p
	s.bySlug[p.Slug] = p
	return nil
}

// Lookup returns the post with the given source path.
func (s *Set) Lookup(source string) (*Post, bool) {
	p, ok := s.bySource[source]
	return p, ok
}

// Posts returns the posts in set order. The slice must not be modified.
func (s *Set) Posts() []*Post {
	return s.posts
}

// Len returns the number of posts.
func (s *Set) Len() int {
	return len(s.posts)
}

// SortByDate orders posts newest first. Undated posts go last; ties are
// broken by source path so the order does not depend on discovery order.
func (s *Set) SortByDate() {
	sort.SliceStable(s.posts, func(i, j int) bool {
		a, b := s.posts[i].Frontmatter.Date, s.posts[j].Frontmatter.Date
		switch {
		case a.IsZero() != b.IsZero():
			return b.IsZero()
		case !a.Equal(b.Time):
			return a.After(b.Time)
		default:
			return s.posts[i].Source < s.posts[j].Source
		}
	})
}
