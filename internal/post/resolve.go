package post

import (
	"fmt"
	"path"
	"strings"

	"git.sr.ht/~dvko/campfire/internal/markdown"
)

// StaticDir is the output directory assets are copied to.
const StaticDir = "static"

// Resolver rewrites relative link and image destinations to site URLs.
// It implements markdown.Resolver.
type Resolver struct {
	baseURL string
	posts   *Set
}

// NewResolver returns a Resolver for posts published under baseURL.
func NewResolver(baseURL string, posts *Set) *Resolver {
	return &Resolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		posts:   posts,
	}
}

// IsRelative reports whether dest has no URL scheme.
func IsRelative(dest string) bool {
	return !strings.Contains(dest, "://")
}

// Exported notes encode spaces in link targets as %20; nothing else is decoded.
func decodeSpaces(dest string) string {
	return strings.ReplaceAll(dest, "%20", " ")
}

// ResolveLink returns the URL of the post whose source path is dest.
func (r *Resolver) ResolveLink(dest string) (string, error) {
	if !IsRelative(dest) {
		return dest, nil
	}

	p, ok := r.posts.Lookup(decodeSpaces(dest))
	if !ok {
		return dest, fmt.Errorf("%w: %s", markdown.ErrUnresolvedLink, dest)
	}
	return r.baseURL + "/" + p.URL(), nil
}

// ResolveImage returns the URL an image is published at and the asset to copy there.
func (r *Resolver) ResolveImage(dest string) (string, *markdown.Asset) {
	if !IsRelative(dest) {
		return dest, nil
	}

	source := decodeSpaces(dest)
	target := StaticDir + "/" + path.Base(source)
	return r.baseURL + "/" + target, &markdown.Asset{Source: source, Target: target}
}
