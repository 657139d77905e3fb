package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	texttemplate "text/template"
	"time"

	"golang.org/x/sync/errgroup"

	"git.sr.ht/~dvko/campfire/internal/markdown"
	"git.sr.ht/~dvko/campfire/internal/post"
)

// ErrAssetNotFound is returned for an image a post references that does not exist on disk.
var ErrAssetNotFound = errors.New("asset not found")

type Site struct {
	config    *Config
	rootDir   string
	configDir string
	outputDir string

	templates    *template.Template
	feedTemplate *texttemplate.Template
	posts        *post.Set
	pages        []*PostContext
	assets       []postAsset
}

// PostContext is what templates see of a single post.
type PostContext struct {
	Title            string
	Tags             []string
	Author           string
	OriginalFileName string
	RelativeURL      string
	Permalink        string

	Date  string
	Year  int
	Month int
	Day   int

	Content template.HTML

	published time.Time
}

// PubDate returns the publication date in RSS format, or "" for undated posts.
func (p *PostContext) PubDate() string {
	if p.published.IsZero() {
		return ""
	}
	return p.published.Format(time.RFC1123Z)
}

type postAsset struct {
	markdown.Asset
	post *post.Post
}

func newSite(rootDir string, cfg *Config) *Site {
	configDir := filepath.Join(rootDir, configDirName)
	return &Site{
		config:    cfg,
		rootDir:   rootDir,
		configDir: configDir,
		outputDir: resolvePath(configDir, cfg.Paths.Target),
	}
}

func resolvePath(dir string, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// Build runs a full build: every post is collected before the first one is
// rendered, since links between posts can only be resolved once all slugs are known.
func (s *Site) Build(ctx context.Context) error {
	timeStart := time.Now()

	if err := s.loadTemplates(); err != nil {
		return err
	}
	if err := s.prepareOutputDir(); err != nil {
		return err
	}
	if err := s.readContent(); err != nil {
		return fmt.Errorf("reading content: %w", err)
	}
	if err := s.renderPosts(ctx); err != nil {
		return err
	}
	if err := s.copyAssets(); err != nil {
		return err
	}
	if err := s.createIndex(); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}
	if err := s.createRSSFeed(); err != nil {
		slog.Warn("Error creating RSS feed", errAttr(err))
	}
	if err := s.createSitemap(); err != nil {
		slog.Warn("Error creating sitemap", errAttr(err))
	}

	staticDir := resolvePath(s.configDir, s.config.Paths.Static)
	if _, err := os.Stat(staticDir); err == nil {
		if err := copyDirRecursively(staticDir, s.outputDir); err != nil {
			return fmt.Errorf("copying %s: %w", staticDir, err)
		}
	} else {
		slog.Debug("Not copying static files, directory does not exist", fileAttr(staticDir))
	}

	if err := s.runPostBuildCommand(ctx); err != nil {
		return err
	}

	slog.Info("Built site", slog.Int("posts", len(s.pages)), slog.String("output", s.outputDir), durationAttr(time.Since(timeStart)))
	return nil
}

// loadTemplates parses every *.html file below the templates directory, named
// by its slash separated path, and an optional feed.xml template.
func (s *Site) loadTemplates() error {
	dir := resolvePath(s.configDir, s.config.Paths.Templates)
	funcs := template.FuncMap{
		"join": strings.Join,
	}

	tmpl := template.New("").Funcs(funcs)
	var feed *texttemplate.Template
	err := fs.WalkDir(os.DirFS(dir), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if path != feedTemplate && !strings.HasSuffix(path, ".html") {
			return nil
		}

		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
		if err != nil {
			return err
		}
		if path == feedTemplate {
			feed, err = texttemplate.New(path).Funcs(texttemplate.FuncMap(funcs)).Parse(string(data))
		} else {
			_, err = tmpl.New(path).Parse(string(data))
		}
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading templates from %s: %w", dir, err)
	}
	if tmpl.Lookup("post.html") == nil {
		return fmt.Errorf("missing post.html template in %s", dir)
	}
	s.templates = tmpl
	s.feedTemplate = feed
	return nil
}

func (s *Site) prepareOutputDir() error {
	out, err := filepath.Abs(s.outputDir)
	if err != nil {
		return err
	}
	for _, dir := range []string{s.rootDir, s.configDir} {
		if abs, err := filepath.Abs(dir); err == nil && abs == out {
			return fmt.Errorf("refusing to use %s as output directory", s.outputDir)
		}
	}

	if err := os.RemoveAll(s.outputDir); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(s.outputDir, post.StaticDir), 0755)
}

func (s *Site) readContent() error {
	defer measure("readContent")()

	s.posts = post.NewSet()
	files, err := findMarkdownFiles(s.rootDir)
	if err != nil {
		return err
	}

	for _, file := range files {
		if err := s.addPostFromFile(file); err != nil {
			return err
		}
	}

	s.posts.SortByDate()
	return nil
}

func (s *Site) addPostFromFile(file string) error {
	content, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	p, err := post.New(s.rootDir, file, string(content))
	switch {
	case errors.Is(err, markdown.ErrMalformedDocument):
		slog.Debug("Skipping file without frontmatter", fileAttr(file))
		return nil
	case errors.Is(err, markdown.ErrInvalidFrontmatter):
		if s.config.Strict {
			return fmt.Errorf("%s: %w", file, err)
		}
		slog.Error("Skipping file with invalid frontmatter", fileAttr(file), errAttr(err))
		return nil
	case err != nil:
		return err
	}

	if s.config.RequireTag != "" && !p.Frontmatter.HasTag(s.config.RequireTag) {
		slog.Debug("Skipping file without required tag", fileAttr(file), slog.String("tag", s.config.RequireTag))
		return nil
	}

	if err := s.posts.Add(p); err != nil {
		if s.config.Strict {
			return err
		}
		slog.Warn("Skipping post", fileAttr(file), errAttr(err))
	}
	return nil
}

func (s *Site) newPostContext(p *post.Post) *PostContext {
	tags := make([]string, 0, len(p.Frontmatter.Tags))
	for _, t := range p.Frontmatter.Tags {
		if t != s.config.RequireTag {
			tags = append(tags, t)
		}
	}

	author := p.Frontmatter.Author
	if author == "" {
		author = s.config.Author
	}

	pc := &PostContext{
		Title:            p.Title,
		Tags:             tags,
		Author:           author,
		OriginalFileName: p.Source,
		RelativeURL:      p.URL(),
		Permalink:        s.config.BaseURL + "/" + p.URL(),
		Date:             p.Frontmatter.Date.String(),
		published:        p.Frontmatter.Date.Time,
	}
	if !pc.published.IsZero() {
		pc.Year = pc.published.Year()
		pc.Month = int(pc.published.Month())
		pc.Day = pc.published.Day()
	}
	return pc
}

// renderPosts renders every post into <output>/<slug>/index.html. Posts only
// share the read-only post set, so they are rendered concurrently.
func (s *Site) renderPosts(ctx context.Context) error {
	defer measure("renderPosts")()

	var opts []markdown.Option
	if s.config.KeepHeadingLevels {
		opts = append(opts, markdown.WithKeepHeadingLevels())
	}
	renderer := markdown.NewRenderer(post.NewResolver(s.config.BaseURL, s.posts), opts...)

	posts := s.posts.Posts()
	s.pages = make([]*PostContext, len(posts))
	assets := make([][]markdown.Asset, len(posts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, p := range posts {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			pc := s.newPostContext(p)
			res, err := s.buildPost(renderer, p, pc)
			if err != nil {
				return fmt.Errorf("building %s: %w", p.Source, err)
			}
			s.pages[i] = pc
			assets[i] = res.Assets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.assets = s.assets[:0]
	for i, list := range assets {
		for _, a := range list {
			s.assets = append(s.assets, postAsset{Asset: a, post: posts[i]})
		}
	}
	return nil
}

func (s *Site) buildPost(renderer *markdown.Renderer, p *post.Post, pc *PostContext) (*markdown.Result, error) {
	res, err := renderer.Render(p.Body)
	if err != nil {
		return nil, err
	}
	for _, dest := range res.Unresolved {
		slog.Warn("Unresolved link", fileAttr(p.Source), slog.String("link", dest))
	}
	pc.Content = template.HTML(res.HTML)

	dir := filepath.Join(s.outputDir, filepath.FromSlash(p.Slug))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	fh, err := os.Create(filepath.Join(dir, "index.html"))
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	slog.Debug("Generating post", fileAttr(p.Source), slugAttr(p.Slug))
	err = s.templates.ExecuteTemplate(fh, "post.html", map[string]any{
		"Post":      pc,
		"SiteTitle": s.config.Title(),
		"BaseURL":   s.config.BaseURL,
	})
	return res, err
}

// copyAssets copies the images referenced by posts into the output directory.
// Sources are looked up relative to the site root first, then relative to the post.
func (s *Site) copyAssets() error {
	defer measure("copyAssets")()

	copied := make(map[string]string, len(s.assets))
	for _, a := range s.assets {
		if src, ok := copied[a.Target]; ok {
			if src != a.Source {
				slog.Warn("Asset name already taken, skipping", fileAttr(a.post.Source), slog.String("asset", a.Source), slog.String("target", a.Target))
			}
			continue
		}

		src, err := s.findAsset(a)
		if err != nil {
			if s.config.Strict {
				return err
			}
			slog.Warn("Error copying asset", fileAttr(a.post.Source), errAttr(err))
			continue
		}

		if err := copyFile(src, filepath.Join(s.outputDir, filepath.FromSlash(a.Target))); err != nil {
			return fmt.Errorf("copying %s: %w", src, err)
		}
		copied[a.Target] = a.Source
	}
	return nil
}

func (s *Site) findAsset(a postAsset) (string, error) {
	candidates := []string{
		filepath.Join(s.rootDir, filepath.FromSlash(a.Source)),
		filepath.Join(filepath.Dir(a.post.Path), filepath.FromSlash(a.Source)),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrAssetNotFound, a.Source)
}

func (s *Site) createIndex() error {
	tmpl := s.templates.Lookup("index.html")
	if tmpl == nil {
		slog.Warn("No index.html template, skipping index")
		return nil
	}

	fh, err := os.Create(filepath.Join(s.outputDir, "index.html"))
	if err != nil {
		return err
	}
	defer fh.Close()

	return tmpl.Execute(fh, map[string]any{
		"Posts":     s.pages,
		"SiteTitle": s.config.Title(),
		"BaseURL":   s.config.BaseURL,
	})
}

func (s *Site) runPostBuildCommand(ctx context.Context) error {
	if s.config.PostBuildCommand == "" {
		return nil
	}

	command := strings.ReplaceAll(s.config.PostBuildCommand, "{{target}}", s.outputDir)
	slog.Info("Running post-build command", slog.String("command", command))

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Dir = s.configDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("post-build command: %w", err)
	}
	return nil
}
