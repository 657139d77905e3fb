package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~dvko/campfire/internal/markdown"
	"git.sr.ht/~dvko/campfire/internal/post"
)

func buildExampleSite(t *testing.T) string {
	t.Helper()

	cfg, err := parseConfig("example/.campfire/campfire.yaml")
	require.NoError(t, err)
	cfg.Paths.Target = t.TempDir()

	site := newSite("example", cfg)
	require.NoError(t, site.Build(context.Background()))
	return cfg.Paths.Target
}

func TestExampleSite(t *testing.T) {
	out := buildExampleSite(t)

	tests := []struct {
		file     string
		contains []string
	}{
		{"index.html", []string{
			"<title>My site</title>",
			`<a href="http://localhost:8080/blog/hello-world/">Hello, world!</a>`,
		}},
		{"about-me/index.html", []string{
			"<title>About me - My site</title>",
			"<li>Dolor</li>",
		}},
		{"blog/hello-world/index.html", []string{
			"<title>Hello, world! - My site</title>",
			`<time datetime="2024-03-01">2024-03-01</time>`,
			`<p class="tags">intro</p>`,
			`This is a blog post.<sup class="fn"><a id="fn-0-back" href="#fn-0">[1]</a></sup>`,
			`<li id="fn-0">Written on a <a href="http://localhost:8080/about-me/">rainy day</a>.`,
			`<a href="http://localhost:8080/about-me/">about me</a>`,
			`<a href="Missing.md">missing note</a>`,
			`<img src="http://localhost:8080/static/diagram.svg" alt="Diagram">`,
			"<h2>A heading</h2>",
		}},
		{"blog/second-post/index.html", []string{
			`<sup class="fn"><a id="note-back" href="#note">[1]</a></sup>`,
			`<li id="note">The footnote text.`,
		}},
		{"static/diagram.svg", []string{"<svg"}},
		{"style.css", []string{"font-family: serif"}},
		{"feed.xml", []string{
			"<title>My site</title>",
			"<link>http://localhost:8080/blog/second-post/</link>",
			"<author>Someone Else</author>",
			"<author>Jane Doe</author>",
		}},
		{"sitemap.xml", []string{
			"<loc>http://localhost:8080/</loc>",
			"<loc>http://localhost:8080/about-me/</loc>",
			"<lastmod>2024-04-15</lastmod>",
		}},
	}

	for _, tc := range tests {
		content, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(tc.file)))
		require.NoError(t, err, tc.file)

		for _, e := range tc.contains {
			assert.Contains(t, string(content), e, tc.file)
		}
	}

	for _, file := range []string{"draft/index.html", "notes/index.html", "ignored/index.html", "templates/ignored/index.html"} {
		_, err := os.Stat(filepath.Join(out, filepath.FromSlash(file)))
		assert.True(t, errors.Is(err, os.ErrNotExist), file)
	}
}

func TestExampleSite_IndexOrder(t *testing.T) {
	out := buildExampleSite(t)

	content, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)

	index := string(content)
	second := strings.Index(index, "Second post")
	hello := strings.Index(index, "Hello, world!")
	about := strings.Index(index, "About me")
	require.True(t, second > 0 && hello > 0 && about > 0)
	assert.Less(t, second, hello)
	assert.Less(t, hello, about)
}

func TestExampleSite_Rebuild(t *testing.T) {
	out := buildExampleSite(t)
	stale := filepath.Join(out, "stale.html")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	cfg, err := parseConfig("example/.campfire/campfire.yaml")
	require.NoError(t, err)
	cfg.Paths.Target = out
	require.NoError(t, newSite("example", cfg).Build(context.Background()))

	_, err = os.Stat(stale)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

// newTestSite creates a site root with minimal templates and the given notes.
func newTestSite(t *testing.T, files map[string]string) (string, *Config) {
	t.Helper()

	root := t.TempDir()
	files[".campfire/templates/post.html"] = "{{ .Post.Title }}|{{ .Post.Content }}"
	for name, content := range files {
		file := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(file), 0755))
		require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	}

	cfg := &Config{Name: "Test", BaseURL: "https://example.com"}
	cfg.setDefaults()
	return root, cfg
}

func TestBuild_InvalidFrontmatter(t *testing.T) {
	root, cfg := newTestSite(t, map[string]string{
		"good.md":   "---\ntitle: Good\n---\nfine\n",
		"broken.md": "---\ntitle: [oops\n---\nbody\n",
	})

	site := newSite(root, cfg)
	require.NoError(t, site.Build(context.Background()))
	assert.FileExists(t, filepath.Join(site.outputDir, "good", "index.html"))
	assert.Len(t, site.pages, 1)

	cfg.Strict = true
	err := newSite(root, cfg).Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, markdown.ErrInvalidFrontmatter))
}

func TestBuild_DuplicateSlug(t *testing.T) {
	root, cfg := newTestSite(t, map[string]string{
		"a.md": "---\ntitle: Same\n---\nfirst\n",
		"b.md": "---\ntitle: Same\n---\nsecond\n",
	})

	site := newSite(root, cfg)
	require.NoError(t, site.Build(context.Background()))
	content, err := os.ReadFile(filepath.Join(site.outputDir, "same", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "first")

	cfg.Strict = true
	err = newSite(root, cfg).Build(context.Background())
	assert.True(t, errors.Is(err, post.ErrDuplicateSlug))
}

func TestBuild_Assets(t *testing.T) {
	root, cfg := newTestSite(t, map[string]string{
		"notes/Post.md":   "---\ntitle: Post\n---\n![a](img/a.png) ![b](b.png) ![gone](gone.png)\n",
		"notes/img/a.png": "a",
		"notes/b.png":     "b",
	})
	// root-relative source
	require.NoError(t, os.MkdirAll(filepath.Join(root, "img"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "img", "a.png"), []byte("root a"), 0644))

	site := newSite(root, cfg)
	require.NoError(t, site.Build(context.Background()))

	a, err := os.ReadFile(filepath.Join(site.outputDir, "static", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "root a", string(a))

	b, err := os.ReadFile(filepath.Join(site.outputDir, "static", "b.png"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))

	assert.NoFileExists(t, filepath.Join(site.outputDir, "static", "gone.png"))

	cfg.Strict = true
	err = newSite(root, cfg).Build(context.Background())
	assert.True(t, errors.Is(err, ErrAssetNotFound))
}

func TestBuild_MissingTemplate(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".campfire", "templates"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".campfire", "templates", "index.html"), []byte("x"), 0644))

	cfg := &Config{}
	cfg.setDefaults()
	err := newSite(root, cfg).Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "post.html")
}

func TestBuild_RefusesRootAsOutput(t *testing.T) {
	root, cfg := newTestSite(t, map[string]string{"a.md": "---\n---\n"})
	cfg.Paths.Target = root

	err := newSite(root, cfg).Build(context.Background())
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(root, "a.md"))
}

func TestBuild_FeedTemplate(t *testing.T) {
	root, cfg := newTestSite(t, map[string]string{
		"a.md": "---\ntitle: A & B\ndate: 2024-01-02\n---\nHi\n",
		".campfire/templates/feed.xml": `<rss><title>{{ .SiteTitle }}</title>{{ range .Posts }}` +
			`<item>{{ html .Title }}|{{ .Permalink }}|{{ .PubDate }}|{{ html .Content }}</item>{{ end }}</rss>`,
	})
	cfg.FeedPath = "feeds/all.xml"

	site := newSite(root, cfg)
	require.NoError(t, site.Build(context.Background()))

	content, err := os.ReadFile(filepath.Join(site.outputDir, "feeds", "all.xml"))
	require.NoError(t, err)
	feed := string(content)
	assert.Contains(t, feed, "<rss><title>Test</title>")
	assert.Contains(t, feed, "<item>A &amp; B|https://example.com/a-b/|Tue, 02 Jan 2024 00:00:00 +0000|&lt;p&gt;Hi&lt;/p&gt;")
	assert.NotContains(t, feed, "<generator>")
}

func TestBuild_BuiltinFeed(t *testing.T) {
	root, cfg := newTestSite(t, map[string]string{
		"a.md": "---\ntitle: A\ndate: 2024-01-02\n---\nHi\n",
	})

	site := newSite(root, cfg)
	require.NoError(t, site.Build(context.Background()))

	content, err := os.ReadFile(filepath.Join(site.outputDir, "feed.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "<generator>Campfire</generator>")
	assert.Contains(t, string(content), "<pubDate>Tue, 02 Jan 2024 00:00:00 +0000</pubDate>")
}

func TestBuild_NestedTemplates(t *testing.T) {
	root, cfg := newTestSite(t, map[string]string{
		"a.md": "---\ntitle: A\n---\nHi\n",
		".campfire/templates/partials/footer.html": `{{ define "footer" }}<footer>{{ . }}</footer>{{ end }}`,
	})
	postTemplate := filepath.Join(root, ".campfire", "templates", "post.html")
	require.NoError(t, os.WriteFile(postTemplate, []byte(`{{ .Post.Title }}{{ template "footer" .SiteTitle }}`), 0644))

	site := newSite(root, cfg)
	require.NoError(t, site.Build(context.Background()))
	assert.NotNil(t, site.templates.Lookup("partials/footer.html"))

	content, err := os.ReadFile(filepath.Join(site.outputDir, "a", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "A<footer>Test</footer>", string(content))
}

func TestBuild_PostBuildCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	root, cfg := newTestSite(t, map[string]string{"a.md": "---\ntitle: A\n---\n"})
	cfg.PostBuildCommand = "echo {{target}} > built.txt"

	site := newSite(root, cfg)
	require.NoError(t, site.Build(context.Background()))

	content, err := os.ReadFile(filepath.Join(root, ".campfire", "built.txt"))
	require.NoError(t, err)
	assert.Equal(t, site.outputDir, strings.TrimSpace(string(content)))

	cfg.PostBuildCommand = "exit 3"
	assert.Error(t, newSite(root, cfg).Build(context.Background()))
}

func TestNewCmd(t *testing.T) {
	root := t.TempDir()
	cli := &CLI{Root: root}
	require.NoError(t, (&NewCmd{}).Run(cli))

	assert.FileExists(t, filepath.Join(root, ".campfire", "campfire.yaml"))
	assert.FileExists(t, filepath.Join(root, ".campfire", "templates", "post.html"))
	assert.FileExists(t, filepath.Join(root, "hello-world.md"))

	site, err := cli.loadSite()
	require.NoError(t, err)
	require.NoError(t, site.Build(context.Background()))

	content, err := os.ReadFile(filepath.Join(site.outputDir, "hello-world", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `<li id="fn-0">Footnotes can be written inline.`)
	assert.Contains(t, string(content), `<a href="http://localhost:8080/hello-world/">this one</a>`)
}
