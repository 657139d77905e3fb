package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// ErrUnresolvedLink is returned by a Resolver for a relative link that does
// not point at any known post.
var ErrUnresolvedLink = errors.New("unresolved link")

// Asset is a file referenced by a post that has to be copied into the output.
type Asset struct {
	// Source is relative to the site root.
	Source string
	// Target is relative to the output root.
	Target string
}

// Resolver rewrites link and image destinations found in a post.
type Resolver interface {
	// ResolveLink returns the site URL for dest. Absolute destinations are
	// returned unchanged.
	ResolveLink(dest string) (string, error)

	// ResolveImage returns the site URL for dest and the asset that has to be
	// copied for it, or a nil asset for absolute destinations.
	ResolveImage(dest string) (string, *Asset)
}

// Result is the rendered body of one post.
type Result struct {
	HTML       string
	Assets     []Asset
	Unresolved []string
	References int
}

// Renderer turns post bodies into HTML. It is safe for concurrent use.
type Renderer struct {
	md       goldmark.Markdown
	resolver Resolver
}

// Option configures a Renderer.
type Option func(*options)

type options struct {
	headingShift int
}

// WithKeepHeadingLevels disables heading demotion.
func WithKeepHeadingLevels() Option {
	return func(o *options) { o.headingShift = 0 }
}

// NewRenderer returns a Renderer that resolves links and images through r.
// Headings are demoted by one level unless WithKeepHeadingLevels is given.
func NewRenderer(r Resolver, opts ...Option) *Renderer {
	o := options{headingShift: 1}
	for _, opt := range opts {
		opt(&o)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			extension.Strikethrough,
			extension.Typographer,
		),
		goldmark.WithParserOptions(
			parser.WithInlineParsers(util.Prioritized(footnoteRefParser{}, 101)),
		),
		goldmark.WithRendererOptions(
			gmhtml.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(&nodeRenderer{headingShift: o.headingShift}, 100)),
		),
	)

	return &Renderer{md: md, resolver: r}
}

// Render preprocesses footnotes in body and renders it.
func (r *Renderer) Render(body string) (*Result, error) {
	pre := Preprocess(body)
	return r.RenderParts(pre.Prose, pre.Footnotes)
}

// RenderParts renders prose followed by the footnote list. The footnote list
// is omitted when there are no footnotes.
func (r *Renderer) RenderParts(prose string, footnotes []Footnote) (*Result, error) {
	acc := &rewrite{resolver: r.resolver}

	var buf bytes.Buffer
	buf.Grow(len(prose) * 2)
	if err := r.convert(&buf, []byte(prose), acc); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}

	if len(footnotes) > 0 {
		acc.footnotes = footnotes
		if err := r.convert(&buf, footnoteList(footnotes), acc); err != nil {
			return nil, fmt.Errorf("rendering footnotes: %w", err)
		}
	}

	return &Result{
		HTML:       buf.String(),
		Assets:     acc.assets,
		Unresolved: acc.unresolved,
		References: acc.references,
	}, nil
}

func (r *Renderer) convert(w io.Writer, source []byte, acc *rewrite) error {
	doc := r.md.Parser().Parse(text.NewReader(source))
	if err := gast.Walk(doc, acc.visit); err != nil {
		return err
	}
	return r.md.Renderer().Render(w, source, doc)
}

// footnoteList builds the Markdown source of the footnote section: a rule
// followed by one ordered list item per footnote with a back-link.
func footnoteList(footnotes []Footnote) []byte {
	var b bytes.Buffer
	b.WriteString("---\n")
	for _, fn := range footnotes {
		fmt.Fprintf(&b, "1. %s <a class=\"fn-back\" href=\"#%s-back\">↩</a>\n", fn.Text, html.EscapeString(fn.Label))
	}
	return b.Bytes()
}

// rewrite is the state carried through the AST walks of one post.
type rewrite struct {
	resolver Resolver

	references int
	assets     []Asset
	unresolved []string

	// set for the footnote list pass
	footnotes []Footnote
	items     int
}

func (a *rewrite) visit(node gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering {
		return gast.WalkContinue, nil
	}

	switch n := node.(type) {
	case *FootnoteRef:
		a.references++
		n.Index = a.references
	case *gast.Link:
		n.Destination = a.link(n.Destination)
	case *gast.Image:
		n.Destination = a.image(n.Destination)
	case *gast.ListItem:
		if a.items < len(a.footnotes) && n.Parent() != nil && n.Parent().Parent() != nil && n.Parent().Parent().Kind() == gast.KindDocument {
			n.SetAttributeString("id", []byte(a.footnotes[a.items].Label))
			a.items++
		}
	}
	return gast.WalkContinue, nil
}

func (a *rewrite) link(dest []byte) []byte {
	if a.resolver == nil {
		return dest
	}
	url, err := a.resolver.ResolveLink(string(dest))
	if err != nil {
		a.unresolved = append(a.unresolved, string(dest))
		return dest
	}
	return []byte(url)
}

func (a *rewrite) image(dest []byte) []byte {
	if a.resolver == nil {
		return dest
	}
	url, asset := a.resolver.ResolveImage(string(dest))
	if asset != nil {
		a.assets = append(a.assets, *asset)
	}
	return []byte(url)
}

// KindFootnoteRef is the NodeKind of FootnoteRef.
var KindFootnoteRef = gast.NewNodeKind("FootnoteRef")

// FootnoteRef is a `[^label]` reference in prose. Index is its 1-based
// position among all references of the post and is set while rendering.
type FootnoteRef struct {
	gast.BaseInline
	Label []byte
	Index int
}

// Kind implements ast.Node.
func (n *FootnoteRef) Kind() gast.NodeKind {
	return KindFootnoteRef
}

// Dump implements ast.Node.
func (n *FootnoteRef) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{
		"Label": string(n.Label),
		"Index": strconv.Itoa(n.Index),
	}, nil)
}

// footnoteRefParser recognises references whether or not the matching
// definition is part of the same source.
type footnoteRefParser struct{}

func (footnoteRefParser) Trigger() []byte {
	return []byte{'['}
}

func (footnoteRefParser) Parse(_ gast.Node, block text.Reader, _ parser.Context) gast.Node {
	line, _ := block.PeekLine()
	if len(line) < 4 || line[1] != '^' {
		return nil
	}
	end := bytes.IndexByte(line, ']')
	if end < 3 {
		return nil
	}
	label := line[2:end]
	if bytes.ContainsAny(label, "[^") {
		return nil
	}
	block.Advance(end + 1)
	return &FootnoteRef{Label: append([]byte(nil), label...)}
}

type nodeRenderer struct {
	headingShift int
}

func (r *nodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindFootnoteRef, r.renderFootnoteRef)
	reg.Register(gast.KindHeading, r.renderHeading)
}

func (r *nodeRenderer) renderFootnoteRef(w util.BufWriter, _ []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering {
		return gast.WalkContinue, nil
	}
	n := node.(*FootnoteRef)
	label := util.EscapeHTML(n.Label)
	_, _ = w.WriteString(`<sup class="fn"><a id="`)
	_, _ = w.Write(label)
	_, _ = w.WriteString(`-back" href="#`)
	_, _ = w.Write(label)
	_, _ = w.WriteString(`">[`)
	_, _ = w.WriteString(strconv.Itoa(n.Index))
	_, _ = w.WriteString(`]</a></sup>`)
	return gast.WalkContinue, nil
}

func (r *nodeRenderer) renderHeading(w util.BufWriter, _ []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	n := node.(*gast.Heading)
	level := strconv.Itoa(n.Level + r.headingShift)
	if entering {
		_, _ = w.WriteString("<h")
		_, _ = w.WriteString(level)
		if n.Attributes() != nil {
			gmhtml.RenderAttributes(w, node, gmhtml.HeadingAttributeFilter)
		}
		_ = w.WriteByte('>')
	} else {
		_, _ = w.WriteString("</h")
		_, _ = w.WriteString(level)
		_, _ = w.WriteString(">\n")
	}
	return gast.WalkContinue, nil
}
