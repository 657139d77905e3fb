package markdown

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMalformedDocument is returned by Split when the content does not start
// with a `---` delimited frontmatter block.
var ErrMalformedDocument = errors.New("document does not start with a frontmatter block")

// ErrInvalidFrontmatter is returned by Decode when the frontmatter block is
// not valid YAML or has fields of the wrong shape.
var ErrInvalidFrontmatter = errors.New("invalid frontmatter")

// DateLayout is the calendar date format accepted in frontmatter.
const DateLayout = "2006-01-02"

// Both delimiters have to sit on their own line; everything after the closing one is body.
var documentPattern = regexp.MustCompile(`(?s)^\s*---[ \t]*\r?\n(?:(.*?)\r?\n)??---[ \t]*(?:\r?\n|$)(.*)$`)

// Split separates the frontmatter block from the Markdown body.
// The returned frontmatter excludes both delimiter lines.
func Split(content string) (frontmatter string, body string, err error) {
	m := documentPattern.FindStringSubmatch(content)
	if m == nil {
		return "", "", ErrMalformedDocument
	}
	return m[1], m[2], nil
}

// Join reassembles a document from a frontmatter block and a body.
func Join(frontmatter string, body string) string {
	var b strings.Builder
	b.Grow(len(frontmatter) + len(body) + 8)
	b.WriteString("---\n")
	if frontmatter != "" {
		b.WriteString(frontmatter)
		b.WriteString("\n")
	}
	b.WriteString("---\n")
	b.WriteString(body)
	return b.String()
}

// Frontmatter holds the metadata of a single post.
// Empty strings and a zero Date mean the field was absent.
type Frontmatter struct {
	Title  string `yaml:"title"`
	Date   Date   `yaml:"date"`
	Tags   Tags   `yaml:"tags"`
	Author string `yaml:"author"`
}

// Decode parses a raw frontmatter block.
func Decode(frontmatter string) (Frontmatter, error) {
	var fm Frontmatter
	if strings.TrimSpace(frontmatter) == "" {
		return fm, nil
	}
	if err := yaml.Unmarshal([]byte(frontmatter), &fm); err != nil {
		return Frontmatter{}, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
	}
	return fm, nil
}

// HasTag reports whether the frontmatter carries the given tag.
func (fm Frontmatter) HasTag(tag string) bool {
	for _, t := range fm.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Date is a calendar date. Values that do not parse as YYYY-MM-DD decode to
// the zero Date instead of failing, so a typo in a date never drops a post.
type Date struct {
	time.Time
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	*d = Date{}
	if value.Kind != yaml.ScalarNode {
		return nil
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(value.Value))
	if err != nil {
		return nil
	}
	d.Time = t
	return nil
}

// String returns the date as YYYY-MM-DD, or an empty string for no date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Tags is an ordered list of tags. It decodes from either a comma separated
// string or a YAML sequence of strings.
type Tags []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Tags) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*t = nil
			return nil
		}
		*t = splitTags(value.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*t = list
		return nil
	default:
		return fmt.Errorf("line %d: tags must be a string or a list of strings", value.Line)
	}
}

func splitTags(s string) Tags {
	var tags Tags
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}
