package markdown

import (
	"regexp"
	"strconv"
	"strings"
)

var footnoteDefinitionPattern = regexp.MustCompile(`^\[\^([^\]]+)\]:[ \t]*(.*)$`)

// Footnote is a single footnote definition of a post body.
type Footnote struct {
	Label string
	Text  string
}

// Definition returns the footnote as a reference-style definition line.
func (f Footnote) Definition() string {
	return "[^" + f.Label + "]: " + f.Text
}

// Preprocessed is a post body with all footnote definitions moved out of the
// prose and every inline footnote rewritten to a reference.
type Preprocessed struct {
	Prose     string
	Footnotes []Footnote

	// Malformed holds lines that start with "[^" but are not definitions.
	// They are removed from the prose like any other definition line.
	Malformed []string
}

// Preprocess partitions body into prose and footnote definitions and turns
// every inline footnote `^[text]` into a `[^fn-<k>]` reference with a
// matching synthetic definition. k counts every definition line and inline
// footnote seen so far in the body.
func Preprocess(body string) Preprocessed {
	var (
		out        Preprocessed
		prose      = make([]string, 0, strings.Count(body, "\n")+1)
		registered int
	)

	for _, line := range lines(body) {
		if strings.HasPrefix(line, "[^") {
			registered++
			if fn, ok := parseDefinition(line); ok {
				out.Footnotes = append(out.Footnotes, fn)
			} else {
				out.Malformed = append(out.Malformed, line)
			}
			continue
		}

		line = replaceInline(line, func(text string) string {
			label := "fn-" + strconv.Itoa(registered)
			registered++
			out.Footnotes = append(out.Footnotes, Footnote{Label: label, Text: text})
			return "[^" + label + "]"
		})
		prose = append(prose, line)
	}

	out.Prose = strings.Join(prose, "\n")
	return out
}

// replaceInline replaces every `^[text]` in line with ref(text). Brackets
// inside text have to be balanced, so a footnote may contain a link.
func replaceInline(line string, ref func(text string) string) string {
	if !strings.Contains(line, "^[") {
		return line
	}

	var b strings.Builder
	for {
		start := strings.Index(line, "^[")
		if start < 0 {
			break
		}
		end := closingBracket(line, start+1)
		if end < 0 {
			// unclosed, keep it and look for the next one
			b.WriteString(line[:start+2])
			line = line[start+2:]
			continue
		}
		b.WriteString(line[:start])
		b.WriteString(ref(line[start+2 : end]))
		line = line[end+1:]
	}
	b.WriteString(line)
	return b.String()
}

func closingBracket(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseDefinition(line string) (Footnote, bool) {
	m := footnoteDefinitionPattern.FindStringSubmatch(line)
	if m == nil {
		return Footnote{}, false
	}
	return Footnote{Label: m[1], Text: strings.TrimSpace(m[2])}, true
}

// lines splits s on LF and drops a trailing CR from each line.
func lines(s string) []string {
	out := strings.Split(s, "\n")
	for i, l := range out {
		out[i] = strings.TrimSuffix(l, "\r")
	}
	return out
}
