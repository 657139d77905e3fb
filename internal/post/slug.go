package post

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters that do not decompose into an ASCII base letter.
var transliterations = strings.NewReplacer(
	"'", "", "’", "", "‘", "",
	"ß", "ss", "æ", "ae", "œ", "oe", "ø", "o", "đ", "d", "ł", "l", "þ", "th", "ð", "d",
)

// Slugify lower-cases s, strips apostrophes, transliterates accented letters
// to ASCII and collapses every other run of characters to a single hyphen.
func Slugify(s string) string {
	s = transliterations.Replace(strings.ToLower(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	hyphen := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if b.Len() > 0 && !hyphen {
			b.WriteByte('-')
			hyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Slug returns the URL path of the post at file: the directories between
// root and file, each slugified, followed by the slugified title.
func Slug(root string, file string, title string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", err
	}

	dir := filepath.ToSlash(filepath.Dir(rel))
	segments := make([]string, 0, strings.Count(dir, "/")+2)
	if dir != "." {
		for _, part := range strings.Split(dir, "/") {
			if s := Slugify(part); s != "" {
				segments = append(segments, s)
			}
		}
	}

	name := Slugify(title)
	if name == "" {
		name = Slugify(strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)))
	}
	if name == "" {
		name = "post"
	}
	return strings.Join(append(segments, name), "/"), nil
}
