package main

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"time"
)

const (
	feedSize     = 10
	feedTemplate = "feed.xml"
)

func writeXML(file string, v any) error {
	wr, err := os.Create(file)
	if err != nil {
		return err
	}
	defer wr.Close()

	if _, err := wr.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(wr)
	enc.Indent("", "  ")
	return enc.Encode(v)
}

func (s *Site) createSitemap() error {
	defer measure("createSitemap")()

	type URL struct {
		XMLName xml.Name `xml:"url"`
		Loc     string   `xml:"loc"`
		LastMod string   `xml:"lastmod,omitempty"`
	}

	type Envelope struct {
		XMLName xml.Name `xml:"urlset"`
		XMLNS   string   `xml:"xmlns,attr"`
		URLs    []URL    `xml:""`
	}

	urls := make([]URL, 0, len(s.pages)+1)
	urls = append(urls, URL{Loc: s.config.BaseURL + "/"})
	for _, p := range s.pages {
		u := URL{Loc: p.Permalink}
		if !p.published.IsZero() {
			u.LastMod = p.published.Format(time.DateOnly)
		}
		urls = append(urls, u)
	}

	return writeXML(filepath.Join(s.outputDir, "sitemap.xml"), Envelope{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	})
}

// createRSSFeed writes the most recent posts to an RSS 2.0 feed at the configured feed path.
// A feed.xml template in the templates directory replaces the built-in feed.
func (s *Site) createRSSFeed() error {
	defer measure("createRSSFeed")()

	file := filepath.Join(s.outputDir, filepath.FromSlash(s.config.FeedPath))
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return err
	}
	if s.feedTemplate != nil {
		return s.renderFeedTemplate(file)
	}

	type Item struct {
		Title       string `xml:"title"`
		Link        string `xml:"link"`
		Description string `xml:"description"`
		Author      string `xml:"author,omitempty"`
		PubDate     string `xml:"pubDate,omitempty"`
		GUID        string `xml:"guid"`
	}

	type Channel struct {
		Title         string `xml:"title"`
		Link          string `xml:"link"`
		Description   string `xml:"description"`
		Generator     string `xml:"generator"`
		LastBuildDate string `xml:"lastBuildDate"`
		Items         []Item `xml:"item"`
	}

	type Feed struct {
		XMLName xml.Name `xml:"rss"`
		Version string   `xml:"version,attr"`
		Atom    string   `xml:"xmlns:atom,attr"`
		Channel Channel  `xml:"channel"`
	}

	n := min(len(s.pages), feedSize)
	items := make([]Item, 0, n)
	for _, p := range s.pages[:n] {
		item := Item{
			Title:       p.Title,
			Link:        p.Permalink,
			Description: string(p.Content),
			Author:      p.Author,
			PubDate:     p.PubDate(),
			GUID:        p.Permalink,
		}
		items = append(items, item)
	}

	feed := Feed{
		Version: "2.0",
		Atom:    "http://www.w3.org/2005/Atom",
		Channel: Channel{
			Title:         s.config.Title(),
			Link:          s.config.BaseURL + "/",
			Description:   s.config.Title(),
			Generator:     "Campfire",
			LastBuildDate: time.Now().Format(time.RFC1123Z),
			Items:         items,
		},
	}

	return writeXML(file, feed)
}

func (s *Site) renderFeedTemplate(file string) error {
	wr, err := os.Create(file)
	if err != nil {
		return err
	}
	defer wr.Close()

	return s.feedTemplate.Execute(wr, map[string]any{
		"Posts":     s.pages,
		"SiteTitle": s.config.Title(),
		"BaseURL":   s.config.BaseURL,
		"BuildDate": time.Now().Format(time.RFC1123Z),
	})
}
