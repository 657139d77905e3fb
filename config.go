package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	configDirName     = ".campfire"
	defaultConfigFile = configDirName + "/campfire.yaml"
)

type Config struct {
	Name    string `yaml:"name" toml:"name"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Author  string `yaml:"author" toml:"author"`

	// RequireTag limits publishing to posts carrying this tag.
	RequireTag string `yaml:"require_tag" toml:"require_tag"`

	// LegacyRequireTag is the key spelling of older campfire configs.
	LegacyRequireTag string `yaml:"require-tag" toml:"require-tag"`

	FeedPath         string `yaml:"feed_path" toml:"feed_path"`
	PostBuildCommand string `yaml:"post_build_command" toml:"post_build_command"`

	// Strict turns per-file problems (invalid frontmatter, duplicate slugs,
	// missing assets) into build failures.
	Strict            bool `yaml:"strict" toml:"strict"`
	KeepHeadingLevels bool `yaml:"keep_heading_levels" toml:"keep_heading_levels"`
	Workers           int  `yaml:"workers" toml:"workers"`

	Paths Paths `yaml:"paths" toml:"paths"`
}

// Paths are relative to the .campfire directory unless absolute.
type Paths struct {
	Templates string `yaml:"templates" toml:"templates"`
	Target    string `yaml:"target" toml:"target"`
	Static    string `yaml:"static" toml:"static"`
}

func parseConfig(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
		for _, key := range md.Undecoded() {
			slog.Warn("Unknown configuration key", fileAttr(file), slog.String("key", key.String()))
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
	}

	cfg.setDefaults()
	return cfg, nil
}

func (c *Config) setDefaults() {
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.RequireTag == "" {
		c.RequireTag = c.LegacyRequireTag
	}
	if c.FeedPath == "" {
		c.FeedPath = "feed.xml"
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Paths.Templates == "" {
		c.Paths.Templates = "templates"
	}
	if c.Paths.Target == "" {
		c.Paths.Target = "public"
	}
	if c.Paths.Static == "" {
		c.Paths.Static = "static"
	}
}

// Title returns the site title shown in templates and the feed.
func (c *Config) Title() string {
	return c.Name
}
