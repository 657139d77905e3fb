package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

//go:embed scaffold
var scaffold embed.FS

type CLI struct {
	Root    string `short:"r" help:"Directory to use as root of the site" default:"." env:"CAMPFIRE_ROOT" type:"path"`
	Config  string `short:"c" help:"Path to configuration file (default: <root>/.campfire/campfire.yaml)" env:"CAMPFIRE_CONFIG"`
	BaseURL string `name:"base-url" help:"Override the base URL from the configuration file" env:"CAMPFIRE_BASE_URL"`
	Verbose bool   `short:"v" help:"Enable debug logging" env:"CAMPFIRE_VERBOSE"`

	Build BuildCmd `cmd:"" default:"1" help:"Deletes the output directory if there is one and builds the site"`
	Serve ServeCmd `cmd:"" help:"Builds the site and serves the output directory over HTTP"`
	New   NewCmd   `cmd:"" help:"Creates a new site structure in the root directory"`
}

func (c *CLI) AfterApply() error {
	slog.SetDefault(newLogger(os.Stderr, c.Verbose))
	return nil
}

func (c *CLI) configFile() string {
	if c.Config != "" {
		return c.Config
	}

	file := filepath.Join(c.Root, filepath.FromSlash(defaultConfigFile))
	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		alt := strings.TrimSuffix(file, ".yaml") + ".toml"
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}
	return file
}

func (c *CLI) loadSite() (*Site, error) {
	file := c.configFile()
	cfg, err := parseConfig(file)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file at %s: %w", file, err)
	}
	if c.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	}
	return newSite(c.Root, cfg), nil
}

type BuildCmd struct{}

func (b *BuildCmd) Run(ctx context.Context, cli *CLI) error {
	site, err := cli.loadSite()
	if err != nil {
		return err
	}
	return site.Build(ctx)
}

type ServeCmd struct {
	Addr  string `help:"Address to listen on" default:"localhost:8080" env:"CAMPFIRE_ADDR"`
	Watch bool   `short:"w" help:"Rebuild the site when files change"`
}

func (s *ServeCmd) Run(ctx context.Context, cli *CLI) error {
	site, err := cli.loadSite()
	if err != nil {
		return err
	}
	if cli.BaseURL == "" {
		site.config.BaseURL = "http://" + s.Addr
	}
	if err := site.Build(ctx); err != nil {
		return err
	}

	if s.Watch {
		go func() {
			err := watchDirs(ctx, []string{site.rootDir}, site.outputDir, func() {
				slog.Info("Change detected, rebuilding site")
				if err := site.Build(ctx); err != nil {
					slog.Error("Error rebuilding site", errAttr(err))
				}
			})
			if err != nil {
				slog.Error("Error watching files", errAttr(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           http.FileServer(http.Dir(site.outputDir)),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening on http://" + s.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type NewCmd struct {
	Force bool `help:"Overwrite existing files"`
}

// Run copies the embedded scaffold into the root directory. Files below
// scaffold/config end up in the .campfire directory.
func (n *NewCmd) Run(cli *CLI) error {
	return fs.WalkDir(scaffold, "scaffold", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		rel := strings.TrimPrefix(path, "scaffold/")
		if after, ok := strings.CutPrefix(rel, "config/"); ok {
			rel = configDirName + "/" + after
		} else {
			rel = strings.TrimPrefix(rel, "content/")
		}
		dest := filepath.Join(cli.Root, filepath.FromSlash(rel))

		if _, err := os.Stat(dest); err == nil && !n.Force {
			slog.Warn("File exists, not overwriting", fileAttr(dest))
			return nil
		}

		data, err := scaffold.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		slog.Info("Creating file", fileAttr(dest))
		return os.WriteFile(dest, data, 0644)
	})
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error reading .env file: %s\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("campfire"),
		kong.Description("Campfire - turns a folder of Markdown notes into a static website"),
		kong.UsageOnError(),
		kong.Bind(&cli),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	if err := kctx.Run(); err != nil {
		slog.Error("Error running campfire", errAttr(err))
		stop()
		os.Exit(1)
	}
}
