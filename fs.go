package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = time.Second

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// findMarkdownFiles returns all .md files below root in lexical order.
// Files and directories starting with a dot or underscore are skipped.
func findMarkdownFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// watchDirs calls cb whenever something changes below one of dirs, until ctx is done.
// Events for paths below skip are ignored.
func watchDirs(ctx context.Context, dirs []string, skip string, cb func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	ignored := func(path string) bool {
		return skip != "" && (path == skip || strings.HasPrefix(path, skip+string(filepath.Separator)))
	}

	for _, p := range dirs {
		if err := filepath.WalkDir(p, func(f string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if ignored(f) {
				return filepath.SkipDir
			}
			return watcher.Add(f)
		}); err != nil {
			return fmt.Errorf("adding %s to watcher: %w", p, err)
		}
	}

	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			slog.Debug("File changed", fileAttr(event.Name), slog.String("op", event.Op.String()))
			timer = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", errAttr(err))
		case <-timer:
			timer = nil
			cb()
		}
	}
}

func copyFile(src string, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	fh, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer fh.Close()

	_, err = io.Copy(fh, in)
	return err
}

func copyDirRecursively(src string, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		outpath := filepath.Join(dst, rel)

		if d.IsDir() {
			if err := os.MkdirAll(outpath, 0755); err != nil && !errors.Is(err, os.ErrExist) {
				return err
			}
			return nil
		}
		return copyFile(path, outpath)
	})
}
