package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kalambet/keydocs/internal/ingest"
)

var watchableExts = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".pdf":      true,
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory and re-index documents when they change",
	Long: `Watch a directory of .md, .txt and .pdf files and re-index each file
when it changes. Every file becomes one library named by its path relative
to <dir>; unchanged files are skipped by content hash.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("provider", "", "provider id the documents belong to")
	watchCmd.Flags().String("tags", "", "comma-separated tags for every indexed library")
	watchCmd.Flags().Duration("debounce", 500*time.Millisecond, "debounce window for batching changes")
	watchCmd.Flags().Bool("initial", true, "index every existing file before watching")
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	provider, _ := cmd.Flags().GetString("provider")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	initial, _ := cmd.Flags().GetBool("initial")
	if provider == "" {
		return fmt.Errorf("--provider is required")
	}

	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	idx := &dirIndexer{
		client:   client,
		root:     root,
		provider: provider,
		tags:     splitList(mustString(cmd, "tags")),
		out:      cmd.OutOrStdout(),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, root); err != nil {
		return fmt.Errorf("add watch dirs: %w", err)
	}

	ctx := cmd.Context()
	if initial {
		files, err := watchableFiles(root)
		if err != nil {
			return err
		}
		printStep("Indexing %d existing files", len(files))
		idx.indexAll(ctx, files)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes...\n", root)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() && !isHidden(event.Name) {
					if err := addWatchDirs(watcher, event.Name); err != nil {
						printWarning("watching %s: %v", event.Name, err)
					}
					continue
				}
			}
			if shouldIgnoreEvent(event) {
				continue
			}
			if len(pending) == 0 {
				timer.Reset(debounce)
			}
			pending[event.Name] = struct{}{}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		case <-timer.C:
			files := make([]string, 0, len(pending))
			for path := range pending {
				if _, err := os.Stat(path); err == nil {
					files = append(files, path)
				}
			}
			clear(pending)
			sort.Strings(files)
			idx.indexAll(ctx, files)
		}
	}
}

// dirIndexer posts files under root to /ingest/document.
type dirIndexer struct {
	client   *apiClient
	root     string
	provider string
	tags     []string
	out      io.Writer
}

func (d *dirIndexer) indexAll(ctx context.Context, files []string) {
	for _, path := range files {
		if ctx.Err() != nil {
			return
		}
		if err := d.index(ctx, path); err != nil {
			printError("%s: %v", path, err)
		}
	}
}

func (d *dirIndexer) index(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	name, err := filepath.Rel(d.root, path)
	if err != nil {
		name = filepath.Base(path)
	}

	resp, err := d.client.post(ctx, "/ingest/document", documentPayload(d.provider, filepath.ToSlash(name), path, data, d.tags))
	if err != nil {
		return err
	}
	var res ingest.DocumentResult
	if err := decodeJSON(resp, &res); err != nil {
		return err
	}
	if res.Skipped {
		fmt.Fprintf(d.out, "%s unchanged\n", name)
		return nil
	}
	fmt.Fprintf(d.out, "%s indexed (%d chunks)\n", name, len(res.ChunkIDs))
	return nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if isHidden(path) && path != root {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}

// watchableFiles lists indexable files under root in lexical order,
// skipping hidden files and directories.
func watchableFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if isHidden(path) && path != root {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() && isWatchable(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func isWatchable(path string) bool {
	return watchableExts[strings.ToLower(filepath.Ext(path))]
}

// shouldIgnoreEvent drops events that cannot change an indexable file's
// content. Removals are ignored as well: deleting a library is explicit.
func shouldIgnoreEvent(event fsnotify.Event) bool {
	if isHidden(event.Name) || !isWatchable(event.Name) {
		return true
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0
}
