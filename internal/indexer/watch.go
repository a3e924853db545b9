package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// watchFilesystem wires a best-effort fsnotify fast path: write events on
// tracked logs wake the poll loop early. Missed notifications are harmless
// because the periodic poll remains authoritative.
func (idx *Indexer) watchFilesystem(ctx context.Context, wake chan<- string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	addDirs := func() {
		filepath.WalkDir(idx.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if err := watcher.Add(path); err != nil {
				log.Debug().Err(err).Str("dir", path).Msg("failed to watch directory")
			}
			return nil
		})
	}
	addDirs()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := watcher.Add(event.Name); err != nil {
							log.Debug().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
						}
						continue
					}
				}
				if !strings.HasSuffix(event.Name, ".jsonl") {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				idx.track(event.Name)
				select {
				case wake <- event.Name:
				default:
					// Poll loop is behind; the next pass covers it.
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Debug().Err(err).Msg("filesystem watcher error")
			}
		}
	}()

	return func() {}, nil
}
