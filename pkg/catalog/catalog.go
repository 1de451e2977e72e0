// Package catalog derives the ShareCatalog on demand from a shared
// folder and, separately, watches that folder with fsnotify purely to
// log changes — the catalog itself is never cached, so additions and
// removals are always reflected on the next enumeration without a
// restart.
package catalog

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Accessor is the external collaborator interface (spec.md §6): it
// returns the path to the directory whose regular-file children should
// be advertised. It is read-only from the core's point of view.
type Accessor interface {
	SharedFolder() string
}

// DirAccessor is the trivial Accessor backed by a fixed directory path.
type DirAccessor string

// SharedFolder implements Accessor.
func (d DirAccessor) SharedFolder() string { return string(d) }

var junkNames = map[string]struct{}{
	".DS_Store":   {},
	"Thumbs.db":   {},
	"desktop.ini": {},
}

func isHiddenOrJunk(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, junk := junkNames[name]
	return junk
}

// List enumerates the top-level regular files of the accessor's shared
// folder, excluding hidden files and platform junk. It re-reads the
// directory on every call; nothing here is cached.
func List(accessor Accessor) ([]string, error) {
	dir := accessor.SharedFolder()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isHiddenOrJunk(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Size returns the size in bytes of name within the shared folder, and
// whether it exists as a regular file.
func Size(accessor Accessor, name string) (int64, bool) {
	path := filepath.Join(accessor.SharedFolder(), name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// Logger is the minimal narration sink the watcher needs; it is
// satisfied by progresslog.Sink.
type Logger interface {
	Log(message string)
}

// Watch starts an fsnotify watcher over the shared folder and logs
// create/write/remove/rename events through logger until stop is closed.
// It never feeds back into List/Size — those always re-enumerate the
// filesystem directly, per the ShareCatalog invariant that it is not
// cached.
func Watch(accessor Accessor, logger Logger, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := accessor.SharedFolder()
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				logger.Log("catalog changed: " + event.Name + " (" + event.Op.String() + ")")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Log("catalog watcher error: " + err.Error())
			}
		}
	}()

	return nil
}
