package streaming

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const endListTag = "#EXT-X-ENDLIST"

// prepareDir readies a camera directory for a fresh transcoder run.
//
//   - cleanup: remove the directory outright and recreate it
//   - otherwise: keep the newest keep segments, then finalize a leftover
//     playlist so players still holding it stop cleanly
func prepareDir(dir, playlist string, keep int, cleanup bool) error {
	if cleanup {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("cleanup %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		return nil
	}

	if err := pruneSegments(dir, keep); err != nil {
		return err
	}
	return finalizePlaylist(playlist)
}

// pruneSegments deletes *.ts files beyond the newest keep, oldest first.
// Age is the modification time; Linux file systems do not expose a
// portable creation time.
func pruneSegments(dir string, keep int) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.ts"))
	if err != nil {
		return err
	}
	if len(matches) <= keep {
		return nil
	}

	type seg struct {
		path string
		mod  int64
	}
	segs := make([]seg, 0, len(matches))
	for _, p := range matches {
		fi, err := os.Stat(p)
		if err != nil {
			continue // raced with the transcoder's own deletion
		}
		segs = append(segs, seg{p, fi.ModTime().UnixNano()})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].mod > segs[j].mod })

	var errs []error
	for _, s := range segs[min(keep, len(segs)):] {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// finalizePlaylist appends the end-list tag to a surviving playlist that
// lacks one. A missing playlist is not an error.
func finalizePlaylist(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read playlist: %w", err)
	}
	if bytes.Contains(data, []byte(endListTag)) {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open playlist: %w", err)
	}
	defer f.Close()

	tag := endListTag + "\n"
	if !strings.HasSuffix(string(data), "\n") {
		tag = "\n" + tag
	}
	if _, err := f.WriteString(tag); err != nil {
		return fmt.Errorf("finalize playlist: %w", err)
	}
	return nil
}
