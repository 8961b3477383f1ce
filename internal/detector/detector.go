package detector

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// gitDirName is the version-control metadata directory excluded from every
// measurement. Commits created by the publisher change the contents of this
// directory, so counting it would make the tool trigger on its own pushes.
const gitDirName = ".git"

// ErrScanFailed indicates the root path itself could not be traversed.
// Per-file errors inside an otherwise readable tree never produce it.
var ErrScanFailed = errors.New("directory scan failed")

// Measure returns the aggregate size in bytes of all regular files under
// root, excluding any .git subtree at any depth.
//
// Files that vanish or become unreadable mid-scan contribute zero bytes;
// transient per-file races must never abort the whole measurement. Only a
// failure to traverse root itself returns an error.
func Measure(root string) (int64, error) {
	var total int64

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subtree or entry that vanished mid-scan.
			return nil
		}

		if d.IsDir() {
			if d.Name() == gitDirName {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrScanFailed, root, err)
	}

	return total, nil
}

// ShouldTrigger reports whether the absolute difference between the current
// snapshot and the baseline exceeds the threshold. The comparison is
// symmetric so the detector fires equally on growth and shrinkage.
func ShouldTrigger(current, baseline, thresholdBytes int64) bool {
	delta := current - baseline
	if delta < 0 {
		delta = -delta
	}
	return delta > thresholdBytes
}
