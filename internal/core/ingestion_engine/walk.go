package ingestion_engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// WalkSupportedFiles expands root into the supported files below it. A
// supported file returns itself; a directory is walked recursively and its
// supported files are returned in lexical order.
func WalkSupportedFiles(root string) ([]string, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	if !fi.IsDir() {
		if IsSupported(root) {
			return []string{root}, nil
		}
		return nil, nil
	}

	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && IsSupported(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	slices.Sort(out)
	return out, nil
}

// ExpandPaths walks every input and concatenates the results, dropping
// duplicates while keeping first-seen order.
func ExpandPaths(inputs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, in := range inputs {
		files, err := WalkSupportedFiles(in)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out, nil
}
