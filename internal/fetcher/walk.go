package fetcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// enumerate lists every regular file under root except the .git directory.
// Symlinks are skipped. Contents above maxBytes are not read.
func enumerate(ctx context.Context, root string, maxBytes int64, detector LanguageDetector) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f := File{Path: filepath.ToSlash(rel), Size: info.Size()}
		if detector != nil {
			f.Language = detector.DetectLanguage(f.Path)
		}
		if info.Size() > maxBytes {
			f.Oversized = true
		} else {
			f.Content, err = os.ReadFile(path)
			if err != nil {
				return err
			}
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
