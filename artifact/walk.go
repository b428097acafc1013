package artifact

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
)

type excludeMatcher []glob.Glob

func compileExcludes(patterns []string) (excludeMatcher, error) {
	out := make(excludeMatcher, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (m excludeMatcher) match(rel string) bool {
	for _, g := range m {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// walkFiles lists the regular files under root as slash-separated relative
// paths sorted byte-wise. The top-level .git directory is never listed.
func walkFiles(root string, exclude excludeMatcher) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == ".git" || exclude.match(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || exclude.match(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func copyFile(w io.Writer, root, rel string) error {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
