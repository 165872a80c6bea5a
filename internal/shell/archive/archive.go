// Package archive compresses function directories into zip archives.
// This is part of the Imperative Shell - handles filesystem I/O.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Builder compresses a directory into an archive file.
type Builder interface {
	// Build writes the contents of sourceDir to destFile. Entry names are
	// relative to sourceDir; sourceDir itself has no entry.
	Build(ctx context.Context, sourceDir, destFile string) error
}

// ZipBuilder writes deflated zip archives.
type ZipBuilder struct{}

// NewZipBuilder creates a zip archive builder.
func NewZipBuilder() *ZipBuilder {
	return &ZipBuilder{}
}

// Build walks sourceDir and writes every file and sub-directory to destFile.
// Symlinks are stored as the files they point to. A partially written
// destFile is removed on failure.
func (b *ZipBuilder) Build(ctx context.Context, sourceDir, destFile string) (err error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("stat source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", sourceDir)
	}

	out, err := os.Create(destFile)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(destFile)
		}
	}()

	zw := zip.NewWriter(out)
	w := &treeWriter{zw: zw, visited: make(map[string]bool)}
	if err := w.addTree(ctx, sourceDir, ""); err != nil {
		_ = zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

// treeWriter adds directory trees to a zip writer. visited holds resolved
// directories already added, so symlink cycles terminate.
type treeWriter struct {
	zw      *zip.Writer
	visited map[string]bool
}

func (t *treeWriter) addTree(ctx context.Context, root, prefix string) error {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}
	if t.visited[resolved] {
		return nil
	}
	t.visited[resolved] = true

	return filepath.WalkDir(resolved, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", path, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", path, err)
		}
		if rel == "." {
			return nil
		}
		name := prefix + filepath.ToSlash(rel)

		// Follow symlinks so the archive holds real content.
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		if info.IsDir() {
			if err := t.addEntry(info, name+"/", ""); err != nil {
				return err
			}
			if d.Type()&fs.ModeSymlink != 0 {
				// WalkDir does not descend into symlinked directories.
				return t.addTree(ctx, path, name+"/")
			}
			return nil
		}
		return t.addEntry(info, name, path)
	})
}

// addEntry writes one header; file content is copied from src when set.
func (t *treeWriter) addEntry(info fs.FileInfo, name, src string) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", name, err)
	}
	header.Name = name
	header.Method = zip.Store
	if src != "" {
		header.Method = zip.Deflate
	}

	w, err := t.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if src == "" {
		return nil
	}
	return copyFile(w, src)
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("compress %s: %w", path, err)
	}
	return nil
}
