// Package archive packs and unpacks dependency bundles.
//
// A bundle is a gzip-compressed tar of one directory (normally node_modules)
// with entry names relative to the project directory, so unpacking into a
// project recreates the tree in place. Regular files, directories and
// symlinks are kept; package managers rely on relative symlinks under
// node_modules/.bin.
//
// All filesystem access goes through go-billy so tests run on memfs.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/depsync/errors"
)

// MediaType is the media type of a bundle.
const MediaType = "application/vnd.depsync.bundle.v1.tar+gzip"

// Progress reports bytes processed so far against the total. Total is 0 when
// unknown.
type Progress func(current, total int64)

// entry is a single filesystem object collected for packing.
type entry struct {
	path    string
	relPath string
	info    os.FileInfo
}

// Pack writes projectDir/dir to w as a tar.gz. Entry names are slash
// separated and relative to projectDir, starting with dir.
func Pack(ctx context.Context, fsys billy.Filesystem, projectDir, dir string, w io.Writer, progress Progress) error {
	if w == nil {
		return fmt.Errorf("output writer cannot be nil")
	}

	source := filepath.Join(projectDir, dir)
	info, err := fsys.Lstat(source)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Newf(errors.CodeNotFound, "directory does not exist: %s", source)
		}
		return fmt.Errorf("failed to stat %s: %w", source, err)
	}
	if !info.IsDir() {
		return errors.Newf(errors.CodeInvalidInput, "not a directory: %s", source)
	}

	entries, totalSize, err := collect(fsys, projectDir, source)
	if err != nil {
		return err
	}

	gzipWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzipWriter)

	var current int64
	for _, e := range entries {
		if err := isDone(ctx, "packing"); err != nil {
			return err
		}
		if err := writeEntry(fsys, tarWriter, e, func(n int64) {
			current += n
			if progress != nil {
				progress(current, totalSize)
			}
		}); err != nil {
			return err
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

// collect walks source without following symlinks and returns its entries in
// walk order together with the total size of regular files.
func collect(fsys billy.Filesystem, projectDir, source string) ([]entry, int64, error) {
	var entries []entry
	var total int64

	walkErr := util.Walk(fsys, source, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walk failed at %s: %w", p, err)
		}

		rel, err := filepath.Rel(projectDir, p)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", p, err)
		}

		if info.Mode().IsRegular() {
			total += info.Size()
		}
		entries = append(entries, entry{path: p, relPath: filepath.ToSlash(rel), info: info})
		return nil
	})
	if walkErr != nil {
		return nil, 0, fmt.Errorf("failed to collect files from %s: %w", source, walkErr)
	}
	return entries, total, nil
}

func writeEntry(fsys billy.Filesystem, tw *tar.Writer, e entry, written func(int64)) error {
	var link string
	if e.info.Mode()&os.ModeSymlink != 0 {
		target, err := fsys.Readlink(e.path)
		if err != nil {
			return fmt.Errorf("failed to read link %s: %w", e.path, err)
		}
		link = target
	}

	header, err := tar.FileInfoHeader(e.info, link)
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", e.path, err)
	}
	header.Name = e.relPath
	if e.info.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", e.relPath, err)
	}

	if !e.info.Mode().IsRegular() {
		return nil
	}

	f, err := fsys.Open(e.path)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", e.path, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, &countingReader{r: f, count: written}); err != nil {
		return fmt.Errorf("failed to write file content for %s: %w", e.relPath, err)
	}
	return nil
}

// Unpack extracts a bundle produced by Pack into projectDir. Entries that
// would land outside projectDir, either by name or through a symlink target,
// are rejected with an INVALID_INPUT error.
func Unpack(ctx context.Context, fsys billy.Filesystem, r io.Reader, projectDir string) error {
	if r == nil {
		return fmt.Errorf("input reader cannot be nil")
	}

	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "bundle is not a gzip stream")
	}
	defer gzipReader.Close()

	tr := tar.NewReader(gzipReader)
	for {
		if err := isDone(ctx, "unpacking"); err != nil {
			return err
		}

		header, err := tr.Next()
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.CodeInvalidInput, "failed to read tar header")
		}

		if err := extract(fsys, tr, header, projectDir); err != nil {
			return err
		}
	}
}

func extract(fsys billy.Filesystem, tr *tar.Reader, header *tar.Header, projectDir string) error {
	name, err := cleanName(header.Name)
	if err != nil {
		return err
	}
	target := filepath.Join(projectDir, filepath.FromSlash(name))

	switch header.Typeflag {
	case tar.TypeDir:
		if err := fsys.MkdirAll(target, header.FileInfo().Mode().Perm()|0o700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", target, err)
		}
		return nil

	case tar.TypeReg:
		if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", target, err)
		}
		f, err := fsys.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, header.FileInfo().Mode().Perm())
		if err != nil {
			return fmt.Errorf("failed to create file %s: %w", target, err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write file %s: %w", target, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close file %s: %w", target, err)
		}
		return nil

	case tar.TypeSymlink:
		if err := checkLink(name, header.Linkname); err != nil {
			return err
		}
		if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", target, err)
		}
		if _, err := fsys.Lstat(target); err == nil {
			if err := fsys.Remove(target); err != nil {
				return fmt.Errorf("failed to replace %s: %w", target, err)
			}
		}
		if err := fsys.Symlink(header.Linkname, target); err != nil {
			return fmt.Errorf("failed to create symlink %s: %w", target, err)
		}
		return nil

	default:
		// hard links, devices and fifos have no place in a dependency tree
		return nil
	}
}

// cleanName validates an entry name and returns it cleaned.
func cleanName(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", errors.Newf(errors.CodeInvalidInput, "invalid entry name in bundle: %q", name)
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.Newf(errors.CodeInvalidInput, "entry escapes project directory: %q", name)
	}
	return cleaned, nil
}

// checkLink rejects symlink targets that are absolute or resolve outside the
// project directory.
func checkLink(name, link string) error {
	if link == "" || path.IsAbs(link) || filepath.IsAbs(link) {
		return errors.Newf(errors.CodeInvalidInput, "symlink %q has absolute or empty target %q", name, link)
	}
	resolved := path.Clean(path.Join(path.Dir(name), link))
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return errors.Newf(errors.CodeInvalidInput, "symlink %q escapes project directory via %q", name, link)
	}
	return nil
}

// isDone returns a wrapped context cancellation error if ctx is done.
func isDone(ctx context.Context, action string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s canceled: %w", action, ctx.Err())
	default:
		return nil
	}
}

type countingReader struct {
	r     io.Reader
	count func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.count(int64(n))
	}
	return n, err
}
