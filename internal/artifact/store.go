// Package artifact implements the Artifact Store: the output directory
// that holds the current build.
//
// The pipeline is the only writer and the dev server the only reader. They
// synchronize solely through completed writes: every Write lands the full
// payload in a temporary file next to the destination and renames it into
// place, so a reader opens either the previous complete artifact or the new
// complete one and never a partial file.
package artifact

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/conneroisu/devreload/internal/config"
	"github.com/conneroisu/devreload/internal/errors"
)

// Name identifies one of the generated artifacts.
type Name string

const (
	Stylesheet      Name = config.StylesheetFile
	Page            Name = config.PageFile
	HydrationScript Name = config.HydrationScriptFile
)

// All lists every artifact the pipeline produces.
var All = []Name{Stylesheet, Page, HydrationScript}

// ContentType returns the Content-Type the dev server sends for n.
func (n Name) ContentType() string {
	switch n {
	case Stylesheet:
		return "text/css; charset=utf-8"
	case Page:
		return "text/html; charset=utf-8"
	case HydrationScript:
		return "application/javascript"
	default:
		return "application/octet-stream"
	}
}

// Artifact is a named payload together with its on-disk location.
type Artifact struct {
	Name Name
	Path string
	Size int
}

const filePerm os.FileMode = 0o644

// Store reads and atomically writes artifacts under a single directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore creates a store rooted at dir on fs.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: filepath.Clean(dir)}
}

// NewOSStore creates a store on the real filesystem.
func NewOSStore(dir string) *Store {
	return NewStore(afero.NewOsFs(), dir)
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the location of the named artifact.
func (s *Store) Path(name Name) string {
	return filepath.Join(s.dir, string(name))
}

// Init creates the output directory if needed.
func (s *Store) Init() error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return errors.IO("mkdir", s.dir, err)
	}
	return nil
}

// Write replaces the named artifact with data in one visible step.
func (s *Store) Write(name Name, data []byte) (Artifact, error) {
	dest := s.Path(name)
	if err := s.writeAtomic(dest, data); err != nil {
		return Artifact{}, errors.IO("write", dest, err)
	}
	return Artifact{Name: name, Path: dest, Size: len(data)}, nil
}

// writeAtomic writes content to a temp file in the destination directory
// and then renames it over the destination.
func (s *Store) writeAtomic(dest string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	tmp, err := afero.TempFile(s.fs, filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = s.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := s.fs.Chmod(tmpName, filePerm); err != nil {
		return err
	}
	if err := s.fs.Rename(tmpName, dest); err != nil {
		return err
	}

	committed = true
	return nil
}

// Read returns the current content of the named artifact.
func (s *Store) Read(name Name) ([]byte, error) {
	p := s.Path(name)
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, errors.IO("read", p, err)
	}
	return data, nil
}

// Exists reports whether the named artifact has been written.
func (s *Store) Exists(name Name) bool {
	ok, err := afero.Exists(s.fs, s.Path(name))
	return err == nil && ok
}

// Open opens a file under the output directory by its URL-style relative
// path. Hidden files (including in-flight temp files) are never exposed.
func (s *Store) Open(rel string) (afero.File, os.FileInfo, error) {
	clean := filepath.FromSlash(strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+rel)), "/"))
	if clean == "" || clean == "." {
		return nil, nil, os.ErrNotExist
	}
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if strings.HasPrefix(part, ".") {
			return nil, nil, os.ErrNotExist
		}
	}

	f, err := s.fs.Open(filepath.Join(s.dir, clean))
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, os.ErrNotExist
	}
	return f, info, nil
}
