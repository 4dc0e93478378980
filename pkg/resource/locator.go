package resource

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	// BackendFilesystem resolves paths in a directory on disk
	BackendFilesystem = "filesystem"

	// BackendEmbedded resolves paths in a filesystem packaged into the binary
	BackendEmbedded = "embedded"
)

type (
	// Locator maps logical paths to readable resources.
	Locator struct {
		fsys    fs.FS
		backend string
		root    string
		probe   func(string) bool
	}

	// Option customizes a Locator.
	Option func(*Locator)
)

// WithRoot sets the application root on disk. Defaults to the directory of a
// filesystem backend, or the working directory for an embedded one.
func WithRoot(root string) Option {
	return func(l *Locator) {
		l.root = root
	}
}

// WithCodeProbe sets the function used by CodeExists to confirm that a code
// based migration with the given name is compiled into the binary.
func WithCodeProbe(probe func(string) bool) Option {
	return func(l *Locator) {
		l.probe = probe
	}
}

// New creates a Locator over an arbitrary fs.FS.
func New(fsys fs.FS, backend string, opts ...Option) *Locator {
	l := &Locator{
		fsys:    fsys,
		backend: backend,
		root:    ".",
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// NewDir creates a Locator over the directory dir on disk.
func NewDir(dir string, opts ...Option) *Locator {
	return New(os.DirFS(dir), BackendFilesystem, append([]Option{WithRoot(dir)}, opts...)...)
}

// NewEmbedded creates a Locator over a filesystem packaged into the binary.
func NewEmbedded(fsys fs.FS, opts ...Option) *Locator {
	return New(fsys, BackendEmbedded, opts...)
}

// Backend returns the name of the backend (filesystem or embedded).
func (l *Locator) Backend() string {
	return l.backend
}

// FS returns the filesystem backing this Locator.
func (l *Locator) FS() fs.FS {
	return l.fsys
}

// Root returns the application root on disk.
func (l *Locator) Root() string {
	return l.root
}

// Exists reports whether the logical location resolves to a file or a
// directory. It never fails; anything other than a successful stat is
// reported as not found.
func (l *Locator) Exists(location string) bool {
	name := Clean(location)

	if _, err := fs.Stat(l.fsys, name); err != nil {
		slog.Debug("resource not found", "backend", l.backend, "location", name)
		return false
	}

	slog.Debug("resource found", "backend", l.backend, "location", name)
	return true
}

// OpenScript opens the script at the logical path for reading. A missing
// script is reported as (nil, false, nil); an error is only returned when the
// resource is present but cannot be read.
func (l *Locator) OpenScript(location string) (io.ReadCloser, bool, error) {
	name := Clean(location)

	info, err := fs.Stat(l.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, false, nil
		}

		return nil, false, errors.Wrapf(err, "failed to stat script: %s", name)
	}

	if info.IsDir() {
		return nil, false, errors.Errorf("expected a script but found a directory: %s", name)
	}

	f, err := l.fsys.Open(name)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to open script: %s", name)
	}

	return f, true, nil
}

// ReadScript reads the whole script at the logical path.
func (l *Locator) ReadScript(location string) (string, bool, error) {
	rc, ok, err := l.OpenScript(location)
	if err != nil || !ok {
		return "", ok, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read script: %s", Clean(location))
	}

	return string(data), true, nil
}

// CodeExists reports whether a code based migration named name is compiled
// into the binary.
func (l *Locator) CodeExists(name string) bool {
	if l.probe == nil {
		return false
	}

	return l.probe(name)
}

// FindFile walks the application root on disk and returns the path of the
// first regular file (in lexical order) for which match returns true.
func (l *Locator) FindFile(match func(name string) bool) (string, bool) {
	var found string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if p != l.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if match(d.Name()) {
			found = p
			return fs.SkipAll
		}

		return nil
	})
	if err != nil || found == "" {
		return "", false
	}

	return found, true
}

// Clean normalizes a logical path: slash separated, no leading slash and no
// "." or ".." elements.
func Clean(location string) string {
	name := path.Clean("/" + filepath.ToSlash(location))
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "."
	}

	return name
}

// Join joins logical path elements.
func Join(elem ...string) string {
	return Clean(path.Join(elem...))
}
