package resolver

import (
	"io/fs"
	"os"
)

// FileSystem is the set of filesystem queries the server issues. Names are
// the raw mapped paths ("./dir/file"); implementations must not clean them.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	// ReadDir returns entries in the order the underlying filesystem yields
	// them. Callers must not rely on any sorting.
	ReadDir(name string) ([]fs.DirEntry, error)
}

// OSFileSystem resolves names against the process working directory, or
// against Base when it is set.
type OSFileSystem struct {
	Base string
}

func (o OSFileSystem) path(name string) string {
	if o.Base == "" {
		return name
	}
	// Plain concatenation keeps ".." segments intact, same as the working
	// directory case.
	return o.Base + string(os.PathSeparator) + name
}

func (o OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(o.path(name))
}

func (o OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(o.path(name))
}

// ReadDir lists a directory without sorting, unlike os.ReadDir.
func (o OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := os.Open(o.path(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadDir(-1)
}
