package glee

import (
	"io"
	"math"
	"sort"

	"github.com/benbjohnson/immutable"
	"github.com/go-git/go-billy/v5"
)

// description is an open file. Streams cannot be repositioned.
type description struct {
	path     string
	offset   int64
	seekable bool
}

// System is a persistent table of open file descriptors backed by a
// read-only view of a filesystem.
type System struct {
	fs          billy.Filesystem
	descriptors *immutable.SortedMap[int, *description]
}

// NewSystem returns a system with stdin, stdout and stderr open.
func NewSystem(fs billy.Filesystem) *System {
	descriptors := immutable.NewSortedMap[int, *description](idComparer[int]{})
	for fd, name := range []string{"stdin", "stdout", "stderr"} {
		descriptors = descriptors.Set(fd, &description{path: name})
	}
	return &System{fs: fs, descriptors: descriptors}
}

// Open opens path and returns the lowest free descriptor, or -1 if the file
// cannot be opened.
func (s *System) Open(path string) (int, *System) {
	if s.fs == nil {
		return -1, s
	}
	info, err := s.fs.Stat(path)
	if err != nil || info.IsDir() {
		return -1, s
	}

	fd := 0
	for {
		if _, ok := s.descriptors.Get(fd); !ok {
			break
		}
		fd++
	}
	return fd, &System{fs: s.fs, descriptors: s.descriptors.Set(fd, &description{path: path, seekable: true})}
}

// Seek repositions descriptor and returns the new offset, or -1 on failure.
func (s *System) Seek(descriptor int, offset int64, whence int) (int64, *System) {
	d, ok := s.descriptors.Get(descriptor)
	if !ok || !d.seekable {
		return -1, s
	}

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = d.offset
	case io.SeekEnd:
		info, err := s.fs.Stat(d.path)
		if err != nil {
			return -1, s
		}
		base = info.Size()
	default:
		return -1, s
	}

	if offset > 0 && base > math.MaxInt64-offset {
		return -1, s
	} else if base+offset < 0 {
		return -1, s
	}
	other := *d
	other.offset = base + offset
	return other.offset, &System{fs: s.fs, descriptors: s.descriptors.Set(descriptor, &other)}
}

// ReadDir returns the sorted names in the directory at path followed by "."
// and "..". The bool is false if path is not a directory.
func (s *System) ReadDir(path string) ([]string, bool) {
	if s.fs == nil {
		return nil, false
	}
	if info, err := s.fs.Stat(path); err != nil || !info.IsDir() {
		return nil, false
	}
	infos, err := s.fs.ReadDir(path)
	if err != nil {
		return nil, false
	}

	names := make([]string, 0, len(infos)+2)
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return append(names, ".", ".."), true
}

// Close releases descriptor. Returns 0 on success and -1 otherwise.
func (s *System) Close(descriptor int) (int, *System) {
	if _, ok := s.descriptors.Get(descriptor); !ok {
		return -1, s
	}
	return 0, &System{fs: s.fs, descriptors: s.descriptors.Delete(descriptor)}
}

// SystemProxy binds a system snapshot to a single path.
type SystemProxy struct {
	system *System
}

// NewSystemProxy returns a new instance of SystemProxy.
func NewSystemProxy(system *System) *SystemProxy {
	return &SystemProxy{system: system}
}

// Clone returns a proxy sharing the same snapshot.
func (p *SystemProxy) Clone() *SystemProxy {
	return &SystemProxy{system: p.system}
}

// System returns the current snapshot.
func (p *SystemProxy) System() *System { return p.system }

// Open opens path for the path's process.
func (p *SystemProxy) Open(path string) int {
	fd, system := p.system.Open(path)
	p.system = system
	return fd
}

// Seek repositions descriptor.
func (p *SystemProxy) Seek(descriptor int, offset int64, whence int) int64 {
	result, system := p.system.Seek(descriptor, offset, whence)
	p.system = system
	return result
}

// ReadDir lists the directory at path.
func (p *SystemProxy) ReadDir(path string) ([]string, bool) {
	return p.system.ReadDir(path)
}

// Close releases descriptor.
func (p *SystemProxy) Close(descriptor int) int {
	result, system := p.system.Close(descriptor)
	p.system = system
	return result
}
