package iox

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// OpenAuto opens path, transparently decompressing .gz files.
func OpenAuto(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &rc{Reader: gr, Closers: []io.Closer{gr, f}}, nil
	}
	return f, nil
}

type rc struct {
	io.Reader
	Closers []io.Closer
}

func (r *rc) Close() error {
	var err error
	for i := range r.Closers {
		if e := r.Closers[i].Close(); err == nil && e != nil {
			err = e
		}
	}
	return err
}

// Concat streams the decompressed contents of paths one after another,
// opening each file only when the previous one is exhausted.
func Concat(paths []string) io.ReadCloser {
	return &concat{paths: paths}
}

type concat struct {
	paths []string
	cur   io.ReadCloser
	err   error
}

func (c *concat) Read(p []byte) (int, error) {
	for {
		if c.err != nil {
			return 0, c.err
		}
		if c.cur == nil {
			if len(c.paths) == 0 {
				return 0, io.EOF
			}
			r, err := OpenAuto(c.paths[0])
			if err != nil {
				c.err = &PathError{Path: c.paths[0], Err: err}
				return 0, c.err
			}
			c.cur = r
			c.paths = c.paths[1:]
		}
		n, err := c.cur.Read(p)
		if err == io.EOF {
			cerr := c.cur.Close()
			c.cur = nil
			if cerr != nil {
				c.err = cerr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			c.err = err
		}
		return n, err
	}
}

func (c *concat) Close() error {
	c.paths = nil
	if c.cur == nil {
		return nil
	}
	err := c.cur.Close()
	c.cur = nil
	return err
}

// PathError ties a stream failure to the file that caused it.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e *PathError) Unwrap() error { return e.Err }
