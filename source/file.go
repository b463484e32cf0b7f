package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// FileSource reads one short URL per line from a plain text file.
type FileSource struct {
	path string
}

// NewFileSource fails unless path names a regular file that can be opened.
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	f.Close()
	return &FileSource{path: path}, nil
}

func (s *FileSource) Name() string { return "file:" + s.path }

func (s *FileSource) Open(ctx context.Context) (Cursor, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, &SourceError{Source: s.Name(), Err: err}
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &fileCursor{name: s.Name(), file: f, scanner: sc}, nil
}

type fileCursor struct {
	name    string
	file    *os.File
	scanner *bufio.Scanner
}

func (c *fileCursor) Next(ctx context.Context) (string, error) {
	for c.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line := strings.TrimSpace(c.scanner.Text())
		if line == "" {
			continue
		}
		return NormalizeURL(line), nil
	}
	if err := c.scanner.Err(); err != nil {
		return "", &SourceError{Source: c.name, Err: err}
	}
	return "", io.EOF
}

func (c *fileCursor) Close() error {
	return c.file.Close()
}
