package main

import (
	"bufio"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/pkg/errors"
)

// The read and location databases are key-ordered record stores private to
// the pipeline: one record per line, scanned strictly sequentially. Writers
// go through a temporary file and an atomic rename so a failed stage never
// replaces a previous valid artifact with a partial one.

const maxArtifactLine = 1 << 26

var sambamExtensions = []string{".sam.gz", ".sam", ".bam"}

// artifactPath derives the artifact filename for an input alignment file,
// e.g. sample.sam -> OUT/sample.readdb[.bgz].
func artifactPath(input, suffix, outdir string, compress bool) string {
	base := filepath.Base(input)
	for _, ext := range sambamExtensions {
		if strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	if outdir == "" {
		outdir = "."
	}
	name := base + "." + suffix
	if compress {
		name += ".bgz"
	}
	return filepath.Join(outdir, name)
}

// findArtifact locates a previously finalized artifact, compressed or not.
// A missing artifact means the prerequisite stage has not run: that is a
// configuration error, not a retryable condition.
func findArtifact(input, suffix, outdir string) (string, error) {
	plain := artifactPath(input, suffix, outdir, false)
	if _, err := os.Stat(plain); err == nil {
		return plain, nil
	}
	compressed := artifactPath(input, suffix, outdir, true)
	if _, err := os.Stat(compressed); err == nil {
		return compressed, nil
	}
	return "", errors.Errorf("artifact %s not found: run the previous stage first", plain)
}

// artifactWriter writes one record store. Lines only become visible at the
// final path once Finish succeeds.
type artifactWriter struct {
	final string
	tmp   *os.File
	buf   *bufio.Writer
	bgz   *bgzf.Writer
}

func newArtifactWriter(path, magic string, compress bool) (*artifactWriter, error) {
	tmp, err := ioutil.TempFile(filepath.Dir(path), filepath.Base(path)+".tmp-")
	if err != nil {
		return nil, &ArtifactIOError{Op: "create", Path: path, Err: err}
	}

	w := &artifactWriter{final: path, tmp: tmp}
	if compress {
		w.bgz = bgzf.NewWriter(tmp, 0)
		w.buf = bufio.NewWriter(w.bgz)
	} else {
		w.buf = bufio.NewWriter(tmp)
	}

	if err := w.WriteLine(magic); err != nil {
		w.Abort()
		return nil, err
	}
	return w, nil
}

func (w *artifactWriter) WriteLine(line string) error {
	if _, err := w.buf.WriteString(line); err != nil {
		return &ArtifactIOError{Op: "write", Path: w.final, Err: err}
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return &ArtifactIOError{Op: "write", Path: w.final, Err: err}
	}
	return nil
}

// Finish flushes, closes and atomically moves the store into place.
func (w *artifactWriter) Finish() error {
	if err := w.buf.Flush(); err != nil {
		w.Abort()
		return &ArtifactIOError{Op: "flush", Path: w.final, Err: err}
	}
	if w.bgz != nil {
		if err := w.bgz.Close(); err != nil {
			w.Abort()
			return &ArtifactIOError{Op: "flush", Path: w.final, Err: err}
		}
	}
	if err := w.tmp.Sync(); err != nil {
		w.Abort()
		return &ArtifactIOError{Op: "sync", Path: w.final, Err: err}
	}
	name := w.tmp.Name()
	if err := w.tmp.Close(); err != nil {
		os.Remove(name)
		return &ArtifactIOError{Op: "close", Path: w.final, Err: err}
	}
	if err := os.Rename(name, w.final); err != nil {
		os.Remove(name)
		return &ArtifactIOError{Op: "rename", Path: w.final, Err: err}
	}
	return nil
}

// Abort drops the temporary file, leaving any previous artifact in place.
func (w *artifactWriter) Abort() {
	name := w.tmp.Name()
	w.tmp.Close()
	os.Remove(name)
}

// artifactScanner reads a record store line by line after validating its
// magic header.
type artifactScanner struct {
	path    string
	sc      *bufio.Scanner
	closers []io.Closer
}

func openArtifact(path, magic string) (*artifactScanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ArtifactIOError{Op: "open", Path: path, Err: err}
	}

	s := &artifactScanner{path: path, closers: []io.Closer{f}}

	buffered := bufio.NewReader(f)
	var reader io.Reader = buffered
	if head, err := buffered.Peek(2); err == nil && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		br, err := bgzf.NewReader(buffered, 0)
		if err != nil {
			f.Close()
			return nil, &ArtifactIOError{Op: "open", Path: path, Err: err}
		}
		s.closers = append([]io.Closer{br}, s.closers...)
		reader = br
	}

	s.sc = bufio.NewScanner(reader)
	s.sc.Buffer(make([]byte, 1<<20), maxArtifactLine)

	if !s.sc.Scan() || s.sc.Text() != magic {
		s.Close()
		return nil, errors.Errorf("%s is not a finalized %s artifact", path, strings.Fields(magic)[1])
	}
	return s, nil
}

func (s *artifactScanner) Next() bool {
	return s.sc.Scan()
}

func (s *artifactScanner) Line() string {
	return s.sc.Text()
}

func (s *artifactScanner) Err() error {
	if err := s.sc.Err(); err != nil {
		return &ArtifactIOError{Op: "read", Path: s.path, Err: err}
	}
	return nil
}

func (s *artifactScanner) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
