package main

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// gzipMagic is the first two bytes of any gzip stream (bgzf included).
var gzipMagic = []byte{0x1f, 0x8b}

// alignmentSource streams *sam.Record values out of a SAM, SAM.gz or BAM
// file. Compression is autodetected from the content, not the filename.
type alignmentSource struct {
	samReader *sam.Reader
	bamReader *bam.Reader
	bar       *progressbar.ProgressBar
	closers   []io.Closer
}

// openAlignmentFile opens an alignment file for sequential record reads.
func openAlignmentFile(path string) (*alignmentSource, error) {
	stats, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, errors.New(path + " not exists")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	src := &alignmentSource{closers: []io.Closer{f}}
	src.bar = progressbar.DefaultBytes(stats.Size(), "reading alignments")
	counted := io.TeeReader(f, src.bar)

	if strings.HasSuffix(path, ".bam") {
		br, err := bam.NewReader(counted, 0)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to read bam %s", path)
		}
		src.bamReader = br
		src.closers = append([]io.Closer{br}, src.closers...)
		return src, nil
	}

	buffered := bufio.NewReader(counted)
	head, err := buffered.Peek(2)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	var reader io.Reader = buffered
	if len(head) == 2 && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		gr, err := gzip.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to open %s", path)
		}
		src.closers = append([]io.Closer{gr}, src.closers...)
		reader = gr
	}

	sr, err := sam.NewReader(reader)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to read sam %s", path)
	}
	src.samReader = sr
	return src, nil
}

// Read returns the next record, io.EOF at end of input.
func (src *alignmentSource) Read() (*sam.Record, error) {
	if src.bamReader != nil {
		return src.bamReader.Read()
	}
	return src.samReader.Read()
}

// Header returns the SAM header of the input.
func (src *alignmentSource) Header() *sam.Header {
	if src.bamReader != nil {
		return src.bamReader.Header()
	}
	return src.samReader.Header()
}

func (src *alignmentSource) Close() error {
	if src.bar != nil {
		src.bar.Finish()
	}
	var first error
	for _, c := range src.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// loadKnownUMIs reads a whitelist of known UMI sequences from a FASTA file
// (optionally gzipped).
func loadKnownUMIs(path string) ([]string, error) {
	umis := make([]string, 0)
	if path == "" {
		return umis, nil
	}

	stats, err := os.Stat(path)
	if os.IsNotExist(err) {
		return umis, errors.New(path + " not exists")
	}
	sugar.Infof("Loading known UMIs from file %s", path)

	f, err := os.Open(path)
	if err != nil {
		return umis, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	bar := progressbar.DefaultBytes(stats.Size(), "loading")
	counted := io.TeeReader(f, bar)

	buffered := bufio.NewReader(counted)
	var reader io.Reader = buffered
	if head, err := buffered.Peek(2); err == nil && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		gr, err := gzip.NewReader(buffered)
		if err != nil {
			return umis, errors.Wrapf(err, "failed to open %s", path)
		}
		defer gr.Close()
		reader = gr
	}

	template := linear.NewSeq("", nil, alphabet.DNAredundant)
	sc := seqio.NewScanner(fasta.NewReader(reader, template))
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		umi := strings.ToUpper(s.Seq.String())
		if umi == "" {
			continue
		}
		umis = append(umis, umi)
	}
	if err := sc.Error(); err != nil {
		return umis, errors.Wrapf(err, "failed to parse %s", path)
	}
	bar.Finish()

	sugar.Infof("%d known UMIs loaded", len(umis))
	return umis, nil
}
