package main

import (
	"bufio"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/golang-collections/collections/set"
	"github.com/pkg/errors"
)

// samOutput writes one SAM output file through a temporary file and an
// atomic rename, mirroring the artifact writers.
type samOutput struct {
	final string
	tmp   *os.File
	buf   *bufio.Writer
	w     *sam.Writer
	count int
}

func newSAMOutput(path string, h *sam.Header) (*samOutput, error) {
	tmp, err := ioutil.TempFile(filepath.Dir(path), filepath.Base(path)+".tmp-")
	if err != nil {
		return nil, &ArtifactIOError{Op: "create", Path: path, Err: err}
	}
	o := &samOutput{final: path, tmp: tmp, buf: bufio.NewWriter(tmp)}
	o.w, err = sam.NewWriter(o.buf, h, sam.FlagDecimal)
	if err != nil {
		o.Abort()
		return nil, &ArtifactIOError{Op: "create", Path: path, Err: err}
	}
	return o, nil
}

func (o *samOutput) Write(rec *sam.Record) error {
	if err := o.w.Write(rec); err != nil {
		return &ArtifactIOError{Op: "write", Path: o.final, Err: err}
	}
	o.count++
	return nil
}

func (o *samOutput) Finish() error {
	if err := o.buf.Flush(); err != nil {
		o.Abort()
		return &ArtifactIOError{Op: "flush", Path: o.final, Err: err}
	}
	if err := o.tmp.Sync(); err != nil {
		o.Abort()
		return &ArtifactIOError{Op: "sync", Path: o.final, Err: err}
	}
	name := o.tmp.Name()
	if err := o.tmp.Close(); err != nil {
		os.Remove(name)
		return &ArtifactIOError{Op: "close", Path: o.final, Err: err}
	}
	if err := os.Rename(name, o.final); err != nil {
		os.Remove(name)
		return &ArtifactIOError{Op: "rename", Path: o.final, Err: err}
	}
	sugar.Infof("%d records written to %s", o.count, o.final)
	return nil
}

func (o *samOutput) Abort() {
	name := o.tmp.Name()
	o.tmp.Close()
	os.Remove(name)
}

// loadDedupTable reads the classifier output back into two name sets: the
// read names classified as duplicates, and the read names rejected for an
// unresolvable UMI error.
func loadDedupTable(path string) (dupNames, rejectNames *set.Set, err error) {
	sc, err := openArtifact(path, dedupHeader)
	if err != nil {
		return nil, nil, err
	}
	defer sc.Close()

	dupNames = set.New()
	rejectNames = set.New()
	for sc.Next() {
		fields := strings.Split(sc.Line(), "\t")
		if len(fields) != 4 {
			return nil, nil, &InputFormatError{Name: sc.Line(), Reason: "expected 4 fields in dedup table"}
		}
		size, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, nil, &InputFormatError{Name: fields[0], Reason: "bad cluster size in dedup table"}
		}
		if size == 0 {
			rejectNames.Insert(fields[0])
			continue
		}
		if fields[2] != "." {
			for _, name := range strings.Split(fields[2], ",") {
				dupNames.Insert(name)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return dupNames, rejectNames, nil
}

// runWriteSAMOutputs rescans the input alignments and splits them by the
// dedup table verdicts. Duplicates and rejects are matched by read name, so
// both mates of a duplicate pair leave together.
func runWriteSAMOutputs(opt stageConfig) error {
	wantDedupped := !opt.NoDeduppedSAM
	wantRejects := opt.RejectUMIErrors
	if !wantDedupped && !opt.WriteFlaggedSAM && !opt.WriteDupSAM && !wantRejects {
		return nil
	}

	tablePath, err := findArtifact(opt.File, suffixDedup, opt.OutDir)
	if err != nil {
		return err
	}
	dupNames, rejectNames, err := loadDedupTable(tablePath)
	if err != nil {
		return err
	}

	src, err := openAlignmentFile(opt.File)
	if err != nil {
		return err
	}
	defer src.Close()

	header := src.Header().Clone()
	prog := sam.NewProgram("umidedup", "umidedup", strings.Join(os.Args, " "), "", VERSION)
	if err := header.AddProgram(prog); err != nil {
		return errors.Wrapf(err, "failed to amend header of %s", opt.File)
	}

	var outputs []*samOutput
	open := func(suffix string) (*samOutput, error) {
		o, err := newSAMOutput(artifactPath(opt.File, suffix, opt.OutDir, false), header)
		if err != nil {
			for _, prev := range outputs {
				prev.Abort()
			}
			return nil, err
		}
		outputs = append(outputs, o)
		return o, nil
	}
	abortAll := func() {
		for _, o := range outputs {
			o.Abort()
		}
	}

	var dedupped, flagged, duponly, rejects *samOutput
	if wantDedupped {
		if dedupped, err = open(suffixDedupped); err != nil {
			return err
		}
	}
	if opt.WriteFlaggedSAM {
		if flagged, err = open(suffixFlagged); err != nil {
			return err
		}
	}
	if opt.WriteDupSAM {
		if duponly, err = open(suffixDupOnly); err != nil {
			return err
		}
	}
	if wantRejects {
		if rejects, err = open(suffixUMIRejects); err != nil {
			return err
		}
	}

	for {
		rec, err := src.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			abortAll()
			return errors.Wrapf(err, "failed to read %s", opt.File)
		}

		if rejectNames.Has(rec.Name) {
			if rejects != nil {
				if err := rejects.Write(rec); err != nil {
					abortAll()
					return err
				}
			}
			continue
		}

		isDup := dupNames.Has(rec.Name)
		if isDup {
			rec.Flags |= sam.Duplicate
			if duponly != nil {
				if err := duponly.Write(rec); err != nil {
					abortAll()
					return err
				}
			}
		} else if dedupped != nil {
			if err := dedupped.Write(rec); err != nil {
				abortAll()
				return err
			}
		}
		if flagged != nil {
			if err := flagged.Write(rec); err != nil {
				abortAll()
				return err
			}
		}
	}

	for _, o := range outputs {
		if err := o.Finish(); err != nil {
			return err
		}
	}
	return nil
}
