package main

import (
	"io"

	"github.com/pkg/errors"
)

// mateGrouper joins paired alignments into read groups by read name while
// preserving the input coordinate order of group leaders: a completed group
// is only released once every group opened before it has completed too.
// Memory stays bounded by the largest leader-to-mate span in the input.
type mateGrouper struct {
	pending map[string]*pendingGroup
	queue   []*pendingGroup
}

type pendingGroup struct {
	group    *ReadGroup
	complete bool
}

func newMateGrouper() *mateGrouper {
	return &mateGrouper{pending: make(map[string]*pendingGroup)}
}

func (m *mateGrouper) add(r *AlignedRead) []*ReadGroup {
	if !r.IsPaired() {
		m.queue = append(m.queue, &pendingGroup{
			group:    &ReadGroup{Reads: []*AlignedRead{r}},
			complete: true,
		})
		return m.drain()
	}

	if pg, ok := m.pending[r.Name]; ok {
		pg.group.Reads = append(pg.group.Reads, r)
		pg.complete = true
		delete(m.pending, r.Name)
		return m.drain()
	}

	pg := &pendingGroup{group: &ReadGroup{Reads: []*AlignedRead{r}}}
	m.pending[r.Name] = pg
	m.queue = append(m.queue, pg)
	return m.drain()
}

// drain releases the completed prefix of the queue.
func (m *mateGrouper) drain() []*ReadGroup {
	var out []*ReadGroup
	i := 0
	for ; i < len(m.queue) && m.queue[i].complete; i++ {
		out = append(out, m.queue[i].group)
	}
	m.queue = m.queue[i:]
	return out
}

// advanceRef is called when the input moves to a new reference sequence.
// Pending reads whose mate was expected on the reference just finished are
// orphaned: retained as unpaired with a counted warning, never dropped.
func (m *mateGrouper) advanceRef(rep *report) []*ReadGroup {
	for _, pg := range m.queue {
		if pg.complete {
			continue
		}
		r := pg.group.Reads[0]
		if r.MateRef == r.Ref {
			pg.complete = true
			delete(m.pending, r.Name)
			rep.incr(numOrphanMates)
			sugar.Warnf("%v", &UnmatchedMateError{Name: r.Name})
		}
	}
	return m.drain()
}

// flush releases everything at end of input; remaining incomplete groups
// are orphans.
func (m *mateGrouper) flush(rep *report) []*ReadGroup {
	out := make([]*ReadGroup, 0, len(m.queue))
	for _, pg := range m.queue {
		if !pg.complete {
			rep.incr(numOrphanMates)
			sugar.Warnf("%v", &UnmatchedMateError{Name: pg.group.Name()})
		}
		out = append(out, pg.group)
	}
	m.queue = nil
	m.pending = make(map[string]*pendingGroup)
	return out
}

// runBuildReadDB streams the alignment file into the finalized read
// database: one read group per line, in input coordinate order of the
// group leaders.
func runBuildReadDB(opt stageConfig) (*report, error) {
	rep := newReport()

	src, err := openAlignmentFile(opt.File)
	if err != nil {
		return rep, err
	}
	defer src.Close()

	outPath := artifactPath(opt.File, suffixReadDB, opt.OutDir, opt.Compress)
	w, err := newArtifactWriter(outPath, readDBMagic, opt.Compress)
	if err != nil {
		return rep, err
	}

	emit := func(groups []*ReadGroup) error {
		for _, g := range groups {
			rep.incr(numReadGroups)
			if err := w.WriteLine(encodeReadGroup(g)); err != nil {
				return err
			}
		}
		return nil
	}

	grouper := newMateGrouper()
	currRef := ""

	for {
		rec, err := src.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.Abort()
			return rep, errors.Wrapf(err, "failed to read %s", opt.File)
		}
		rep.incr(numReadsIn)

		switch filterRecord(rec) {
		case skipUnmapped:
			rep.incr(numSkippedUnmapped)
			continue
		case skipFiltered:
			rep.incr(numSkippedFilter)
			continue
		}

		read, anno, err := NewAlignedRead(rec)
		if err != nil {
			switch err.(type) {
			case *MissingAnnotationError:
				rep.incr(numSkippedNoUMI)
			default:
				rep.incr(numSkippedFormat)
			}
			sugar.Debugf("skip: %v", err)
			continue
		}
		if anno.trimMissing {
			rep.incr(numMissingTrim)
			sugar.Debugf("read %s has no usable trim annotation, assuming untrimmed", read.Name)
		}
		if _, err := read.SynStart(); err != nil {
			rep.incr(numSkippedHardClip)
			sugar.Warnf("skip %s: %v", read.Name, err)
			continue
		}

		if read.Ref != currRef {
			if currRef != "" {
				if err := emit(grouper.advanceRef(rep)); err != nil {
					w.Abort()
					return rep, err
				}
			}
			currRef = read.Ref
		}

		if err := emit(grouper.add(read)); err != nil {
			w.Abort()
			return rep, err
		}
	}

	if err := emit(grouper.flush(rep)); err != nil {
		w.Abort()
		return rep, err
	}
	if err := w.Finish(); err != nil {
		return rep, err
	}

	sugar.Infof("read database written to %s (%d read groups)", outPath, rep.get(numReadGroups))
	return rep, nil
}
