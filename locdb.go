package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/golang-collections/collections/set"
	"github.com/pkg/errors"
)

type bucketState int

const (
	bucketOpen bucketState = iota
	bucketFinalized
	bucketClassified
	bucketEmitted
	bucketDiscarded
)

// LocationBucket collects every read group whose template maps to the same
// trim-adjusted location key. Pos is the smallest adjusted coordinate of the
// key on the leader reference, used to decide when the bucket can close.
type LocationBucket struct {
	Key    string
	Pos    int
	Groups []*ReadGroup
	state  bucketState
}

func encodeBucket(b *LocationBucket) string {
	parts := make([]string, 0, len(b.Groups))
	for _, g := range b.Groups {
		parts = append(parts, encodeReadGroup(g))
	}
	return b.Key + "\t" + strings.Join(parts, delimReadGroup)
}

func decodeBucket(line string) (*LocationBucket, error) {
	fields := strings.SplitN(line, "\t", 2)
	if len(fields) != 2 || fields[0] == "" {
		return nil, &InputFormatError{Name: line, Reason: "expected a location key and a group list"}
	}
	b := &LocationBucket{Key: fields[0], state: bucketFinalized}
	for _, part := range strings.Split(fields[1], delimReadGroup) {
		g, err := decodeReadGroup(part)
		if err != nil {
			return nil, err
		}
		b.Groups = append(b.Groups, g)
	}
	return b, nil
}

// locationKey computes the trim-adjusted location identity of a read group:
// each read contributes "ref:pos:strand" with pos being its adjusted 5'
// coordinate, and the per-read locations are joined in a sorted, canonical
// order so both mates of a pair produce the same key. The returned position
// is the smallest adjusted coordinate on the leader read's reference.
func locationKey(g *ReadGroup) (string, int, error) {
	leaderRef := g.Reads[0].Ref
	locs := make([]string, 0, len(g.Reads))
	keyPos := 0
	havePos := false
	for _, r := range g.Reads {
		p, err := r.AdjustedFivePrime()
		if err != nil {
			return "", 0, err
		}
		locs = append(locs, fmt.Sprintf("%s:%d:%c", r.Ref, p, r.Strand()))
		if r.Ref == leaderRef && (!havePos || p < keyPos) {
			keyPos = p
			havePos = true
		}
	}
	sort.Strings(locs)
	return strings.Join(locs, DelimLocList), keyPos, nil
}

// locationIndex buckets a coordinate-ordered stream of read groups by their
// location key while holding only a bounded window of open buckets. A bucket
// may close once no future group can still map into it: every unseen group
// starts at or after the current leader position, and its adjusted key
// coordinate can precede that start by at most the configured shift bound,
// which every read is validated against at ingest. With that validation in
// place, a key landing behind the flush watermark can only mean the input
// was not coordinate-sorted.
type locationIndex struct {
	buckets    map[string]*LocationBucket
	bound      int
	ref        string
	prevLeader int
	watermark  int
	seenRefs   *set.Set
	out        func(*LocationBucket) error
	rep        *report
}

func newLocationIndex(bound int, out func(*LocationBucket) error, rep *report) *locationIndex {
	if bound <= 0 {
		bound = defaultMaxShift
	}
	return &locationIndex{
		buckets:  make(map[string]*LocationBucket),
		bound:    bound,
		seenRefs: set.New(),
		out:      out,
		rep:      rep,
	}
}

func (idx *locationIndex) add(g *ReadGroup) error {
	leader := g.Reads[0]

	if leader.Ref != idx.ref {
		if err := idx.flushAll(); err != nil {
			return err
		}
		if idx.seenRefs.Has(leader.Ref) {
			return &OrderingViolationError{Name: leader.Name, Ref: leader.Ref, Pos: leader.Pos, Prev: idx.prevLeader}
		}
		idx.seenRefs.Insert(leader.Ref)
		idx.ref = leader.Ref
		idx.prevLeader = 0
		idx.watermark = 0
	}
	if leader.Pos < idx.prevLeader {
		return &OrderingViolationError{Name: leader.Name, Ref: leader.Ref, Pos: leader.Pos, Prev: idx.prevLeader}
	}
	idx.prevLeader = leader.Pos

	for _, r := range g.Reads {
		if shift := r.coordinateShift(); shift > idx.bound {
			return errors.Errorf("read %q shifts its 5-prime coordinate by %d, beyond the --max-shift window of %d; rerun with a larger --max-shift",
				r.Name, shift, idx.bound)
		}
	}

	key, keyPos, err := locationKey(g)
	if err != nil {
		return err
	}
	if keyPos < idx.watermark {
		return &OrderingViolationError{Name: leader.Name, Ref: leader.Ref, Pos: keyPos, Prev: idx.watermark}
	}

	b, ok := idx.buckets[key]
	if !ok {
		b = &LocationBucket{Key: key, Pos: keyPos, state: bucketOpen}
		idx.buckets[key] = b
	}
	b.Groups = append(b.Groups, g)

	return idx.flushBefore(leader.Pos - idx.bound)
}

// flushBefore finalizes every bucket whose key coordinate precedes the
// cutoff, in coordinate order so the output stream stays deterministic.
func (idx *locationIndex) flushBefore(cutoff int) error {
	var closing []*LocationBucket
	for key, b := range idx.buckets {
		if b.Pos < cutoff {
			closing = append(closing, b)
			delete(idx.buckets, key)
		}
	}
	if len(closing) == 0 {
		return nil
	}
	idx.watermark = maxInt(idx.watermark, cutoff)
	return idx.emit(closing)
}

func (idx *locationIndex) flushAll() error {
	closing := make([]*LocationBucket, 0, len(idx.buckets))
	for key, b := range idx.buckets {
		closing = append(closing, b)
		delete(idx.buckets, key)
	}
	return idx.emit(closing)
}

func (idx *locationIndex) emit(closing []*LocationBucket) error {
	sort.Slice(closing, func(i, j int) bool {
		if closing[i].Pos != closing[j].Pos {
			return closing[i].Pos < closing[j].Pos
		}
		return closing[i].Key < closing[j].Key
	})
	for _, b := range closing {
		b.state = bucketFinalized
		idx.rep.incr(numLocations)
		if err := idx.out(b); err != nil {
			return err
		}
	}
	return nil
}

// runBuildLocationDB streams the read database into the location index: one
// finalized location bucket per line, ordered by reference and adjusted
// coordinate.
func runBuildLocationDB(opt stageConfig) (*report, error) {
	rep := newReport()

	inPath, err := findArtifact(opt.File, suffixReadDB, opt.OutDir)
	if err != nil {
		return rep, err
	}
	sc, err := openArtifact(inPath, readDBMagic)
	if err != nil {
		return rep, err
	}
	defer sc.Close()

	outPath := artifactPath(opt.File, suffixLocDB, opt.OutDir, opt.Compress)
	w, err := newArtifactWriter(outPath, locDBMagic, opt.Compress)
	if err != nil {
		return rep, err
	}

	idx := newLocationIndex(opt.MaxShift, func(b *LocationBucket) error {
		return w.WriteLine(encodeBucket(b))
	}, rep)

	for sc.Next() {
		g, err := decodeReadGroup(sc.Line())
		if err != nil {
			w.Abort()
			return rep, err
		}
		if err := idx.add(g); err != nil {
			w.Abort()
			return rep, err
		}
	}
	if err := sc.Err(); err != nil {
		w.Abort()
		return rep, err
	}
	if err := idx.flushAll(); err != nil {
		w.Abort()
		return rep, err
	}
	if err := w.Finish(); err != nil {
		return rep, err
	}

	sugar.Infof("location database written to %s (%d locations)", outPath, rep.get(numLocations))
	return rep, nil
}
