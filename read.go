package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"
)

// AlignedRead is one alignment line, immutable after ingest. Pos is the
// 1-based leftmost alignment coordinate (SAM POS). UMI and Trim are parsed
// out of the annotated read name at ingest time.
type AlignedRead struct {
	Name  string
	Flags sam.Flags
	Ref   string
	Pos   int
	MapQ  byte
	Cigar sam.Cigar

	// MateRef and MatePos identify the expected mate alignment for paired
	// reads; MateRef is "*" for unpaired reads.
	MateRef string
	MatePos int

	UMI  string
	Trim int
}

// Strand reports '+' or '-' based on the reverse flag.
func (r *AlignedRead) Strand() byte {
	if r.Flags&sam.Reverse != 0 {
		return '-'
	}
	return '+'
}

// IsPaired is true when the read came from paired-end sequencing and its
// mate is mapped.
func (r *AlignedRead) IsPaired() bool {
	return r.Flags&sam.Paired != 0 && r.Flags&sam.MateUnmapped == 0
}

// slot is 0 for read1 (and unpaired reads), 1 for read2. It selects which
// UMI and trim annotation belongs to this read.
func (r *AlignedRead) slot() int {
	if r.Flags&sam.Read2 != 0 {
		return 1
	}
	return 0
}

func (r *AlignedRead) String() string {
	return fmt.Sprintf("%s %s:%d:%c", r.Name, r.Ref, r.Pos, r.Strand())
}

// cigarEnds returns the synthetic (soft-clip-corrected) and real start/end
// of an alignment, plus the aligned reference length. The synthetic start is
// the strand-aware 5' end. Hard clipping is not supported.
func cigarEnds(pos int, reverse bool, cigar sam.Cigar) (synStart, start, end, synEnd, alnLen int, err error) {
	clipLeft, clipRight := 0, 0
	for i, co := range cigar {
		switch co.Type() {
		case sam.CigarHardClipped:
			return 0, 0, 0, 0, 0, &InputFormatError{Reason: fmt.Sprintf("hard clipping is not supported (cigar %s)", cigar)}
		case sam.CigarSoftClipped:
			// clipping counts as left-side only when it opens the cigar
			if i == 0 {
				clipLeft = co.Len()
			} else {
				clipRight = co.Len()
			}
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch, sam.CigarDeletion, sam.CigarSkipped:
			alnLen += co.Len()
		case sam.CigarInsertion, sam.CigarPadded:
			// consumes no reference
		}
	}

	if reverse {
		synEnd = pos - clipLeft
		end = pos
		start = end + alnLen - 1
		synStart = start + clipRight
		return synStart, start, end, synEnd, alnLen, nil
	}
	synStart = pos - clipLeft
	start = pos
	end = start + alnLen - 1
	synEnd = end + clipRight
	return synStart, start, end, synEnd, alnLen, nil
}

// SynStart is the soft-clip-corrected 5' coordinate of the read.
func (r *AlignedRead) SynStart() (int, error) {
	synStart, _, _, _, _, err := cigarEnds(r.Pos, r.Strand() == '-', r.Cigar)
	return synStart, err
}

// AlignedLen is the reference span of the alignment.
func (r *AlignedRead) AlignedLen() int {
	_, _, _, _, alnLen, err := cigarEnds(r.Pos, r.Strand() == '-', r.Cigar)
	if err != nil {
		return 0
	}
	return alnLen
}

// AdjustedFivePrime returns the trim-corrected synthetic 5' coordinate: the
// position the read would have started at had the upstream trimming not
// removed bases from its 5' end. Two reads from the same molecule collide
// on this coordinate regardless of how aggressively each was trimmed.
func (r *AlignedRead) AdjustedFivePrime() (int, error) {
	synStart, err := r.SynStart()
	if err != nil {
		return 0, err
	}
	if r.Strand() == '-' {
		return synStart + r.Trim, nil
	}
	return synStart - r.Trim, nil
}

// coordinateShift bounds how far AdjustedFivePrime can drift from Pos for
// this read. The location index uses the running maximum as its bucket
// closing window.
func (r *AlignedRead) coordinateShift() int {
	shift := r.Trim + r.AlignedLen()
	for _, co := range r.Cigar {
		if co.Type() == sam.CigarSoftClipped {
			shift += co.Len()
		}
	}
	return shift
}

// annotation is the parsed form of the read-name annotation block, e.g.
// "NAME-GGCCTAAT^AGCTCTAG;2^0" carries the UMI pair and per-read 5' trims.
type annotation struct {
	umis        []string
	trims       []int
	trimMissing bool
}

func (a *annotation) umiAt(slot int) string {
	if slot >= len(a.umis) {
		slot = len(a.umis) - 1
	}
	return a.umis[slot]
}

func (a *annotation) trimAt(slot int) int {
	if slot >= len(a.trims) {
		slot = len(a.trims) - 1
	}
	return a.trims[slot]
}

// umiKey is the cluster identity of the whole template.
func (a *annotation) umiKey() string {
	return strings.Join(a.umis, DelimAnnoReadPair)
}

// parseAnnotation splits the UMI and trim annotations out of a read name.
// A missing UMI block is an error; a missing or malformed trim block
// defaults to zero with trimMissing set, so the caller can count it.
func parseAnnotation(qname string) (*annotation, error) {
	parts := strings.SplitN(qname, DelimAnno, 2)
	if len(parts) < 2 || parts[1] == "" {
		return nil, &MissingAnnotationError{Name: qname, Field: "UMI"}
	}

	anno := &annotation{}
	blocks := strings.SplitN(parts[1], DelimAnnoType, 2)
	anno.umis = strings.Split(blocks[0], DelimAnnoReadPair)
	for _, umi := range anno.umis {
		if umi == "" {
			return nil, &MissingAnnotationError{Name: qname, Field: "UMI"}
		}
	}

	if len(blocks) < 2 {
		anno.trimMissing = true
	} else {
		for _, t := range strings.Split(blocks[1], DelimAnnoReadPair) {
			n, err := strconv.Atoi(t)
			if err != nil || n < 0 {
				anno.trimMissing = true
				n = 0
			}
			anno.trims = append(anno.trims, n)
		}
	}
	if len(anno.trims) == 0 {
		anno.trims = make([]int, len(anno.umis))
	}
	return anno, nil
}

// NewAlignedRead converts a SAM record into an AlignedRead, resolving the
// UMI and trim annotation for the record's read1/read2 slot.
func NewAlignedRead(rec *sam.Record) (*AlignedRead, *annotation, error) {
	anno, err := parseAnnotation(rec.Name)
	if err != nil {
		return nil, nil, err
	}
	if rec.Ref == nil || rec.Ref.Name() == "*" {
		return nil, nil, &InputFormatError{Name: rec.Name, Reason: "record has no reference"}
	}
	r := &AlignedRead{
		Name:    rec.Name,
		Flags:   rec.Flags,
		Ref:     rec.Ref.Name(),
		Pos:     rec.Start() + 1,
		MapQ:    rec.MapQ,
		Cigar:   rec.Cigar,
		MateRef: "*",
	}
	if r.IsPaired() && rec.MateRef != nil {
		r.MateRef = rec.MateRef.Name()
		r.MatePos = rec.MatePos + 1
	}
	r.UMI = anno.umiAt(r.slot())
	r.Trim = anno.trimAt(r.slot())
	return r, anno, nil
}

// encodeRead renders an AlignedRead as one artifact record. The layout
// mirrors the SAM columns it was built from.
func encodeRead(r *AlignedRead) string {
	return strings.Join([]string{
		r.Name,
		strconv.Itoa(int(r.Flags)),
		r.Ref,
		strconv.Itoa(r.Pos),
		strconv.Itoa(int(r.MapQ)),
		r.Cigar.String(),
		r.MateRef,
		strconv.Itoa(r.MatePos),
	}, "\t")
}

func decodeRead(s string) (*AlignedRead, error) {
	fields := strings.Split(s, "\t")
	if len(fields) != 8 {
		return nil, &InputFormatError{Name: s, Reason: "expected 8 fields"}
	}
	flags, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, &InputFormatError{Name: fields[0], Reason: "bad flag field"}
	}
	pos, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, &InputFormatError{Name: fields[0], Reason: "bad position field"}
	}
	mapq, err := strconv.Atoi(fields[4])
	if err != nil {
		return nil, &InputFormatError{Name: fields[0], Reason: "bad mapq field"}
	}
	cigar, err := sam.ParseCigar([]byte(fields[5]))
	if err != nil {
		return nil, errors.Wrapf(&InputFormatError{Name: fields[0], Reason: "bad cigar field"}, "%v", err)
	}
	matePos, err := strconv.Atoi(fields[7])
	if err != nil {
		return nil, &InputFormatError{Name: fields[0], Reason: "bad mate position field"}
	}
	r := &AlignedRead{
		Name:    fields[0],
		Flags:   sam.Flags(flags),
		Ref:     fields[2],
		Pos:     pos,
		MapQ:    byte(mapq),
		Cigar:   cigar,
		MateRef: fields[6],
		MatePos: matePos,
	}
	if anno, aerr := parseAnnotation(r.Name); aerr == nil {
		r.UMI = anno.umiAt(r.slot())
		r.Trim = anno.trimAt(r.slot())
	}
	return r, nil
}

// ReadGroup is all alignments sharing one read name: a single read or a
// mated pair. Reads keep their input coordinate order.
type ReadGroup struct {
	Reads []*AlignedRead
}

// Name returns the annotated read name shared by the group.
func (g *ReadGroup) Name() string {
	return g.Reads[0].Name
}

// UMIKey is the cluster identity of the group: per-slot UMIs joined in
// read1, read2 order, identical for both mates of a pair.
func (g *ReadGroup) UMIKey() string {
	anno, err := parseAnnotation(g.Name())
	if err != nil {
		return ""
	}
	return anno.umiKey()
}

// MapQTotal sums mapping quality across the group, the first key of
// representative selection.
func (g *ReadGroup) MapQTotal() int {
	total := 0
	for _, r := range g.Reads {
		total += int(r.MapQ)
	}
	return total
}

// AlignedLenTotal sums post-trim aligned reference length across the group,
// the second key of representative selection.
func (g *ReadGroup) AlignedLenTotal() int {
	total := 0
	for _, r := range g.Reads {
		total += r.AlignedLen()
	}
	return total
}

// LeaderPos is the alignment start of the first (lowest-coordinate) read.
func (g *ReadGroup) LeaderPos() int {
	return g.Reads[0].Pos
}

func encodeReadGroup(g *ReadGroup) string {
	parts := make([]string, 0, len(g.Reads))
	for _, r := range g.Reads {
		parts = append(parts, encodeRead(r))
	}
	return strings.Join(parts, delimRead)
}

func decodeReadGroup(s string) (*ReadGroup, error) {
	g := &ReadGroup{}
	for _, part := range strings.Split(s, delimRead) {
		r, err := decodeRead(part)
		if err != nil {
			return nil, err
		}
		g.Reads = append(g.Reads, r)
	}
	if len(g.Reads) == 0 {
		return nil, &InputFormatError{Reason: "empty read group"}
	}
	return g, nil
}
