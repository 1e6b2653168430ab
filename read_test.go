package main

import (
	"os"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	setLogger(false, "")
	os.Exit(m.Run())
}

func mustCigar(t *testing.T, s string) sam.Cigar {
	t.Helper()
	cigar, err := sam.ParseCigar([]byte(s))
	require.NoError(t, err)
	return cigar
}

// testRead builds an AlignedRead the way NewAlignedRead would, without
// needing a full SAM record.
func testRead(t *testing.T, name, ref string, pos int, reverse bool, cig string, mapq byte) *AlignedRead {
	t.Helper()
	var flags sam.Flags
	if reverse {
		flags |= sam.Reverse
	}
	r := &AlignedRead{
		Name:    name,
		Flags:   flags,
		Ref:     ref,
		Pos:     pos,
		MapQ:    mapq,
		Cigar:   mustCigar(t, cig),
		MateRef: "*",
	}
	anno, err := parseAnnotation(name)
	require.NoError(t, err)
	r.UMI = anno.umiAt(r.slot())
	r.Trim = anno.trimAt(r.slot())
	return r
}

func TestParseAnnotation(t *testing.T) {
	anno, err := parseAnnotation("read1-ACGTACGT;3")
	require.NoError(t, err)
	assert.Equal(t, []string{"ACGTACGT"}, anno.umis)
	assert.Equal(t, []int{3}, anno.trims)
	assert.False(t, anno.trimMissing)

	anno, err = parseAnnotation("pair-GGCCTAAT^AGCTCTAG;2^0")
	require.NoError(t, err)
	assert.Equal(t, []string{"GGCCTAAT", "AGCTCTAG"}, anno.umis)
	assert.Equal(t, []int{2, 0}, anno.trims)
	assert.Equal(t, "GGCCTAAT^AGCTCTAG", anno.umiKey())

	anno, err = parseAnnotation("read1-ACGTACGT")
	require.NoError(t, err)
	assert.True(t, anno.trimMissing)
	assert.Equal(t, 0, anno.trimAt(0))

	anno, err = parseAnnotation("read1-ACGTACGT;oops")
	require.NoError(t, err)
	assert.True(t, anno.trimMissing)
	assert.Equal(t, 0, anno.trimAt(0))

	_, err = parseAnnotation("noannotation")
	assert.IsType(t, &MissingAnnotationError{}, err)

	_, err = parseAnnotation("trailing-")
	assert.IsType(t, &MissingAnnotationError{}, err)
}

func TestAnnotationSlots(t *testing.T) {
	anno, err := parseAnnotation("pair-AAAA^CCCC;3^5")
	require.NoError(t, err)
	assert.Equal(t, "AAAA", anno.umiAt(0))
	assert.Equal(t, "CCCC", anno.umiAt(1))
	assert.Equal(t, 3, anno.trimAt(0))
	assert.Equal(t, 5, anno.trimAt(1))

	// single-end annotations answer both slots
	anno, err = parseAnnotation("single-AAAA;3")
	require.NoError(t, err)
	assert.Equal(t, "AAAA", anno.umiAt(1))
	assert.Equal(t, 3, anno.trimAt(1))
}

func TestCigarEndsForward(t *testing.T) {
	synStart, start, end, synEnd, alnLen, err := cigarEnds(100, false, mustCigar(t, "5S20M3S"))
	require.NoError(t, err)
	assert.Equal(t, 95, synStart)
	assert.Equal(t, 100, start)
	assert.Equal(t, 119, end)
	assert.Equal(t, 122, synEnd)
	assert.Equal(t, 20, alnLen)
}

func TestCigarEndsReverse(t *testing.T) {
	synStart, start, end, synEnd, alnLen, err := cigarEnds(100, true, mustCigar(t, "2S20M3S"))
	require.NoError(t, err)
	assert.Equal(t, 122, synStart)
	assert.Equal(t, 119, start)
	assert.Equal(t, 100, end)
	assert.Equal(t, 98, synEnd)
	assert.Equal(t, 20, alnLen)
}

func TestCigarEndsDeletionAndInsertion(t *testing.T) {
	// deletions and skips consume reference, insertions do not
	_, _, end, _, alnLen, err := cigarEnds(100, false, mustCigar(t, "10M2D5M3I5M"))
	require.NoError(t, err)
	assert.Equal(t, 22, alnLen)
	assert.Equal(t, 121, end)
}

func TestCigarEndsHardClip(t *testing.T) {
	_, _, _, _, _, err := cigarEnds(100, false, mustCigar(t, "5H20M"))
	assert.IsType(t, &InputFormatError{}, err)
}

func TestAdjustedFivePrime(t *testing.T) {
	// a read trimmed by 5 collides with its untrimmed sibling
	trimmed := testRead(t, "a-ACGTACGT;5", "chr1", 1005, false, "20M", 40)
	untrimmed := testRead(t, "b-ACGTACGT;0", "chr1", 1000, false, "25M", 40)

	p1, err := trimmed.AdjustedFivePrime()
	require.NoError(t, err)
	p2, err := untrimmed.AdjustedFivePrime()
	require.NoError(t, err)
	assert.Equal(t, 1000, p1)
	assert.Equal(t, p1, p2)

	// on the reverse strand the 5' end is rightmost, trimming shifts it up
	rev := testRead(t, "c-ACGTACGT;4", "chr1", 100, true, "20M", 40)
	p3, err := rev.AdjustedFivePrime()
	require.NoError(t, err)
	assert.Equal(t, 123, p3)
}

func TestEncodeDecodeRead(t *testing.T) {
	r := testRead(t, "pair-GGCCTAAT^AGCTCTAG;2^0", "chr2", 5000, true, "3S47M", 37)
	r.Flags |= sam.Paired | sam.Read1
	r.MateRef = "chr2"
	r.MatePos = 5120

	decoded, err := decodeRead(encodeRead(r))
	require.NoError(t, err)
	assert.Equal(t, r.Name, decoded.Name)
	assert.Equal(t, r.Flags, decoded.Flags)
	assert.Equal(t, r.Ref, decoded.Ref)
	assert.Equal(t, r.Pos, decoded.Pos)
	assert.Equal(t, r.MapQ, decoded.MapQ)
	assert.Equal(t, r.Cigar.String(), decoded.Cigar.String())
	assert.Equal(t, "chr2", decoded.MateRef)
	assert.Equal(t, 5120, decoded.MatePos)
	assert.Equal(t, "GGCCTAAT", decoded.UMI)
	assert.Equal(t, 2, decoded.Trim)
}

func TestDecodeReadRejectsGarbage(t *testing.T) {
	_, err := decodeRead("not a read record")
	assert.IsType(t, &InputFormatError{}, err)

	_, err = decodeRead("name\tx\tchr1\t100\t30\t20M\t*\t0")
	assert.IsType(t, &InputFormatError{}, err)
}

func TestReadGroup(t *testing.T) {
	r1 := testRead(t, "pair-AAAA^CCCC;0^0", "chr1", 100, false, "20M", 40)
	r1.Flags |= sam.Paired | sam.Read1
	r2 := testRead(t, "pair-AAAA^CCCC;0^0", "chr1", 200, true, "30M", 20)
	r2.Flags |= sam.Paired | sam.Read2

	g := &ReadGroup{Reads: []*AlignedRead{r1, r2}}
	assert.Equal(t, "pair-AAAA^CCCC;0^0", g.Name())
	assert.Equal(t, "AAAA^CCCC", g.UMIKey())
	assert.Equal(t, 60, g.MapQTotal())
	assert.Equal(t, 50, g.AlignedLenTotal())
	assert.Equal(t, 100, g.LeaderPos())

	decoded, err := decodeReadGroup(encodeReadGroup(g))
	require.NoError(t, err)
	require.Len(t, decoded.Reads, 2)
	assert.Equal(t, "AAAA", decoded.Reads[0].UMI)
	assert.Equal(t, "CCCC", decoded.Reads[1].UMI)
}
