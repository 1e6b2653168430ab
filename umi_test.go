package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHamming(t *testing.T) {
	assert.Equal(t, 0, hamming("ACGT", "ACGT"))
	assert.Equal(t, 1, hamming("ACGT", "ACGA"))
	assert.Equal(t, 4, hamming("AAAA", "TTTT"))
	// length mismatches never cluster
	assert.Equal(t, 7, hamming("AAA", "AAAA"))
}

func TestUMIDistance(t *testing.T) {
	assert.Equal(t, 0, umiDistance("AAAA^CCCC", "AAAA^CCCC"))
	assert.Equal(t, 1, umiDistance("AAAA^CCCC", "AAAT^CCCC"))
	assert.Equal(t, 2, umiDistance("AAAA^CCCC", "AAAT^CCCA"))
	assert.True(t, umiDistance("AAAA", "AAAA^CCCC") > 4)
}

func TestReportUMI(t *testing.T) {
	known := []string{"AAAA", "CCCC", "AAAT"}

	rep := reportUMI("AAAA", known)
	assert.Equal(t, 0, rep.dist)

	rep = reportUMI("CCCA", known)
	assert.Equal(t, 1, rep.dist)
	assert.Equal(t, []string{"CCCC"}, rep.candidates)
	assert.True(t, rep.correctable())

	// equidistant from AAAA and AAAT, too ambiguous to correct
	rep = reportUMI("AAAG", known)
	assert.Equal(t, 1, rep.dist)
	assert.Len(t, rep.candidates, 2)
	assert.False(t, rep.correctable())

	rep = reportUMI("GGGG", known)
	assert.False(t, rep.correctable())
}

func TestResolveUMIKey(t *testing.T) {
	p := &umiPolicy{
		known:    []string{"AAAA", "CCCC"},
		knownSet: map[string]bool{"AAAA": true, "CCCC": true},
		correct:  true,
	}

	key, hadError, corrected := p.resolveUMIKey("AAAA^CCCC")
	assert.Equal(t, "AAAA^CCCC", key)
	assert.False(t, hadError)
	assert.Equal(t, 0, corrected)

	key, hadError, corrected = p.resolveUMIKey("AAAT^CCCC")
	assert.Equal(t, "AAAA^CCCC", key)
	assert.True(t, hadError)
	assert.Equal(t, 1, corrected)

	// two mismatches is beyond conservative correction
	key, hadError, corrected = p.resolveUMIKey("AATT^CCCC")
	assert.Equal(t, "AATT^CCCC", key)
	assert.True(t, hadError)
	assert.Equal(t, 0, corrected)
	assert.False(t, p.resolved(key))
}

func TestClusterByUMIExact(t *testing.T) {
	keys := []string{"AAAA", "CCCC", "AAAA", "GGGG", "CCCC"}
	clusters := clusterByUMI(keys, 0)
	assert.Equal(t, [][]int{{0, 2}, {1, 4}, {3}}, clusters)
}

func TestClusterByUMIFuzzy(t *testing.T) {
	keys := []string{"AAAA", "AAAT", "GGGG"}
	clusters := clusterByUMI(keys, 1)
	assert.Equal(t, [][]int{{0, 1}, {2}}, clusters)

	// components are transitive: A-B and B-C joins A and C
	keys = []string{"AAAA", "AAAT", "AATT"}
	clusters = clusterByUMI(keys, 1)
	assert.Equal(t, [][]int{{0, 1, 2}}, clusters)
}

func TestClusterByUMIFuzzyOrderIndependent(t *testing.T) {
	forward := clusterByUMI([]string{"AAAA", "AAAT", "GGGG", "GGGT"}, 1)
	reversed := clusterByUMI([]string{"GGGT", "GGGG", "AAAT", "AAAA"}, 1)
	assert.Len(t, forward, 2)
	assert.Len(t, reversed, 2)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, forward)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, reversed)
}
