package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDedupTable(t *testing.T) {
	dir, err := ioutil.TempDir("", "umidedup-test-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "sample.dedup.tsv")
	writeTestArtifact(t, path, dedupHeader, false,
		dedupRow{rep: "R1-AACCTT;0", size: 3, dups: []string{"R2-AACCTT;0", "R4-AACCTT;0"}, loc: "chr1:100:+"}.String(),
		dedupRow{rep: "R3-GGTTAA;0", size: 1, loc: "chr1:100:+"}.String(),
		dedupRow{rep: "R5-NNNNNN;0", loc: "chr1:200:+"}.String(),
	)

	dupNames, rejectNames, err := loadDedupTable(path)
	require.NoError(t, err)

	assert.True(t, dupNames.Has("R2-AACCTT;0"))
	assert.True(t, dupNames.Has("R4-AACCTT;0"))
	assert.False(t, dupNames.Has("R1-AACCTT;0"))
	assert.False(t, dupNames.Has("R3-GGTTAA;0"))

	assert.True(t, rejectNames.Has("R5-NNNNNN;0"))
	assert.False(t, rejectNames.Has("R1-AACCTT;0"))
}

func TestLoadDedupTableRejectsGarbage(t *testing.T) {
	dir, err := ioutil.TempDir("", "umidedup-test-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "bad.dedup.tsv")
	writeTestArtifact(t, path, dedupHeader, false, "only\tthree\tfields")

	_, _, err = loadDedupTable(path)
	assert.Error(t, err)
}

func TestReportRender(t *testing.T) {
	rep := newReport()
	rep.incr(numReadsIn)
	rep.incr(numReadsIn)
	rep.add(numDuplicates, 5)

	other := newReport()
	other.incr(numReadsIn)
	rep.merge(other)

	assert.Equal(t, 3, rep.get(numReadsIn))
	assert.Equal(t, "metric\tcount\nduplicates_removed\t5\nreads_in\t3\n", rep.render())
}
