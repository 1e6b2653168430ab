package main

import (
	"compress/gzip"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSAM = "@HD\tVN:1.6\tSO:coordinate\n" +
	"@SQ\tSN:chr1\tLN:10000\n" +
	"r1-ACGT;0\t0\tchr1\t100\t40\t20M\t*\t0\t0\t*\t*\n" +
	"r2-CCCC;2\t16\tchr1\t200\t30\t20M\t*\t0\t0\t*\t*\n"

func readAllRecords(t *testing.T, path string) []string {
	t.Helper()
	src, err := openAlignmentFile(path)
	require.NoError(t, err)
	defer src.Close()

	var names []string
	for {
		rec, err := src.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, rec.Name)
	}
	return names
}

func TestOpenAlignmentFilePlainSAM(t *testing.T) {
	dir, err := ioutil.TempDir("", "umidedup-test-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "sample.sam")
	require.NoError(t, ioutil.WriteFile(path, []byte(testSAM), 0644))

	assert.Equal(t, []string{"r1-ACGT;0", "r2-CCCC;2"}, readAllRecords(t, path))
}

func TestOpenAlignmentFileGzippedSAM(t *testing.T) {
	dir, err := ioutil.TempDir("", "umidedup-test-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "sample.sam.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	_, err = gw.Write([]byte(testSAM))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())

	assert.Equal(t, []string{"r1-ACGT;0", "r2-CCCC;2"}, readAllRecords(t, path))
}

func TestOpenAlignmentFileMissing(t *testing.T) {
	_, err := openAlignmentFile("does-not-exist.sam")
	assert.Error(t, err)
}

func TestLoadKnownUMIs(t *testing.T) {
	dir, err := ioutil.TempDir("", "umidedup-test-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "umis.fa")
	fasta := ">umi1\nAACCTT\n>umi2\nggttaa\n"
	require.NoError(t, ioutil.WriteFile(path, []byte(fasta), 0644))

	umis, err := loadKnownUMIs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AACCTT", "GGTTAA"}, umis)

	umis, err = loadKnownUMIs("")
	require.NoError(t, err)
	assert.Empty(t, umis)
}
