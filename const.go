package main

import (
	"time"

	"github.com/voxelbrain/goptions"
	"go.uber.org/zap"
)

var logger *zap.Logger
var sugar *zap.SugaredLogger
var conf config

const (
	// VERSION is just the version number
	VERSION = "0.2.0"

	// DelimAnno separates a read name from its annotation block
	DelimAnno = "-"
	// DelimAnnoType separates the UMI block from the trim block
	DelimAnnoType = ";"
	// DelimAnnoReadPair separates read1 values from read2 values
	DelimAnnoReadPair = "^"
	// DelimLocList separates the per-read locations inside a location key
	DelimLocList = ","

	// delimReadGroup separates serialized read groups in a location bucket line
	delimReadGroup = "\x1d"
	// delimRead separates serialized reads inside a read group
	delimRead = "\x1e"

	readDBMagic = "#umidedup\treaddb\tv1"
	locDBMagic  = "#umidedup\tlocdb\tv1"
	dedupHeader = "#representative\tcluster_size\tduplicates\tlocation"

	suffixReadDB     = "readdb"
	suffixLocDB      = "locdb"
	suffixDedup      = "dedup.tsv"
	suffixSummary    = "dedup_summary.tsv"
	suffixDedupped   = "dups_removed.sam"
	suffixFlagged    = "dups_flagged.sam"
	suffixDupOnly    = "duplicates.sam"
	suffixUMIRejects = "umi_errors.sam"
)

// Counter names surfaced in the run report.
const (
	numReadsIn         = "reads_in"
	numSkippedUnmapped = "skipped_unmapped"
	numSkippedFilter   = "skipped_secondary_supplementary_qcfail"
	numSkippedFormat   = "skipped_malformed_record"
	numSkippedNoUMI    = "skipped_missing_umi_annotation"
	numSkippedHardClip = "skipped_hard_clipped"
	numMissingTrim     = "defaulted_missing_trim_annotation"
	numOrphanMates     = "orphaned_mates_kept_unpaired"
	numReadGroups      = "read_groups"
	numLocations       = "locations"
	numClusters        = "umi_location_clusters"
	numDupGroups       = "dup_groups"
	numDuplicates      = "duplicates_removed"
	numUMIErrors       = "read_groups_with_umi_error"
	numUMICorrected    = "umis_corrected"
	numUMIRejected     = "read_groups_rejected_due_to_umi_error"
)

// stageConfig carries the flags shared by every pipeline stage. The dedup
// verb runs all three stages against the same alignment file.
type stageConfig struct {
	File            string `goptions:"-f, --file, description='The alignment file to be processed (SAM, SAM.gz or BAM)'"`
	OutDir          string `goptions:"-o, --out-dir, description='Place results in this directory'"`
	Compress        bool   `goptions:"-z, --compress, description='Compress intermediate artifacts with bgzf'"`
	Process         int    `goptions:"-p, --process, description='How many workers to use'"`
	MaxShift        int    `goptions:"--max-shift, description='Upper bound on how far trimming, soft clipping and the aligned span may shift a read 5-prime coordinate; bounds the location window'"`
	UMIMismatches   int    `goptions:"--umi-mismatches, description='Cluster UMIs within this Hamming distance (0 = exact match)'"`
	KnownUMIs       string `goptions:"--known-umis, description='FASTA file of known UMIs used to report and correct UMI errors'"`
	CorrectUMIs     bool   `goptions:"--correct-umis, description='Correct a UMI that is exactly 1nt away from exactly one known UMI'"`
	RejectUMIErrors bool   `goptions:"--reject-umi-errors, description='Drop read groups whose UMIs do not match a known UMI'"`
	WriteFlaggedSAM bool   `goptions:"--write-flagged-sam, description='Write a SAM file with duplicates flagged (0x400)'"`
	NoDeduppedSAM   bool   `goptions:"--no-write-dedupped-sam, description='Do not write the dedupped SAM output'"`
	WriteDupSAM     bool   `goptions:"--write-dup-sam, description='Write a SAM file containing only the duplicates'"`
}

type config struct {
	Version bool          `goptions:"-v, --version, description='Show version'"`
	Debug   bool          `goptions:"--debug, description='Show debug info'"`
	Log     string        `goptions:"--log, description='Save log to file'"`
	Help    goptions.Help `goptions:"-h, --help, description='Show this help'"`

	goptions.Verbs
	BuildReadDB     stageConfig `goptions:"build-read-db"`
	BuildLocationDB stageConfig `goptions:"build-location-db"`
	BuildDupDB      stageConfig `goptions:"build-dup-db"`
	Dedup           stageConfig `goptions:"dedup"`
}

// defaultMaxShift accommodates long-read spans plus generous trimming.
const defaultMaxShift = 1024

func defaultStageConfig() stageConfig {
	return stageConfig{Process: 1, MaxShift: defaultMaxShift, UMIMismatches: 0}
}

func defaultConfig() config {
	return config{
		BuildReadDB:     defaultStageConfig(),
		BuildLocationDB: defaultStageConfig(),
		BuildDupDB:      defaultStageConfig(),
		Dedup:           defaultStageConfig(),
	}
}

//TicTocTimer is structure for timer
type TicTocTimer struct {
	duration time.Duration
	start    time.Time
	repeats  int64
}

//InitTimer is constructor with default values for timer
func InitTimer() *TicTocTimer {
	return &TicTocTimer{duration: 0, start: time.Now(), repeats: 0}
}

// Tic is start timer
func (timer *TicTocTimer) Tic() {
	timer.start = time.Now()
}

//Toc is pause timer
func (timer *TicTocTimer) Toc() {
	timer.duration += time.Now().Sub(timer.start)
	timer.repeats++
}

//TicToc is total time of timer
func (timer *TicTocTimer) TicToc() time.Duration {
	return timer.duration
}
