package main

import "github.com/biogo/hts/sam"

// skipReason classifies records that never make it into the read database.
type skipReason int

const (
	keepRecord skipReason = iota
	skipUnmapped
	skipFiltered
)

// filterRecord decides whether an alignment record enters the pipeline.
// Unmapped, secondary, supplementary and QC-failed records are skipped and
// counted, never silently dropped.
func filterRecord(record *sam.Record) skipReason {
	if record.Flags&sam.Unmapped != 0 {
		return skipUnmapped
	}

	if record.Flags&sam.QCFail != 0 {
		return skipFiltered
	}

	if record.Flags&sam.Secondary != 0 || record.Flags&sam.Supplementary != 0 {
		return skipFiltered
	}

	return keepRecord
}
