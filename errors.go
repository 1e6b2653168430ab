package main

import "fmt"

// Per-record anomalies (malformed records, missing annotations, unmatched
// mates) are recovered locally and counted; structural anomalies (ordering,
// artifact I/O) abort the stage.

// InputFormatError marks a record that could not be parsed. The record is
// skipped and counted.
type InputFormatError struct {
	Name   string
	Reason string
}

func (e *InputFormatError) Error() string {
	return fmt.Sprintf("malformed record %q: %s", e.Name, e.Reason)
}

// MissingAnnotationError marks a read whose name lacks the UMI or trim
// annotation block.
type MissingAnnotationError struct {
	Name  string
	Field string
}

func (e *MissingAnnotationError) Error() string {
	return fmt.Sprintf("read %q is missing the %s annotation", e.Name, e.Field)
}

// UnmatchedMateError marks a paired read whose mate never arrived. The read
// is retained as unpaired.
type UnmatchedMateError struct {
	Name string
}

func (e *UnmatchedMateError) Error() string {
	return fmt.Sprintf("no mate found for paired read %q", e.Name)
}

// OrderingViolationError means the input is not coordinate-sorted where the
// pipeline requires it. Fatal: buckets cannot be closed correctly.
type OrderingViolationError struct {
	Name string
	Ref  string
	Pos  int
	Prev int
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("input is not coordinate-sorted: read %q at %s:%d arrived after position %d",
		e.Name, e.Ref, e.Pos, e.Prev)
}

// ArtifactIOError wraps a failure to read or write a pipeline artifact.
// Fatal: the stage aborts and leaves any previous artifact untouched.
type ArtifactIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArtifactIOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArtifactIOError) Unwrap() error { return e.Err }
