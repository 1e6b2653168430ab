package main

import (
	"fmt"
	"sort"
	"strings"
)

// report aggregates per-run counters. Every skipped, defaulted or orphaned
// record is counted here and surfaced at stage completion.
type report struct {
	counts map[string]int
}

func newReport() *report {
	return &report{counts: make(map[string]int)}
}

func (r *report) incr(name string) {
	r.counts[name]++
}

func (r *report) add(name string, n int) {
	r.counts[name] += n
}

func (r *report) get(name string) int {
	return r.counts[name]
}

// merge folds another report's counters into this one.
func (r *report) merge(other *report) {
	for name, n := range other.counts {
		r.counts[name] += n
	}
}

func (r *report) names() []string {
	names := make([]string, 0, len(r.counts))
	for name := range r.counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// log writes every counter to the diagnostic log.
func (r *report) log(stage string) {
	for _, name := range r.names() {
		sugar.Infof("%s: %s = %d", stage, name, r.counts[name])
	}
}

// render produces the tab-separated summary written next to the dedup
// output.
func (r *report) render() string {
	var b strings.Builder
	b.WriteString("metric\tcount\n")
	for _, name := range r.names() {
		fmt.Fprintf(&b, "%s\t%d\n", name, r.counts[name])
	}
	return b.String()
}
