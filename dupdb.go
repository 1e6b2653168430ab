package main

import (
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// dedupRow is one line of the dedup table: the representative read group of
// a cluster, how many groups the cluster holds, the names of the duplicates
// removed, and the location key the cluster was found at. A cluster size of
// zero marks a read group rejected for an unresolvable UMI error.
type dedupRow struct {
	rep  string
	size int
	dups []string
	loc  string
}

func (r dedupRow) String() string {
	dups := "."
	if len(r.dups) > 0 {
		dups = strings.Join(r.dups, ",")
	}
	return strings.Join([]string{r.rep, strconv.Itoa(r.size), dups, r.loc}, "\t")
}

// betterRepresentative reports whether a should represent a cluster rather
// than b: highest total mapping quality, then longest total aligned length,
// then the lexicographically smallest name.
func betterRepresentative(a, b *ReadGroup) bool {
	if a.MapQTotal() != b.MapQTotal() {
		return a.MapQTotal() > b.MapQTotal()
	}
	if a.AlignedLenTotal() != b.AlignedLenTotal() {
		return a.AlignedLenTotal() > b.AlignedLenTotal()
	}
	return a.Name() < b.Name()
}

// classifyBucket partitions one location bucket into UMI clusters and picks
// a representative per cluster. Each bucket is independent, so buckets are
// classified in parallel and stitched back together by sequence number.
func classifyBucket(seq int, b *LocationBucket, policy *umiPolicy) *bucketResult {
	res := &bucketResult{seq: seq, rep: newReport()}
	if b.state != bucketFinalized {
		res.err = errors.Errorf("location bucket %s is not finalized and cannot be classified", b.Key)
		return res
	}

	kept := make([]*ReadGroup, 0, len(b.Groups))
	keys := make([]string, 0, len(b.Groups))
	for _, g := range b.Groups {
		key, hadError, corrected := policy.resolveUMIKey(g.UMIKey())
		if hadError {
			res.rep.incr(numUMIErrors)
		}
		res.rep.add(numUMICorrected, corrected)
		if policy.reject && hadError && !policy.resolved(key) {
			res.rep.incr(numUMIRejected)
			for _, umi := range strings.Split(key, DelimAnnoReadPair) {
				if !policy.knownSet[umi] {
					res.rep.incr(fmt.Sprintf("umi_errors_at_distance_%d", reportUMI(umi, policy.known).dist))
				}
			}
			res.lines = append(res.lines, dedupRow{rep: g.Name(), loc: b.Key}.String())
			continue
		}
		kept = append(kept, g)
		keys = append(keys, key)
	}
	b.state = bucketClassified

	for _, cluster := range clusterByUMI(keys, policy.maxMismatches) {
		res.rep.incr(numClusters)

		best := cluster[0]
		for _, i := range cluster[1:] {
			if betterRepresentative(kept[i], kept[best]) {
				best = i
			}
		}

		row := dedupRow{rep: kept[best].Name(), size: len(cluster), loc: b.Key}
		for _, i := range cluster {
			if i != best {
				row.dups = append(row.dups, kept[i].Name())
			}
		}
		if len(row.dups) > 0 {
			res.rep.incr(numDupGroups)
			res.rep.add(numDuplicates, len(row.dups))
		}
		res.lines = append(res.lines, row.String())
	}
	b.state = bucketEmitted
	return res
}

type bucketJob struct {
	seq  int
	line string
}

type bucketResult struct {
	seq   int
	lines []string
	rep   *report
	err   error
}

// runBuildDupDB streams the location database through a pool of classifier
// workers into the dedup table. Workers finish buckets out of order; the
// writer reassembles them by sequence number so repeated runs over the same
// input produce byte-identical output.
func runBuildDupDB(opt stageConfig) (*report, error) {
	rep := newReport()

	policy, err := newUMIPolicy(opt)
	if err != nil {
		return rep, err
	}

	inPath, err := findArtifact(opt.File, suffixLocDB, opt.OutDir)
	if err != nil {
		return rep, err
	}
	sc, err := openArtifact(inPath, locDBMagic)
	if err != nil {
		return rep, err
	}
	defer sc.Close()

	outPath := artifactPath(opt.File, suffixDedup, opt.OutDir, false)
	w, err := newArtifactWriter(outPath, dedupHeader, false)
	if err != nil {
		return rep, err
	}

	jobs := make(chan bucketJob)
	results := make(chan *bucketResult)

	var workerWG, writerWG sync.WaitGroup
	var firstErr error

	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		pending := make(map[int]*bucketResult)
		next := 0
		for res := range results {
			pending[res.seq] = res
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++

				rep.merge(r.rep)
				if firstErr == nil && r.err != nil {
					firstErr = r.err
				}
				if firstErr != nil {
					continue
				}
				for _, line := range r.lines {
					if err := w.WriteLine(line); err != nil {
						firstErr = err
						break
					}
				}
			}
		}
	}()

	for i := 0; i < maxInt(1, opt.Process); i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for job := range jobs {
				b, err := decodeBucket(job.line)
				if err != nil {
					results <- &bucketResult{seq: job.seq, rep: newReport(), err: err}
					continue
				}
				res := classifyBucket(job.seq, b, policy)
				b.state = bucketDiscarded
				results <- res
			}
		}()
	}

	seq := 0
	for sc.Next() {
		jobs <- bucketJob{seq: seq, line: sc.Line()}
		seq++
	}
	close(jobs)
	workerWG.Wait()
	close(results)
	writerWG.Wait()

	if err := sc.Err(); err != nil {
		w.Abort()
		return rep, err
	}
	if firstErr != nil {
		w.Abort()
		return rep, firstErr
	}
	if err := w.Finish(); err != nil {
		return rep, err
	}

	sugar.Infof("dedup table written to %s (%d duplicates in %d clusters)",
		outPath, rep.get(numDuplicates), rep.get(numClusters))
	return rep, nil
}

// writeSummary renders the merged run counters next to the dedup output.
func writeSummary(opt stageConfig, rep *report) error {
	path := artifactPath(opt.File, suffixSummary, opt.OutDir, false)
	if err := ioutil.WriteFile(path, []byte(rep.render()), 0644); err != nil {
		return &ArtifactIOError{Op: "write", Path: path, Err: err}
	}
	sugar.Infof("summary written to %s", path)
	return nil
}
