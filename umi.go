package main

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// hamming counts mismatching positions. Length mismatches are treated as
// infinitely far apart.
func hamming(a, b string) int {
	if len(a) != len(b) {
		return len(a) + len(b)
	}
	d := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

// umiDistance compares two whole-template UMI keys slot by slot
// ("GGCCTAAT^AGCTCTAG" vs "GGCCTAAC^AGCTCTAG" is distance 1). Keys with a
// different slot count never match.
func umiDistance(a, b string) int {
	as := strings.Split(a, DelimAnnoReadPair)
	bs := strings.Split(b, DelimAnnoReadPair)
	if len(as) != len(bs) {
		return len(a) + len(b)
	}
	d := 0
	for i := range as {
		d += hamming(as[i], bs[i])
	}
	return d
}

// umiReport describes how far a sequenced UMI is from the known whitelist:
// the minimal Hamming distance and every known UMI at that distance.
type umiReport struct {
	dist       int
	candidates []string
}

// reportUMI finds the whitelist entries closest to the sequenced UMI. A
// distance of zero means the UMI is a known one.
func reportUMI(umi string, known []string) umiReport {
	rep := umiReport{dist: len(umi) + 1}
	for _, k := range known {
		d := hamming(k, umi)
		if d < rep.dist {
			rep.dist = d
			rep.candidates = rep.candidates[:0]
		}
		if d == rep.dist {
			rep.candidates = append(rep.candidates, k)
		}
	}
	return rep
}

// correctable reports whether the sequenced UMI may be conservatively
// rewritten: exactly one known UMI at distance exactly one.
func (r umiReport) correctable() bool {
	return r.dist == 1 && len(r.candidates) == 1
}

// umiPolicy holds the configured matching behavior of the classifier.
type umiPolicy struct {
	maxMismatches int
	known         []string
	knownSet      map[string]bool
	correct       bool
	reject        bool
}

func newUMIPolicy(opt stageConfig) (*umiPolicy, error) {
	p := &umiPolicy{
		maxMismatches: opt.UMIMismatches,
		correct:       opt.CorrectUMIs,
		reject:        opt.RejectUMIErrors,
	}
	known, err := loadKnownUMIs(opt.KnownUMIs)
	if err != nil {
		return nil, err
	}
	p.known = known
	p.knownSet = make(map[string]bool, len(known))
	for _, k := range known {
		p.knownSet[k] = true
	}
	if (p.correct || p.reject) && len(p.known) == 0 {
		return nil, errors.New("UMI correction and rejection both require a known UMI file")
	}
	return p, nil
}

// resolved reports whether every slot of a UMI key is a known UMI.
func (p *umiPolicy) resolved(key string) bool {
	for _, umi := range strings.Split(key, DelimAnnoReadPair) {
		if !p.knownSet[umi] {
			return false
		}
	}
	return true
}

// resolveUMIKey applies whitelist reporting and optional correction to a
// read group's UMI key. It returns the (possibly corrected) key, whether
// any slot had a UMI error, and how many slots were corrected.
func (p *umiPolicy) resolveUMIKey(key string) (string, bool, int) {
	if len(p.known) == 0 {
		return key, false, 0
	}
	slots := strings.Split(key, DelimAnnoReadPair)
	hadError := false
	corrected := 0
	for i, umi := range slots {
		rep := reportUMI(umi, p.known)
		if rep.dist == 0 {
			continue
		}
		hadError = true
		if p.correct && rep.correctable() {
			slots[i] = rep.candidates[0]
			corrected++
		}
	}
	return strings.Join(slots, DelimAnnoReadPair), hadError, corrected
}

// clusterByUMI partitions the groups of one location bucket into duplicate
// clusters. With maxMismatches == 0 clustering is exact key equality; with a
// positive tolerance, clusters are the connected components of the
// "distance <= tolerance" relation, which is independent of input order.
func clusterByUMI(keys []string, maxMismatches int) [][]int {
	if maxMismatches <= 0 {
		byKey := make(map[string][]int)
		order := make([]string, 0, len(keys))
		for i, key := range keys {
			if _, ok := byKey[key]; !ok {
				order = append(order, key)
			}
			byKey[key] = append(byKey[key], i)
		}
		clusters := make([][]int, 0, len(order))
		for _, key := range order {
			clusters = append(clusters, byKey[key])
		}
		return clusters
	}

	parent := make([]int, len(keys))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			// root at the smaller index keeps components deterministic
			if ri > rj {
				ri, rj = rj, ri
			}
			parent[rj] = ri
		}
	}

	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if umiDistance(keys[i], keys[j]) <= maxMismatches {
				union(i, j)
			}
		}
	}

	members := make(map[int][]int)
	roots := make([]int, 0)
	for i := range keys {
		root := find(i)
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], i)
	}
	sort.Ints(roots)
	clusters := make([][]int, 0, len(roots))
	for _, root := range roots {
		clusters = append(clusters, members[root])
	}
	return clusters
}
