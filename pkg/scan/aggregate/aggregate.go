// Package aggregate keeps the scan-wide deduplication set and counters.
package aggregate

import (
	"github.com/CompassSecurity/envhunter/pkg/scanner/types"
	"github.com/rxwycdh/rxhash"
)

// DiscoveryKey identifies a (name, value) pair across the whole scan.
type DiscoveryKey string

type keyPair struct {
	Key   string
	Value string
}

// NewDiscoveryKey hashes a variable name and value into a comparable token.
func NewDiscoveryKey(key string, value string) DiscoveryKey {
	hash, err := rxhash.HashStruct(keyPair{Key: key, Value: value})
	if err != nil {
		// NUL cannot occur in JSON object keys, so the pair stays unambiguous
		return DiscoveryKey(key + "\x00" + value)
	}
	return DiscoveryKey(hash)
}

// Counters is a read-only copy of the aggregate counters.
type Counters struct {
	JobsVisited         int
	BuildsVisited       int
	BuildsWithSensitive int
	TotalSensitiveVars  int
	// TotalEnvVars is only tracked when every variable is reported
	TotalEnvVars int
	UniqueValues int
	TracksAll    bool
}

// ScanAggregate is a single-writer accumulator owned by one scan.
type ScanAggregate struct {
	counters Counters
	seen     map[DiscoveryKey]struct{}
}

// NewScanAggregate creates an empty aggregate. trackAll enables the total
// environment variable counter used when every variable is reported.
func NewScanAggregate(trackAll bool) *ScanAggregate {
	return &ScanAggregate{
		counters: Counters{TracksAll: trackAll},
		seen:     map[DiscoveryKey]struct{}{},
	}
}

func (a *ScanAggregate) VisitJob() {
	a.counters.JobsVisited++
}

func (a *ScanAggregate) VisitBuild() {
	a.counters.BuildsVisited++
}

// Record accounts for one build and returns the reported entries whose
// (name, value) pair has never been seen before in this scan, in input order.
func (a *ScanAggregate) Record(reported types.EnvSnapshot, sensitive types.EnvSnapshot) []types.EnvVar {
	if len(sensitive) > 0 {
		a.counters.BuildsWithSensitive++
	}
	a.counters.TotalSensitiveVars += len(sensitive)
	if a.counters.TracksAll {
		a.counters.TotalEnvVars += len(reported)
	}

	fresh := []types.EnvVar{}
	for _, v := range reported {
		if a.hasSeen(v.Key, v.Value) {
			continue
		}
		a.seen[NewDiscoveryKey(v.Key, v.Value)] = struct{}{}
		fresh = append(fresh, v)
	}
	a.counters.UniqueValues = len(a.seen)

	return fresh
}

// hasSeen reports whether the pair was already recorded.
func (a *ScanAggregate) hasSeen(key string, value string) bool {
	_, ok := a.seen[NewDiscoveryKey(key, value)]
	return ok
}

func (a *ScanAggregate) Snapshot() Counters {
	return a.counters
}
