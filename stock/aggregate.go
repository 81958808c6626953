// Package stock merges the two heterogeneous provider stock feeds into one
// lookup by grouped service. The merge is a pure projection: recomputed in
// full whenever an input changes, never updated incrementally.
package stock

import (
	"strconv"
	"strings"
)

// SuffixFeed is the smsbower-shaped feed: per server, keys "service_N" with
// string counts, where _N is an operator slot.
type SuffixFeed map[string]map[string]string

// OperatorFeed is the fivesim-shaped feed: per server, keys "code_operator"
// with integer counts.
type OperatorFeed map[string]map[string]int

// Pair links one grouped service to a (server, service-code) offer. A grouped
// service (one display name) may span several pairs across servers.
type Pair struct {
	ServerID    string
	ServiceCode string
	ServiceName string
}

// Index is the merged, normalized projection of both feeds.
type Index struct {
	suffix   map[string]map[string]int // serverID -> normalized code -> count
	operator map[string]map[string]int // serverID -> code_operator -> count
	hasData  bool
}

// normalizeSuffixKeys strips the numeric _N suffix from each key, parses the
// remainder as the service code, and sums counts that collapse to the same
// code. Unparseable counts contribute zero but still mark the code present.
func normalizeSuffixKeys(feed map[string]string) map[string]int {
	out := make(map[string]int, len(feed))
	for key, countStr := range feed {
		code := key
		if i := strings.LastIndex(key, "_"); i > 0 {
			if _, err := strconv.Atoi(key[i+1:]); err == nil {
				code = key[:i]
			}
		}
		n, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil {
			n = 0
		}
		out[code] += n
	}
	return out
}

// Build computes the merged index from both upstream feeds.
func Build(suffix SuffixFeed, operator OperatorFeed) *Index {
	ix := &Index{
		suffix:   make(map[string]map[string]int, len(suffix)),
		operator: make(map[string]map[string]int, len(operator)),
	}
	for serverID, feed := range suffix {
		if len(feed) == 0 {
			continue
		}
		ix.suffix[serverID] = normalizeSuffixKeys(feed)
		ix.hasData = true
	}
	for serverID, feed := range operator {
		if len(feed) == 0 {
			continue
		}
		m := make(map[string]int, len(feed))
		for k, v := range feed {
			m[k] = v
		}
		ix.operator[serverID] = m
		ix.hasData = true
	}
	return ix
}

// normalizeName lowercases and strips separators so "Google Messages"
// compares equal to "googlemessages".
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r == ' ' || r == '-' || r == '_' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ServiceTotal returns the total stock for a grouped service over its
// constituent pairs, or nil when neither feed carried any data at all. A
// matched-but-zero total reports 0, distinguishing "out of stock" from "no
// stock source available".
func (ix *Index) ServiceTotal(pairs []Pair) *int {
	if !ix.hasData {
		return nil
	}
	total := 0
	for _, p := range pairs {
		total += ix.pairStock(p)
	}
	return &total
}

func (ix *Index) pairStock(p Pair) int {
	n := 0
	if byCode, ok := ix.suffix[p.ServerID]; ok {
		if v, ok := byCode[p.ServiceCode]; ok {
			n += v
		} else {
			// Fallback: normalized-name equality against the feed keys.
			want := normalizeName(p.ServiceName)
			for code, v := range byCode {
				if normalizeName(code) == want {
					n += v
				}
			}
		}
	}
	if byOp, ok := ix.operator[p.ServerID]; ok {
		if v, ok := byOp[p.ServiceCode]; ok {
			n += v
		} else {
			// All operators for the code.
			prefix := p.ServiceCode + "_"
			for key, v := range byOp {
				if strings.HasPrefix(key, prefix) {
					n += v
				}
			}
		}
	}
	return n
}
