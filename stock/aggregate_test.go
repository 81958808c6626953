package stock

import "testing"

func TestBuildNormalizesSuffixKeys(t *testing.T) {
	ix := Build(SuffixFeed{
		"srv1": {
			"tg_0": "10",
			"tg_1": "5",
			"wa":   "3",
			"ig_2": "junk", // unparseable count still marks the code present
		},
	}, nil)

	pairs := func(code string) []Pair {
		return []Pair{{ServerID: "srv1", ServiceCode: code, ServiceName: code}}
	}
	if got := ix.ServiceTotal(pairs("tg")); got == nil || *got != 15 {
		t.Fatalf("tg total = %v, want 15", got)
	}
	if got := ix.ServiceTotal(pairs("wa")); got == nil || *got != 3 {
		t.Fatalf("wa total = %v, want 3", got)
	}
	if got := ix.ServiceTotal(pairs("ig")); got == nil || *got != 0 {
		t.Fatalf("ig total = %v, want 0 (present, unparseable count)", got)
	}
}

func TestServiceTotalNilWithoutData(t *testing.T) {
	ix := Build(nil, nil)
	if got := ix.ServiceTotal([]Pair{{ServerID: "srv1", ServiceCode: "tg"}}); got != nil {
		t.Fatalf("no feed data must report nil, got %d", *got)
	}

	// Empty per-server maps carry no data either.
	ix = Build(SuffixFeed{"srv1": {}}, OperatorFeed{"srv2": {}})
	if got := ix.ServiceTotal([]Pair{{ServerID: "srv1", ServiceCode: "tg"}}); got != nil {
		t.Fatalf("empty feeds must report nil, got %d", *got)
	}
}

func TestServiceTotalZeroDistinctFromNil(t *testing.T) {
	ix := Build(SuffixFeed{"srv1": {"tg_0": "10"}}, nil)

	// A pair the feed doesn't know: matched feed, zero count.
	got := ix.ServiceTotal([]Pair{{ServerID: "srv1", ServiceCode: "zz", ServiceName: "Unknown App"}})
	if got == nil {
		t.Fatal("with feed data present the total must be concrete, not nil")
	}
	if *got != 0 {
		t.Fatalf("unknown service total = %d, want 0", *got)
	}
}

func TestPairStockNameFallback(t *testing.T) {
	ix := Build(SuffixFeed{
		"srv1": {"Google Messages_0": "7"},
	}, nil)

	// Code misses, but the normalized display name matches the feed key.
	got := ix.ServiceTotal([]Pair{{ServerID: "srv1", ServiceCode: "gm", ServiceName: "googlemessages"}})
	if got == nil || *got != 7 {
		t.Fatalf("name-fallback total = %v, want 7", got)
	}
}

func TestPairStockOperatorPrefixFallback(t *testing.T) {
	ix := Build(nil, OperatorFeed{
		"srv2": {
			"tg_mts":     4,
			"tg_beeline": 6,
			"wa_any":     2,
		},
	})

	// No bare "tg" key: all operators under the code_ prefix are summed.
	got := ix.ServiceTotal([]Pair{{ServerID: "srv2", ServiceCode: "tg"}})
	if got == nil || *got != 10 {
		t.Fatalf("operator-prefix total = %v, want 10", got)
	}
}

func TestServiceTotalSpansServers(t *testing.T) {
	ix := Build(
		SuffixFeed{"srv1": {"tg_0": "10"}},
		OperatorFeed{"srv2": {"tg": 5}},
	)
	pairs := []Pair{
		{ServerID: "srv1", ServiceCode: "tg", ServiceName: "Telegram"},
		{ServerID: "srv2", ServiceCode: "tg", ServiceName: "Telegram"},
	}
	if got := ix.ServiceTotal(pairs); got == nil || *got != 15 {
		t.Fatalf("cross-server total = %v, want 15", got)
	}
}

// Rebuilding from the same inputs must yield the same projection; the merge
// has no hidden state.
func TestBuildIdempotent(t *testing.T) {
	suffix := SuffixFeed{"srv1": {"tg_0": "10", "tg_1": "5"}}
	operator := OperatorFeed{"srv2": {"tg_mts": 4}}
	pairs := []Pair{
		{ServerID: "srv1", ServiceCode: "tg"},
		{ServerID: "srv2", ServiceCode: "tg"},
	}

	a := Build(suffix, operator).ServiceTotal(pairs)
	b := Build(suffix, operator).ServiceTotal(pairs)
	if a == nil || b == nil || *a != *b {
		t.Fatalf("rebuild changed the total: %v vs %v", a, b)
	}
	if *a != 19 {
		t.Fatalf("total = %d, want 19", *a)
	}
}
