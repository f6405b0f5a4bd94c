package bloom

import (
	"fmt"
	"testing"
)

func benchMakeHosts(n int, suffix string) [][]byte {
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = []byte(fmt.Sprintf("h%03d.%s", i, suffix))
	}
	return out
}

// Benchmark positive and negative lookups on a filter populated with 1,000 hosts.
func BenchmarkBloom_Positive(b *testing.B) {
	const n = 1000
	bf := NewFactory().New(n, 0.01)
	keys := benchMakeHosts(n, "bench.test")
	for _, k := range keys {
		bf.Add(k)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = bf.MightContain(keys[i%len(keys)])
	}
}

func BenchmarkBloom_Negative(b *testing.B) {
	const n = 1000
	bf := NewFactory().New(n, 0.01)
	for _, k := range benchMakeHosts(n, "present.test") {
		bf.Add(k)
	}
	absent := benchMakeHosts(n, "absent.test")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = bf.MightContain(absent[i%len(absent)])
	}
}

// BenchmarkBloom_FalsePositiveRate reports the observed false positive rate
// against a disjoint set as fp_count and fp_percent.
func BenchmarkBloom_FalsePositiveRate(b *testing.B) {
	const n = 1000
	const p = 0.01
	const trials = 100_000

	bf := NewFactory().New(n, p)
	for _, k := range benchMakeHosts(n, "present.fpr") {
		bf.Add(k)
	}
	absent := benchMakeHosts(trials, "absent.fpr")

	b.ReportAllocs()
	b.ResetTimer()
	fp := 0
	for i := 0; i < trials; i++ {
		if bf.MightContain(absent[i]) {
			fp++
		}
	}
	b.StopTimer()
	b.ReportMetric(float64(fp), "fp_count")
	b.ReportMetric(float64(fp)/float64(trials)*100, "fp_percent")
}
