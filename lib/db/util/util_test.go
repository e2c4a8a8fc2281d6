package util

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestShardIndexIsStable(t *testing.T) {
	// Known values pin the placement function: changing it would strand
	// every key written by an older version in the wrong shard.
	if got := HashKey([]byte("foo")); got != HashString("foo") {
		t.Fatalf("HashKey and HashString disagree: %d != %d", got, HashString("foo"))
	}

	for n := 1; n <= 16; n++ {
		for i := 0; i < 100; i++ {
			key := []byte(fmt.Sprintf("key-%d", i))
			first := ShardIndex(key, n)
			if first < 0 || first >= n {
				t.Fatalf("ShardIndex(%q, %d) = %d out of range", key, n, first)
			}
			if again := ShardIndex(key, n); again != first {
				t.Fatalf("ShardIndex(%q, %d) not deterministic: %d != %d", key, n, first, again)
			}
		}
	}

	if ShardIndex([]byte("anything"), 0) != 0 {
		t.Errorf("ShardIndex with n=0 should return 0")
	}
}

func TestShardIndexSpread(t *testing.T) {
	const shards = 8
	counts := make([]uint64, shards)
	for i := 0; i < 8000; i++ {
		counts[ShardIndex([]byte(fmt.Sprintf("item:%d", i)), shards)]++
	}
	dist := NewDistributionStats(counts)
	if dist.DistributionQuality < 0.8 {
		t.Errorf("poor key distribution: %+v", dist)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"1345", 1345, false},
		{"1K", 1024, false},
		{"4k", 4096, false},
		{"64M", 64 << 20, false},
		{"2g", 2 << 30, false},
		{" 10M ", 10 << 20, false},
		{"", 0, true},
		{"K", 0, true},
		{"12X", 0, true},
		{"1.5G", 0, true},
		{"-1", 0, true},
		{"99999999999999999999G", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitPathList(t *testing.T) {
	got := SplitPathList(" /a ,/b,,/c/d ")
	want := []string{"/a", "/b", "/c/d"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("SplitPathList = %v, want %v", got, want)
	}
	if len(SplitPathList("")) != 0 {
		t.Errorf("empty list should yield no paths")
	}
}

func TestCounters(t *testing.T) {
	c := NewCounters()
	c.OnPut(-1, 10)
	c.OnPut(-1, 5)
	c.OnPut(10, 3) // overwrite of the first value
	c.OnRead(3)

	if c.Records() != 2 {
		t.Errorf("Records = %d, want 2", c.Records())
	}
	if c.DataBytes() != 8 {
		t.Errorf("DataBytes = %d, want 8", c.DataBytes())
	}

	c.OnDelete(3)
	c.OnDelete(5)
	c.OnDelete(5) // drift must never show up as a huge unsigned value
	if c.Records() != 0 || c.DataBytes() != 0 {
		t.Errorf("counters should clamp at zero, got records=%d bytes=%d", c.Records(), c.DataBytes())
	}

	snap := c.Snapshot()
	if snap.ReadBytes != 3 || snap.WriteBytes != 18 {
		t.Errorf("unexpected io counters: %+v", snap)
	}
}

func TestCountersConcurrent(t *testing.T) {
	c := NewCounters()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.OnPut(-1, 2)
				_ = c.Records()
			}
		}()
	}
	wg.Wait()
	if c.Records() != 8000 || c.DataBytes() != 16000 {
		t.Errorf("lost updates: records=%d bytes=%d", c.Records(), c.DataBytes())
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()

	if _, ok, err := LoadCounters(dir); err != nil || ok {
		t.Fatalf("missing sidecar should be (ok=false, err=nil), got ok=%v err=%v", ok, err)
	}

	want := CounterSnapshot{Records: 3, DataBytes: 42, ReadBytes: 7, WriteBytes: 99}
	if err := SaveCounters(dir, want); err != nil {
		t.Fatalf("SaveCounters: %v", err)
	}
	got, ok, err := LoadCounters(dir)
	if err != nil || !ok {
		t.Fatalf("LoadCounters: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("LoadCounters = %+v, want %+v", got, want)
	}
}

func TestReadCountersRejectsGarbage(t *testing.T) {
	if _, err := ReadCounters(bytes.NewReader([]byte("not a stats file at all"))); err == nil {
		t.Errorf("expected magic number error")
	}

	var buf bytes.Buffer
	buf.WriteString(sidecarMagic)
	buf.WriteByte(sidecarVersion + 1)
	if _, err := ReadCounters(&buf); err == nil {
		t.Errorf("expected version error")
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(512); got != "512 B" {
		t.Errorf("FormatBytes(512) = %q", got)
	}
	if got := FormatBytes(3 << 20); got != "3.00 MiB" {
		t.Errorf("FormatBytes(3MiB) = %q", got)
	}
}

func TestDistributionStats(t *testing.T) {
	balanced := NewDistributionStats([]uint64{10, 10, 10, 10})
	if balanced.DistributionQuality != 1.0 || balanced.StdDeviation != 0 || balanced.Mean != 10 {
		t.Errorf("balanced shards: %+v", balanced)
	}

	skewed := NewDistributionStats([]uint64{0, 0, 0, 40})
	if skewed.Min != 0 || skewed.Max != 40 || skewed.Mean != 10 {
		t.Errorf("skewed shards: %+v", skewed)
	}
	if skewed.DistributionQuality >= 0.5 {
		t.Errorf("skewed shards should have a low quality, got %f", skewed.DistributionQuality)
	}

	if empty := NewDistributionStats(nil); empty != (DistributionStats{}) {
		t.Errorf("no shards: %+v", empty)
	}
}
