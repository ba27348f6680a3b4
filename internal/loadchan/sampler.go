package loadchan

import (
	"sync"
	"time"

	"github.com/richb-hanover/crusader/pkg/result"
)

// naturalSampleBytes and naturalSampleGap bound how often the sampler
// records a raw point: at least every naturalSampleBytes bytes, or every
// naturalSampleGap of wall time, whichever comes first (§4.4). These are
// deliberately finer than any reasonable throughput_sample_interval so
// Downsample always has enough raw points to bucket from.
const (
	naturalSampleBytes = 64 << 10
	naturalSampleGap   = 20 * time.Millisecond
)

type rawPoint struct {
	t        time.Time
	cumBytes uint64
}

// sampler accumulates raw (time, cumulative bytes) points at the natural
// read/write granularity of a single stream, for later down-sampling to
// the configured throughput_sample_interval (§4.4).
type sampler struct {
	mu         sync.Mutex
	points     []rawPoint
	lastSample time.Time
	lastBytes  uint64
}

func newSampler(t0 time.Time) *sampler {
	return &sampler{lastSample: t0}
}

// record is called after every read/write with the stream's cumulative
// byte count so far. It only appends a new raw point once naturalSampleGap
// has elapsed or naturalSampleBytes have passed since the last one, so
// high-rate streams don't bloat the ring.
func (s *sampler) record(now time.Time, cumBytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.points) > 0 &&
		now.Sub(s.lastSample) < naturalSampleGap &&
		cumBytes-s.lastBytes < naturalSampleBytes {
		return
	}
	s.points = append(s.points, rawPoint{t: now, cumBytes: cumBytes})
	s.lastSample = now
	s.lastBytes = cumBytes
}

// finalize records a last point unconditionally, so the final cumulative
// count is always represented even if it arrived within the last natural
// sampling window.
func (s *sampler) finalize(now time.Time, cumBytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, rawPoint{t: now, cumBytes: cumBytes})
}

// downsample buckets the raw points into interval-wide windows relative
// to t0 and emits one ThroughputSample per bucket that saw data, carrying
// the last (i.e. highest) cumulative count observed in that bucket. This
// guarantees at least one sample per interval while data is flowing,
// per §4.4.
func (s *sampler) downsample(t0 time.Time, interval time.Duration, streamID uint32, dir result.Direction) []result.ThroughputSample {
	s.mu.Lock()
	points := append([]rawPoint(nil), s.points...)
	s.mu.Unlock()

	if len(points) == 0 || interval <= 0 {
		return nil
	}

	out := make([]result.ThroughputSample, 0, len(points))
	var curBucket int64 = -1
	for _, p := range points {
		bucket := int64(p.t.Sub(t0) / interval)
		if bucket == curBucket && len(out) > 0 {
			out[len(out)-1].BytesCumulative = p.cumBytes
			out[len(out)-1].Time = p.t.Sub(t0).Microseconds()
			continue
		}
		curBucket = bucket
		out = append(out, result.ThroughputSample{
			Time:            p.t.Sub(t0).Microseconds(),
			BytesCumulative: p.cumBytes,
			StreamID:        streamID,
			Direction:       dir,
		})
	}
	return out
}
