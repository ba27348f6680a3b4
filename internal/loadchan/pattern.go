package loadchan

import "math/rand"

// PatternSize is the size of the reusable send buffer each load stream
// writes from (§4.4): a fixed 1 MiB pattern, regenerated once per stream
// to avoid per-write allocation.
const PatternSize = 1 << 20

// NewPattern returns a PatternSize buffer of pseudo-random bytes. Each
// caller gets its own buffer; per §5 the pattern is per-task, never
// shared across streams.
func NewPattern() []byte {
	buf := make([]byte, PatternSize)
	rand.New(rand.NewSource(patternSeed())).Read(buf)
	return buf
}

// patternSeed returns a fixed seed, so every pattern has the same
// content; the content is never inspected, only its length.
var patternSeed = func() int64 { return 0x5E75c0de }
