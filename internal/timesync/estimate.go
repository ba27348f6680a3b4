package timesync

import (
	"sort"
	"time"
)

// lowRTTWeight is how many times in total each of the 10 lowest-RTT
// triples is counted in the median (once as an ordinary sample plus
// lowRTTWeight-1 extra copies), implementing §4.2's "10 lowest-RTT
// samples weighted".
const lowRTTWeight = 3

// estimate computes the offset (server time -> client time, i.e.
// t_client = t_server - offset) as the median, over all samples, of
// echo_s - (send_c+recv_c)/2, with the 10 lowest-RTT samples counted
// lowRTTWeight times. Residual is half the spread between the 10th and
// 90th percentile per-sample estimates, a simple dispersion measure.
func estimate(triples []triple) Result {
	type sample struct {
		rtt time.Duration
		est float64 // microseconds
	}
	samples := make([]sample, len(triples))
	for i, t := range triples {
		rtt := t.recvC.Sub(t.sendC)
		sendUs := float64(t.sendC.UnixMicro())
		recvUs := float64(t.recvC.UnixMicro())
		est := float64(t.echoS) - (sendUs+recvUs)/2
		samples[i] = sample{rtt: rtt, est: est}
	}

	byRTT := append([]sample(nil), samples...)
	sort.Slice(byRTT, func(i, j int) bool { return byRTT[i].rtt < byRTT[j].rtt })

	weightCount := lowRTTWeight
	lowCount := 10
	if lowCount > len(byRTT) {
		lowCount = len(byRTT)
	}

	weighted := make([]float64, 0, len(samples)+lowCount*(weightCount-1))
	for _, s := range samples {
		weighted = append(weighted, s.est)
	}
	for _, s := range byRTT[:lowCount] {
		for i := 1; i < weightCount; i++ {
			weighted = append(weighted, s.est)
		}
	}
	sort.Float64s(weighted)
	offsetUs := median(weighted)

	ests := make([]float64, len(samples))
	for i, s := range samples {
		ests[i] = s.est
	}
	sort.Float64s(ests)
	residualUs := percentileSpread(ests)

	return Result{
		Offset:   time.Duration(offsetUs) * time.Microsecond,
		Residual: time.Duration(residualUs) * time.Microsecond,
		Samples:  len(triples),
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentileSpread returns half the distance between the 10th and 90th
// percentile of a sorted slice, as a dispersion measure.
func percentileSpread(sorted []float64) float64 {
	n := len(sorted)
	if n < 2 {
		return 0
	}
	lo := sorted[n*10/100]
	hi := sorted[n*90/100]
	if hi < lo {
		hi, lo = lo, hi
	}
	return (hi - lo) / 2
}
