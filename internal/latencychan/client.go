// Package latencychan implements the UDP latency channel (§4.3): the
// client-side sender/receiver pair that drives timestamped pings and
// classifies loss, and the server-side echo responder.
package latencychan

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/memoryless"
	"github.com/richb-hanover/crusader/pkg/result"
	"github.com/richb-hanover/crusader/pkg/udpping"
)

// lossTimeout is how long the client waits for an echo before declaring
// a probe lost (§4.3).
const lossTimeout = 2 * time.Second

// Client drives the latency channel from the client side: it sends dense
// sequentially-numbered probes at Interval and classifies each as a
// LatencySample once its echo arrives or it times out.
type Client struct {
	conn     net.PacketConn
	remote   net.Addr
	interval time.Duration
	// t0 is the client's local time origin; all emitted sample timestamps
	// are microseconds signed-relative to it (§3).
	t0 time.Time
	// offset translates the server's wall-clock Unix microseconds into the
	// client's: t_client = t_server - offset (§4.2).
	offset time.Duration

	mu      sync.Mutex
	pending map[uint64]pendingProbe
	seq     uint64

	samples   []result.LatencySample
	samplesMu sync.Mutex
}

type pendingProbe struct {
	sentUs int64
	sentAt time.Time
}

// NewClient returns a latency Client. t0 is the client's virtual-time
// origin and offset is the clock offset computed by internal/timesync
// for this connection.
func NewClient(conn net.PacketConn, remote net.Addr, interval time.Duration, t0 time.Time, offset time.Duration) *Client {
	return &Client{
		conn:     conn,
		remote:   remote,
		interval: interval,
		t0:       t0,
		offset:   offset,
		pending:  make(map[uint64]pendingProbe),
	}
}

// Run starts sending and receiving probes. It blocks until ctx is
// canceled, which determines the channel's lifetime (the grace windows
// plus the load window, per §4.3). It returns the final set of samples
// once all in-flight probes have either echoed or timed out.
func (c *Client) Run(ctx context.Context) []result.LatencySample {
	var wg sync.WaitGroup
	recvCtx, cancelRecv := context.WithCancel(context.Background())
	defer cancelRecv()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sendLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.recvLoop(recvCtx)
	}()

	<-ctx.Done()
	// Let any in-flight probes either echo or expire before sweeping.
	time.Sleep(lossTimeout)
	cancelRecv()
	wg.Wait()

	c.sweepRemaining()

	c.samplesMu.Lock()
	defer c.samplesMu.Unlock()
	out := make([]result.LatencySample, len(c.samples))
	copy(out, c.samples)
	return out
}

func (c *Client) sendLoop(ctx context.Context) {
	memoryless.Run(ctx, func() {
		c.sendOne()
	}, memoryless.Config{
		Min:      c.interval,
		Expected: c.interval,
		Max:      c.interval,
	})
}

func (c *Client) sendOne() {
	seq := c.seq
	c.seq++

	now := time.Now()
	sentUs := now.Sub(c.t0).Microseconds()

	c.mu.Lock()
	c.pending[seq] = pendingProbe{sentUs: sentUs, sentAt: now}
	c.mu.Unlock()

	pkt := udpping.Packet{Seq: seq, ClientSendUs: sentUs, ServerRecvUs: 0}
	if _, err := c.conn.WriteTo(pkt.Marshal(), c.remote); err != nil {
		log.Debug("latency probe send failed", "seq", seq, "err", err)
	}
}

func (c *Client) recvLoop(ctx context.Context) {
	buf := make([]byte, 512)
	for {
		if ctx.Err() != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.sweepExpired()
			continue
		}
		pkt, err := udpping.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		recvAt := time.Now()
		c.handleEcho(pkt, recvAt)
		c.sweepExpired()
	}
}

func (c *Client) handleEcho(pkt udpping.Packet, recvAt time.Time) {
	if pkt.ServerRecvUs == 0 {
		// Server-side duplicate of a probe it already echoed; ignore
		// (§4.3).
		log.Debug("ignoring duplicate echo with zero server_recv_us", "seq", pkt.Seq)
		return
	}

	c.mu.Lock()
	probe, ok := c.pending[pkt.Seq]
	if ok {
		delete(c.pending, pkt.Seq)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	remoteUs := pkt.ServerRecvUs - c.offset.Microseconds() - c.t0.UnixMicro()
	backUs := recvAt.Sub(c.t0).Microseconds()

	c.appendSample(result.LatencySample{
		Sent:           probe.sentUs,
		ReceivedRemote: &remoteUs,
		ReceivedBack:   &backUs,
		Seq:            pkt.Seq,
	})
}

func (c *Client) sweepExpired() {
	now := time.Now()
	var expired []pendingProbe
	var expiredSeqs []uint64
	c.mu.Lock()
	for seq, p := range c.pending {
		if now.Sub(p.sentAt) >= lossTimeout {
			expired = append(expired, p)
			expiredSeqs = append(expiredSeqs, seq)
		}
	}
	for _, seq := range expiredSeqs {
		delete(c.pending, seq)
	}
	c.mu.Unlock()

	for i, p := range expired {
		c.appendSample(result.LatencySample{Sent: p.sentUs, Seq: expiredSeqs[i]})
	}
}

// sweepRemaining flushes every still-pending probe as lost. Called once
// the channel has fully stopped.
func (c *Client) sweepRemaining() {
	c.mu.Lock()
	seqs := make([]uint64, 0, len(c.pending))
	sents := make(map[uint64]int64, len(c.pending))
	for seq, p := range c.pending {
		seqs = append(seqs, seq)
		sents[seq] = p.sentUs
	}
	c.pending = make(map[uint64]pendingProbe)
	c.mu.Unlock()

	for _, seq := range seqs {
		c.appendSample(result.LatencySample{Sent: sents[seq], Seq: seq})
	}
}

func (c *Client) appendSample(s result.LatencySample) {
	c.samplesMu.Lock()
	c.samples = append(c.samples, s)
	c.samplesMu.Unlock()
}

// Drain returns every sample accumulated since the last Drain (or since
// Run started) and clears the buffer. Used by callers that need to
// forward samples as they arrive rather than wait for Run to return
// (pkg/peerlatency's continuous streaming to the client, §4.7).
func (c *Client) Drain() []result.LatencySample {
	c.samplesMu.Lock()
	defer c.samplesMu.Unlock()
	out := c.samples
	c.samples = nil
	return out
}
