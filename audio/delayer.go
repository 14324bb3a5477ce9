package audio

import (
	"fmt"
	"time"

	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/packet"
)

// Delayer is the jitter buffer (spec.md §4.11): it releases no packets
// until the cumulative span of the queue (tail end minus head start)
// reaches the configured latency, then passes packets through as they
// arrive. Once started it stays started; latency is a startup gate, not
// a steady-state constraint.
type Delayer struct {
	spec           format.SampleSpec
	latencySamples uint32
	queue          []*packet.Packet
	started        bool
}

// NewDelayer returns a Delayer targeting latency of samples at spec's
// sample rate.
func NewDelayer(spec format.SampleSpec, latency time.Duration) *Delayer {
	return &Delayer{spec: spec, latencySamples: uint32(spec.NsToNumSamples(latency))}
}

// Started reports whether the buffer has reached its target latency and
// begun releasing packets. It is the boundary the streamer's pre-roll
// silence yields to: the first output frame pulled after Started becomes
// true is the first frame allowed to contain real samples.
func (d *Delayer) Started() bool { return d.started }

// Push appends pkt to the tail of the queue and re-checks the start
// condition.
func (d *Delayer) Push(pkt *packet.Packet) error {
	if pkt.RTP == nil {
		pkt.Release()
		return fmt.Errorf("audio: delayer: packet has no RTP fields")
	}
	d.queue = append(d.queue, pkt)
	if !d.started {
		d.recheckStart()
	}
	return nil
}

func (d *Delayer) recheckStart() {
	head := d.queue[0]
	tail := d.queue[len(d.queue)-1]
	tailEnd := int64(tail.RTP.StreamTimestamp) + int64(d.spec.NsToNumSamples(tail.RTP.Duration))
	span := tailEnd - int64(head.RTP.StreamTimestamp)
	if span >= int64(d.latencySamples) {
		d.started = true
	}
}

// Pop returns the head packet once the buffer has started, or ok=false
// while still buffering toward its target latency.
func (d *Delayer) Pop() (*packet.Packet, bool) {
	if !d.started || len(d.queue) == 0 {
		return nil, false
	}
	pkt := d.queue[0]
	d.queue = d.queue[1:]
	return pkt, true
}

// Len reports how many packets are currently queued.
func (d *Delayer) Len() int { return len(d.queue) }

// Close releases every packet still queued.
func (d *Delayer) Close() {
	for _, pkt := range d.queue {
		pkt.Release()
	}
	d.queue = nil
}
