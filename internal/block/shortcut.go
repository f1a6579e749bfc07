package block

import (
	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
)

// shortcut is the identity residual path. Block input samples queue here as
// they enter; when the projected output emerges in the same (position,
// channel) order, each output is added to its queued counterpart. If the
// queue runs dry because something upstream dropped, the output passes
// through unchanged; a lost sample never resurfaces.
type shortcut struct {
	queue   []stream.Sample
	head    int
	expect  int
	emitted int
	closed  bool
	state   stream.State
}

func newShortcut(shape stream.Shape) *shortcut {
	return &shortcut{
		queue: make([]stream.Sample, 0, shape.Samples()),
		expect: shape.Samples(),
		state: stream.Idle,
	}
}

// Push taps one block input sample into the identity path.
func (r *shortcut) Push(s stream.Sample) {
	if r.state == stream.Idle {
		r.state = stream.Processing
	}
	r.queue = append(r.queue, s)
}

// Tick adds the identity path to this cycle's projected outputs.
func (r *shortcut) Tick(in []stream.Sample) []stream.Sample {
	if len(in) == 0 {
		r.advance()
		return nil
	}
	out := make([]stream.Sample, 0, len(in))
	for _, s := range in {
		v := fixed.Acc(s.Value)
		if r.head < len(r.queue) {
			v += fixed.Acc(r.queue[r.head].Value)
			r.head++
		}
		out = append(out, stream.Sample{Value: fixed.Saturate(v), Channel: s.Channel})
		r.emitted++
	}
	r.advance()
	return out
}

func (r *shortcut) advance() {
	switch r.state {
	case stream.Idle:
		if r.closed {
			r.state = stream.Done
		}
	case stream.Processing:
		if r.emitted >= r.expect || r.closed {
			r.state = stream.Done
		}
	}
}

func (r *shortcut) State() stream.State { return r.state }
func (r *shortcut) Done() bool          { return r.state == stream.Done }

func (r *shortcut) Finish() {
	r.closed = true
	r.advance()
}

func (r *shortcut) Reset() {
	r.queue = r.queue[:0]
	r.head = 0
	r.emitted = 0
	r.closed = false
	r.state = stream.Idle
}
