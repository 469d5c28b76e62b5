package tally

import (
	"time"

	"github.com/jbialy/tally_controller/util"
)

// renderWorker decouples one output's render calls from the dispatch
// loop. Its mailbox holds only the newest pending sequence: when the
// output is slower than the event stream, stale snapshots are
// replaced rather than queued, so the device converges on the latest
// state and never blocks anyone upstream.
type renderWorker struct {
	out  Output
	box  chan []State
	quit chan struct{}
	done chan struct{}
}

func newRenderWorker(out Output) *renderWorker {
	return &renderWorker{
		out:  out,
		box:  make(chan []State, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (w *renderWorker) start() {
	go w.run()
}

// submit never blocks: it drops the stale pending sequence, if any,
// in favor of the new one.
func (w *renderWorker) submit(seq []State) {
	for {
		select {
		case w.box <- seq:
			return
		default:
			select {
			case <-w.box:
			default:
			}
		}
	}
}

func (w *renderWorker) run() {
	defer close(w.done)
	for {
		select {
		case seq := <-w.box:
			if err := w.out.Render(seq); err != nil {
				rerr := &RenderError{Device: w.out.Name(), Err: err}
				util.Logger.Error().Msg(rerr.Error())
			}
		case <-w.quit:
			return
		}
	}
}

// stop waits up to grace for an in-flight render to finish; a render
// stuck in a hardware call is abandoned, not waited on forever.
func (w *renderWorker) stop(grace time.Duration) {
	close(w.quit)
	select {
	case <-w.done:
	case <-time.After(grace):
		util.Logger.Warn().Msgf("%s render did not finish within %s", w.out.Name(), grace)
	}
}
