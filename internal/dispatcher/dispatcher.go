// Package dispatcher drives the node's periodic work from a single goroutine.
//
// Each pass reads the millisecond clock, samples the sensor when the sampling
// timer is due, uploads when the upload timer is due, and then answers the
// HTTP snapshot requests that are already queued. The Reading and both timers
// are only touched by the goroutine running the passes, so they need no lock;
// HTTP handlers get a copy of the Reading through the request queue.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"weatherstation-node/internal/clock"
	"weatherstation-node/internal/types"
)

var ErrStopped = errors.New("dispatcher stopped")

type Sampler interface {
	Sample(r *types.Reading)
}

type Uploader interface {
	Upload(ctx context.Context, r types.Reading)
}

// State is the process-wide node state owned by the dispatcher.
type State struct {
	Reading  types.Reading
	Sampling clock.Timer
	Upload   clock.Timer
}

type Options struct {
	SampleInterval time.Duration
	UploadInterval time.Duration
	// PollInterval bounds the idle time between passes.
	PollInterval time.Duration
	QueueSize    int
}

type Dispatcher struct {
	clock    clock.Source
	sampler  Sampler
	uploader Uploader
	poll     time.Duration

	state State

	requests chan chan types.Reading
	wake     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func New(src clock.Source, sampler Sampler, uploader Uploader, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	return &Dispatcher{
		clock:    src,
		sampler:  sampler,
		uploader: uploader,
		poll:     opts.PollInterval,
		state: State{
			Sampling: clock.NewTimer(opts.SampleInterval),
			Upload:   clock.NewTimer(opts.UploadInterval),
		},
		requests: make(chan chan types.Reading, opts.QueueSize),
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
}

// Pass runs one scheduling pass. It never fails; collaborators handle their
// own errors.
func (d *Dispatcher) Pass(ctx context.Context) {
	now := d.clock.Millis()

	if d.state.Sampling.Due(now) {
		d.sampler.Sample(&d.state.Reading)
		d.state.Sampling.Fire(now)
	}
	if d.state.Upload.Due(now) {
		d.uploader.Upload(ctx, d.state.Reading)
		d.state.Upload.Fire(now)
	}

	d.serviceRequests()
}

// serviceRequests answers the requests queued at the time of the call and
// returns without waiting for more.
func (d *Dispatcher) serviceRequests() int {
	n := len(d.requests)
	for i := 0; i < n; i++ {
		reply := <-d.requests
		reply <- d.state.Reading
	}
	return n
}

// Run repeats Pass until ctx is cancelled. Queued snapshot requests wake it
// early; otherwise it idles for at most the poll interval between passes.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.stop()

	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		d.Pass(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// Snapshot returns a copy of the Reading as of the dispatcher's next pass.
// It is safe for concurrent use.
func (d *Dispatcher) Snapshot(ctx context.Context) (types.Reading, error) {
	reply := make(chan types.Reading, 1)

	select {
	case d.requests <- reply:
	case <-ctx.Done():
		return types.Reading{}, ctx.Err()
	case <-d.stopped:
		return types.Reading{}, ErrStopped
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}

	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return types.Reading{}, ctx.Err()
	case <-d.stopped:
		return types.Reading{}, ErrStopped
	}
}

func (d *Dispatcher) stop() {
	d.stopOnce.Do(func() { close(d.stopped) })
}
