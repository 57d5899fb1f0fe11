package djidevice

import (
	"context"
	"fmt"
	"time"
)

// DefaultStepTimeout is the per-step deadline a Flow applies when its
// caller doesn't override it.
const DefaultStepTimeout = 10 * time.Second

// Connector is the minimal surface a Flow needs from whatever is
// responsible for getting a Session's transport bound. Kept separate from
// Session.Bind itself because establishing the BLE connection and
// discovering characteristics is the discovery/transport layer's job, not
// the protocol core's.
type Connector interface {
	// Connect blocks until the session is bound and initialized, or ctx is
	// done.
	Connect(ctx context.Context) error
}

// FlowOptions configures one run of Flow.Start.
type FlowOptions struct {
	SSID        string
	PSK         string
	Stream      StreamParams
	StepTimeout time.Duration // zero means DefaultStepTimeout
}

// FlowResult is delivered on Flow.Done() exactly once per Start call.
type FlowResult struct {
	Success bool
	Err     error
}

// Flow is the linear connect → pair → prepare
// → connect-WiFi → start-stream sequence. A Flow is single-use — call
// Start once, read the result from Done, discard it. Starting a new Flow
// for the same Session does not stop a Flow already running against it;
// the old one keeps running until it finishes or Cancel is called on it.
type Flow struct {
	session *Session
	conn    Connector
	opts    FlowOptions

	doneCh chan FlowResult
	cancel context.CancelFunc
}

// NewFlow builds a Flow bound to session, using conn to establish the
// transport connection as its first step.
func NewFlow(session *Session, conn Connector, opts FlowOptions) *Flow {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultStepTimeout
	}
	return &Flow{session: session, conn: conn, opts: opts, doneCh: make(chan FlowResult, 1)}
}

// Done receives the single FlowResult for this run.
func (f *Flow) Done() <-chan FlowResult { return f.doneCh }

// Cancel aborts an in-progress run and, best-effort, asks the device to
// stop streaming. Safe to call after the flow has already finished.
func (f *Flow) Cancel() {
	if f.cancel != nil {
		f.cancel()
	}
}

// Start runs the flow to completion (or failure) in the background and
// returns immediately; observe the outcome via Done.
func (f *Flow) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go f.run(ctx)
}

func (f *Flow) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			f.finish(FlowResult{Success: false, Err: fmt.Errorf("flow panicked: %v", r)})
		}
	}()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"connect", f.stepConnect},
		{"pair", f.stepPair},
		{"prepare", f.stepPrepare},
		{"wifi", f.stepWiFi},
		{"start-stream", f.stepStartStream},
	}

	for _, step := range steps {
		stepCtx, cancel := context.WithTimeout(ctx, f.opts.StepTimeout)
		err := step.fn(stepCtx)
		cancel()

		if err != nil {
			f.finish(FlowResult{Success: false, Err: fmt.Errorf("flow: step %q failed: %w", step.name, err)})
			return
		}
		if ctx.Err() != nil {
			f.finish(FlowResult{Success: false, Err: newError(ErrCanceled, "flow canceled", ctx.Err())})
			return
		}
	}

	f.finish(FlowResult{Success: true})
}

func (f *Flow) stepConnect(ctx context.Context) error {
	if f.session.LinkState() == LinkInitialized {
		return nil
	}
	return f.conn.Connect(ctx)
}

func (f *Flow) stepPair(ctx context.Context) error {
	done := make(chan PairerEvent, 1)
	cancel := f.session.SubscribePairerEvents(func(e PairerEvent) {
		if e.Kind == PairingComplete || e.Kind == PairerFailed {
			select {
			case done <- e:
			default:
			}
		}
	})
	defer cancel()

	f.session.Pair()
	return waitPairer(ctx, done)
}

func (f *Flow) stepWiFi(ctx context.Context) error {
	done := make(chan PairerEvent, 1)
	cancel := f.session.SubscribePairerEvents(func(e PairerEvent) {
		if e.Kind == WiFiConnected || e.Kind == PairerFailed {
			select {
			case done <- e:
			default:
			}
		}
	})
	defer cancel()

	f.session.ConnectToWiFi(f.opts.SSID, f.opts.PSK)
	return waitPairer(ctx, done)
}

func (f *Flow) stepPrepare(ctx context.Context) error {
	done := make(chan StreamerEvent, 1)
	cancel := f.session.SubscribeStreamerEvents(func(e StreamerEvent) {
		if e.Kind == PrepareComplete || e.Kind == StreamerFailed {
			select {
			case done <- e:
			default:
			}
		}
	})
	defer cancel()

	f.session.PrepareToLiveStream()
	return waitStreamer(ctx, done)
}

func (f *Flow) stepStartStream(ctx context.Context) error {
	done := make(chan StreamerEvent, 1)
	cancel := f.session.SubscribeStreamerEvents(func(e StreamerEvent) {
		if e.Kind == StreamStarted || e.Kind == StreamerFailed {
			select {
			case done <- e:
			default:
			}
		}
	})
	defer cancel()

	f.session.StartLiveStream(f.opts.Stream)
	return waitStreamer(ctx, done)
}

func waitPairer(ctx context.Context, ch <-chan PairerEvent) error {
	select {
	case e := <-ch:
		if e.Kind == PairerFailed {
			return e.Err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitStreamer(ctx context.Context, ch <-chan StreamerEvent) error {
	select {
	case e := <-ch:
		if e.Kind == StreamerFailed {
			return e.Err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Flow) finish(r FlowResult) {
	if !r.Success {
		// Best-effort stop; ignore errors, the link may already be gone.
		f.session.StopLiveStream()
	}
	select {
	case f.doneCh <- r:
	default:
	}
}
