package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/worldforge/scribe/pipeline/emit"
	"github.com/worldforge/scribe/pipeline/store"
)

// Options configures dispatcher behavior. Zero values select defaults.
type Options struct {
	// SmallDelay is the pause between scan passes that submitted work
	// (default 50ms). Keeps the control thread from spinning while
	// upstream records land.
	SmallDelay time.Duration

	// BigDelay is the pause while waiting on in-flight work with nothing
	// new to submit (default 500ms).
	BigDelay time.Duration

	// Metrics optionally records Prometheus metrics for the run.
	Metrics *Metrics
}

// Dispatcher drives a set of registered steps to quiescence.
//
// Each step owns a fixed-size worker pool and a bounded submission
// channel. The dispatcher runs on a single control goroutine that never
// performs step work itself: it scans steps in registration order, asks
// each for one pending input, and submits it without blocking. The run
// ends when a full pass finds no pending inputs and no unfinished work
// anywhere.
//
// A worker executes one work item as claim -> run -> commit/abort:
// the atomic claim on (outkey, id) guarantees at most one worker ever
// runs a given slot, across threads and across interrupted runs.
type Dispatcher struct {
	store   store.Store
	emitter emit.Emitter
	opts    Options
	steps   []*stepState
	started bool
}

type stepState struct {
	step     *Step
	parallel int
	qdepth   int

	tasks chan Input
	wg    sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool
}

func (ss *stepState) markInflight(id string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.inflight[id] = true
}

func (ss *stepState) clearInflight(id string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.inflight, id)
}

func (ss *stepState) inflightCount() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.inflight)
}

func (ss *stepState) inflightSnapshot() map[string]bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	out := make(map[string]bool, len(ss.inflight))
	for id := range ss.inflight {
		out[id] = true
	}
	return out
}

// NewDispatcher creates a Dispatcher over the given store. A nil emitter
// defaults to NullEmitter.
func NewDispatcher(st store.Store, emitter emit.Emitter, opts Options) *Dispatcher {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	if opts.SmallDelay <= 0 {
		opts.SmallDelay = 50 * time.Millisecond
	}
	if opts.BigDelay <= 0 {
		opts.BigDelay = 500 * time.Millisecond
	}
	return &Dispatcher{store: st, emitter: emitter, opts: opts}
}

// Register adds a step instance to the run. Steps are scanned in
// registration order. The same name may appear more than once; each
// registration is an independent instance with its own pool.
func (d *Dispatcher) Register(step *Step) error {
	if d.started {
		return fmt.Errorf("cannot register steps after Run")
	}
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}
	if step.Name == "" {
		return fmt.Errorf("step name cannot be empty")
	}
	if step.OutKey == "" {
		return &ValidationError{Step: step.Name, Msg: "outkey cannot be empty"}
	}
	if step.Runner == nil {
		return &ValidationError{Step: step.Name, Msg: "runner cannot be nil"}
	}

	parallel, err := step.Parallel()
	if err != nil {
		return err
	}
	qdepth, err := step.QDepth()
	if err != nil {
		return err
	}

	capacity := qdepth
	if capacity <= 0 {
		capacity = parallel
	}
	d.steps = append(d.steps, &stepState{
		step:     step,
		parallel: parallel,
		qdepth:   qdepth,
		tasks:    make(chan Input, capacity),
		inflight: make(map[string]bool),
	})
	return nil
}

// Run drives all registered steps until quiescence: no step reports a
// pending input and no pool has unfinished work.
//
// On context cancellation the dispatcher stops submitting, waits for
// in-flight workers, and returns ctx.Err(). Claim sentinels belonging to
// work that was cancelled mid-flight stay in the store; a later run skips
// those slots, and the store's Sweep removes them once they are old
// enough.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.started {
		return fmt.Errorf("dispatcher already ran")
	}
	d.started = true

	for _, ss := range d.steps {
		ss := ss
		for i := 0; i < ss.parallel; i++ {
			ss.wg.Add(1)
			go func() {
				defer ss.wg.Done()
				for in := range ss.tasks {
					d.executeOne(ctx, ss, in)
					ss.clearInflight(in.ID)
					d.opts.Metrics.setInflight(ss.step.Name, ss.inflightCount())
				}
			}()
		}
	}

	d.emitter.Emit(emit.Event{Msg: "run_start"})
	err := d.loop(ctx)

	for _, ss := range d.steps {
		close(ss.tasks)
	}
	for _, ss := range d.steps {
		ss.wg.Wait()
	}

	d.emitter.Emit(emit.Event{Msg: "run_quiescent"})
	return err
}

func (d *Dispatcher) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		submitted := false
		for _, ss := range d.steps {
			d.opts.Metrics.setQueueDepth(ss.step.Name, len(ss.tasks))

			if ss.qdepth > 0 && ss.inflightCount() >= ss.qdepth {
				continue
			}

			pending, err := d.pendingInputs(ctx, ss)
			if err != nil {
				// Discovery errors are configuration errors; every later
				// tick would fail identically.
				return err
			}

			in, ok := firstNew(pending, ss.inflightSnapshot())
			if !ok {
				continue
			}

			ss.markInflight(in.ID)
			select {
			case ss.tasks <- in:
				submitted = true
				d.opts.Metrics.setInflight(ss.step.Name, ss.inflightCount())
			default:
				// Pool backlog is full; retry on a later pass.
				ss.clearInflight(in.ID)
			}
		}

		if submitted {
			if err := sleepCtx(ctx, d.opts.SmallDelay); err != nil {
				return err
			}
			continue
		}

		busy := 0
		for _, ss := range d.steps {
			busy += ss.inflightCount()
		}
		if busy > 0 {
			if err := sleepCtx(ctx, d.opts.BigDelay); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

func (d *Dispatcher) pendingInputs(ctx context.Context, ss *stepState) ([]Input, error) {
	inflight := ss.inflightSnapshot()
	if ss.step.Source != nil {
		return ss.step.Source.PendingInputs(ctx, d.store, ss.step, inflight)
	}
	if ss.step.IsGenerator() {
		return generatorPending(ctx, d.store, ss.step, inflight)
	}
	return transformPending(ctx, d.store, ss.step, inflight)
}

// executeOne is the work item body: claim the output slot, run the step,
// commit the result or abort the slot.
func (d *Dispatcher) executeOne(ctx context.Context, ss *stepState, in Input) {
	step := ss.step
	start := time.Now()

	won, err := d.store.Claim(ctx, step.OutKey, in.ID)
	if err != nil {
		d.emitFailure(step, in.ID, fmt.Errorf("claim: %w", err))
		return
	}
	if !won {
		// Another worker or an earlier run owns this slot.
		d.opts.Metrics.incClaimConflict(step.Name)
		d.emitter.Emit(emit.Event{
			Step: step.Name, Key: step.OutKey, ID: in.ID, Msg: "claim_conflict",
		})
		return
	}

	res, err := runStep(ctx, step, in)
	if err != nil || emptyPayload(res.Payload) {
		d.abort(ctx, step, in.ID, err)
		d.opts.Metrics.observeLatency(step.Name, "error", time.Since(start))
		return
	}

	if res.Meta == nil {
		res.Meta = Meta{}
	}
	if err := d.store.Commit(ctx, step.OutKey, in.ID, res.Payload, map[string]any(res.Meta)); err != nil {
		d.emitFailure(step, in.ID, fmt.Errorf("commit: %w", err))
		d.opts.Metrics.observeLatency(step.Name, "error", time.Since(start))
		return
	}

	d.opts.Metrics.incCommit(step.Name)
	d.opts.Metrics.observeLatency(step.Name, "success", time.Since(start))
	d.emitter.Emit(emit.Event{
		Step: step.Name, Key: step.OutKey, ID: in.ID, Msg: "commit",
		Meta: map[string]any{"duration_ms": time.Since(start).Milliseconds()},
	})
}

// runStep invokes the runner, converting a panic into a step failure so a
// misbehaving step cannot take down the whole run.
func runStep(ctx context.Context, step *Step, in Input) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked on id %s: %v", step.Name, in.ID, r)
		}
	}()
	return step.Runner.Run(ctx, step, in.ID, in.Payload)
}

// abort releases the output slot. The cleanup must land even when the
// run's context was cancelled, so it uses a detached context.
func (d *Dispatcher) abort(ctx context.Context, step *Step, id string, cause error) {
	if err := d.store.Abort(context.WithoutCancel(ctx), step.OutKey, id); err != nil {
		d.emitFailure(step, id, fmt.Errorf("abort: %w", err))
		return
	}
	d.opts.Metrics.incAbort(step.Name)
	meta := map[string]any{}
	if cause != nil {
		meta["error"] = cause.Error()
		d.emitFailure(step, id, cause)
	}
	d.emitter.Emit(emit.Event{Step: step.Name, Key: step.OutKey, ID: id, Msg: "abort", Meta: meta})
}

func (d *Dispatcher) emitFailure(step *Step, id string, err error) {
	d.emitter.Emit(emit.Event{
		Step: step.Name, Key: step.OutKey, ID: id, Msg: "step_failure",
		Meta: map[string]any{"error": err.Error()},
	})
}

// emptyPayload reports whether a run produced nothing worth committing:
// nil, an empty string, or an empty collection.
func emptyPayload(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

func firstNew(pending []Input, inflight map[string]bool) (Input, bool) {
	for _, in := range pending {
		if !inflight[in.ID] {
			return in, true
		}
	}
	return Input{}, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
