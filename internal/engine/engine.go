// Package engine runs the door's control loop. A single goroutine owns the
// capture machine, the capture queue and the self-register sessions, and is
// the only writer of enrollments, courses and schedule slots. It alternates
// between polling the credential reader and executing administrative
// commands, so no two operations ever interleave.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/classgate/access-server/internal/clock"
	"github.com/classgate/access-server/internal/display"
	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/metrics"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/reader"
	"github.com/classgate/access-server/internal/service"
)

const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultCommandTimeout = 5 * time.Second
)

type Deps struct {
	Clock    clock.Clock
	Reader   reader.Reader
	Display  display.Notifier
	Metrics  *metrics.Metrics
	Auth     *service.AuthorizationService
	Enroller *service.EnrollmentService
	Schedule *service.ScheduleService
	Machine  *service.CaptureMachine
	Queue    *service.CaptureQueue
	SelfReg  *service.SelfRegisterManager
	// LinkFor builds the public self-register URL for a token.
	LinkFor func(token string) string
}

type Options struct {
	PollInterval   time.Duration
	CommandTimeout time.Duration
}

type command struct {
	op    string
	fn    func(ctx context.Context, now time.Time) (any, error)
	reply chan result
}

type result struct {
	value any
	err   error
}

type Engine struct {
	Deps
	interval       time.Duration
	commandTimeout time.Duration

	commands chan command
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool

	wrongCardShown bool
}

func New(deps Deps, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.LinkFor == nil {
		deps.LinkFor = func(token string) string { return "/register/" + token }
	}
	return &Engine{
		Deps:           deps,
		interval:       opts.PollInterval,
		commandTimeout: opts.CommandTimeout,
		commands:       make(chan command),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
}

// Start restores the persisted capture queue and launches the loop. An
// engine runs at most once.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return apperrors.InvalidState("Engine is already running")
	}
	select {
	case <-e.done:
		return apperrors.Unavailable("Engine is stopped")
	default:
	}

	if err := e.Queue.Load(ctx); err != nil {
		return err
	}
	e.observeGauges(e.Clock.Now())
	e.started = true
	go e.run()
	log.Info().Dur("interval", e.interval).Msg("engine started")
	return nil
}

// Stop ends the loop and waits for the in-flight step to finish. It is safe
// to call on an engine that was never started.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		started := e.started
		close(e.done)
		e.mu.Unlock()

		if started {
			<-e.stopped
		}
		log.Info().Msg("engine stopped")
	})
}

func (e *Engine) run() {
	defer close(e.stopped)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.Display.ShowWaiting()
	e.poll()

	for {
		select {
		case <-e.done:
			return
		case cmd := <-e.commands:
			e.execute(cmd)
		case <-ticker.C:
			e.poll()
		}
	}
}

func (e *Engine) execute(cmd command) {
	ctx, cancel := context.WithTimeout(context.Background(), e.commandTimeout)
	defer cancel()

	now := e.Clock.Now()
	value, err := cmd.fn(ctx, now)
	if e.Metrics != nil {
		e.Metrics.ObserveOperation(cmd.op, err)
	}
	e.observeGauges(now)

	if err != nil {
		log.Debug().Err(err).Str("op", cmd.op).Msg("engine operation failed")
	}
	cmd.reply <- result{value: value, err: err}
}

func (e *Engine) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), e.commandTimeout)
	defer cancel()

	now := e.Clock.Now()
	defer e.refreshWrongCard(now)

	credential, ok, err := e.Reader.Poll(ctx)
	if err != nil {
		if e.Metrics != nil {
			e.Metrics.PollErrors.Inc()
		}
		log.Error().Err(err).Msg("reader poll failed")
		return
	}
	if !ok {
		return
	}
	if !credential.Valid() {
		log.Warn().Str("credential", credential.String()).Msg("ignoring malformed credential")
		return
	}

	if _, err := e.detect(ctx, credential, now); err != nil && !apperrors.IsTransient(err) {
		log.Error().Err(err).Str("credential", credential.String()).Msg("failed to handle detection")
	}
	e.observeGauges(now)
}

// refreshWrongCard restores the capture banner once the wrong-card
// cool-down has passed.
func (e *Engine) refreshWrongCard(now time.Time) {
	if e.wrongCardShown && !e.Machine.WrongCard(now) {
		e.wrongCardShown = false
		e.showMode(now)
	}
}

func (e *Engine) observeGauges(now time.Time) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.QueueLength.Set(float64(e.Queue.Len()))
	e.Metrics.SelfRegisterPending.Set(float64(e.SelfReg.Count(now)))
}

// showMode puts the display back into the state matching the engine.
func (e *Engine) showMode(now time.Time) {
	if _, credential, ok := e.SelfReg.Awaiting(now); ok {
		e.Display.ShowAwaitingSelfRegister(credential)
		return
	}
	switch e.Machine.Mode() {
	case model.CaptureModeIndividual:
		e.Display.ShowCaptureMode(false, false)
	case model.CaptureModeBatch:
		e.Display.ShowCaptureMode(true, e.Machine.Paused())
	default:
		e.Display.ShowWaiting()
	}
}

// do runs fn on the loop goroutine and waits for its result.
func do[T any](ctx context.Context, e *Engine, op string, fn func(ctx context.Context, now time.Time) (T, error)) (T, error) {
	var zero T
	reply := make(chan result, 1)
	cmd := command{
		op: op,
		fn: func(ctx context.Context, now time.Time) (any, error) {
			return fn(ctx, now)
		},
		reply: reply,
	}

	select {
	case e.commands <- cmd:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-e.done:
		return zero, apperrors.Unavailable("Engine is not running")
	}

	select {
	case r := <-reply:
		v, _ := r.value.(T)
		return v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
