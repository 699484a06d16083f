package overlay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
)

// Default loop intervals.
const (
	DefaultPollInterval   = 3 * time.Second
	DefaultRenderInterval = 100 * time.Millisecond
)

// ErrMissingUser is returned by Run when no user ID was given.
var ErrMissingUser = errors.New("no user ID specified")

// Poller fetches one now-playing result.
type Poller interface {
	Poll(ctx context.Context, userID string) PollResult
}

// Player drives an Interpolator: it polls the server on one ticker and
// extrapolates progress on another, handing every new State to a render
// callback. Render ticks never perform I/O.
type Player struct {
	poller         Poller
	userID         string
	interp         *Interpolator
	clock          clockwork.Clock
	pollInterval   time.Duration
	renderInterval time.Duration
	onRender       func(State)
	logger         *log.Logger
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithPlayerClock sets the clock driving both tickers.
func WithPlayerClock(c clockwork.Clock) PlayerOption {
	return func(p *Player) {
		p.clock = c
	}
}

// WithIntervals overrides the poll and render intervals.
func WithIntervals(poll, render time.Duration) PlayerOption {
	return func(p *Player) {
		if poll > 0 {
			p.pollInterval = poll
		}
		if render > 0 {
			p.renderInterval = render
		}
	}
}

// WithRender sets the callback invoked with each new State. It runs on the
// Player's goroutine and must not block for long.
func WithRender(fn func(State)) PlayerOption {
	return func(p *Player) {
		p.onRender = fn
	}
}

// WithPlayerLogger sets the logger.
func WithPlayerLogger(l *log.Logger) PlayerOption {
	return func(p *Player) {
		p.logger = l
	}
}

// NewPlayer creates a Player for userID.
func NewPlayer(poller Poller, userID string, opts ...PlayerOption) *Player {
	p := &Player{
		poller:         poller,
		userID:         userID,
		interp:         NewInterpolator(),
		clock:          clockwork.NewRealClock(),
		pollInterval:   DefaultPollInterval,
		renderInterval: DefaultRenderInterval,
		onRender:       func(State) {},
		logger:         log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current playback state.
func (p *Player) State() State {
	return p.interp.State()
}

// Run polls immediately and then on every poll tick until ctx is done.
// Without a user ID it renders the error state and returns ErrMissingUser.
func (p *Player) Run(ctx context.Context) error {
	if p.userID == "" {
		p.onRender(p.interp.Fail(MessageMissingUser))
		return ErrMissingUser
	}

	results := make(chan PollResult)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.pollLoop(ctx, results)
	}()
	defer wg.Wait()

	render := p.clock.NewTicker(p.renderInterval)
	defer render.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-results:
			p.logResult(r)
			p.onRender(p.interp.Apply(r, p.clock.Now()))
		case now := <-render.Chan():
			p.onRender(p.interp.Tick(now))
		}
	}
}

// pollLoop polls sequentially, so a slow server never has two requests in
// flight for the same overlay.
func (p *Player) pollLoop(ctx context.Context, out chan<- PollResult) {
	ticker := p.clock.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		r := p.poller.Poll(ctx, p.userID)
		if ctx.Err() != nil {
			return
		}

		select {
		case out <- r:
		case <-ctx.Done():
			return
		}

		select {
		case <-ticker.Chan():
		case <-ctx.Done():
			return
		}
	}
}

func (p *Player) logResult(r PollResult) {
	switch r.Outcome {
	case OutcomeUpstreamError:
		p.logger.Warn("Now-playing poll failed", "user", p.userID, "error", r.Err)
	case OutcomeNotFound, OutcomeAuthExpired:
		p.logger.Warn("Now-playing unavailable", "user", p.userID, "outcome", r.Outcome)
	default:
		p.logger.Debug("Now-playing polled", "user", p.userID, "outcome", r.Outcome)
	}
}
