package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Session runs one connection to the upstream feed. It calls sink.Ready
// once the subscription is live, emits changes through sink, and returns
// when the connection ends. A Session must return promptly once ctx is
// cancelled.
type Session func(ctx context.Context, sink *Sink) error

const (
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	defaultBuffer         = 64
)

// PumpOption configures a Pump.
type PumpOption func(*pumpConfig)

type pumpConfig struct {
	initial     time.Duration
	max         time.Duration
	maxAttempts uint64
	buffer      int
	logger      zerolog.Logger
	now         func() time.Time
}

// WithBackoff sets the initial and maximum reconnect delay.
func WithBackoff(initial, maxDelay time.Duration) PumpOption {
	return func(c *pumpConfig) {
		if initial > 0 {
			c.initial = initial
		}
		if maxDelay > 0 {
			c.max = maxDelay
		}
	}
}

// WithMaxAttempts stops reconnecting after n consecutive failed attempts.
// Zero retries forever.
func WithMaxAttempts(n int) PumpOption {
	return func(c *pumpConfig) {
		if n > 0 {
			c.maxAttempts = uint64(n)
		}
	}
}

// WithBuffer sets the capacity of the changes channel.
func WithBuffer(n int) PumpOption {
	return func(c *pumpConfig) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithPumpLogger sets the logger for connection diagnostics.
func WithPumpLogger(l zerolog.Logger) PumpOption {
	return func(c *pumpConfig) { c.logger = l }
}

// WithNow overrides the timestamp source for signals and changes.
func WithNow(now func() time.Time) PumpOption {
	return func(c *pumpConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// Pump supervises a Session: it reconnects with exponential backoff,
// reports lifecycle signals, and forwards changes that pass the filter.
// Pump implements Handle.
type Pump struct {
	cfg     pumpConfig
	filter  Filter
	session Session

	changes chan Change
	signals chan Signal

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ Handle = (*Pump)(nil)

// StartPump starts supervising session in a background goroutine.
func StartPump(ctx context.Context, filter Filter, session Session, opts ...PumpOption) *Pump {
	cfg := pumpConfig{
		initial: DefaultInitialBackoff,
		max:     DefaultMaxBackoff,
		buffer:  defaultBuffer,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pump{
		cfg:     cfg,
		filter:  filter,
		session: session,
		changes: make(chan Change, cfg.buffer),
		signals: make(chan Signal, 16),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go p.run(ctx)
	return p
}

func (p *Pump) Changes() <-chan Change { return p.changes }
func (p *Pump) Signals() <-chan Signal { return p.signals }

// Close cancels the session and any pending reconnect, then waits for the
// supervise loop to exit.
func (p *Pump) Close() error {
	p.closeOnce.Do(p.cancel)
	<-p.done
	return nil
}

func (p *Pump) newBackoff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.cfg.initial
	eb.MaxInterval = p.cfg.max
	eb.MaxElapsedTime = 0
	eb.Reset()

	if p.cfg.maxAttempts > 0 {
		return backoff.WithMaxRetries(eb, p.cfg.maxAttempts)
	}
	return eb
}

func (p *Pump) run(ctx context.Context) {
	defer func() {
		select {
		case p.signals <- Signal{Kind: SignalClosed, At: p.cfg.now()}:
		default:
		}
		close(p.changes)
		close(p.signals)
		close(p.done)
	}()

	bo := p.newBackoff()
	attempt := 0

	for {
		if !p.signal(ctx, Signal{Kind: SignalConnecting, Attempt: attempt}) {
			return
		}

		sink := &Sink{ctx: ctx, pump: p, attempt: attempt}
		err := p.session(ctx, sink)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("feed session ended")
		}

		if sink.ready {
			bo.Reset()
			attempt = 1
			p.cfg.logger.Warn().Err(err).Msg("feed disconnected, reconnecting")
			if !p.signal(ctx, Signal{Kind: SignalDisconnected, Attempt: attempt, Err: err}) {
				return
			}
		} else {
			attempt++
			p.cfg.logger.Warn().Err(err).Int("attempt", attempt).Msg("feed connection failed")
			if !p.signal(ctx, Signal{Kind: SignalFailed, Attempt: attempt, Err: err}) {
				return
			}
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			p.cfg.logger.Error().Int("attempt", attempt).Msg("feed reconnect attempts exhausted")
			return
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (p *Pump) signal(ctx context.Context, s Signal) bool {
	if s.At.IsZero() {
		s.At = p.cfg.now()
	}
	select {
	case p.signals <- s:
		return true
	case <-ctx.Done():
		return false
	}
}

// Sink is the write side a Session uses to report readiness and deliver
// changes.
type Sink struct {
	ctx     context.Context
	pump    *Pump
	attempt int
	ready   bool
}

// Filter returns the subscription filter so sessions can filter upstream.
func (s *Sink) Filter() Filter { return s.pump.filter }

// Ready marks the subscription live. Only the first call has an effect.
func (s *Sink) Ready() {
	if s.ready {
		return
	}
	s.ready = true
	s.pump.signal(s.ctx, Signal{Kind: SignalSubscribed, Attempt: s.attempt})
}

// Emit forwards c if it passes the filter. It blocks while the consumer is
// behind and returns false once the pump is closing.
func (s *Sink) Emit(c Change) bool {
	if !s.pump.filter.Matches(c) {
		return s.ctx.Err() == nil
	}
	if c.ReceivedAt.IsZero() {
		c.ReceivedAt = s.pump.cfg.now()
	}
	select {
	case s.pump.changes <- c:
		return true
	case <-s.ctx.Done():
		return false
	}
}
