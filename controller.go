package destiny

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AnalysisState tracks the reading for the current ticket
type AnalysisState string

const (
	AnalysisIdle    AnalysisState = "IDLE"
	AnalysisPending AnalysisState = "PENDING"
	AnalysisReady   AnalysisState = "READY"
)

// SessionState is a consistent snapshot for renderers
type SessionState struct {
	SessionID     string        `json:"session_id"`
	Phase         Phase         `json:"phase"`
	Ticket        Ticket        `json:"ticket"`
	History       []Ticket      `json:"history"`
	Drawing       bool          `json:"drawing"`
	AnalysisState AnalysisState `json:"analysis_state"`
	Analysis      string        `json:"analysis,omitempty"`
	Generation    uint64        `json:"generation"`
}

// DrawController owns one drawing session: the current ticket, the cooldown flag,
// the bounded history and the reading of the current ticket.
//
// All methods are safe for concurrent use; Draw and Reset are serialized.
type DrawController struct {
	mu sync.Mutex

	sessionID    string
	rules        Rules
	settle       time.Duration
	clock        func() time.Time
	newGenerator GeneratorFactory
	analyzer     Analyzer
	logger       Logger
	monitor      *PerformanceMonitor
	onComplete   func(balls []Ball)

	ticket      Ticket
	history     *History
	drawing     bool
	drawSeq     uint64
	settleTimer *time.Timer

	// generation identifies the current ticket; Reset bumps it so late readings
	// for an earlier ticket are discarded
	generation     uint64
	analysisState  AnalysisState
	analysis       string
	cancelAnalysis context.CancelFunc
	analysisDone   chan struct{}
}

// Option configures a DrawController
type Option func(*DrawController)

// WithRules overrides the default Powerball rules
func WithRules(rules Rules) Option {
	return func(c *DrawController) { c.rules = rules }
}

// WithClock sets the time source used to seed each draw
func WithClock(clock func() time.Time) Option {
	return func(c *DrawController) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithGeneratorFactory replaces the Park-Miller generator
func WithGeneratorFactory(factory GeneratorFactory) Option {
	return func(c *DrawController) {
		if factory != nil {
			c.newGenerator = factory
		}
	}
}

// WithAnalyzer sets the collaborator asked for a reading on completion
func WithAnalyzer(analyzer Analyzer) Option {
	return func(c *DrawController) { c.analyzer = analyzer }
}

// WithLogger sets the logger
func WithLogger(logger Logger) Option {
	return func(c *DrawController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMonitor records draw activity in monitor
func WithMonitor(monitor *PerformanceMonitor) Option {
	return func(c *DrawController) { c.monitor = monitor }
}

// WithSettleDuration sets the cooldown after each draw; 0 disables it
func WithSettleDuration(d time.Duration) Option {
	return func(c *DrawController) { c.settle = d }
}

// WithCompletionHook is called once per completed ticket, after the lock is released
func WithCompletionHook(hook func(balls []Ball)) Option {
	return func(c *DrawController) { c.onComplete = hook }
}

// NewDrawController creates a session in the EMPTY phase
func NewDrawController(opts ...Option) (*DrawController, error) {
	c := &DrawController{
		sessionID:     uuid.NewString(),
		rules:         DefaultRules(),
		settle:        DefaultSettleDuration,
		clock:         time.Now,
		newGenerator:  DefaultGeneratorFactory,
		logger:        NewSilentLogger(),
		analysisState: AnalysisIdle,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.rules.Validate(); err != nil {
		return nil, err
	}
	if c.settle < 0 || c.settle > MaxSettleDuration {
		return nil, ErrInvalidParameters.WithDetails(fmt.Sprintf("settle duration must be between 0 and %v, got %v", MaxSettleDuration, c.settle))
	}
	if zl, ok := c.logger.(*ZapLogger); ok {
		c.logger = zl.With("session_id", c.sessionID)
	}

	c.history = NewHistory(c.rules.HistorySize)
	c.logger.Debug("Draw session created: rules=%+v, settle=%v", c.rules, c.settle)
	return c, nil
}

// NewDrawControllerFromConfig builds a controller whose rules and cooldown come from config
func NewDrawControllerFromConfig(config *Config, opts ...Option) (*DrawController, error) {
	if config == nil || config.Draw == nil {
		return nil, ErrConfigInvalid.WithDetails("draw section is required")
	}
	base := []Option{WithRules(config.Draw.Rules()), WithSettleDuration(config.Draw.SettleDuration)}
	return NewDrawController(append(base, opts...)...)
}

// Draw samples the next ball for the current ticket.
//
// While fewer than PrimaryCount primaries exist the ball comes from the untaken
// primary values in ascending order; otherwise the bonus ball is drawn from
// 1..BonusMax. The generator is seeded with the draw's millisecond timestamp and
// used exactly once. Returns ErrTicketComplete on a full ticket and
// ErrDrawInProgress during the cooldown; the ticket is unchanged in both cases.
func (c *DrawController) Draw(ctx context.Context) (Ball, error) {
	if err := ctx.Err(); err != nil {
		return Ball{}, err
	}

	start := time.Now()
	c.mu.Lock()
	ball, completed, err := c.drawLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return Ball{}, err
	}

	if c.monitor != nil {
		c.monitor.RecordDraw(time.Since(start))
	}
	if completed != nil && c.onComplete != nil {
		c.onComplete(completed)
	}
	return ball, nil
}

func (c *DrawController) drawLocked(ctx context.Context) (Ball, []Ball, error) {
	if c.ticket.IsComplete(c.rules) {
		c.reject("complete")
		return Ball{}, nil, ErrTicketComplete.WithSessionID(c.sessionID).WithOperation("Draw")
	}
	if c.drawing {
		c.reject("in_progress")
		return Ball{}, nil, ErrDrawInProgress.WithSessionID(c.sessionID).WithOperation("Draw")
	}

	clickTime := c.clock().UnixMilli()
	generator := c.newGenerator(clickTime)

	var ball Ball
	if len(c.ticket.Primaries()) < c.rules.PrimaryCount {
		pool := c.rules.primaryPool(c.ticket.balls)
		idx, err := pickIndex(generator, len(pool))
		if err != nil {
			return Ball{}, nil, err
		}
		ball = Ball{Value: pool[idx], Category: Primary, Timestamp: clickTime}
	} else {
		idx, err := pickIndex(generator, c.rules.BonusMax)
		if err != nil {
			return Ball{}, nil, err
		}
		ball = Ball{Value: idx + 1, Category: Bonus, Timestamp: clickTime}
	}

	c.ticket = c.ticket.with(ball)
	c.startSettleLocked()
	c.logger.Debug("Drew %s (seed=%d, %d/%d)", ball, clickTime, c.ticket.Len(), c.rules.TicketSize())

	if !c.ticket.IsComplete(c.rules) {
		return ball, nil, nil
	}

	balls := c.ticket.Balls()
	c.logger.Info("Ticket complete: %s", c.ticket.Numbers())
	if c.monitor != nil {
		c.monitor.RecordCompletion()
	}
	c.startAnalysisLocked(ctx, balls)
	return ball, balls, nil
}

// pickIndex asks the generator for an index in [0, size-1] and checks it
func pickIndex(generator RandomGenerator, size int) (int, error) {
	idx, err := generator.GenerateInRange(0, size-1)
	if err != nil {
		return 0, err
	}
	if idx < 0 || idx >= size {
		return 0, ErrInvalidRange.WithDetails(fmt.Sprintf("generator returned index %d outside [0, %d]", idx, size-1))
	}
	return idx, nil
}

func (c *DrawController) reject(reason string) {
	if c.monitor != nil {
		c.monitor.RecordRejectedDraw(reason)
	}
	c.logger.Debug("Draw rejected: %s", reason)
}

func (c *DrawController) startSettleLocked() {
	if c.settle <= 0 {
		return
	}
	c.drawing = true
	c.drawSeq++
	seq := c.drawSeq
	c.settleTimer = time.AfterFunc(c.settle, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.drawSeq == seq {
			c.drawing = false
			c.settleTimer = nil
		}
	})
}

func (c *DrawController) stopSettleLocked() {
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
	c.drawing = false
	c.drawSeq++
}

// startAnalysisLocked launches exactly one reading request for the ticket of the
// current generation. The request outlives the Draw call but not the ticket.
func (c *DrawController) startAnalysisLocked(ctx context.Context, balls []Ball) {
	if c.analyzer == nil {
		return
	}

	actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	generation := c.generation

	c.cancelAnalysis = cancel
	c.analysisDone = done
	c.analysisState = AnalysisPending

	go func() {
		defer close(done)
		defer cancel()
		c.applyAnalysis(generation, c.analyze(actx, balls))
	}()
}

// analyze shields the session from a misbehaving analyzer
func (c *DrawController) analyze(ctx context.Context, balls []Ball) (reading string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Analyzer panicked: %v", ErrSystemError.WithSessionID(c.sessionID).WithOperation("Analyze").WithDetails(fmt.Sprint(r)))
			reading = FallbackTurbulent
		}
	}()
	return c.analyzer.Analyze(ctx, balls)
}

func (c *DrawController) applyAnalysis(generation uint64, reading string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		c.logger.Debug("Discarding reading for generation %d (current %d)", generation, c.generation)
		if c.monitor != nil {
			c.monitor.RecordStaleReading()
		}
		return
	}

	c.analysis = reading
	c.analysisState = AnalysisReady
	c.cancelAnalysis = nil
}

// Reset archives a complete ticket into history and starts a new EMPTY ticket.
//
// Allowed at any ticket length; only complete tickets are archived. Any pending
// reading is cancelled and its late result will not be applied.
func (c *DrawController) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	archived := c.ticket.IsComplete(c.rules)
	if archived {
		c.history.Push(c.ticket)
	}

	if c.cancelAnalysis != nil {
		c.cancelAnalysis()
		c.cancelAnalysis = nil
	}
	c.analysisDone = nil
	c.analysis = ""
	c.analysisState = AnalysisIdle

	c.stopSettleLocked()
	c.ticket = Ticket{}
	c.generation++

	if c.monitor != nil {
		c.monitor.RecordReset()
	}
	c.logger.Debug("Session reset: archived=%t, history=%d, generation=%d", archived, c.history.Len(), c.generation)
}

// Close cancels any pending reading and stops the cooldown timer.
// A reading that still arrives afterwards is discarded.
func (c *DrawController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelAnalysis != nil {
		c.cancelAnalysis()
		c.cancelAnalysis = nil
	}
	if c.analysisState == AnalysisPending {
		c.analysisState = AnalysisIdle
	}
	c.stopSettleLocked()
	c.generation++
	c.logger.Debug("Session closed: generation=%d", c.generation)
}

// Ticket returns a copy of the current ticket
func (c *DrawController) Ticket() Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return NewTicket(c.ticket.balls...)
}

// History returns the archived tickets, most recent first
func (c *DrawController) History() []Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Entries()
}

// IsDrawing reports whether the post-draw cooldown is active
func (c *DrawController) IsDrawing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drawing
}

// IsComplete reports whether the current ticket is complete
func (c *DrawController) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticket.IsComplete(c.rules)
}

// Phase returns the lifecycle phase of the current ticket
func (c *DrawController) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticket.Phase(c.rules)
}

// Analysis returns the reading state and text of the current ticket
func (c *DrawController) Analysis() (AnalysisState, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analysisState, c.analysis
}

// WaitAnalysis blocks until the pending reading of the current ticket has been
// handled or ctx is done
func (c *DrawController) WaitAnalysis(ctx context.Context) (AnalysisState, string, error) {
	c.mu.Lock()
	done := c.analysisDone
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			state, text := c.Analysis()
			return state, text, ctx.Err()
		}
	}

	state, text := c.Analysis()
	return state, text, nil
}

// Generation returns the identifier of the current ticket
func (c *DrawController) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Rules returns the rules of this session
func (c *DrawController) Rules() Rules { return c.rules }

// SessionID returns the session identifier
func (c *DrawController) SessionID() string { return c.sessionID }

// State returns a consistent snapshot of the whole session
func (c *DrawController) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return SessionState{
		SessionID:     c.sessionID,
		Phase:         c.ticket.Phase(c.rules),
		Ticket:        NewTicket(c.ticket.balls...),
		History:       c.history.Entries(),
		Drawing:       c.drawing,
		AnalysisState: c.analysisState,
		Analysis:      c.analysis,
		Generation:    c.generation,
	}
}
