// Package interview implements the turn coordinator of an interview
// attempt.
//
// A [Coordinator] owns one attempt at a time: it creates the session,
// opens the duplex channel, plays the interviewer's audio, opens listen
// windows on the capture engine and sends the candidate's answers back. All
// of that state is mutated by a single event loop ([Coordinator.Run]);
// network reads, playback, capture and timers run on their own goroutines
// and only post events to it. Handling of one event always completes
// before the next is taken, so transitions never interleave.
//
// Turn cycle:
//
//	SPEAKING frame ─▶ Speaking ─▶ audio plays ─▶ settle delay ─▶ Listening
//	    ▲                                                            │
//	    └──────────── Processing ◀── answer sent ◀── final transcript┘
//
// An ENDED frame marks the attempt final; the closing audio still plays
// before the coordinator tears the channel down.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/capture"
	"github.com/MrWong99/intervox/pkg/transport"
)

var (
	// ErrCannotStart is returned by StartInterview when the session could
	// not be created or its channel could not be opened.
	ErrCannotStart = errors.New("interview: cannot start")

	// ErrNotRunning is returned when the event loop is not running.
	ErrNotRunning = errors.New("interview: coordinator not running")

	// ErrBusy is returned by StartInterview while an attempt is in progress.
	ErrBusy = errors.New("interview: attempt already in progress")

	// ErrNotArmed is returned by RequestListen when no listen window is
	// waiting for the trigger.
	ErrNotArmed = errors.New("interview: no listen window armed")
)

// Reason says why an attempt ended.
type Reason string

const (
	ReasonUser          Reason = "user"
	ReasonRemote        Reason = "remote"
	ReasonChannelClosed Reason = "channel_closed"
	ReasonShutdown      Reason = "shutdown"
)

// Bootstrapper creates sessions and knows where their channels live.
// *backend.Client implements it.
type Bootstrapper interface {
	CreateSession(ctx context.Context, subjectID, userID string) (string, error)
	ChannelURL(sessionID, userID string) (string, error)
}

// Config identifies the candidate and what they are interviewing for.
type Config struct {
	SubjectID string
	UserID    string
}

// Deps are the coordinator's collaborators. The coordinator takes
// ownership of Player and Capture and closes them when Run returns.
type Deps struct {
	Backend Bootstrapper
	Dialer  transport.Dialer
	Player  audio.Player

	// Capture may be nil when voice input is unavailable. Listen windows
	// then never open.
	Capture capture.Engine
}

// Result is the snapshot surfaced once per attempt when it ends.
type Result struct {
	Session    Session
	Transcript []Entry
	Feedback   *Feedback
	Reason     Reason
}

// Snapshot is the read-only view for presentation layers.
type Snapshot struct {
	State      State
	Session    Session
	Transcript []Entry
	Feedback   *Feedback

	// Caption is the interviewer's latest utterance.
	Caption string
	// Interim is the candidate's in-progress recognition, if any.
	Interim string
	// ListenArmed is set in manual mode while the window waits for
	// RequestListen.
	ListenArmed bool
	// Capturing is set while a capture window is open.
	Capturing bool
}

// outcome carries one attempt's result to Wait. err is set when the attempt
// never got past bootstrap.
type outcome struct {
	done   chan struct{}
	result Result
	err    error
}

func (o *outcome) closed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Coordinator sequences one interview attempt at a time.
type Coordinator struct {
	cfg     Config
	backend Bootstrapper
	dialer  transport.Dialer
	player  audio.Player
	capture capture.Engine

	settleDelay time.Duration
	finalGrace  time.Duration
	manual      bool
	observer    Observer
	metrics     *observe.Metrics

	events  chan event
	done    chan struct{}
	running atomic.Bool
	runCtx  context.Context

	// Written only by the loop. Fields below mu are also read by Snapshot
	// and Wait under mu.
	mu       sync.RWMutex
	state    State
	session  Session
	entries  transcript
	feedback *Feedback
	caption  string
	interim  string
	armed    bool
	window   capture.Window
	outcome  *outcome

	// Loop-only.
	gen           uint64
	attemptCtx    context.Context
	attemptCancel context.CancelFunc
	ch            transport.Channel
	ending        bool
	final         bool
	spoke         bool
	playing       bool
	queue         [][]byte
	listenToken   uint64
	listenTimer   *time.Timer
	startToken    uint64
	starting      bool
	early         []capture.Utterance
	windowStart   time.Time
	graceToken    uint64
	graceTimer    *time.Timer
}

// New validates deps and returns an idle coordinator. Call Run before any
// other method.
func New(cfg Config, deps Deps, opts ...Option) (*Coordinator, error) {
	var errs []error
	if deps.Backend == nil {
		errs = append(errs, errors.New("interview: backend is required"))
	}
	if deps.Dialer == nil {
		errs = append(errs, errors.New("interview: dialer is required"))
	}
	if deps.Player == nil {
		errs = append(errs, errors.New("interview: player is required"))
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		errs = append(errs, errors.New("interview: user id is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:         cfg,
		backend:     deps.Backend,
		dialer:      deps.Dialer,
		player:      deps.Player,
		capture:     deps.Capture,
		settleDelay: DefaultSettleDelay,
		finalGrace:  DefaultFinalAudioGrace,
		observer:    ObserverFuncs{},
		events:      make(chan event, 64),
		done:        make(chan struct{}),
		outcome:     &outcome{done: make(chan struct{})},
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.observer == nil {
		c.observer = ObserverFuncs{}
	}
	if c.capture == nil {
		slog.Warn("interview: no capture engine; voice input disabled")
	}
	return c, nil
}

// ---- public API ----

// Run is the event loop. It returns when ctx is cancelled, ending any
// attempt in progress with [ReasonShutdown].
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("interview: Run called twice")
	}
	c.runCtx = ctx
	defer close(c.done)

	if c.capture != nil {
		go c.forwardUtterances(c.capture.Utterances())
	}

	for {
		select {
		case <-ctx.Done():
			c.terminate(ReasonShutdown)
			c.closeEngines()
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// StartInterview begins a new attempt and returns once its channel is open.
// It fails with [ErrCannotStart] when bootstrap or dial fails; the state is
// then back at Idle and no channel is open.
func (c *Coordinator) StartInterview(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.submit(ctx, startRequest{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EndInterview ends the attempt in progress. Calling it again, or when no
// attempt is running, does nothing.
func (c *Coordinator) EndInterview(ctx context.Context) {
	done := make(chan struct{})
	if err := c.submit(ctx, endRequest{reason: ReasonUser, done: done}); err != nil {
		return
	}
	select {
	case <-done:
	case <-c.done:
	case <-ctx.Done():
	}
}

// RequestListen opens an armed listen window. It only has an effect with
// [WithManualListen]; otherwise it returns [ErrNotArmed].
func (c *Coordinator) RequestListen(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.submit(ctx, listenRequest{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the presentation state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		State:       c.state,
		Session:     c.session,
		Transcript:  c.entries.snapshot(),
		Feedback:    c.feedback.Clone(),
		Caption:     c.caption,
		Interim:     c.interim,
		ListenArmed: c.armed,
		Capturing:   c.window != 0,
	}
}

// Wait blocks until the current (or next) attempt ends and returns its
// result. When that attempt fails to start, Wait returns the
// [ErrCannotStart] error StartInterview returned.
func (c *Coordinator) Wait(ctx context.Context) (Result, error) {
	c.mu.RLock()
	o := c.outcome
	c.mu.RUnlock()
	select {
	case <-o.done:
		return o.result, o.err
	case <-c.done:
		select {
		case <-o.done:
			return o.result, o.err
		default:
			return Result{}, ErrNotRunning
		}
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// ---- events ----

type event any

type (
	startRequest struct{ reply chan error }
	endRequest   struct {
		reason Reason
		done   chan struct{}
	}
	listenRequest struct{ reply chan error }

	bootstrapped struct {
		gen     uint64
		session Session
		ch      transport.Channel
		err     error
		reply   chan error
	}
	frameReceived struct {
		gen   uint64
		frame transport.Frame
	}
	channelClosed struct{ gen uint64 }
	playbackDone  struct {
		gen  uint64
		err  error
		took time.Duration
	}
	listenFired  struct{ token uint64 }
	windowOpened struct {
		token  uint64
		window capture.Window
		err    error
	}
	graceFired        struct{ token uint64 }
	utteranceReceived struct{ u capture.Utterance }
)

// submit posts an API request, honouring ctx.
func (c *Coordinator) submit(ctx context.Context, ev event) error {
	if !c.running.Load() {
		return ErrNotRunning
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an event from a worker goroutine. It reports false once the
// loop has exited.
func (c *Coordinator) post(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Coordinator) handle(ev event) {
	switch ev := ev.(type) {
	case startRequest:
		c.onStart(ev)
	case bootstrapped:
		c.onBootstrapped(ev)
	case frameReceived:
		c.onFrame(ev)
	case channelClosed:
		c.onChannelClosed(ev)
	case playbackDone:
		c.onPlaybackDone(ev)
	case listenFired:
		c.onListenFired(ev)
	case windowOpened:
		c.onWindowOpened(ev)
	case graceFired:
		c.onGraceFired(ev)
	case utteranceReceived:
		c.onUtterance(ev.u)
	case listenRequest:
		c.onListenRequest(ev)
	case endRequest:
		c.terminate(ev.reason)
		close(ev.done)
	default:
		slog.Error("interview: unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

// ---- session ----

func (c *Coordinator) onStart(r startRequest) {
	if !c.state.canStart() {
		r.reply <- ErrBusy
		return
	}

	c.gen++
	c.ending, c.final, c.spoke, c.playing = false, false, false, false
	c.queue = nil
	c.attemptCtx, c.attemptCancel = context.WithCancel(c.runCtx)

	c.mu.Lock()
	c.session = Session{SubjectID: c.cfg.SubjectID, UserID: c.cfg.UserID}
	c.entries.reset()
	c.feedback = nil
	c.caption, c.interim = "", ""
	c.armed = false
	c.window = 0
	// A Wait issued before this start is waiting on the open outcome.
	if c.outcome.closed() {
		c.outcome = &outcome{done: make(chan struct{})}
	}
	c.mu.Unlock()
	c.starting, c.early = false, nil

	c.setState(Processing)
	go c.bootstrap(c.attemptCtx, c.gen, r.reply)
}

// bootstrap creates the session and opens its channel off the loop.
func (c *Coordinator) bootstrap(ctx context.Context, gen uint64, reply chan error) {
	ev := bootstrapped{gen: gen, reply: reply}
	defer func() {
		if !c.post(ev) && ev.ch != nil {
			_ = ev.ch.Close()
		}
	}()

	id, err := c.backend.CreateSession(ctx, c.cfg.SubjectID, c.cfg.UserID)
	if err != nil {
		ev.err = err
		return
	}
	url, err := c.backend.ChannelURL(id, c.cfg.UserID)
	if err != nil {
		ev.err = err
		return
	}
	ch, err := c.dialer.Dial(ctx, url)
	if err != nil {
		ev.err = fmt.Errorf("open channel: %w", err)
		return
	}
	ev.session = Session{ID: id, SubjectID: c.cfg.SubjectID, UserID: c.cfg.UserID}
	ev.ch = ch
}

func (c *Coordinator) onBootstrapped(ev bootstrapped) {
	if ev.gen != c.gen || c.ending {
		if ev.ch != nil {
			_ = ev.ch.Close()
		}
		if ev.err == nil {
			ev.err = errors.New("attempt ended before the channel opened")
		}
		ev.reply <- fmt.Errorf("%w: %w", ErrCannotStart, ev.err)
		return
	}
	if ev.err != nil {
		slog.Warn("interview: bootstrap failed", "err", ev.err)
		c.attemptCancel()
		c.setState(Idle)
		err := fmt.Errorf("%w: %w", ErrCannotStart, ev.err)
		c.mu.Lock()
		o := c.outcome
		o.result = Result{Session: c.session}
		o.err = err
		close(o.done)
		c.mu.Unlock()
		ev.reply <- err
		return
	}

	c.ch = ev.ch
	c.mu.Lock()
	c.session = ev.session
	c.mu.Unlock()
	c.metrics.ActiveSessions.Add(c.runCtx, 1)
	slog.Info("interview: session open", "session_id", ev.session.ID, "subject_id", ev.session.SubjectID)

	go c.readFrames(ev.gen, ev.ch)
	ev.reply <- nil
}

// readFrames forwards inbound frames in order, then reports the closure.
func (c *Coordinator) readFrames(gen uint64, ch transport.Channel) {
	for f := range ch.Frames() {
		if !c.post(frameReceived{gen: gen, frame: f}) {
			return
		}
	}
	c.post(channelClosed{gen: gen})
}

func (c *Coordinator) onChannelClosed(ev channelClosed) {
	if ev.gen != c.gen || c.ending {
		return
	}
	if c.final {
		// Normal close after ENDED; let the closing remark finish.
		if !c.playing && len(c.queue) == 0 {
			c.terminate(ReasonRemote)
		}
		return
	}
	slog.Info("interview: channel closed before the interview ended")
	c.terminate(ReasonChannelClosed)
}

// terminate ends the attempt at most once.
func (c *Coordinator) terminate(reason Reason) {
	if c.ending || !c.inAttempt() {
		return
	}
	c.ending = true

	c.cancelListen()
	c.cancelGrace()
	c.stopCapture()
	c.queue = nil
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			slog.Debug("interview: close channel", "err", err)
		}
		c.ch = nil
		c.metrics.ActiveSessions.Add(c.runCtx, -1)
	}
	if c.attemptCancel != nil {
		c.attemptCancel()
	}
	c.setState(Ended)

	c.mu.Lock()
	res := Result{
		Session:    c.session,
		Transcript: c.entries.snapshot(),
		Feedback:   c.feedback.Clone(),
		Reason:     reason,
	}
	o := c.outcome
	o.result = res
	close(o.done)
	c.mu.Unlock()

	slog.Info("interview: ended", "session_id", res.Session.ID, "reason", reason, "turns", len(res.Transcript))
	c.observer.Ended(res)
}

func (c *Coordinator) inAttempt() bool {
	return c.state != Idle && c.state != Ended
}

func (c *Coordinator) closeEngines() {
	if err := c.player.Close(); err != nil {
		slog.Debug("interview: close player", "err", err)
	}
	if c.capture != nil {
		if err := c.capture.Close(); err != nil {
			slog.Debug("interview: close capture", "err", err)
		}
	}
}

// ---- frames ----

func (c *Coordinator) onFrame(ev frameReceived) {
	if ev.gen != c.gen || c.ending {
		return
	}
	c.metrics.RecordFrame(c.runCtx, ev.frame.Kind.String())

	switch ev.frame.Kind {
	case transport.FrameBinary:
		c.onAudio(ev.frame.Data)
	case transport.FrameText:
		ctl, err := transport.ParseControl(ev.frame.Data)
		if err != nil {
			c.metrics.MalformedFrames.Add(c.runCtx, 1)
			slog.Warn("interview: ignoring control frame", "err", err)
			return
		}
		c.onControl(ctl)
	}
}

func (c *Coordinator) onControl(ctl transport.Control) {
	switch ctl.State {
	case transport.RemoteSpeaking:
		c.cancelListen()
		c.stopCapture()
		if text := strings.TrimSpace(ctl.Text); text != "" {
			c.appendEntry(RoleInterviewer, text)
			c.mu.Lock()
			c.caption = text
			c.mu.Unlock()
		}
		c.spoke = true
		c.setState(Speaking)

	case transport.RemoteProcessing:
		c.cancelListen()
		c.stopCapture()
		c.setState(Processing)

	case transport.RemoteEnded:
		if !c.spoke {
			slog.Warn("interview: ignoring ENDED before the interviewer spoke")
			return
		}
		if c.final {
			slog.Debug("interview: ignoring repeated ENDED")
			return
		}
		fb := DecodeFeedback(ctl.Feedback)
		c.mu.Lock()
		c.feedback = &fb
		c.mu.Unlock()
		c.final = true
		c.cancelListen()
		if c.state == Listening {
			c.stopCapture()
			c.setState(Processing)
		}
		if !c.playing && len(c.queue) == 0 {
			c.armGrace()
		}

	case transport.RemoteListening:
		slog.Debug("interview: remote listening hint")
	}
}

// ---- playback ----

func (c *Coordinator) onAudio(clip []byte) {
	c.cancelListen()
	c.cancelGrace()
	if c.state == Listening {
		c.stopCapture()
		c.setState(Speaking)
	}
	c.queue = append(c.queue, clip)
	if !c.playing {
		c.playNext()
	}
}

// playNext starts the oldest queued clip. At most one Play is in flight.
func (c *Coordinator) playNext() {
	clip := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.playing = true

	ctx, gen := c.attemptCtx, c.gen
	go func() {
		start := time.Now()
		err := c.player.Play(ctx, clip)
		c.post(playbackDone{gen: gen, err: err, took: time.Since(start)})
	}()
}

func (c *Coordinator) onPlaybackDone(ev playbackDone) {
	if ev.gen != c.gen {
		return
	}
	c.playing = false
	if c.ending {
		return
	}
	c.metrics.PlaybackDuration.Record(c.runCtx, ev.took.Seconds())
	if ev.err != nil {
		// A clip that cannot be decoded counts as played.
		slog.Warn("interview: playback failed", "err", ev.err)
	}

	switch {
	case len(c.queue) > 0:
		c.playNext()
	case c.final:
		c.terminate(ReasonRemote)
	default:
		c.scheduleListen()
	}
}

// ---- listening ----

// scheduleListen arms the settle timer. Its firing is checked against the
// token, so a cancelled timer that already fired is harmless.
func (c *Coordinator) scheduleListen() {
	c.cancelListen()
	tok := c.listenToken
	c.listenTimer = time.AfterFunc(c.settleDelay, func() {
		c.post(listenFired{token: tok})
	})
}

// cancelListen stops the settle timer and disarms a manual window.
func (c *Coordinator) cancelListen() {
	if c.listenTimer != nil {
		c.listenTimer.Stop()
		c.listenTimer = nil
	}
	c.listenToken++
	c.setArmed(false)
}

func (c *Coordinator) onListenFired(ev listenFired) {
	if ev.token != c.listenToken {
		return
	}
	c.listenTimer = nil
	if c.ending || c.final || c.playing || len(c.queue) > 0 || c.capture == nil {
		return
	}
	c.setState(Listening)
	if c.manual {
		c.setArmed(true)
		c.observer.ListenArmed()
		return
	}
	c.startCapture()
}

func (c *Coordinator) onListenRequest(r listenRequest) {
	c.mu.RLock()
	armed := c.armed
	c.mu.RUnlock()
	if c.ending || !armed {
		r.reply <- ErrNotArmed
		return
	}
	c.setArmed(false)
	c.startCapture()
	r.reply <- nil
}

// startCapture opens a window off the loop; engines may dial a provider.
func (c *Coordinator) startCapture() {
	tok := c.listenToken
	c.startToken = tok
	c.starting, c.early = true, nil
	ctx := c.attemptCtx
	go func() {
		w, err := c.capture.Start(ctx)
		c.post(windowOpened{token: tok, window: w, err: err})
	}()
}

// maxEarly bounds the utterances held while a window start is pending.
const maxEarly = 32

// pendingStart reports whether the current listen turn is waiting for
// Start to return. An engine may emit for the new window before the loop
// has seen windowOpened.
func (c *Coordinator) pendingStart() bool {
	return c.starting && c.startToken == c.listenToken && c.window == 0
}

func (c *Coordinator) onWindowOpened(ev windowOpened) {
	early := c.early
	if ev.token == c.startToken {
		c.starting, c.early = false, nil
	}
	if ev.token != c.listenToken || c.ending || c.state != Listening {
		// A newer Start already replaced this window.
		if ev.err == nil && ev.token == c.startToken {
			c.capture.Stop()
		}
		return
	}
	if ev.err != nil {
		slog.Warn("interview: capture failed; waiting in LISTENING", "err", ev.err)
		return
	}
	c.setWindow(ev.window)
	c.windowStart = time.Now()
	for _, u := range early {
		if c.window == 0 {
			break
		}
		c.onUtterance(u)
	}
}

// stopCapture aborts the open or pending window.
func (c *Coordinator) stopCapture() {
	if c.capture == nil {
		return
	}
	if c.window != 0 || c.state == Listening {
		c.capture.Stop()
	}
	c.early = nil
	c.setWindow(0)
	c.setInterim("")
}

func (c *Coordinator) forwardUtterances(in <-chan capture.Utterance) {
	for u := range in {
		if !c.post(utteranceReceived{u: u}) {
			return
		}
	}
}

func (c *Coordinator) onUtterance(u capture.Utterance) {
	if c.ending {
		return
	}
	if c.pendingStart() {
		if len(c.early) < maxEarly {
			c.early = append(c.early, u)
		}
		return
	}
	if c.window == 0 || u.Window != c.window {
		return
	}
	if !u.Final {
		c.setInterim(u.Text)
		return
	}
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return
	}

	c.metrics.STTDuration.Record(c.runCtx, time.Since(c.windowStart).Seconds())
	c.cancelListen()
	c.capture.Stop()
	c.setWindow(0)
	c.setInterim("")
	c.appendEntry(RoleCandidate, text)
	c.sendAnswer(text)
	c.setState(Processing)
}

func (c *Coordinator) sendAnswer(text string) {
	if c.ch == nil {
		return
	}
	data, err := transport.EncodeAnswer(text)
	if err != nil {
		slog.Error("interview: encode answer", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(c.attemptCtx, sendTimeout)
	defer cancel()
	if err := c.ch.Send(ctx, data); err != nil {
		slog.Warn("interview: send answer", "err", err)
	}
}

// ---- final audio grace ----

func (c *Coordinator) armGrace() {
	c.cancelGrace()
	if c.finalGrace <= 0 {
		return
	}
	tok := c.graceToken
	c.graceTimer = time.AfterFunc(c.finalGrace, func() {
		c.post(graceFired{token: tok})
	})
}

func (c *Coordinator) cancelGrace() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	c.graceToken++
}

func (c *Coordinator) onGraceFired(ev graceFired) {
	if ev.token != c.graceToken || c.ending || c.playing || len(c.queue) > 0 {
		return
	}
	slog.Info("interview: no closing audio after ENDED")
	c.terminate(ReasonRemote)
}

// ---- state ----

func (c *Coordinator) setState(s State) {
	from := c.state
	if from == s {
		return
	}
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.metrics.RecordTransition(c.runCtx, from.String(), s.String())
	slog.Debug("interview: state", "from", from, "to", s)
	c.observer.StateChanged(from, s)
}

func (c *Coordinator) appendEntry(role Role, text string) {
	e := Entry{Role: role, Text: text}
	c.mu.Lock()
	c.entries.append(e)
	c.mu.Unlock()
	c.metrics.RecordTurn(c.runCtx, string(role))
	c.observer.EntryAppended(e)
}

func (c *Coordinator) setArmed(v bool) {
	c.mu.Lock()
	c.armed = v
	c.mu.Unlock()
}

func (c *Coordinator) setWindow(w capture.Window) {
	c.mu.Lock()
	c.window = w
	c.mu.Unlock()
}

func (c *Coordinator) setInterim(text string) {
	c.mu.Lock()
	changed := c.interim != text
	c.interim = text
	c.mu.Unlock()
	if changed {
		c.observer.Interim(text)
	}
}
