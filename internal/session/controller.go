// Package session drives one pose analysis stream from handshake to final summary.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/frame"
	"github.com/claude/posereps/internal/models"
	"github.com/claude/posereps/internal/pose"
	"github.com/claude/posereps/internal/protocol"
	"github.com/claude/posereps/internal/rep"
	"github.com/claude/posereps/internal/timeutil"
)

var (
	// ErrClosed is returned by a Transport whose connection dropped.
	ErrClosed = errors.New("session: transport closed")
	// ErrClientClosed is returned by a Transport when the client closed the stream normally.
	ErrClientClosed = errors.New("session: client closed the stream")

	errBudgetElapsed = errors.New("session: budget elapsed while waiting for a frame")
)

// MessageKind distinguishes text and binary stream messages.
type MessageKind int

const (
	TextMessage MessageKind = iota + 1
	BinaryMessage
)

// Message is one inbound stream message.
type Message struct {
	Kind MessageKind
	Data []byte
}

// Transport is the bidirectional message channel of one session.
type Transport interface {
	Receive(ctx context.Context) (Message, error)
	SendText(ctx context.Context, text string) error
	SendBinary(ctx context.Context, data []byte) error
	Close(reason string) error
}

// Codec decodes inbound frames and renders the annotated frames sent back.
type Codec interface {
	Decode(data []byte) (image.Image, error)
	Render(img image.Image, o frame.Overlay) ([]byte, error)
}

// Recorder persists a finished session.
type Recorder interface {
	RecordSession(ctx context.Context, rec models.SessionRecord) error
}

// Config holds the collaborators shared by every session.
type Config struct {
	Registry   *exercise.Registry
	Estimators pose.Factory
	Codec      Codec
	// Recorder is optional.
	Recorder Recorder
	Clock    timeutil.Clock
	Logger   *slog.Logger

	// Timeout is the wall-clock budget of a streaming session. It also bounds
	// the wait for each frame.
	Timeout time.Duration
	// SendTimeout bounds the final summary write and the recorder call.
	SendTimeout time.Duration
}

// Controller runs a single session. Create one per connection with New.
type Controller struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger
	lifecycle *Lifecycle

	id        uuid.UUID
	handshake protocol.Handshake
	def       exercise.Definition
	machine   *rep.Machine
	estimator pose.Estimator
	startedAt time.Time

	results  []models.RepResult
	feedback string

	finalizeOnce sync.Once
	summary      models.SessionSummary
}

// New creates a controller for one connection.
func New(cfg Config, t Transport) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	id := uuid.New()
	return &Controller{
		cfg:       cfg,
		transport: t,
		logger:    cfg.Logger.With("session_id", id),
		lifecycle: NewLifecycle(),
		id:        id,
	}
}

// ID returns the session identifier.
func (c *Controller) ID() uuid.UUID { return c.id }

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.lifecycle.State() }

// States returns the lifecycle states entered so far.
func (c *Controller) States() []State { return c.lifecycle.History() }

// Run performs the handshake and streams until the budget elapses, the client
// leaves or ctx is cancelled. The final summary is sent exactly once. A
// non-nil error means the handshake failed and no summary was produced.
func (c *Controller) Run(ctx context.Context) (summary models.SessionSummary, err error) {
	defer c.close()

	if err := c.initialize(ctx); err != nil {
		c.setState(StateFinalizing)
		c.logger.Warn("session rejected", "error", err)
		if sendErr := c.transport.SendText(ctx, protocol.ErrorText(err.Error())); sendErr != nil {
			c.logger.Debug("sending handshake error", "error", sendErr)
		}
		return models.SessionSummary{}, err
	}
	c.setState(StateStreaming)
	c.logger.Info("session started",
		"exercise_id", c.def.ID,
		"patient_id", c.handshake.PatientID,
	)

	cause := c.streamSafely(ctx)
	return c.finalize(cause), nil
}

func (c *Controller) initialize(ctx context.Context) error {
	msg, err := c.receive(ctx, c.cfg.Timeout)
	if err != nil {
		return fmt.Errorf("waiting for init message: %w", err)
	}
	if msg.Kind != TextMessage {
		return errors.New("invalid init message: expected a text message")
	}
	h, err := protocol.ParseHandshake(msg.Data)
	if err != nil {
		return err
	}
	def, err := c.cfg.Registry.Lookup(h.ExerciseID)
	if err != nil {
		return err
	}
	est, err := c.cfg.Estimators.Open(ctx)
	if err != nil {
		return fmt.Errorf("pose estimator unavailable: %w", err)
	}

	c.handshake = h
	c.def = def
	c.machine = rep.NewMachine(def)
	c.estimator = est
	c.startedAt = c.cfg.Clock.Now()
	return nil
}

// streamSafely runs the frame loop, converting an escaped panic into a fault.
func (c *Controller) streamSafely(ctx context.Context) (cause models.EndCause) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session loop panicked", "panic", r)
			cause = models.EndFault
		}
	}()
	return c.stream(ctx)
}

func (c *Controller) stream(ctx context.Context) models.EndCause {
	for {
		if c.cfg.Clock.Since(c.startedAt) >= c.cfg.Timeout {
			return models.EndTimeout
		}
		if ctx.Err() != nil {
			return models.EndShutdown
		}

		msg, err := c.receive(ctx, c.cfg.Timeout-c.cfg.Clock.Since(c.startedAt))
		if err != nil {
			switch {
			case errors.Is(err, errBudgetElapsed):
				return models.EndTimeout
			case errors.Is(err, ErrClientClosed):
				return models.EndClientClosed
			case ctx.Err() != nil:
				return models.EndShutdown
			default:
				c.logger.Info("stream receive failed", "error", err)
				return models.EndDisconnected
			}
		}
		if msg.Kind != BinaryMessage {
			c.logger.Debug("ignoring text message mid-stream")
			continue
		}

		out, ok := c.processFrame(ctx, msg.Data)
		if !ok {
			continue
		}
		if err := c.transport.SendBinary(ctx, out); err != nil {
			c.logger.Info("sending annotated frame failed", "error", err)
			if ctx.Err() != nil {
				return models.EndShutdown
			}
			return models.EndDisconnected
		}
	}
}

type received struct {
	msg Message
	err error
}

// receive waits up to budget for the next message. An abandoned Receive
// returns once close shuts the transport.
func (c *Controller) receive(ctx context.Context, budget time.Duration) (Message, error) {
	timer := c.cfg.Clock.NewTimer(budget)
	defer timer.Stop()

	ch := make(chan received, 1)
	go func() {
		msg, err := c.transport.Receive(ctx)
		ch <- received{msg: msg, err: err}
	}()

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-timer.C():
		return Message{}, errBudgetElapsed
	}
}

// processFrame decodes, analyzes and renders one frame. ok is false when the
// frame could not be decoded or rendered and nothing should be sent back.
func (c *Controller) processFrame(ctx context.Context, data []byte) (out []byte, ok bool) {
	img, err := c.cfg.Codec.Decode(data)
	if err != nil {
		c.logger.Debug("skipping undecodable frame", "error", err, "bytes", len(data))
		return nil, false
	}

	landmarks := c.analyze(ctx, img)
	out, err = c.cfg.Codec.Render(img, frame.Overlay{
		Reps:      c.machine.Count(),
		Phase:     c.machine.Phase(),
		Feedback:  c.feedback,
		Landmarks: landmarks,
		Highlight: c.def.RequiredLandmarks(),
	})
	if err != nil {
		c.logger.Warn("rendering frame failed", "error", err)
		return nil, false
	}
	return out, true
}

// analyze runs pose estimation and the rep machine for one image. Any failure,
// including a panic, leaves the machine as it was and the frame is still sent.
func (c *Controller) analyze(ctx context.Context, img image.Image) (landmarks []models.Landmark) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("frame analysis panicked", "panic", r)
		}
	}()

	pf, found, err := c.estimator.Estimate(ctx, img, c.cfg.Clock.Now())
	if err != nil {
		c.logger.Warn("pose estimation failed", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	for _, name := range models.AllLandmarks {
		if l, ok := pf.Landmarks[name]; ok {
			landmarks = append(landmarks, l)
		}
	}

	s, err := rep.Measure(c.def, pf)
	if err != nil {
		c.logger.Debug("skipping frame", "error", err)
		return landmarks
	}
	if r, done := c.machine.Observe(s); done {
		c.results = append(c.results, r)
		c.feedback = r.Feedback
		c.logger.Info("rep completed",
			"rep", r.Number,
			"good", r.Good,
			"feedback", r.Feedback,
			"duration", r.Duration,
		)
	}
	return landmarks
}

// finalize computes the summary, sends it and hands it to the recorder. Only
// the first call has any effect.
func (c *Controller) finalize(cause models.EndCause) models.SessionSummary {
	c.finalizeOnce.Do(func() {
		c.setState(StateFinalizing)
		c.summary = Summarize(Summary{
			ID:              c.id,
			ExerciseID:      c.def.ID,
			PatientID:       c.handshake.PatientID,
			ClientTimestamp: c.handshake.Timestamp,
			StartedAt:       c.startedAt,
		}, c.results, c.cfg.Clock.Now(), cause)

		// ctx may already be cancelled here, so the final writes get their own budget.
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SendTimeout)
		defer cancel()

		payload, err := json.Marshal(protocol.NewSessionEnded(c.summary))
		if err != nil {
			c.logger.Error("encoding summary", "error", err)
		} else if err := c.transport.SendText(ctx, string(payload)); err != nil {
			c.logger.Info("could not send summary", "error", err)
		}

		c.logger.Info("session ended",
			"cause", cause,
			"total_reps", c.summary.TotalReps,
			"good_reps", c.summary.GoodReps,
			"score", c.summary.Score,
		)

		if c.cfg.Recorder == nil {
			return
		}
		rec := models.SessionRecord{Summary: c.summary, Reps: c.results}
		if err := c.cfg.Recorder.RecordSession(ctx, rec); err != nil {
			c.logger.Error("recording session", "error", err)
		}
	})
	return c.summary
}

func (c *Controller) close() {
	c.setState(StateClosed)
	if c.estimator != nil {
		if err := c.estimator.Close(); err != nil {
			c.logger.Warn("closing pose estimator", "error", err)
		}
	}
	if err := c.transport.Close("session ended"); err != nil {
		c.logger.Debug("closing transport", "error", err)
	}
}

func (c *Controller) setState(next State) {
	if err := c.lifecycle.Transition(next); err != nil {
		c.logger.Error("lifecycle", "error", err)
	}
}
