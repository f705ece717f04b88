package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/haasonsaas/switchboard/internal/calllog"
	"github.com/haasonsaas/switchboard/internal/failure"
	"github.com/haasonsaas/switchboard/internal/notify"
	"github.com/haasonsaas/switchboard/internal/observability"
	"github.com/haasonsaas/switchboard/internal/publish"
	"github.com/haasonsaas/switchboard/internal/recording"
	"github.com/haasonsaas/switchboard/internal/reply"
	"github.com/haasonsaas/switchboard/internal/sessions"
	"github.com/haasonsaas/switchboard/internal/transcribe"
	"github.com/haasonsaas/switchboard/internal/tts"
)

// Stage names used in logs, metrics, spans and failures.
const (
	StageFetch      = "fetch"
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StageSynthesize = "synthesize"
	StagePublish    = "publish"
	stagePanic      = "turn"
)

// Synthesizer converts reply text into audio. *tts.Synthesizer implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, callID, text string) tts.Result
}

// Recorder accepts call log entries without blocking.
// *calllog.AsyncWriter implements it.
type Recorder interface {
	Record(e calllog.Entry) bool
}

// Deps are the orchestrator's collaborators. Fetcher, Transcriber,
// Generator, Synthesizer, Publisher and Notifier are required.
type Deps struct {
	Fetcher     recording.Fetcher
	Transcriber transcribe.Transcriber
	Generator   reply.Generator
	Classifier  *reply.Classifier
	Synthesizer Synthesizer
	Publisher   publish.Publisher
	// Notifier must not block; wrap slow channels in a notify.Dispatcher.
	Notifier notify.Notifier

	Sessions *sessions.Registry
	CallLog  Recorder
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Logger   *slog.Logger
}

// Orchestrator runs turns. It is safe for concurrent use; turns share no
// mutable state beyond the optional session registry.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
}

// New validates deps and creates an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var missing []string
	if deps.Fetcher == nil {
		missing = append(missing, "fetcher")
	}
	if deps.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if deps.Generator == nil {
		missing = append(missing, "generator")
	}
	if deps.Synthesizer == nil {
		missing = append(missing, "synthesizer")
	}
	if deps.Publisher == nil {
		missing = append(missing, "publisher")
	}
	if deps.Notifier == nil {
		missing = append(missing, "notifier")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("turn: missing dependencies: %s", strings.Join(missing, ", "))
	}

	if deps.Classifier == nil {
		deps.Classifier = reply.NewClassifier(nil, nil)
	}
	if deps.Tracer == nil {
		deps.Tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, deps: deps, log: deps.Logger.With("component", "turn")}, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// run carries the state of one turn.
type run struct {
	o        *Orchestrator
	ev       Event
	out      *Outcome
	notified bool
}

// HandleTurn processes one turn and always returns an Outcome with a valid
// Instruction.
func (o *Orchestrator) HandleTurn(ctx context.Context, ev Event) (out Outcome) {
	start := time.Now()

	if o.deps.Sessions != nil {
		s, created := o.deps.Sessions.BeginTurn(ev.CallID, ev.From, ev.To)
		ev.Turn = s.Turns
		if created {
			o.deps.Metrics.CallStarted()
		}
	}
	out.CallID = ev.CallID
	out.Turn = ev.Turn

	ctx = observability.WithCallID(ctx, ev.CallID)
	ctx = observability.WithTurn(ctx, ev.Turn)
	ctx, span := o.deps.Tracer.StartTurn(ctx, ev.CallID, ev.Turn)
	defer span.End()

	r := &run{o: o, ev: ev, out: &out}

	defer func() {
		if p := recover(); p != nil {
			err := failure.New(failure.KindDownstreamProvider, "turn", "panic", fmt.Errorf("panic: %v", p))
			o.log.ErrorContext(ctx, "turn panicked", "panic", p, "stack", string(debug.Stack()))
			r.fail(ctx, stagePanic, err)
			r.respond(ctx, Reply{Text: o.cfg.ErrorReply, Substituted: true}, tts.Result{Source: tts.SourceNone})
		}
		out.Duration = time.Since(start)
		o.deps.Tracer.SetAttributes(span,
			"turn.delivery", string(out.Instruction.Delivery),
			"turn.continuation", string(out.Instruction.Continuation),
			"turn.synthesis_source", string(out.Synthesis.Source),
			"turn.failures", len(out.Failures),
		)
		o.finish(ctx, out)
	}()

	r.enter(StateAwaitingInput)
	transcript, heard := r.listen(ctx)

	var rep Reply
	if heard {
		rep = r.generate(ctx, transcript)
	} else {
		rep = Reply{Text: o.cfg.HearingTroubleReply, Substituted: true}
	}
	rep.Classification = o.deps.Classifier.Classify(rep.Text)
	r.escalate(ctx, rep)

	// Fixed failure replies go straight to the caller as text.
	res := tts.Result{Source: tts.SourceNone}
	if !rep.Substituted {
		r.enter(StateSynthesizing)
		res = r.synthesize(ctx, rep.Text)
	}

	r.respond(ctx, rep, res)
	return out
}

func (r *run) enter(s State) {
	r.out.States = append(r.out.States, s)
}

// listen resolves the caller's transcript. It returns false when the audio
// could not be fetched or transcribed.
func (r *run) listen(ctx context.Context) (string, bool) {
	o := r.o
	u := &r.out.Utterance
	u.RecordingURL = r.ev.RecordingURL
	u.DurationSeconds = r.ev.RecordingDuration

	if t := strings.TrimSpace(r.ev.ProviderTranscript); t != "" {
		u.Transcript = t
		u.FromProvider = true
		return t, true
	}

	if r.ev.RecordingURL == "" {
		if r.ev.RecordingDuration > 0 {
			r.fail(ctx, StageFetch, failure.New(failure.KindMalformedInput, "recording", "fetch",
				fmt.Errorf("recording duration %ds without a recording reference", r.ev.RecordingDuration)))
			return "", false
		}
		return "", true
	}

	audio, err := runStage(ctx, o, StageFetch, o.cfg.Timeouts.Fetch, func(ctx context.Context) (recording.Audio, error) {
		return o.deps.Fetcher.Fetch(ctx, r.ev.CallID, r.ev.RecordingURL)
	})
	if err != nil {
		r.fail(ctx, StageFetch, err)
		return "", false
	}

	r.enter(StateTranscribing)
	text, err := runStage(ctx, o, StageTranscribe, o.cfg.Timeouts.Transcription, func(ctx context.Context) (string, error) {
		return o.deps.Transcriber.Transcribe(ctx, r.ev.CallID, audio, o.cfg.Language)
	})
	if err != nil {
		r.fail(ctx, StageTranscribe, err)
		return "", false
	}
	u.Transcript = strings.TrimSpace(text)
	return u.Transcript, true
}

func (r *run) generate(ctx context.Context, transcript string) Reply {
	o := r.o
	r.enter(StateGenerating)

	input := transcript
	if input == "" {
		input = reply.NoInputSentinel
	}
	text, err := runStage(ctx, o, StageGenerate, o.cfg.Timeouts.Generation, func(ctx context.Context) (string, error) {
		text, err := o.deps.Generator.Generate(ctx, reply.Request{CallID: r.ev.CallID, Transcript: input})
		if err == nil && strings.TrimSpace(text) == "" {
			err = failure.New(failure.KindEmptyResponse, "reply", "generate", errors.New("generator returned blank text"))
		}
		return strings.TrimSpace(text), err
	})
	if err != nil {
		r.fail(ctx, StageGenerate, err)
		return Reply{Text: o.cfg.ErrorReply, Substituted: true}
	}
	return Reply{Text: text}
}

// escalate sends the classification-driven notifications. A fallback reply
// that stands in for an already reported failure is not reported twice.
func (r *run) escalate(ctx context.Context, rep Reply) {
	o := r.o
	if rep.IsEmergency {
		o.log.WarnContext(ctx, "emergency redirect", "call_id", r.ev.CallID, "reply", observability.Excerpt(rep.Text))
		if o.cfg.NotifyEmergency {
			r.notify(ctx, notify.KindEmergency,
				fmt.Sprintf("%s Emergency redirect on call %s", o.cfg.SubjectPrefix, r.ev.CallID),
				r.conversationBody(rep.Text))
		}
	}
	if rep.IsFallback && !r.notified {
		r.notify(ctx, notify.KindFallback,
			fmt.Sprintf("%s Fallback from call %s", o.cfg.SubjectPrefix, r.ev.CallID),
			r.conversationBody(rep.Text))
	}
}

func (r *run) synthesize(ctx context.Context, text string) tts.Result {
	o := r.o
	res, _ := runStage(ctx, o, StageSynthesize, o.cfg.Timeouts.Synthesis, func(ctx context.Context) (tts.Result, error) {
		res := o.deps.Synthesizer.Synthesize(ctx, r.ev.CallID, text)
		if res.HasAudio() {
			return res, nil
		}
		if res.Err == nil {
			res.Err = failure.New(failure.KindEmptyResponse, "tts", "synthesize", errors.New("no audio"))
		}
		return res, res.Err
	})
	o.deps.Metrics.RecordSynthesis(string(res.Source))

	if res.PrimaryErr != nil {
		r.fail(ctx, StageSynthesize, res.PrimaryErr)
	}
	if !res.HasAudio() {
		return res
	}

	url, err := runStage(ctx, o, StagePublish, o.cfg.Timeouts.Publish, func(ctx context.Context) (string, error) {
		return o.deps.Publisher.Publish(ctx, r.ev.CallID, res.Audio, res.MimeType)
	})
	if err != nil {
		r.fail(ctx, StagePublish, err)
		return res
	}
	res.URL = url
	return res
}

// respond builds the instruction. Emergency replies always terminate.
func (r *run) respond(ctx context.Context, rep Reply, res tts.Result) {
	o := r.o
	if strings.TrimSpace(rep.Text) == "" {
		rep.Text = o.cfg.ErrorReply
		rep.Substituted = true
	}
	if rep.Classification == (reply.Classification{}) {
		rep.Classification = o.deps.Classifier.Classify(rep.Text)
	}

	inst := Instruction{
		Delivery:     DeliverySayText,
		Payload:      rep.Text,
		Continuation: ContinueRecording,
		Voice:        o.cfg.Voice,
		Language:     o.cfg.Language,
	}
	if res.URL != "" {
		inst.Delivery = DeliveryPlayAudio
		inst.Payload = res.URL
	}
	if rep.IsEmergency {
		inst.Continuation = Terminate
	}

	r.enter(StateResponding)
	r.out.Reply = rep
	r.out.Synthesis = res
	r.out.Instruction = inst
}

// fail records a stage failure and notifies the operator.
func (r *run) fail(ctx context.Context, stage string, err error) {
	o := r.o
	kind := failure.KindOf(err)
	r.out.Failures = append(r.out.Failures, Failure{Stage: stage, Kind: kind, Err: err})
	o.deps.Metrics.RecordFailure(stage, string(kind))

	o.log.ErrorContext(ctx, "stage failed",
		"call_id", r.ev.CallID,
		"stage", stage,
		"kind", kind,
		"error", err)

	var b strings.Builder
	fmt.Fprintf(&b, "Call: %s\nTurn: %d\nStage: %s\nKind: %s\nError: %v\n", r.ev.CallID, r.ev.Turn, stage, kind, err)
	if r.ev.RecordingURL != "" {
		fmt.Fprintf(&b, "Recording: %s\n", r.ev.RecordingURL)
	}
	if t := r.out.Utterance.Transcript; t != "" {
		fmt.Fprintf(&b, "Caller said: %s\n", t)
	}
	r.notify(ctx, notify.KindFailure,
		fmt.Sprintf("%s Error on call %s (%s)", o.cfg.SubjectPrefix, r.ev.CallID, stage),
		b.String())
}

func (r *run) notify(ctx context.Context, kind notify.Kind, subject, body string) {
	o := r.o
	n := notify.New(kind, r.ev.CallID, subject, body)
	r.notified = true
	r.out.Notified++
	if err := o.deps.Notifier.Notify(ctx, n); err != nil {
		o.log.ErrorContext(ctx, "notification failed",
			"call_id", r.ev.CallID,
			"notification_id", n.ID,
			"kind", kind,
			"error", err)
	}
}

func (r *run) conversationBody(replyText string) string {
	said := r.out.Utterance.Transcript
	if said == "" {
		said = "(" + reply.NoInputSentinel + ")"
	}
	return fmt.Sprintf("Caller said: %s\nAssistant reply: %s\n", said, replyText)
}

// runStage runs fn under a stage timeout, span and metric, and classifies
// any error it returns.
func runStage[T any](ctx context.Context, o *Orchestrator, stage string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx, span := o.deps.Tracer.StartStage(ctx, stage)
	defer span.End()

	start := time.Now()
	value, err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		err = classify(ctx, stage, err)
		o.deps.Tracer.RecordError(span, err)
	}
	o.deps.Metrics.RecordStage(stage, status, time.Since(start).Seconds())
	return value, err
}

func classify(ctx context.Context, stage string, err error) error {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failure.New(failure.KindTimeout, stage, "", err)
	}
	return failure.New(failure.KindDownstreamProvider, stage, "", err)
}

// finish records metrics, the session state and the call log entry.
func (o *Orchestrator) finish(ctx context.Context, out Outcome) {
	inst := out.Instruction
	o.deps.Metrics.RecordTurn(string(inst.Delivery), string(inst.Continuation), out.Duration.Seconds())

	if inst.Continuation == Terminate && o.deps.Sessions != nil {
		o.deps.Sessions.MarkTerminal(out.CallID, "emergency")
	}

	if o.deps.CallLog != nil {
		failures := make([]string, 0, len(out.Failures))
		for _, f := range out.Failures {
			failures = append(failures, f.Stage+":"+string(f.Kind))
		}
		o.deps.CallLog.Record(calllog.Entry{
			CallID:          out.CallID,
			Turn:            out.Turn,
			Transcript:      out.Utterance.Transcript,
			Reply:           out.Reply.Text,
			IsEmergency:     out.Reply.IsEmergency,
			IsFallback:      out.Reply.IsFallback,
			SynthesisSource: string(out.Synthesis.Source),
			Delivery:        string(inst.Delivery),
			Continuation:    string(inst.Continuation),
			Failures:        failures,
			DurationMs:      out.Duration.Milliseconds(),
		})
	}

	o.log.InfoContext(ctx, "turn completed",
		"call_id", out.CallID,
		"turn", out.Turn,
		"transcript", observability.Excerpt(out.Utterance.Transcript),
		"reply", observability.Excerpt(out.Reply.Text),
		"emergency", out.Reply.IsEmergency,
		"fallback", out.Reply.IsFallback,
		"synthesis_source", out.Synthesis.Source,
		"delivery", inst.Delivery,
		"continuation", inst.Continuation,
		"failures", len(out.Failures),
		"duration_ms", out.Duration.Milliseconds())
}
