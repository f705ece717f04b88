// Package turn runs one caller turn through the voice pipeline.
//
// A turn moves through awaiting_input, transcribing, generating,
// synthesizing and responding. Every stage failure is converted to a
// *failure.Error at the stage boundary and mapped to a fixed reply that is
// spoken as text without synthesis, so HandleTurn always returns an
// Instruction with a non-empty payload.
package turn

import (
	"time"

	"github.com/haasonsaas/switchboard/internal/failure"
	"github.com/haasonsaas/switchboard/internal/reply"
	"github.com/haasonsaas/switchboard/internal/tts"
)

// Event is one inbound turn webhook.
type Event struct {
	CallID string
	From   string
	To     string

	// RecordingURL is empty when nothing was recorded.
	RecordingURL      string
	RecordingDuration int

	// ProviderTranscript is speech the telephony provider already
	// recognised. When non-empty, fetch and transcription are skipped.
	ProviderTranscript string

	// Turn is filled from the session registry when one is configured.
	Turn int
}

// Delivery is how the reply is spoken.
type Delivery string

const (
	DeliveryPlayAudio Delivery = "play-audio"
	DeliverySayText   Delivery = "say-text"
)

// Continuation is what happens after the reply.
type Continuation string

const (
	ContinueRecording Continuation = "record-next-turn"
	Terminate         Continuation = "terminate"
)

// Instruction is the provider-agnostic telephony decision for a turn.
type Instruction struct {
	Delivery     Delivery
	Payload      string
	Continuation Continuation

	// Voice and Language apply to say-text delivery.
	Voice    string
	Language string
}

// State is a pipeline state.
type State string

const (
	StateAwaitingInput State = "awaiting_input"
	StateTranscribing  State = "transcribing"
	StateGenerating    State = "generating"
	StateSynthesizing  State = "synthesizing"
	StateResponding    State = "responding"
)

// Utterance is the caller's input for a turn.
type Utterance struct {
	RecordingURL    string
	DurationSeconds int
	// Transcript is empty when no speech was detected.
	Transcript string
	// FromProvider is set when the telephony provider supplied the transcript.
	FromProvider bool
}

// Reply is the receptionist's output for a turn.
type Reply struct {
	Text string
	reply.Classification
	// Substituted is set when Text is a fixed reply used in place of a
	// failed stage.
	Substituted bool
}

// Failure is a classified stage failure.
type Failure struct {
	Stage string
	Kind  failure.Kind
	Err   error
}

// Outcome is everything known about a completed turn.
type Outcome struct {
	CallID      string
	Turn        int
	Instruction Instruction
	Utterance   Utterance
	Reply       Reply
	Synthesis   tts.Result
	States      []State
	Failures    []Failure
	Notified    int
	Duration    time.Duration
}

// FailureKinds lists the kinds of all failures in order.
func (o Outcome) FailureKinds() []failure.Kind {
	kinds := make([]failure.Kind, 0, len(o.Failures))
	for _, f := range o.Failures {
		kinds = append(kinds, f.Kind)
	}
	return kinds
}
