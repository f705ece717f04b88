package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/haasonsaas/switchboard/internal/failure"
	"github.com/haasonsaas/switchboard/internal/observability"
)

// Source records which path produced the audio.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback-voice"
	SourceNone     Source = "none"
)

// Result contains the outcome of one synthesis.
type Result struct {
	// Audio is nil unless Source is primary or fallback-voice.
	Audio []byte
	Size  int

	Source   Source
	MimeType string

	// Provider is the name of the provider that produced Audio.
	Provider string

	// URL is set by the caller once the audio has been published.
	URL string

	LatencyMs int64

	// PrimaryErr is the primary provider's failure, if any. It is set even
	// when a fallback provider succeeded.
	PrimaryErr error

	// Err is the last failure when Source is none.
	Err error
}

// HasAudio reports whether the result carries playable audio.
func (r Result) HasAudio() bool {
	return r.Source != SourceNone && len(r.Audio) > 0
}

// Options configures a Synthesizer.
type Options struct {
	// MaxTextLength is the longest text, in characters, sent to a provider.
	MaxTextLength int
	Logger        *slog.Logger
}

// Synthesizer runs the provider chain.
type Synthesizer struct {
	primary   Provider
	fallbacks []Provider
	maxText   int
	logger    *slog.Logger
}

// NewSynthesizer creates a Synthesizer. fallbacks may be empty.
func NewSynthesizer(primary Provider, fallbacks []Provider, opts Options) *Synthesizer {
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = DefaultConfig().MaxTextLength
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Synthesizer{
		primary:   primary,
		fallbacks: fallbacks,
		maxText:   opts.MaxTextLength,
		logger:    opts.Logger.With("component", component),
	}
}

// Synthesize converts text to audio. It never returns an error; failures
// are reported through Result.Source, Result.PrimaryErr and Result.Err.
func (s *Synthesizer) Synthesize(ctx context.Context, callID, text string) Result {
	start := time.Now()
	none := func(err error) Result {
		return Result{Source: SourceNone, PrimaryErr: err, Err: err, LatencyMs: time.Since(start).Milliseconds()}
	}

	if strings.TrimSpace(text) == "" {
		return none(failure.New(failure.KindMalformedInput, component, "synthesize", errors.New("text is empty")))
	}
	if n := utf8.RuneCountInString(text); n > s.maxText {
		err := failure.New(failure.KindMalformedInput, component, "synthesize",
			fmt.Errorf("text length %d exceeds limit %d", n, s.maxText))
		s.logger.WarnContext(ctx, "reply too long for synthesis", "call_id", callID, "length", n)
		return none(err)
	}
	if s.primary == nil {
		return none(failure.New(failure.KindDownstreamProvider, component, "synthesize", errors.New("no provider configured")))
	}

	audio, mimeType, err := s.attempt(ctx, callID, s.primary, text)
	if err == nil {
		return s.success(SourcePrimary, s.primary, audio, mimeType, nil, start)
	}
	primaryErr := err

	for _, p := range s.fallbacks {
		if ctx.Err() != nil {
			break
		}
		audio, mimeType, err = s.attempt(ctx, callID, p, text)
		if err == nil {
			return s.success(SourceFallback, p, audio, mimeType, primaryErr, start)
		}
	}

	res := none(err)
	res.PrimaryErr = primaryErr
	return res
}

func (s *Synthesizer) attempt(ctx context.Context, callID string, p Provider, text string) ([]byte, string, error) {
	audio, mimeType, err := p.Synthesize(ctx, text)
	if err == nil && len(audio) == 0 {
		err = failure.New(failure.KindEmptyResponse, component, p.Name(), errors.New("provider returned no audio"))
	}
	if err != nil {
		err = failure.FromTransport(component, p.Name(), err)
		s.logger.WarnContext(ctx, "synthesis failed",
			"call_id", callID,
			"provider", p.Name(),
			"kind", failure.KindOf(err),
			"text", observability.Excerpt(text),
			"error", err)
		return nil, "", err
	}
	return audio, mimeType, nil
}

func (s *Synthesizer) success(source Source, p Provider, audio []byte, mimeType string, primaryErr error, start time.Time) Result {
	return Result{
		Audio:      audio,
		Size:       len(audio),
		Source:     source,
		MimeType:   mimeType,
		Provider:   p.Name(),
		LatencyMs:  time.Since(start).Milliseconds(),
		PrimaryErr: primaryErr,
	}
}
