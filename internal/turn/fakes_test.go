package turn

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/switchboard/internal/calllog"
	"github.com/haasonsaas/switchboard/internal/notify"
	"github.com/haasonsaas/switchboard/internal/recording"
	"github.com/haasonsaas/switchboard/internal/reply"
	"github.com/haasonsaas/switchboard/internal/tts"
)

type fakeFetcher struct {
	audio recording.Audio
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, callID, ref string) (recording.Audio, error) {
	f.calls++
	if f.err != nil {
		return recording.Audio{}, f.err
	}
	return f.audio, nil
}

type fakeTranscriber struct {
	text     string
	err      error
	calls    int
	language string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, callID string, audio recording.Audio, language string) (string, error) {
	f.calls++
	f.language = language
	return f.text, f.err
}

type fakeGenerator struct {
	reply    string
	err      error
	block    bool
	panics   bool
	requests []reply.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req reply.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.panics {
		panic("generator exploded")
	}
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

// fakeSynthesizer returns audio unless fail is set.
type fakeSynthesizer struct {
	fail  error
	texts []string
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, callID, text string) tts.Result {
	f.texts = append(f.texts, text)
	if f.fail != nil {
		return tts.Result{Source: tts.SourceNone, PrimaryErr: f.fail, Err: f.fail}
	}
	return tts.Result{Audio: []byte("ID3audio"), Size: 8, Source: tts.SourcePrimary, MimeType: "audio/mpeg", Provider: "fake"}
}

type fakeProvider struct {
	audio []byte
	err   error
	block bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if f.block {
		<-ctx.Done()
		return nil, "", ctx.Err()
	}
	return f.audio, "audio/mpeg", f.err
}

type fakePublisher struct {
	url   string
	err   error
	calls int
}

func (f *fakePublisher) Publish(ctx context.Context, callID string, audio []byte, mimeType string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakeNotifier) kinds() []notify.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]notify.Kind, 0, len(f.notes))
	for _, n := range f.notes {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type fakeRecorder struct {
	entries []calllog.Entry
}

func (f *fakeRecorder) Record(e calllog.Entry) bool {
	f.entries = append(f.entries, e)
	return true
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

// harness bundles fakes with defaults for the happy path.
type harness struct {
	fetcher     *fakeFetcher
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	synthesizer *fakeSynthesizer
	publisher   *fakePublisher
	notifier    *fakeNotifier
	recorder    *fakeRecorder
}

func newHarness() *harness {
	return &harness{
		fetcher:     &fakeFetcher{audio: recording.Audio{Data: []byte("RIFFwav"), MimeType: "audio/wav"}},
		transcriber: &fakeTranscriber{text: "I'd like to book a skin check"},
		generator:   &fakeGenerator{reply: "Of course. Is this your first visit with us?"},
		synthesizer: &fakeSynthesizer{},
		publisher:   &fakePublisher{url: "https://switchboard.example.com/audio/abc.mp3"},
		notifier:    &fakeNotifier{},
		recorder:    &fakeRecorder{},
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Fetcher:     h.fetcher,
		Transcriber: h.transcriber,
		Generator:   h.generator,
		Synthesizer: h.synthesizer,
		Publisher:   h.publisher,
		Notifier:    h.notifier,
		CallLog:     h.recorder,
	}
}
