package voice

import (
	"strings"
	"testing"

	"github.com/haasonsaas/switchboard/internal/turn"
)

func TestRenderTwiML(t *testing.T) {
	sayText := turn.Instruction{
		Delivery:     turn.DeliverySayText,
		Payload:      "Sorry, something went wrong. The team has been notified.",
		Continuation: turn.ContinueRecording,
		Voice:        "Polly.Brian",
		Language:     "en-AU",
	}
	playAudio := turn.Instruction{
		Delivery:     turn.DeliveryPlayAudio,
		Payload:      "https://switchboard.example.com/audio/abc.mp3",
		Continuation: turn.ContinueRecording,
	}
	emergency := turn.Instruction{
		Delivery:     turn.DeliverySayText,
		Payload:      "Please hang up and call 000 immediately.",
		Continuation: turn.Terminate,
		Voice:        "Polly.Brian",
		Language:     "en-AU",
	}

	tests := []struct {
		name    string
		inst    turn.Instruction
		capture CaptureConfig
		want    []string
		absent  []string
	}{
		{
			name:    "say then record",
			inst:    sayText,
			capture: CaptureConfig{},
			want: []string{
				`<Say voice="Polly.Brian" language="en-AU">Sorry, something went wrong. The team has been notified.</Say>`,
				`<Record action="/voice" method="POST" maxLength="30" timeout="5" playBeep="false" trim="trim-silence"/>`,
				`<Redirect method="POST">/voice</Redirect>`,
			},
			absent: []string{"<Hangup/>", "<Play>"},
		},
		{
			name:    "play then record",
			inst:    playAudio,
			capture: CaptureConfig{MaxLength: 60, PlayBeep: true},
			want: []string{
				`<Play>https://switchboard.example.com/audio/abc.mp3</Play>`,
				`maxLength="60"`,
				`playBeep="true"`,
			},
			absent: []string{"<Say"},
		},
		{
			name:    "gather mode wraps speech",
			inst:    sayText,
			capture: CaptureConfig{Mode: CaptureGather},
			want: []string{
				`<Gather input="speech" action="/voice" method="POST" timeout="5" speechTimeout="auto" language="en-AU">`,
				`</Gather>`,
				`<Redirect method="POST">/voice</Redirect>`,
			},
			absent: []string{"<Record"},
		},
		{
			name:    "emergency hangs up",
			inst:    emergency,
			capture: CaptureConfig{Mode: CaptureGather},
			want:    []string{`Please hang up and call 000 immediately.</Say>`, `<Hangup/>`},
			absent:  []string{"<Record", "<Gather", "<Redirect"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderTwiML(tt.inst, tt.capture)
			if !strings.HasPrefix(got, `<?xml version="1.0" encoding="UTF-8"?>`) || !strings.HasSuffix(got, "</Response>") {
				t.Errorf("not a TwiML document:\n%s", got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("missing %q in:\n%s", w, got)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(got, a) {
					t.Errorf("unexpected %q in:\n%s", a, got)
				}
			}
		})
	}
}

func TestRenderTwiML_SilenceReturnsToAction(t *testing.T) {
	inst := turn.Instruction{
		Delivery:     turn.DeliverySayText,
		Payload:      "Are you still there?",
		Continuation: turn.ContinueRecording,
	}
	for _, mode := range []string{CaptureRecord, CaptureGather} {
		t.Run(mode, func(t *testing.T) {
			got := RenderTwiML(inst, CaptureConfig{Mode: mode, Action: "/voice/turn"})
			want := "  <Redirect method=\"POST\">/voice/turn</Redirect>\n</Response>"
			if !strings.HasSuffix(got, want) {
				t.Errorf("document should end with a redirect to the action:\n%s", got)
			}
		})
	}
}

func TestRenderTwiML_EscapesPayload(t *testing.T) {
	got := RenderTwiML(turn.Instruction{
		Delivery:     turn.DeliverySayText,
		Payload:      `Tom & Jerry's <b>"clinic"</b>`,
		Continuation: turn.ContinueRecording,
	}, CaptureConfig{})
	if !strings.Contains(got, "Tom &amp; Jerry&apos;s &lt;b&gt;&quot;clinic&quot;&lt;/b&gt;") {
		t.Errorf("payload not escaped:\n%s", got)
	}
}

func TestCaptureConfig(t *testing.T) {
	c := CaptureConfig{}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	if c.Mode != CaptureRecord || c.Action != "/voice" {
		t.Errorf("defaults = %+v", c)
	}

	for _, bad := range []CaptureConfig{
		{Mode: "stream", Action: "/voice"},
		{Mode: CaptureRecord, Action: "https://example.com/voice"},
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("expected %+v to be invalid", bad)
		}
	}
}
