package voice

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/switchboard/internal/turn"
)

// Capture modes.
const (
	CaptureRecord = "record"
	CaptureGather = "gather"
)

// CaptureConfig controls how the next caller utterance is collected.
type CaptureConfig struct {
	// Mode is "record" (default) or "gather".
	Mode string `yaml:"mode"`
	// Action is the path the provider posts the next turn to (default /voice).
	// The turn handler is mounted on it.
	Action string `yaml:"action"`
	// Timeout is the silence, in seconds, that ends capture (default 5).
	Timeout int `yaml:"timeout"`
	// MaxLength caps a recording, in seconds (default 30).
	MaxLength int `yaml:"max_length"`
	// PlayBeep plays a beep before recording.
	PlayBeep bool `yaml:"play_beep"`
	// SpeechTimeout is passed to <Gather> (default "auto").
	SpeechTimeout string `yaml:"speech_timeout"`
}

// ApplyDefaults fills unset fields.
func (c *CaptureConfig) ApplyDefaults() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = CaptureRecord
	}
	if c.Action == "" {
		c.Action = "/voice"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5
	}
	if c.MaxLength <= 0 {
		c.MaxLength = 30
	}
	if c.SpeechTimeout == "" {
		c.SpeechTimeout = "auto"
	}
}

// Validate reports an unknown mode or a non-path action.
func (c *CaptureConfig) Validate() error {
	if !strings.HasPrefix(c.Action, "/") {
		return fmt.Errorf("voice: capture action %q must be a path", c.Action)
	}
	switch c.Mode {
	case CaptureRecord, CaptureGather:
		return nil
	default:
		return fmt.Errorf("voice: unknown capture mode %q", c.Mode)
	}
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// EmptyTwiML acknowledges a webhook without instructions.
const EmptyTwiML = xmlHeader + `<Response></Response>`

// RenderTwiML serializes an instruction. Terminating instructions speak the
// payload and hang up; all others speak it and capture the next turn.
func RenderTwiML(inst turn.Instruction, capture CaptureConfig) string {
	capture.ApplyDefaults()
	speech := renderSpeech(inst)

	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString("\n<Response>\n")

	switch {
	case inst.Continuation == turn.Terminate:
		b.WriteString(speech)
		b.WriteString("  <Hangup/>\n")
	case capture.Mode == CaptureGather:
		fmt.Fprintf(&b, `  <Gather input="speech" action="%s" method="POST" timeout="%d" speechTimeout="%s"%s>`+"\n",
			escapeXML(capture.Action), capture.Timeout, escapeXML(capture.SpeechTimeout), languageAttr(inst.Language))
		b.WriteString("  " + speech)
		b.WriteString("  </Gather>\n")
		fmt.Fprintf(&b, "  <Redirect method=\"POST\">%s</Redirect>\n", escapeXML(capture.Action))
	default:
		b.WriteString(speech)
		fmt.Fprintf(&b, `  <Record action="%s" method="POST" maxLength="%d" timeout="%d" playBeep="%t" trim="trim-silence"/>`+"\n",
			escapeXML(capture.Action), capture.MaxLength, capture.Timeout, capture.PlayBeep)
		// Record falls through without calling the action when nothing is
		// captured; the redirect turns silence into a no-input turn.
		fmt.Fprintf(&b, "  <Redirect method=\"POST\">%s</Redirect>\n", escapeXML(capture.Action))
	}

	b.WriteString("</Response>")
	return b.String()
}

func renderSpeech(inst turn.Instruction) string {
	if inst.Delivery == turn.DeliveryPlayAudio {
		return fmt.Sprintf("  <Play>%s</Play>\n", escapeXML(inst.Payload))
	}
	attrs := ""
	if inst.Voice != "" {
		attrs += fmt.Sprintf(` voice="%s"`, escapeXML(inst.Voice))
	}
	attrs += languageAttr(inst.Language)
	return fmt.Sprintf("  <Say%s>%s</Say>\n", attrs, escapeXML(inst.Payload))
}

func languageAttr(language string) string {
	if language == "" {
		return ""
	}
	return fmt.Sprintf(` language="%s"`, escapeXML(language))
}

// escapeXML escapes special characters for XML content.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
