package voice

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/haasonsaas/switchboard/internal/turn"
)

// CallStatus is a Twilio CallStatus value.
type CallStatus string

const (
	StatusQueued     CallStatus = "queued"
	StatusInitiated  CallStatus = "initiated"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in-progress"
	StatusCompleted  CallStatus = "completed"
	StatusBusy       CallStatus = "busy"
	StatusNoAnswer   CallStatus = "no-answer"
	StatusFailed     CallStatus = "failed"
	StatusCanceled   CallStatus = "canceled"
)

// IsTerminal returns true if the call has ended.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusBusy, StatusNoAnswer, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// StatusEvent is a status callback.
type StatusEvent struct {
	CallID          string
	Status          CallStatus
	DurationSeconds int
}

// ParseTurnEvent maps a turn webhook form to a turn.Event.
func ParseTurnEvent(form url.Values) turn.Event {
	return turn.Event{
		CallID:             strings.TrimSpace(form.Get("CallSid")),
		From:               form.Get("From"),
		To:                 form.Get("To"),
		RecordingURL:       strings.TrimSpace(form.Get("RecordingUrl")),
		RecordingDuration:  nonNegativeInt(form.Get("RecordingDuration")),
		ProviderTranscript: strings.TrimSpace(form.Get("SpeechResult")),
	}
}

// ParseStatusEvent maps a status callback form.
func ParseStatusEvent(form url.Values) StatusEvent {
	return StatusEvent{
		CallID:          strings.TrimSpace(form.Get("CallSid")),
		Status:          CallStatus(strings.ToLower(strings.TrimSpace(form.Get("CallStatus")))),
		DurationSeconds: nonNegativeInt(form.Get("CallDuration")),
	}
}

func nonNegativeInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Signer computes and checks Twilio request signatures.
type Signer struct {
	authToken string
}

// NewSigner creates a Signer for the account auth token.
func NewSigner(authToken string) *Signer {
	return &Signer{authToken: authToken}
}

// Sign returns the expected X-Twilio-Signature for a POST to fullURL with
// the given form parameters.
func (s *Signer) Sign(fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(s.authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches.
func (s *Signer) Verify(fullURL string, params url.Values, signature string) bool {
	if signature == "" || s.authToken == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(s.Sign(fullURL, params)))
}

// requestURL reconstructs the URL Twilio signed. publicURL, when set,
// replaces the scheme and host seen by the server (useful behind proxies).
func requestURL(r *http.Request, publicURL string) string {
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
