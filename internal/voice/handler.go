package voice

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/haasonsaas/switchboard/internal/observability"
	"github.com/haasonsaas/switchboard/internal/sessions"
	"github.com/haasonsaas/switchboard/internal/turn"
)

// TurnHandler runs one turn. *turn.Orchestrator implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, ev turn.Event) turn.Outcome
}

// HandlerConfig configures the webhook handler.
type HandlerConfig struct {
	Capture CaptureConfig

	// VerifySignatures rejects requests without a valid X-Twilio-Signature.
	VerifySignatures bool
	AuthToken        string
	// PublicURL is the externally visible base URL used for signature checks.
	PublicURL string

	// MaxBodyBytes caps webhook bodies (default 64 KiB).
	MaxBodyBytes int64

	Sessions *sessions.Registry
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Handler serves the voice webhooks.
type Handler struct {
	turns  TurnHandler
	cfg    HandlerConfig
	signer *Signer
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(turns TurnHandler, cfg HandlerConfig) *Handler {
	cfg.Capture.ApplyDefaults()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		turns:  turns,
		cfg:    cfg,
		signer: NewSigner(cfg.AuthToken),
		logger: cfg.Logger.With("component", "voice"),
	}
}

// Register mounts POST <capture action> and POST /voice/status on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+h.cfg.Capture.Action, h.handleTurn)
	mux.HandleFunc("POST /voice/status", h.handleStatus)
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	path := h.cfg.Capture.Action
	if !h.authenticate(w, r, path) {
		return
	}

	ev := ParseTurnEvent(r.PostForm)
	if ev.CallID == "" {
		h.reply(w, path, http.StatusBadRequest, "missing CallSid")
		return
	}

	out := h.turns.HandleTurn(r.Context(), ev)
	h.writeTwiML(w, path, RenderTwiML(out.Instruction, h.cfg.Capture))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	const path = "/voice/status"
	if !h.authenticate(w, r, path) {
		return
	}

	ev := ParseStatusEvent(r.PostForm)
	h.logger.InfoContext(r.Context(), "call status", "call_id", ev.CallID, "status", ev.Status, "duration_s", ev.DurationSeconds)

	if ev.Status.IsTerminal() && h.cfg.Sessions != nil {
		if s, ok := h.cfg.Sessions.End(ev.CallID, string(ev.Status)); ok {
			h.logger.InfoContext(r.Context(), "call ended", "call_id", s.CallID, "turns", s.Turns, "reason", s.EndReason)
		}
	}
	h.writeTwiML(w, path, EmptyTwiML)
}

// authenticate parses the form and checks the signature. It writes the
// error response itself and returns false on failure.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, path string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.reply(w, path, http.StatusBadRequest, "invalid form body")
		return false
	}
	if !h.cfg.VerifySignatures {
		return true
	}
	signature := r.Header.Get("X-Twilio-Signature")
	if !h.signer.Verify(requestURL(r, h.cfg.PublicURL), r.PostForm, signature) {
		h.logger.WarnContext(r.Context(), "rejected webhook with invalid signature",
			"path", r.URL.Path, "remote_addr", r.RemoteAddr, "signature_present", signature != "")
		h.reply(w, path, http.StatusForbidden, "invalid signature")
		return false
	}
	return true
}

func (h *Handler) writeTwiML(w http.ResponseWriter, path, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
	h.cfg.Metrics.RecordHTTPRequest(path, strconv.Itoa(http.StatusOK))
}

func (h *Handler) reply(w http.ResponseWriter, path string, status int, msg string) {
	http.Error(w, msg, status)
	h.cfg.Metrics.RecordHTTPRequest(path, strconv.Itoa(status))
}
