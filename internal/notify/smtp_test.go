package notify

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/switchboard/internal/failure"
)

// fakeSMTPServer accepts one session and records the envelope and data.
type fakeSMTPServer struct {
	ln       net.Listener
	mu       sync.Mutex
	from     string
	rcpts    []string
	data     string
	rcptCode int
	done     chan struct{}
}

func newFakeSMTPServer(t *testing.T) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSMTPServer{ln: ln, rcptCode: 250, done: make(chan struct{})}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTPServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }
	reply("220 localhost ESMTP")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"):
			reply("250 localhost")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			s.mu.Lock()
			s.from = address(cmd[len("MAIL FROM:"):])
			s.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			s.mu.Lock()
			s.rcpts = append(s.rcpts, address(cmd[len("RCPT TO:"):]))
			code := s.rcptCode
			s.mu.Unlock()
			reply(strconv.Itoa(code) + " recipient")
		case upper == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			reply("250 queued")
		case upper == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func address(arg string) string {
	arg = strings.TrimSpace(arg)
	if i := strings.Index(arg, ">"); i >= 0 {
		arg = arg[:i]
	}
	return strings.TrimPrefix(arg, "<")
}

func TestSMTPNotifier_Delivers(t *testing.T) {
	server := newFakeSMTPServer(t)
	notifier, err := NewSMTPNotifier(SMTPConfig{
		Host:    "127.0.0.1",
		Port:    server.port(),
		From:    "no-reply@clinic.example",
		To:      []string{"admin@clinic.example", "frontdesk@clinic.example"},
		TLSMode: "none",
	}, nil)
	if err != nil {
		t.Fatalf("NewSMTPNotifier: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n := New(KindFallback, "CA42", "[Clinic] Fallback from call CA42", "Caller said: hello\nAssistant reply: I didn't quite catch that")
	if err := notifier.Notify(ctx, n); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	<-server.done

	server.mu.Lock()
	defer server.mu.Unlock()
	if server.from != "no-reply@clinic.example" {
		t.Errorf("MAIL FROM = %q", server.from)
	}
	if len(server.rcpts) != 2 {
		t.Errorf("rcpts = %v, want 2", server.rcpts)
	}
	for _, want := range []string{
		"Subject: [Clinic] Fallback from call CA42",
		"X-Switchboard-Call-ID: CA42",
		"Caller said: hello",
		"Message-ID: <" + n.ID + "@switchboard>",
	} {
		if !strings.Contains(server.data, want) {
			t.Errorf("message missing %q:\n%s", want, server.data)
		}
	}
}

func TestSMTPNotifier_RejectedRecipient(t *testing.T) {
	server := newFakeSMTPServer(t)
	server.rcptCode = 550
	notifier, err := NewSMTPNotifier(SMTPConfig{
		Host: "127.0.0.1", Port: server.port(), From: "a@x", To: []string{"b@x"}, TLSMode: "none",
	}, nil)
	if err != nil {
		t.Fatalf("NewSMTPNotifier: %v", err)
	}
	err = notifier.Notify(context.Background(), New(KindFailure, "CA1", "s", "b"))
	if failure.KindOf(err) != failure.KindDownstreamProvider {
		t.Errorf("KindOf = %s, want downstream_provider (err=%v)", failure.KindOf(err), err)
	}
}

func TestSMTPNotifier_RequiresStartTLS(t *testing.T) {
	server := newFakeSMTPServer(t)
	notifier, err := NewSMTPNotifier(SMTPConfig{
		Host: "127.0.0.1", Port: server.port(), From: "a@x", To: []string{"b@x"},
	}, nil)
	if err != nil {
		t.Fatalf("NewSMTPNotifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), New(KindFailure, "CA1", "s", "b")); err == nil {
		t.Fatal("expected error when server lacks STARTTLS")
	}
}

func TestSMTPNotifier_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	notifier, _ := NewSMTPNotifier(SMTPConfig{Host: "127.0.0.1", Port: port, From: "a@x", To: []string{"b@x"}, TLSMode: "none"}, nil)
	err = notifier.Notify(context.Background(), New(KindFailure, "CA1", "s", "b"))
	if !failure.IsRetryable(err) {
		t.Errorf("connection refused should be retryable, got %v", err)
	}
}

func TestNewSMTPNotifier_Defaults(t *testing.T) {
	if _, err := NewSMTPNotifier(SMTPConfig{}, nil); err == nil {
		t.Error("expected error for empty config")
	}
	n, err := NewSMTPNotifier(SMTPConfig{Host: "h", From: "a@x", To: []string{"b@x"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n.cfg.Port != 587 || n.cfg.TLSMode != "starttls" {
		t.Errorf("defaults = %d/%s", n.cfg.Port, n.cfg.TLSMode)
	}
	n, _ = NewSMTPNotifier(SMTPConfig{Host: "h", From: "a@x", To: []string{"b@x"}, TLSMode: "tls"}, nil)
	if n.cfg.Port != 465 {
		t.Errorf("implicit TLS port = %d, want 465", n.cfg.Port)
	}
}
