// internal/notify/notify_test.go
// Tests for Bot API and SMTP delivery

package notify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aspnmy/recon_reporter/internal/core"
)

const testToken = "123456:AAF-secret-token"

func telegramConfig(apiURL string) core.TelegramConfig {
	return core.TelegramConfig{
		APIURL:    apiURL,
		Token:     testToken,
		ChatID:    "42",
		ParseMode: "Markdown",
	}
}

func TestTelegram_Deliver(t *testing.T) {
	var got struct {
		path, chatID, text, parseMode, contentType string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got.path = r.URL.Path
		got.chatID = r.PostForm.Get("chat_id")
		got.text = r.PostForm.Get("text")
		got.parseMode = r.PostForm.Get("parse_mode")
		got.contentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(telegramConfig(srv.URL), time.Second)
	report := "📡 **Port Scan Completed** 🚀\n\n**Target:** 10.0.0.1"
	require.NoError(t, n.Deliver(context.Background(), report))

	assert.Equal(t, "/bot"+testToken+"/sendMessage", got.path)
	assert.Equal(t, "42", got.chatID)
	assert.Equal(t, report, got.text)
	assert.Equal(t, "Markdown", got.parseMode)
	assert.Equal(t, "application/x-www-form-urlencoded", got.contentType)
}

func TestTelegram_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(telegramConfig(srv.URL), time.Second)
	err := n.Deliver(context.Background(), "report")
	require.Error(t, err)

	var de *DeliveryError
	require.True(t, errors.As(err, &de), "want *DeliveryError, got %T", err)
	assert.Equal(t, http.StatusBadRequest, de.Status)
	assert.Equal(t, "Bad Request: chat not found", de.Reason)
	assert.True(t, errors.Is(err, ErrDeliveryFailed))
	assert.NotContains(t, err.Error(), testToken)
}

type sentMessage struct {
	text, parseMode string
}

// recordingBot accepts every message unless reject says otherwise
func recordingBot(t *testing.T, reject func(sentMessage) bool) (*httptest.Server, func() []sentMessage) {
	t.Helper()
	var (
		mu   sync.Mutex
		sent []sentMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		m := sentMessage{text: r.PostForm.Get("text"), parseMode: r.PostForm.Get("parse_mode")}
		mu.Lock()
		sent = append(sent, m)
		mu.Unlock()
		if reject != nil && reject(m) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: Can't find end of the entity starting at byte offset 41"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []sentMessage {
		mu.Lock()
		defer mu.Unlock()
		return append([]sentMessage(nil), sent...)
	}
}

func TestTelegram_SplitsLongReport(t *testing.T) {
	srv, sent := recordingBot(t, nil)

	var b strings.Builder
	b.WriteString("📡 Port Scan Completed\n")
	for port := 1; port <= 400; port++ {
		fmt.Fprintf(&b, " %-5d\t 🔒 ssh OpenSSH 8.9p1 Ubuntu 3ubuntu0.6\n", port)
	}
	report := b.String()
	require.Greater(t, utf8.RuneCountInString(report), maxMessageRunes)

	n := NewTelegramNotifier(telegramConfig(srv.URL), time.Second)
	require.NoError(t, n.Deliver(context.Background(), report))

	msgs := sent()
	require.Greater(t, len(msgs), 1)
	var joined strings.Builder
	for _, m := range msgs {
		assert.LessOrEqual(t, utf8.RuneCountInString(m.text), maxMessageRunes)
		assert.True(t, strings.HasSuffix(m.text, "\n"), "chunks end on a line boundary")
		joined.WriteString(m.text)
	}
	assert.Equal(t, report, joined.String())
}

func TestTelegram_UnbalancedMarkupFallsBackToPlainText(t *testing.T) {
	srv, sent := recordingBot(t, func(m sentMessage) bool { return m.parseMode != "" })

	n := NewTelegramNotifier(telegramConfig(srv.URL), time.Second)
	report := "Target: scan_me.example\n 8080\t http *nginx"
	require.NoError(t, n.Deliver(context.Background(), report))

	msgs := sent()
	require.Len(t, msgs, 2)
	assert.Equal(t, sentMessage{text: report, parseMode: "Markdown"}, msgs[0])
	assert.Equal(t, sentMessage{text: report}, msgs[1])
}

func TestTelegram_PlainTextRejectionIsNotRetried(t *testing.T) {
	srv, sent := recordingBot(t, func(sentMessage) bool { return true })

	cfg := telegramConfig(srv.URL)
	cfg.ParseMode = ""
	n := NewTelegramNotifier(cfg, time.Second)

	err := n.Deliver(context.Background(), "report")
	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusBadRequest, de.Status)
	assert.Len(t, sent(), 1)
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"fits", "ab\ncd", 5, []string{"ab\ncd"}},
		{"line boundaries", "ab\ncd\nef", 6, []string{"ab\ncd\n", "ef"}},
		{"long line cut", "abcdefg\nh", 3, []string{"abc", "def", "g\nh"}},
		{"counts runes", "ééé\nüü", 4, []string{"ééé\n", "üü"}},
		{"empty", "", 4, []string{""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitMessage(tt.text, tt.limit))
		})
	}
}

func TestTelegram_NonJSONFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewTelegramNotifier(telegramConfig(srv.URL), time.Second)
	err := n.Deliver(context.Background(), "report")

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusBadGateway, de.Status)
	assert.Equal(t, "Bad Gateway", de.Reason)
}

func TestTelegram_TransportErrorRedactsToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	n := NewTelegramNotifier(telegramConfig(url), time.Second)
	err := n.Deliver(context.Background(), "report")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeliveryFailed))
	assert.NotContains(t, err.Error(), testToken)
	assert.NotContains(t, err.Error(), "AAF-secret-token")
}

func TestTelegram_NotConfigured(t *testing.T) {
	n := NewTelegramNotifier(core.TelegramConfig{}, time.Second)
	err := n.Deliver(context.Background(), "report")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind    string
		want    string
		wantErr bool
	}{
		{"telegram", "telegram", false},
		{"email", "email", false},
		{"none", "none", false},
		{"slack", "", true},
	}

	for _, tt := range tests {
		n, err := New(core.NotifyConfig{Kind: tt.kind, Timeout: time.Second})
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && n.Kind() != tt.want {
			t.Errorf("New(%q).Kind() = %q, want %q", tt.kind, n.Kind(), tt.want)
		}
	}
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Deliver(context.Background(), "anything"))
}

// fakeSMTP speaks just enough SMTP for net/smtp without TLS or auth
type fakeSMTP struct {
	mu   sync.Mutex
	from string
	rcpt []string
	data string
}

func (f *fakeSMTP) serve(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go f.handle(c)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func (f *fakeSMTP) handle(c net.Conn) {
	defer c.Close()
	r := bufio.NewReader(c)
	reply := func(s string) { _, _ = c.Write([]byte(s + "\r\n")) }

	reply("220 localhost ESMTP test")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			reply("250-localhost")
			reply("250 HELP")
		case strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			f.mu.Lock()
			f.from = strings.TrimSpace(line)[len("MAIL FROM:"):]
			f.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			f.mu.Lock()
			f.rcpt = append(f.rcpt, strings.TrimSpace(line)[len("RCPT TO:"):])
			f.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
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
			f.mu.Lock()
			f.data = b.String()
			f.mu.Unlock()
			reply("250 OK queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func TestEmail_Deliver(t *testing.T) {
	fake := &fakeSMTP{}
	host, port := fake.serve(t)

	n := NewEmailNotifier(core.EmailConfig{
		Host: host,
		Port: port,
		From: "recon@example.com",
		To:   []string{"ops@example.com", "sec@example.com"},
	}, 2*time.Second)

	require.NoError(t, n.Deliver(context.Background(), "line one\nline two"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "<recon@example.com>", fake.from)
	assert.Equal(t, []string{"<ops@example.com>", "<sec@example.com>"}, fake.rcpt)
	assert.Contains(t, fake.data, "Subject: Port scan report\r\n")
	assert.Contains(t, fake.data, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.Contains(t, fake.data, "line one\r\nline two\r\n")
}

func TestEmail_NotConfigured(t *testing.T) {
	n := NewEmailNotifier(core.EmailConfig{Host: "localhost"}, time.Second)
	err := n.Deliver(context.Background(), "report")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEmail_StartTLSUnsupported(t *testing.T) {
	fake := &fakeSMTP{}
	host, port := fake.serve(t)

	n := NewEmailNotifier(core.EmailConfig{
		Host:     host,
		Port:     port,
		From:     "recon@example.com",
		To:       []string{"ops@example.com"},
		StartTLS: true,
	}, 2*time.Second)

	err := n.Deliver(context.Background(), "report")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "STARTTLS")
}
