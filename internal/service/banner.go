// internal/service/banner.go
// Lightweight banner-grab engine with a regex signature table

package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// signature maps a banner pattern to a service. Product and Version are
// either literals or $N references into the pattern's groups.
type signature struct {
	Name    string
	Product string
	Version string
	Pattern *regexp2.Regexp
}

// matchTimeout bounds backtracking on hostile banners
const matchTimeout = 100 * time.Millisecond

func sig(name, product, version, pattern string) signature {
	re := regexp2.MustCompile(pattern, regexp2.None)
	re.MatchTimeout = matchTimeout
	return signature{Name: name, Product: product, Version: version, Pattern: re}
}

// Ordered: specific products first, generic protocol greetings last
var signatures = []signature{
	sig("ssh", "OpenSSH for Windows", "$1", `^SSH-[\d.]+-OpenSSH_for_Windows_([\w.]+)`),
	sig("ssh", "OpenSSH", "$1", `^SSH-[\d.]+-OpenSSH[_-]([\w.]+)`),
	sig("ssh", "Dropbear sshd", "$1", `^SSH-[\d.]+-dropbear_([\w.]+)`),
	sig("ssh", "$1", "", `^SSH-[\d.]+-(\S+)`),

	sig("http", "Apache httpd", "$1", `(?im)^Server:\s*Apache(?:/([\d.]+))?`),
	sig("http", "nginx", "$1", `(?im)^Server:\s*nginx(?:/([\d.]+))?`),
	sig("http", "Microsoft IIS httpd", "$1", `(?im)^Server:\s*Microsoft-IIS(?:/([\d.]+))?`),
	sig("http", "lighttpd", "$1", `(?im)^Server:\s*lighttpd(?:/([\d.]+))?`),
	sig("http", "$1", "", `(?im)^Server:\s*([^\r\n]+)`),
	sig("http", "", "", `^HTTP/\d(?:\.\d)? \d{3}`),

	sig("ftp", "vsftpd", "$1", `(?i)^220[ -].*\(vsFTPd ([\d.]+)\)`),
	sig("ftp", "ProFTPD", "$1", `(?i)^220[ -].*ProFTPD ([\d.]+\w*)`),
	sig("ftp", "Pure-FTPd", "", `(?i)^220[ -].*Pure-FTPd`),
	sig("ftp", "FileZilla ftpd", "$1", `(?i)^220[ -].*FileZilla Server(?: version)? ([\d.]+)`),

	sig("smtp", "Postfix smtpd", "", `(?i)^220[ -].*ESMTP Postfix`),
	sig("smtp", "Exim smtpd", "$1", `(?i)^220[ -].*Exim ([\d.]+)`),
	sig("smtp", "Sendmail", "$1", `(?i)^220[ -].*Sendmail ([\d.]+)`),
	// a bare 220 greeting mentioning SMTP but not FTP
	sig("smtp", "", "", `(?i)^220[ -](?!.*\bFTP\b).*\bE?SMTP\b`),
	sig("ftp", "", "", `(?i)^220[ -].*\bFTP\b`),

	sig("mysql", "MariaDB", "$1", `(?s)^.{4}\x0a(?:5\.5\.5-)?([\d.]+)-MariaDB`),
	sig("mysql", "MySQL", "$1", `(?s)^.{4}\x0a(\d+\.\d+\.\d+)[\w.-]*\x00`),

	sig("redis", "", "", `^(?:\+PONG|-NOAUTH|-DENIED)`),
	sig("pop3", "", "", `^\+OK`),
	sig("imap", "", "", `^\* OK`),
}

// nudges are written when a port stays silent after connect
var nudges = map[int]string{
	6379: "PING\r\n",
}

const httpNudge = "HEAD / HTTP/1.0\r\n\r\n"

// BannerDetector classifies ports from what they say on connect
type BannerDetector struct {
	timeout   time.Duration
	quietWait time.Duration
	dialer    *net.Dialer
}

// NewBannerDetector creates the banner engine
func NewBannerDetector(timeout time.Duration) *BannerDetector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	quiet := timeout / 3
	if quiet > 2*time.Second {
		quiet = 2 * time.Second
	}
	return &BannerDetector{
		timeout:   timeout,
		quietWait: quiet,
		dialer:    &net.Dialer{Timeout: timeout, KeepAlive: -1},
	}
}

// Name returns engine name
func (d *BannerDetector) Name() string {
	return "banner"
}

// Detect connects, optionally nudges, reads and matches the banner
func (d *BannerDetector) Detect(ctx context.Context, host string, port int) (*Service, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := d.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("banner dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, 2048)

	// Server-speaks-first protocols
	quiet := time.Now().Add(d.quietWait)
	if quiet.After(deadline) {
		quiet = deadline
	}
	_ = conn.SetReadDeadline(quiet)
	n, err := conn.Read(buf)
	if n == 0 && err != nil && !isTimeout(err) {
		// closed on us without a greeting
		return nil, ErrNoMatch
	}

	if n == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		nudge, ok := nudges[port]
		if !ok {
			nudge = httpNudge
		}
		_ = conn.SetDeadline(deadline)
		if _, err := conn.Write([]byte(nudge)); err != nil {
			return nil, fmt.Errorf("banner write: %w", err)
		}
		n, _ = conn.Read(buf)
		if n == 0 {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrNoMatch
		}
	}

	return MatchBanner(string(buf[:n]))
}

// MatchBanner runs the signature table over a raw banner
func MatchBanner(banner string) (*Service, error) {
	if strings.TrimSpace(banner) == "" {
		return nil, ErrNoMatch
	}
	for _, sig := range signatures {
		m, err := sig.Pattern.FindStringMatch(banner)
		if err != nil {
			// match timeout; try the next signature
			continue
		}
		if m == nil {
			continue
		}
		return &Service{
			Name:    sig.Name,
			Product: strings.TrimSpace(expand(sig.Product, m)),
			Version: strings.TrimSpace(expand(sig.Version, m)),
		}, nil
	}
	return nil, ErrNoMatch
}

// expand replaces $N in template with group N of m
func expand(template string, m *regexp2.Match) string {
	if !strings.Contains(template, "$") {
		return template
	}
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		j := i + 1
		for j < len(template) && template[j] >= '0' && template[j] <= '9' {
			j++
		}
		if template[i] != '$' || j == i+1 {
			b.WriteByte(template[i])
			continue
		}
		n, _ := strconv.Atoi(template[i+1 : j])
		if g := m.GroupByNumber(n); g != nil {
			b.WriteString(g.String())
		}
		i = j - 1
	}
	return b.String()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func init() {
	Register("banner", func(cfg EngineConfig) (Detector, error) {
		return NewBannerDetector(cfg.Timeout), nil
	})
}
