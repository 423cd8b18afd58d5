// internal/osdetect/pinger.go
// ICMP echo sender that reads the reply TTL from the IPv4 control message

package osdetect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/aspnmy/recon_reporter/pkg/logger"
)

var (
	// ErrNoReply is returned when no matching echo reply arrived in time
	ErrNoReply = errors.New("no echo reply")
	// ErrUnsupportedFamily is returned for non-IPv4 targets
	ErrUnsupportedFamily = errors.New("ttl fingerprinting supports IPv4 only")
)

var echoPayload = []byte("recon-reporter-ttl")

// Pinger sends echo requests and reports the TTL of the first reply
type Pinger interface {
	Ping(ctx context.Context, addr netip.Addr) (int, error)
}

// PingerConfig holds ICMP pinger configuration
type PingerConfig struct {
	Count      int
	Timeout    time.Duration
	Privileged bool // raw ip4:icmp socket; otherwise udp4 ping socket
}

// ICMPPinger implements Pinger over golang.org/x/net/icmp
type ICMPPinger struct {
	cfg PingerConfig
	id  uint16

	listen  func(network, address string) (*icmp.PacketConn, error)
	geteuid func() int
}

// NewICMPPinger creates an ICMP pinger
func NewICMPPinger(cfg PingerConfig) *ICMPPinger {
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &ICMPPinger{
		cfg:     cfg,
		id:      uint16(os.Getpid() & 0xffff),
		listen:  icmp.ListenPacket,
		geteuid: os.Geteuid,
	}
}

// Ping sends cfg.Count echo requests and returns the TTL of the first matching reply
func (p *ICMPPinger) Ping(ctx context.Context, addr netip.Addr) (int, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return 0, ErrUnsupportedFamily
	}

	conn, privileged, err := p.open()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	pc := conn.IPv4PacketConn()
	if err := pc.SetControlMessage(ipv4.FlagTTL, true); err != nil {
		return 0, fmt.Errorf("failed to enable TTL control messages: %w", err)
	}

	deadline := time.Now().Add(p.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	var dst net.Addr = &net.UDPAddr{IP: addr.AsSlice()}
	if privileged {
		dst = &net.IPAddr{IP: addr.AsSlice()}
	}

	for seq := 1; seq <= p.cfg.Count; seq++ {
		msg, err := encodeEcho(p.id, uint16(seq))
		if err != nil {
			return 0, err
		}
		if _, err := conn.WriteTo(msg, dst); err != nil {
			return 0, fmt.Errorf("failed to send echo request: %w", err)
		}
	}

	buf := make([]byte, 1500)
	for {
		n, cm, src, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return 0, ErrNoReply
			}
			return 0, err
		}

		if !sameHost(src, addr) {
			continue
		}
		id, seq, ok := decodeEchoReply(buf[:n])
		if !ok || seq < 1 || int(seq) > p.cfg.Count {
			continue
		}
		// the kernel rewrites the identifier on udp ping sockets
		if privileged && id != p.id {
			continue
		}
		if cm == nil {
			return 0, fmt.Errorf("reply carried no TTL control message")
		}
		return cm.TTL, nil
	}
}

// open returns an ICMP socket and whether it is raw. Root and
// cfg.Privileged go straight to ip4:icmp; otherwise a udp4 ping socket is
// tried first and a permission error falls back to the raw socket.
func (p *ICMPPinger) open() (*icmp.PacketConn, bool, error) {
	raw := p.cfg.Privileged || p.geteuid() == 0

	if !raw {
		conn, err := p.listen("udp4", "0.0.0.0")
		if err == nil {
			return conn, false, nil
		}
		if !errors.Is(err, os.ErrPermission) {
			return nil, false, fmt.Errorf("failed to open udp4 socket: %w", err)
		}
		logger.Debug("Ping socket denied, trying raw ICMP socket", logger.Err(err))
	}

	conn, err := p.listen("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, false, fmt.Errorf("failed to open ip4:icmp socket: %w", err)
	}
	return conn, true, nil
}

// encodeEcho builds an ICMPv4 echo request with checksum
func encodeEcho(id, seq uint16) ([]byte, error) {
	echo := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       id,
		Seq:      seq,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, echo, gopacket.Payload(echoPayload)); err != nil {
		return nil, fmt.Errorf("failed to encode echo request: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeEchoReply extracts id and sequence from an ICMPv4 echo reply
func decodeEchoReply(b []byte) (id, seq uint16, ok bool) {
	pkt := gopacket.NewPacket(b, layers.LayerTypeICMPv4, gopacket.Default)
	l := pkt.Layer(layers.LayerTypeICMPv4)
	if l == nil {
		return 0, 0, false
	}
	msg, _ := l.(*layers.ICMPv4)
	if msg == nil || msg.TypeCode.Type() != layers.ICMPv4TypeEchoReply {
		return 0, 0, false
	}
	return msg.Id, msg.Seq, true
}

func sameHost(src net.Addr, want netip.Addr) bool {
	var ip net.IP
	switch a := src.(type) {
	case *net.UDPAddr:
		ip = a.IP
	case *net.IPAddr:
		ip = a.IP
	default:
		return false
	}
	got, ok := netip.AddrFromSlice(ip)
	return ok && got.Unmap() == want
}
