package yeelight

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"net/url"
	"time"
)

// Bulbs advertise over an SSDP dialect: multicast M-SEARCH on UDP port 1982
// (not the standard 1900) with a wifi_bulb search target.
const (
	searchAddr   = "239.255.255.250:1982"
	searchTarget = "wifi_bulb"
)

var searchRequest = []byte("M-SEARCH * HTTP/1.1\r\n" +
	"HOST: " + searchAddr + "\r\n" +
	"MAN: \"ssdp:discover\"\r\n" +
	"ST: " + searchTarget + "\r\n\r\n")

// Discover probes the local network for responding bulbs. It listens for
// replies until the timeout (or the context deadline, whichever is sooner)
// and returns the deduplicated set of devices that answered.
func Discover(ctx context.Context, timeout time.Duration, logger *slog.Logger) ([]Device, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pc, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("discovery: cannot open socket: %w", err)
	}
	defer pc.Close()

	dst, err := net.ResolveUDPAddr("udp4", searchAddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	if _, err := pc.WriteTo(searchRequest, dst); err != nil {
		return nil, fmt.Errorf("discovery: probe send failed: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := pc.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var devices []Device
	buf := make([]byte, 2048)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return devices, nil
			}
			return devices, fmt.Errorf("discovery: read failed: %w", err)
		}
		dev, err := parseSearchReply(buf[:n])
		if err != nil {
			logger.Debug("discovery: ignoring reply", "from", from, "error", err)
			continue
		}
		if seen[dev.Address] {
			continue
		}
		seen[dev.Address] = true
		logger.Debug("discovery: bulb replied", "addr", dev.Address, "id", dev.ID, "model", dev.Model)
		devices = append(devices, dev)
	}
}

// parseSearchReply parses one discovery reply datagram.
func parseSearchReply(data []byte) (Device, error) {
	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(data)))
	status, err := reader.ReadLine()
	if err != nil {
		return Device{}, fmt.Errorf("malformed reply: %w", err)
	}
	if status != "HTTP/1.1 200 OK" {
		return Device{}, fmt.Errorf("unexpected status %q", status)
	}
	headers, err := reader.ReadMIMEHeader()
	if err != nil {
		return Device{}, fmt.Errorf("malformed headers: %w", err)
	}

	location := headers.Get("Location")
	u, err := url.Parse(location)
	if err != nil || u.Scheme != "yeelight" || u.Host == "" {
		return Device{}, fmt.Errorf("bad location %q", location)
	}

	return Device{
		Address: u.Host,
		ID:      headers.Get("Id"),
		Model:   headers.Get("Model"),
		Name:    headers.Get("Name"),
	}, nil
}

// SSDPProber wraps Discover for injection into the fleet manager.
type SSDPProber struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Probe runs one discovery pass.
func (p *SSDPProber) Probe(ctx context.Context) ([]Device, error) {
	return Discover(ctx, p.Timeout, p.Logger)
}
