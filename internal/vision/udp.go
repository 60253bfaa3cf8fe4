package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/precision.land/internal/geometry"
	"github.com/banshee-data/precision.land/internal/monitoring"
)

// framePacket is the datagram an external detector process sends per frame:
//
//	{"width":640,"height":480,"ts_ns":1714560000000000000,
//	 "candidates":[[[x0,y0],[x1,y1],[x2,y2],[x3,y3]], ...]}
type framePacket struct {
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	TsNanos    int64           `json:"ts_ns,omitempty"`
	Candidates [][4][2]float64 `json:"candidates"`
}

// ParseFrame decodes one detector datagram.
func ParseFrame(b []byte) (Frame, error) {
	var p framePacket
	if err := json.Unmarshal(b, &p); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return Frame{}, fmt.Errorf("frame dimensions must be positive, got %dx%d", p.Width, p.Height)
	}
	f := Frame{Width: p.Width, Height: p.Height}
	if p.TsNanos > 0 {
		f.Timestamp = time.Unix(0, p.TsNanos)
	}
	f.Candidates = make([]geometry.Quad, len(p.Candidates))
	for i, c := range p.Candidates {
		for j, pt := range c {
			f.Candidates[i][j] = geometry.Point{X: pt[0], Y: pt[1]}
		}
	}
	return f, nil
}

// UDPDetector receives detector frames as JSON datagrams.
type UDPDetector struct {
	conn     *net.UDPConn
	buf      []byte
	pollWait time.Duration
}

// ListenUDP binds addr (host:port) and returns a detector reading from it.
func ListenUDP(addr string) (*UDPDetector, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve detector address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %q: %w", addr, err)
	}
	return &UDPDetector{conn: conn, buf: make([]byte, 64*1024), pollWait: 100 * time.Millisecond}, nil
}

// LocalAddr returns the bound address.
func (d *UDPDetector) LocalAddr() net.Addr { return d.conn.LocalAddr() }

// Detect returns the next well-formed frame. Malformed datagrams are logged
// and skipped.
func (d *UDPDetector) Detect(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if err := d.conn.SetReadDeadline(time.Now().Add(d.pollWait)); err != nil {
			return Frame{}, err
		}
		n, _, err := d.conn.ReadFromUDP(d.buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return Frame{}, err
		}
		f, err := ParseFrame(d.buf[:n])
		if err != nil {
			monitoring.Logf("vision: dropping datagram: %v", err)
			continue
		}
		return f, nil
	}
}

// Close releases the socket.
func (d *UDPDetector) Close() error {
	return d.conn.Close()
}
