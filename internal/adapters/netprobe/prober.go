// Package netprobe implements ports.Prober by opening a TCP connection.
package netprobe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bft-labs/possync/internal/ports"
)

// DefaultTimeout bounds a single dial when none is configured.
const DefaultTimeout = 3 * time.Second

// DialProber reports the network reachable when a TCP dial to Addr succeeds.
type DialProber struct {
	Addr    string
	Timeout time.Duration
}

// New returns a prober for addr ("host:port").
func New(addr string, timeout time.Duration) *DialProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DialProber{Addr: addr, Timeout: timeout}
}

// Probe dials Addr and closes the connection immediately.
func (p *DialProber) Probe(ctx context.Context) error {
	if p.Addr == "" {
		return errors.New("probe address not configured")
	}
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.Addr, err)
	}
	return conn.Close()
}

var _ ports.Prober = (*DialProber)(nil)
