package netprobe

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDialProber_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	p := New(ln.Addr().String(), time.Second)
	if err := p.Probe(context.Background()); err != nil {
		t.Errorf("Probe() error = %v", err)
	}
}

func TestDialProber_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := New(addr, time.Second)
	if err := p.Probe(context.Background()); err == nil {
		t.Error("Probe() succeeded against closed port")
	}
}

func TestDialProber_NoAddr(t *testing.T) {
	p := New("", 0)
	if p.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", p.Timeout, DefaultTimeout)
	}
	if err := p.Probe(context.Background()); err == nil {
		t.Error("Probe() with empty address should fail")
	}
}
