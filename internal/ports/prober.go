package ports

import "context"

// Prober checks link-level connectivity. It says nothing about whether the
// tenant service itself is reachable.
type Prober interface {
	// Probe returns nil when the network appears reachable.
	Probe(ctx context.Context) error
}
