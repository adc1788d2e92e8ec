// Package driver defines the protocol-driver contract spec section
// 4.4 dispatches against: one Driver per protocol, each transferring a
// batch of outgoing files to a single recipient URL and reporting how
// much of the batch completed before any error.
package driver

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotImplemented is returned by protocols spec.md names but leaves
// externalized (FTP, SMTP, WMO): only this package's contract is
// specified for them, not a concrete client.
var ErrNotImplemented = errors.New("driver: protocol not implemented")

// Request is one dispatch's worth of work: the files staged in a
// message's outgoing sub-directory, the recipient URL, and the
// transfer-side option text (soptions).
type Request struct {
	HostAlias string
	Recipient string
	Files     []string
	Options   string

	// Burst is true when this request is being handed to an already
	// connected driver instance for the same job_id, per spec section
	// 4.4's bursting rule.
	Burst bool
}

// Result reports how much of a Request completed. A driver that fails
// partway through still reports FilesDone/BytesDone for the files that
// did complete; the dispatcher does not apply a failed transfer's
// partial counts and records the whole request as a failure.
type Result struct {
	FilesDone int64
	BytesDone int64
}

// Driver is the protocol-driver contract: dial (or reuse an existing
// connection for a burst), stream the requested files, and return how
// far it got. Close releases any held connection; a non-burst Driver
// is expected to be Close()d after use, a bursting one may be reused
// across repeated Transfer calls until the scheduler runs out of
// eligible messages for that job_id.
type Driver interface {
	Protocol() string
	Transfer(ctx context.Context, req Request) (Result, error)
	Close() error
}

// Factory constructs a new Driver instance for one JobSlot.
type Factory func() Driver

// Registry maps protocol names to driver factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a Registry with loc and scp1 registered by the
// caller via Register; protocols with no registered factory resolve to
// notImplemented.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs factory under protocol.
func (r *Registry) Register(protocol string, factory Factory) {
	r.factories[protocol] = factory
}

// New constructs a Driver for protocol, or a notImplemented stub if no
// factory is registered.
func (r *Registry) New(protocol string) Driver {
	if f, ok := r.factories[protocol]; ok {
		return f()
	}
	return notImplemented{protocol: protocol}
}

type notImplemented struct{ protocol string }

func (n notImplemented) Protocol() string { return n.protocol }

func (n notImplemented) Transfer(ctx context.Context, req Request) (Result, error) {
	return Result{}, fmt.Errorf("%w: %s", ErrNotImplemented, n.protocol)
}

func (n notImplemented) Close() error { return nil }
