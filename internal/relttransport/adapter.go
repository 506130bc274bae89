// Package relttransport binds core.EffectSink onto a real network, using
// github.com/jabolina/relt as the underlying reliable group transport.
// Effects are marshalled to JSON and addressed by types.NodeId, with a
// background poll goroutine decoding inbound deliveries back into effects.
package relttransport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jabolina/relt/pkg/relt"
	prometheuslog "github.com/prometheus/common/log"

	"github.com/jabolina/go-propagate/pkg/propagate/core"
	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

// AddressBook resolves a peer id to the relt group address it listens on.
// The demo CLI (cmd/propagate-sim) supplies a simple fixed mapping; a real
// deployment would back this with service discovery.
type AddressBook func(types.NodeId) string

// Config configures an Adapter.
type Config struct {
	// Self is this node's own id, used only for logging.
	Self types.NodeId
	// Name is this node's relt peer name.
	Name string
	// Exchange is the relt group address this node consumes from.
	// Outbound effects go to the address Addresses returns for their peer.
	Exchange string
	Addresses AddressBook
	Logger    types.Logger
	Invoker   core.Invoker
}

// Adapter implements core.EffectSink over a relt group, and separately
// exposes the effects it decodes off the wire via Listen, mirroring the
// teacher's Transport.Listen() channel-of-inbound-records shape.
type Adapter struct {
	logger    types.Logger
	relt      *relt.Relt
	addresses AddressBook

	producer chan core.Effect
	context  context.Context
	finish   context.CancelFunc
	self     types.NodeId
}

// NewAdapter dials relt and starts the background consume loop on cfg.Invoker
// (core.GoInvoker by default).
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("relttransport: Logger is required")
	}
	if cfg.Invoker == nil {
		cfg.Invoker = core.GoInvoker{}
	}

	conf := relt.DefaultReltConfiguration()
	conf.Name = cfg.Name
	conf.Exchange = relt.GroupAddress(cfg.Exchange)
	r, err := relt.NewRelt(*conf)
	if err != nil {
		return nil, fmt.Errorf("relttransport: failed dialing relt: %w", err)
	}

	ctx, done := context.WithCancel(context.Background())
	a := &Adapter{
		logger:    cfg.Logger,
		relt:      r,
		addresses: cfg.Addresses,
		producer:  make(chan core.Effect, 256),
		context:   ctx,
		finish:    done,
		self:      cfg.Self,
	}
	cfg.Invoker.Spawn(a.poll)
	return a, nil
}

// Emit implements core.EffectSink: it marshals the effect and broadcasts
// it to the destination peer's relt group address. EffectSink has no error return,
// so failures are logged, not propagated.
func (a *Adapter) Emit(e core.Effect) {
	data, err := json.Marshal(e)
	if err != nil {
		a.logger.Errorf("relttransport: failed marshalling effect %#v: %v", e, err)
		return
	}

	group := a.addresses(e.Peer)
	send := relt.Send{Address: relt.GroupAddress(group), Data: data}
	if err := a.relt.Broadcast(a.context, send); err != nil {
		a.logger.Errorf("relttransport: failed sending effect %#v to %s: %v", e, group, err)
	}
}

// Listen returns the channel decoded inbound effects are published on.
func (a *Adapter) Listen() <-chan core.Effect {
	return a.producer
}

// Close stops the consume loop and the underlying relt connection.
func (a *Adapter) Close() {
	a.finish()
	if err := a.relt.Close(); err != nil {
		a.logger.Errorf("relttransport: failed closing relt: %v", err)
	}
}

// poll runs on its own goroutine for the adapter's lifetime, forwarding
// relt deliveries into consume. Logged through the package-level
// prometheus/common/log logger rather than the injected types.Logger:
// this loop starts before any per-call logger context is available.
func (a *Adapter) poll() {
	listener, err := a.relt.Consume()
	if err != nil {
		prometheuslog.Errorf("relttransport(%d): failed starting consume: %v", a.self, err)
		return
	}
	for {
		select {
		case <-a.context.Done():
			return
		case recv, ok := <-listener:
			if !ok {
				return
			}
			a.consume(recv.Origin, relt.Recv{Data: recv.Data, Error: recv.Error})
		}
	}
}

func (a *Adapter) consume(origin string, recv relt.Recv) {
	if recv.Error != nil {
		prometheuslog.Errorf("relttransport(%d): error receiving from %s: %v", a.self, origin, recv.Error)
		return
	}
	if recv.Data == nil {
		prometheuslog.Warnf("relttransport(%d): empty message from %s", a.self, origin)
		return
	}

	var effect core.Effect
	if err := json.Unmarshal(recv.Data, &effect); err != nil {
		prometheuslog.Errorf("relttransport(%d): failed unmarshalling effect from %s: %v", a.self, origin, err)
		return
	}

	timeout, cancel := context.WithTimeout(a.context, 250*time.Millisecond)
	defer cancel()
	select {
	case <-timeout.Done():
		prometheuslog.Warnf("relttransport(%d): timed out delivering effect %#v from %s", a.self, effect, origin)
	case a.producer <- effect:
	}
}
