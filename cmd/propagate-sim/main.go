// Command propagate-sim runs an in-process simulation of either protocol
// variant over an in-memory or relt-backed transport, for manual
// exploration of both engines' propagation behavior.
package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/jabolina/go-propagate/internal/relttransport"
	"github.com/jabolina/go-propagate/pkg/propagate/core"
	"github.com/jabolina/go-propagate/pkg/propagate/definition"
	"github.com/jabolina/go-propagate/pkg/propagate/p1"
	"github.com/jabolina/go-propagate/pkg/propagate/p2"
	"github.com/jabolina/go-propagate/pkg/propagate/types"
)

var (
	app = kingpin.New("propagate-sim", "Drives a P1 or P2 propagation engine over a simulated network.")

	variant         = app.Flag("variant", "Protocol variant to run: p1 or p2").Default("p1").Enum("p1", "p2")
	peers           = app.Flag("peers", "Number of peers in the simulation").Default("4").Int()
	maxBatchSize    = app.Flag("max-batch-size", "Maximum operations asked for per batch").Default("8").Int()
	period          = app.Flag("period", "P1's op_batch_proc_period").Default("200ms").Duration()
	bufferCapacity  = app.Flag("buffer-capacity", "P1's op_batch_buf_capacity").Default("1000").Int()
	transportKind   = app.Flag("transport", "Transport to use: memory or relt").Default("memory").Enum("memory", "relt")
	protocolVersion = app.Flag("protocol-version", "This node's advertised protocol version").Default("1.0.0").String()
	seedOperations  = app.Flag("seed-operations", "Number of synthetic operations to seed at peer 0").Default("20").Int()
	reltExchange    = app.Flag("relt-exchange", "relt group address to join when --transport=relt").Default("propagate-sim").String()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	out := colorable.NewColorableStdout()
	logger := definition.NewDefaultLogger()

	gate, err := core.NewVersionGate(*protocolVersion, "")
	if err != nil {
		fmt.Fprintln(out, color.RedString("invalid protocol version %q: %v", *protocolVersion, err))
		os.Exit(1)
	}
	fmt.Fprintln(out, color.CyanString("propagate-sim: variant=%s peers=%d version=%s", *variant, *peers, gate.Local()))

	sink, teardown := buildSink(logger)
	defer teardown()

	switch *variant {
	case "p1":
		runP1(out, logger, sink)
	case "p2":
		runP2(out, logger, sink)
	}
}

func buildSink(logger types.Logger) (core.EffectSink, func()) {
	if *transportKind == "memory" {
		sink := core.NewChannelEffectSink(256)
		return sink, func() { sink.Close() }
	}

	adapter, err := relttransport.NewAdapter(relttransport.Config{
		Self:      0,
		Name:      fmt.Sprintf("propagate-sim-%d", rand.Int()),
		Exchange:  *reltExchange,
		Addresses: func(id types.NodeId) string { return *reltExchange },
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("failed building relt transport: %v", err))
		os.Exit(1)
	}
	return adapter, adapter.Close
}

func seed(n int) types.OperationMap {
	ops := make(types.OperationMap, n)
	for i := 0; i < n; i++ {
		ops[types.OperationId(i)] = types.Operation(fmt.Sprintf("op-%d-payload", i))
	}
	return ops
}

func runP1(out io.Writer, logger types.Logger, sink core.EffectSink) {
	engine := p1.New(p1.Config{
		PeerCount:          *peers,
		MaxBatchSize:       *maxBatchSize,
		OpBatchProcPeriod:  *period,
		OpBatchBufCapacity: *bufferCapacity,
		Sink:               sink,
		Logger:             logger,
	})

	ops := seed(*seedOperations)
	engine.OnOperationReceived(0, ops)
	drainEffects(out, sink)
}

func runP2(out io.Writer, logger types.Logger, sink core.EffectSink) {
	engine := p2.New(p2.Config{
		PeerCount:    *peers,
		MaxBatchSize: *maxBatchSize,
		Sink:         sink,
		Logger:       logger,
	})

	ids := seed(*seedOperations).Keys()
	engine.OnBatchReceived(ids, 0)
	engine.OnAskingLoop()
	drainEffects(out, sink)
}

func drainEffects(out io.Writer, sink core.EffectSink) {
	channelSink, ok := sink.(*core.ChannelEffectSink)
	if !ok {
		fmt.Fprintln(out, color.YellowString("effects are being delivered over the network transport; nothing to drain locally"))
		return
	}

	timeout := time.After(250 * time.Millisecond)
	for {
		select {
		case effect := <-channelSink.Effects():
			paint := color.GreenString
			switch effect.Kind {
			case core.AskOperations:
				paint = color.YellowString
			case core.SendOperations:
				paint = color.CyanString
			}
			fmt.Fprintln(out, paint("-> %s peer=%d ids=%d", effect.Kind, effect.Peer, len(effect.Ids)+len(effect.Ops)+len(effect.Asked)))
		case <-timeout:
			return
		}
	}
}
