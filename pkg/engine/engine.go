// Package engine wires components C1 through C7 into the running
// observation engine: capture sources feed the classifier, the
// classifier feeds the flow table and the OLSR decoder, and the
// scheduler drains both into the IPFIX emitter on the event loop's
// timers.
package engine

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/els0r/olsrflowexport/internal/config"
	"github.com/els0r/olsrflowexport/pkg/addrfam"
	"github.com/els0r/olsrflowexport/pkg/capture"
	"github.com/els0r/olsrflowexport/pkg/classify"
	"github.com/els0r/olsrflowexport/pkg/eventloop"
	"github.com/els0r/olsrflowexport/pkg/flowtable"
	"github.com/els0r/olsrflowexport/pkg/ipfixexport"
	"github.com/els0r/olsrflowexport/pkg/olsr"
	"github.com/els0r/olsrflowexport/pkg/scheduler"
	"github.com/sirupsen/logrus"
)

// SnapshotSink receives a rendered copy of the current observation state
// on every topology export cycle when one is passed to New and
// cfg.XMLFile is set; after a successful Render the scheduler starts the
// optional post-processing command. This module ships no SnapshotSink
// implementation (cmd/olsrflowexport passes nil); concrete XML rendering
// is an external collaborator.
type SnapshotSink interface {
	Render(now time.Time, flows []flowtable.Record, store *olsr.Store) error
}

// Engine is the fully wired observation engine for one configuration.
type Engine struct {
	cfg *config.Config
	log *logrus.Logger

	capMgr   *capture.Manager
	tables   scheduler.Tables
	store    *olsr.Store
	exporter *ipfixexport.Exporter
	loop     *eventloop.Loop
	sched    *scheduler.Scheduler

	// parseErrors counts classifier and OLSR-decoder parse failures seen
	// since startup. It is only ever touched from handleFrame, which runs
	// exclusively on the event-loop goroutine, so no locking is needed.
	parseErrors uint64
}

// ParseErrors returns the running count of frames that failed
// classification or OLSR decoding since the engine started.
func (e *Engine) ParseErrors() uint64 {
	return e.parseErrors
}

// New builds an Engine from cfg, opening a capture source per configured
// interface and dialing every configured collector. It does not start
// running until Run is called.
func New(cfg *config.Config, log *logrus.Logger, sink SnapshotSink) (*Engine, error) {
	capMgr := capture.NewManager(1024)

	for _, iface := range cfg.Interfaces {
		filter, err := capture.FilterFor(iface)
		if err != nil {
			return nil, fmt.Errorf("engine: %s: build filter: %w", iface, err)
		}
		src, err := capture.NewAFPacketSource(iface, filter)
		if err != nil {
			return nil, fmt.Errorf("engine: %s: open capture: %w", iface, err)
		}
		capMgr.Add(iface, src)
	}

	exporter := ipfixexport.InitExporter(cfg.ObservationDomainID)
	for _, c := range cfg.Collectors {
		transport, err := mapTransport(c.Transport)
		if err != nil {
			return nil, err
		}
		if err := exporter.AddCollector(net.ParseIP(c.IP), c.Port, transport, c.MTUHint); err != nil {
			return nil, fmt.Errorf("engine: add collector %s:%d: %w", c.IP, c.Port, err)
		}
	}
	for _, tmpl := range ipfixexport.Templates() {
		exporter.DeclareTemplate(tmpl)
	}

	tables := scheduler.Tables{IPv4: flowtable.New(), IPv6: flowtable.New()}
	store := olsr.NewStore()

	e := &Engine{
		cfg:      cfg,
		log:      log,
		capMgr:   capMgr,
		tables:   tables,
		store:    store,
		exporter: exporter,
	}

	frames := capMgr.Frames()
	loop := eventloop.New(toLoopFrames(frames), func(now time.Time, f eventloop.Frame) {
		e.handleFrame(now, f)
	})
	e.loop = loop

	var renderFn func(now time.Time) error
	if sink != nil && cfg.XMLFile != "" {
		renderFn = func(now time.Time) error {
			return sink.Render(now, snapshotFlows(tables), store)
		}
	}

	e.sched = scheduler.New(tables, store, exporter, capMgr, log,
		cfg.Timers.ExportTimeout(), cfg.Timers.MaxFlowLifetime(),
		cfg.XMLPostprocessing, renderFn)

	e.sched.Register(loop,
		cfg.Timers.FlowExport(), cfg.Timers.TopologyExport(), cfg.Timers.CaptureStats(),
		time.Duration(cfg.Interval)*time.Second, nil)

	return e, nil
}

// Run blocks until ctx is cancelled, driving the event loop.
func (e *Engine) Run(ctx context.Context) error {
	defer e.exporter.Close()
	defer e.capMgr.Close()
	return e.loop.Run(ctx)
}

func (e *Engine) handleFrame(now time.Time, f eventloop.Frame) {
	res, err := classify.Classify(f.Data, f.WireLen)
	if err != nil {
		e.parseErrors++
		e.log.WithError(err).WithField("iface", f.Iface).Error("failed to classify frame")
		return
	}

	table := e.tables.IPv4
	if res.HasFlow && res.Proto == addrfam.IPv6 {
		table = e.tables.IPv6
	}
	if res.HasFlow {
		table.Observe(now, res.Flow)
	}
	if res.HasOLSR {
		if n := olsr.Decode(res.OLSRPayload, res.Proto, e.store, now); n > 0 {
			e.parseErrors += uint64(n)
			e.log.WithField("iface", f.Iface).WithField("count", n).Error("malformed OLSR message discarded")
		}
	}
}

func mapTransport(t config.Transport) (ipfixexport.Transport, error) {
	switch t {
	case config.TransportUDP:
		return ipfixexport.UDP, nil
	case config.TransportTCP:
		return ipfixexport.TCP, nil
	case config.TransportSCTP:
		return ipfixexport.SCTP, nil
	default:
		return 0, fmt.Errorf("engine: unknown collector transport %q", t)
	}
}

func snapshotFlows(tables scheduler.Tables) []flowtable.Record {
	var out []flowtable.Record
	tables.IPv4.ForEach(func(r flowtable.Record) { out = append(out, r) })
	tables.IPv6.ForEach(func(r flowtable.Record) { out = append(out, r) })
	return out
}

func toLoopFrames(frames <-chan capture.Frame) <-chan eventloop.Frame {
	out := make(chan eventloop.Frame)
	go func() {
		defer close(out)
		for f := range frames {
			out <- eventloop.Frame{Iface: f.Iface, Data: f.Data, WireLen: f.WireLen}
		}
	}()
	return out
}
