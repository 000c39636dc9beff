// Package scheduler implements component C5: the timer bodies that drain
// the flow table and OLSR state store into the IPFIX emitter, and the
// post-processing child-process lifecycle that rides the same export
// cycle.
package scheduler

import (
	"net"
	"time"

	"github.com/els0r/olsrflowexport/pkg/addrfam"
	"github.com/els0r/olsrflowexport/pkg/capture"
	"github.com/els0r/olsrflowexport/pkg/eventloop"
	"github.com/els0r/olsrflowexport/pkg/flowtable"
	"github.com/els0r/olsrflowexport/pkg/ipfixexport"
	"github.com/els0r/olsrflowexport/pkg/olsr"
	"github.com/sirupsen/logrus"
)

// Tables bundles the per-protocol flow tables the scheduler drains.
type Tables struct {
	IPv4 *flowtable.Table
	IPv6 *flowtable.Table
}

// Scheduler owns no state of its own beyond timer periods and the
// post-processing child slot; the tables, store and exporter it drains
// are owned by the engine that constructs it.
type Scheduler struct {
	tables   Tables
	store    *olsr.Store
	exporter *ipfixexport.Exporter
	capture  *capture.Manager
	log      *logrus.Logger

	exportTimeout   time.Duration
	maxFlowLifetime time.Duration

	postproc         *childProcess
	postprocCommand  string
	snapshotRenderer func(now time.Time) error
}

// New creates a Scheduler. postprocCommand may be empty, meaning no child
// is ever spawned; snapshotRenderer may be nil for the same reason.
func New(tables Tables, store *olsr.Store, exporter *ipfixexport.Exporter, capMgr *capture.Manager, log *logrus.Logger, exportTimeout, maxFlowLifetime time.Duration, postprocCommand string, snapshotRenderer func(now time.Time) error) *Scheduler {
	return &Scheduler{
		tables:           tables,
		store:            store,
		exporter:         exporter,
		capture:          capMgr,
		log:              log,
		exportTimeout:    exportTimeout,
		maxFlowLifetime:  maxFlowLifetime,
		postproc:         &childProcess{},
		postprocCommand:  postprocCommand,
		snapshotRenderer: snapshotRenderer,
	}
}

// Register installs every scheduler timer on loop. recordFn drives the
// opaque record-export timer (scalar/system-metric records), left to the
// caller since their shape is outside this engine's scope.
func (s *Scheduler) Register(loop *eventloop.Loop, flowPeriod, topologyPeriod, statsPeriod, recordPeriod time.Duration, recordFn func(now time.Time)) {
	loop.AddTimer(flowPeriod, s.exportFlows)
	loop.AddTimer(topologyPeriod, s.exportTopology)
	loop.AddTimer(statsPeriod, s.exportCaptureStats)
	if recordPeriod > 0 && recordFn != nil {
		loop.AddTimer(recordPeriod, recordFn)
	}
	loop.OnChildExit(s.postproc.onExit)
}

func (s *Scheduler) exportFlows(now time.Time) {
	emit := func(rec flowtable.Record) {
		if err := s.exporter.EmitFlow(rec); err != nil {
			s.log.WithError(err).Warn("emit flow record")
		}
	}
	s.tables.IPv4.Expire(now, s.exportTimeout, s.maxFlowLifetime, emit)
	s.tables.IPv6.Expire(now, s.exportTimeout, s.maxFlowLifetime, emit)

	if err := s.exporter.SendCurrentMessage(); err != nil {
		s.log.WithError(err).Warn("send flow export message")
	}
}

func (s *Scheduler) exportTopology(now time.Time) {
	s.store.Expire(now, func(addr addrfam.Addr, _ addrfam.Protocol, kind olsr.EntryKind, entry any) {
		if err := s.exporter.EmitOLSREntry(addr, kind, entry); err != nil {
			s.log.WithError(err).Warn("emit olsr state record")
		}
	})

	if err := s.exporter.SendCurrentMessage(); err != nil {
		s.log.WithError(err).Warn("send topology export message")
	}

	if s.snapshotRenderer != nil {
		if err := s.snapshotRenderer(now); err != nil {
			s.log.WithError(err).Warn("render state snapshot")
			return
		}
		s.spawnPostprocessing()
	}
}

func (s *Scheduler) exportCaptureStats(time.Time) {
	stats, err := s.capture.Stats()
	if err != nil {
		s.log.WithError(err).Warn("read capture stats")
		return
	}

	for iface, st := range stats {
		idx := uint32(0)
		if nic, err := net.InterfaceByName(iface); err == nil {
			idx = uint32(nic.Index)
		}
		if err := s.exporter.EmitCaptureStats(idx, st.PacketsReceived, st.PacketsDropped, st.PacketsIfDropped); err != nil {
			s.log.WithError(err).Warn("emit capture stats record")
		}
	}

	if err := s.exporter.SendCurrentMessage(); err != nil {
		s.log.WithError(err).Warn("send capture stats message")
	}
}

func (s *Scheduler) spawnPostprocessing() {
	if err := s.postproc.spawn(s.postprocCommand); err != nil {
		s.log.WithError(err).Warn("spawn postprocessing child")
	}
}
