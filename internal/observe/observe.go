// Package observe defines the optional hook the derivation steps report to.
package observe

import (
	"github.com/sirupsen/logrus"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// Observer receives per-record events from the opportunity calculator and the
// position attributor. Implementations must be safe for concurrent use when
// shared across runs.
type Observer interface {
	OpportunityComputed(opp model.Opportunity, hasTelemetry bool)
	PositionAttributed(pos model.HolderPosition, shape model.SignalShape)
	PositionDropped(holder, ipfsHash string, shape model.SignalShape)
}

// Nop discards every event.
type Nop struct{}

func (Nop) OpportunityComputed(model.Opportunity, bool)                {}
func (Nop) PositionAttributed(model.HolderPosition, model.SignalShape) {}
func (Nop) PositionDropped(string, string, model.SignalShape)          {}

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}

// Multi fans every event out to each observer in order.
type Multi []Observer

func (m Multi) OpportunityComputed(opp model.Opportunity, hasTelemetry bool) {
	for _, o := range m {
		o.OpportunityComputed(opp, hasTelemetry)
	}
}

func (m Multi) PositionAttributed(pos model.HolderPosition, shape model.SignalShape) {
	for _, o := range m {
		o.PositionAttributed(pos, shape)
	}
}

func (m Multi) PositionDropped(holder, ipfsHash string, shape model.SignalShape) {
	for _, o := range m {
		o.PositionDropped(holder, ipfsHash, shape)
	}
}

// LogObserver writes events to logrus at debug level. Dropped positions are
// logged at warn level since they indicate a catalog join miss.
type LogObserver struct {
	Logger logrus.FieldLogger
}

func (l LogObserver) logger() logrus.FieldLogger {
	if l.Logger == nil {
		return logrus.StandardLogger()
	}
	return l.Logger
}

func (l LogObserver) OpportunityComputed(opp model.Opportunity, hasTelemetry bool) {
	l.logger().WithFields(logrus.Fields{
		"ipfs_hash":     opp.IPFSHash,
		"signal":        opp.SignalAmount,
		"annual_fees":   opp.AnnualFees,
		"yield":         opp.Yield,
		"has_telemetry": hasTelemetry,
	}).Debug("opportunity computed")
}

func (l LogObserver) PositionAttributed(pos model.HolderPosition, shape model.SignalShape) {
	l.logger().WithFields(logrus.Fields{
		"holder":    pos.Holder,
		"ipfs_hash": pos.IPFSHash,
		"portion":   pos.PortionOwned,
		"earnings":  pos.EstimatedEarnings,
		"yield":     pos.Yield,
		"shape":     shape.String(),
	}).Debug("position attributed")
}

func (l LogObserver) PositionDropped(holder, ipfsHash string, shape model.SignalShape) {
	l.logger().WithFields(logrus.Fields{
		"holder":    holder,
		"ipfs_hash": ipfsHash,
		"shape":     shape.String(),
	}).Warn("position dropped: deployment not in catalog")
}
