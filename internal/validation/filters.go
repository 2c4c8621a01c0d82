// Package validation normalizes caller input and filters malformed upstream records
// before they reach the derivation steps.
package validation

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// ValidationOptions holds configuration for the record filters
type ValidationOptions struct {
	// MinObservedDays drops telemetry rows backed by fewer reporting days (0 keeps all)
	MinObservedDays int

	// MaxObservedDays caps the observed day count at the window length
	MaxObservedDays int

	// MaxReserveRatio is the upper bound of a plausible reserve ratio
	MaxReserveRatio float64
}

// DefaultValidationOptions returns defaults matching the 30 day telemetry window
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MinObservedDays: 0,
		MaxObservedDays: 30,
		MaxReserveRatio: 1.0,
	}
}

// FilterTelemetry removes telemetry rows that cannot be joined and repairs the rest.
// Non-finite or negative totals are zeroed rather than dropped, so a deployment
// with a broken row still reports zero fees instead of disappearing.
func FilterTelemetry(records []model.TelemetryRecord, opts ValidationOptions) []model.TelemetryRecord {
	valid := make([]model.TelemetryRecord, 0, len(records))
	for _, r := range records {
		if r.IPFSHash == "" {
			logrus.Debug("Filtered telemetry row without ipfs hash")
			continue
		}
		if opts.MinObservedDays > 0 && r.SubPeriodsObserved < opts.MinObservedDays {
			logrus.WithFields(logrus.Fields{
				"ipfs_hash": r.IPFSHash,
				"observed":  r.SubPeriodsObserved,
			}).Debug("Filtered sparse telemetry row")
			continue
		}

		r.FeesTotal = NonNegative(r.FeesTotal)
		r.QueriesTotal = NonNegative(r.QueriesTotal)
		if r.SubPeriodsObserved < 0 {
			r.SubPeriodsObserved = 0
		}
		if opts.MaxObservedDays > 0 && r.SubPeriodsObserved > opts.MaxObservedDays {
			r.SubPeriodsObserved = opts.MaxObservedDays
		}
		valid = append(valid, r)
	}
	return valid
}

// FilterDeployments drops records without an ipfs hash, keeps the first record per
// hash and clamps reserve ratios into [0, MaxReserveRatio].
func FilterDeployments(records []model.DeploymentRecord, opts ValidationOptions) []model.DeploymentRecord {
	seen := make(map[string]struct{}, len(records))
	valid := make([]model.DeploymentRecord, 0, len(records))
	for _, d := range records {
		if d.IPFSHash == "" {
			logrus.Debug("Filtered deployment without ipfs hash")
			continue
		}
		if _, dup := seen[d.IPFSHash]; dup {
			logrus.WithField("ipfs_hash", d.IPFSHash).Debug("Filtered duplicate deployment")
			continue
		}
		seen[d.IPFSHash] = struct{}{}

		d.ReserveRatio = NonNegative(d.ReserveRatio)
		if opts.MaxReserveRatio > 0 && d.ReserveRatio > opts.MaxReserveRatio {
			d.ReserveRatio = opts.MaxReserveRatio
		}
		if d.CuratorCount < 0 {
			d.CuratorCount = 0
		}
		valid = append(valid, d)
	}

	if dropped := len(records) - len(valid); dropped > 0 {
		logrus.WithFields(logrus.Fields{
			"total":    len(records),
			"filtered": dropped,
		}).Debug("Deployment filtering complete")
	}
	return valid
}

// NonNegative maps NaN, infinities and negative values to 0.
func NonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
