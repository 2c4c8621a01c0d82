package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/analysis"
	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// errWriter keeps the first write error so plain prints need no checks
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

// finish returns the render error, or the first write error
func (e *errWriter) finish(renderErr error) error {
	if renderErr != nil {
		return renderErr
	}
	return e.err
}

func renderHeader(w io.Writer, r model.Report) {
	fmt.Fprintf(w, "\nRun %s  price $%.4f (%s)\n", r.RunID, r.Price.Price, r.Price.Source)
	if len(r.Degraded) > 0 {
		fmt.Fprintf(w, "  degraded sources: %s\n", strings.Join(r.Degraded, ", "))
	}
}

func renderOpportunities(w io.Writer, opps []model.Opportunity) error {
	ew := &errWriter{w: w}
	table := tablewriter.NewWriter(ew)
	table.Header("#", "Deployment", "Signal", "Annual fees", "Weekly queries", "Curators", "Yield %")

	for i, o := range opps {
		err := table.Append(
			fmt.Sprintf("%d", i+1),
			o.IPFSHash,
			fmt.Sprintf("%.0f", o.SignalAmount),
			fmt.Sprintf("%.2f", o.AnnualFees),
			fmt.Sprintf("%.0f", o.WeeklyQueries),
			fmt.Sprintf("%d", o.CuratorCount),
			fmt.Sprintf("%.2f", o.Yield),
		)
		if err != nil {
			return fmt.Errorf("render opportunities: %w", err)
		}
	}
	return ew.finish(table.Render())
}

// renderCatalog prints the run header followed by opps
func renderCatalog(w io.Writer, r model.Report, opps []model.Opportunity) error {
	ew := &errWriter{w: w}
	renderHeader(ew, r)
	return ew.finish(renderOpportunities(ew, opps))
}

func renderPortfolio(w io.Writer, r model.Report) error {
	ew := &errWriter{w: w}
	return ew.finish(portfolio(ew, r))
}

func portfolio(w io.Writer, r model.Report) error {
	renderHeader(w, r)
	fmt.Fprintf(w, "Holder %s\n", r.Holder)

	if len(r.Positions) == 0 {
		fmt.Fprintln(w, "  no positions found in the catalog")
	} else {
		table := tablewriter.NewWriter(w)
		table.Header("Deployment", "Signal", "Owned %", "Earnings $/yr", "Yield %")
		for _, p := range r.Positions {
			err := table.Append(
				p.IPFSHash,
				fmt.Sprintf("%.2f", p.SignalAmount),
				fmt.Sprintf("%.4f", p.PortionOwned*100),
				fmt.Sprintf("%.2f", p.EstimatedEarnings),
				fmt.Sprintf("%.2f", p.Yield),
			)
			if err != nil {
				return fmt.Errorf("render positions: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	s, d := r.Summary, r.Diversification
	fmt.Fprintf(w, "\n  value $%.2f | earnings $%.2f/yr | avg yield %.2f%% | %d positions\n",
		s.TotalValue, s.TotalEarnings, s.AverageYield, s.PositionCount)
	fmt.Fprintf(w, "  risk %s | HHI %.4f | yield stddev %.2f | diversification %.1f | optimization %.1f\n",
		d.RiskLevel, d.Concentration, d.YieldStdDev, d.DiversificationScore, d.OptimizationScore)
	if len(r.MissingDeployments) > 0 {
		fmt.Fprintf(w, "  %d held deployments missing from the catalog\n", len(r.MissingDeployments))
	}

	if len(r.Recommendations) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nRecommendations")
	table := tablewriter.NewWriter(w)
	table.Header("Deployment", "Yield %", "Similarity")
	for _, rec := range r.Recommendations {
		if err := table.Append(rec.IPFSHash, fmt.Sprintf("%.2f", rec.Yield), fmt.Sprintf("%.1f", rec.SimilarityScore)); err != nil {
			return fmt.Errorf("render recommendations: %w", err)
		}
	}
	return table.Render()
}

func renderAllocation(w io.Writer, run analysis.AllocationRun) error {
	ew := &errWriter{w: w}
	return ew.finish(allocation(ew, run))
}

func allocation(w io.Writer, run analysis.AllocationRun) error {
	fmt.Fprintf(w, "\nRun %s  price $%.4f (%s)  capital %.2f\n", run.RunID, run.Price.Price, run.Price.Source, run.Capital)

	hashes := make([]string, 0, len(run.Result.Allocations))
	for h := range run.Result.Allocations {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		ai, aj := run.Result.Allocations[hashes[i]], run.Result.Allocations[hashes[j]]
		if ai != aj {
			return ai > aj
		}
		return hashes[i] < hashes[j]
	})

	table := tablewriter.NewWriter(w)
	table.Header("Deployment", "Tokens")
	for _, h := range hashes {
		if err := table.Append(h, fmt.Sprintf("%.2f", run.Result.Allocations[h])); err != nil {
			return fmt.Errorf("render allocations: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	res := run.Result
	fmt.Fprintf(w, "\n  allocated %.2f | unallocated %.2f | expected yield %.2f%% | earnings $%.2f/yr | entry costs %.2f | %d steps\n",
		res.TotalAllocated, res.UnallocatedTokens, res.ExpectedYield, res.ExpectedEarnings, res.EntryCosts, res.Iterations)
	return nil
}
