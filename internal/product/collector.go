// Package product retrieves machine selection-to-product maps and surfaces
// the selections the portal catalogue cannot resolve. Fixing those mappings
// happens on the vendor portal; this package only finds them.
package product

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vendsight/vendsight/internal/hierarchy"
	"github.com/vendsight/vendsight/internal/pipeline"
	"github.com/vendsight/vendsight/internal/provider"
)

// Config tunes the retrieval fan-out.
type Config struct {
	Workers     int
	JoinTimeout time.Duration
}

// Collector fans product-map fetches out over the worker pool, one fetch
// per machine.
type Collector struct {
	fetcher provider.ProductFetcher
	cfg     Config
	logger  *slog.Logger
}

// NewCollector wires a collector to a product fetcher.
func NewCollector(fetcher provider.ProductFetcher, cfg Config, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{fetcher: fetcher, cfg: cfg, logger: logger}
}

// MachineProducts pairs a machine with its retrieved selection map.
type MachineProducts struct {
	MachineID string                   `json:"machine_id"`
	Name      string                   `json:"name"`
	Products  []provider.ProductRecord `json:"products"`
}

// Stats summarises one CollectAll pass.
type Stats struct {
	Machines int `json:"machines"`
	Fetched  int `json:"fetched"`
	Unmapped int `json:"unmapped"`
	// Failed lists machine ids whose fetch exhausted its retries. These
	// are partial failures: the rest of the batch still returns.
	Failed []string `json:"failed,omitempty"`
}

type mapResult struct {
	machineID string
	name      string
	products  []provider.ProductRecord
}

// CollectAll fetches the product map of every machine in the tree. A failed
// machine is recorded in the stats and skipped; results come back sorted by
// machine id.
func (c *Collector) CollectAll(ctx context.Context, tree *hierarchy.Tree) ([]MachineProducts, Stats, error) {
	machines := tree.AllMachines()
	stats := Stats{Machines: len(machines)}

	results := pipeline.Run(ctx, machines, func(ctx context.Context, m *hierarchy.Machine) (mapResult, error) {
		products, err := c.fetcher.FetchProductMap(ctx, m.ID)
		if err != nil {
			return mapResult{machineID: m.ID}, fmt.Errorf("product: machine %s: %w", m.ID, err)
		}
		return mapResult{machineID: m.ID, name: m.Name, products: products}, nil
	}, pipeline.Options{Workers: c.cfg.Workers, JoinTimeout: c.cfg.JoinTimeout, Logger: c.logger})

	out := make([]MachineProducts, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			c.logger.Warn("product map fetch failed",
				slog.String("machine_id", res.Value.machineID),
				slog.Any("error", res.Err),
			)
			stats.Failed = append(stats.Failed, res.Value.machineID)
			continue
		}
		stats.Fetched++
		for _, p := range res.Value.products {
			if !p.Mapped {
				stats.Unmapped++
			}
		}
		out = append(out, MachineProducts{
			MachineID: res.Value.machineID,
			Name:      res.Value.name,
			Products:  res.Value.products,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MachineID < out[j].MachineID })
	sort.Strings(stats.Failed)
	return out, stats, nil
}

// Unmapped reduces a collection to machines carrying at least one selection
// the catalogue could not resolve, keeping only those selections.
func Unmapped(all []MachineProducts) []MachineProducts {
	var out []MachineProducts
	for _, mp := range all {
		var unresolved []provider.ProductRecord
		for _, p := range mp.Products {
			if !p.Mapped {
				unresolved = append(unresolved, p)
			}
		}
		if len(unresolved) > 0 {
			out = append(out, MachineProducts{MachineID: mp.MachineID, Name: mp.Name, Products: unresolved})
		}
	}
	return out
}
