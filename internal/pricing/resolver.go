// Package pricing resolves reference prices for requested parts. A reference
// price becomes the budget ceiling the negotiation machine works toward; a
// part without one is accepted at whatever the supplier quotes.
package pricing

import (
	"context"
	"strings"

	"partsiq_backend/internal/callstate"
	"partsiq_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// miscCostsPartNumber is the placeholder line item some quote requests carry
// for shop fees and shipping. It is never priced or negotiated.
const miscCostsPartNumber = "MISC-COSTS"

// Source describes which waterfall level produced a reference price.
type Source string

const (
	SourceSupplier Source = "supplier_price"
	SourceHistory  Source = "org_average"
	SourceCatalog  Source = "catalog_price"
	SourceNone     Source = "none"
)

// Reference is the resolved budget for one part.
type Reference struct {
	PartNumber string
	PriceCents int64
	Source     Source
}

// PriceSource provides the three lookups behind the waterfall.
type PriceSource interface {
	// SupplierPriceCents returns the price on record for this exact
	// supplier and part, or found=false.
	SupplierPriceCents(ctx context.Context, supplierID uuid.UUID, partNumber string) (cents int64, found bool, err error)
	// OrgAveragePriceCents returns the organization's average historical
	// quoted price for the part across all suppliers over the trailing
	// window, or found=false.
	OrgAveragePriceCents(ctx context.Context, orgID uuid.UUID, partNumber string) (cents int64, found bool, err error)
	// CatalogPriceCents returns the organization's generic catalog price,
	// or found=false.
	CatalogPriceCents(ctx context.Context, orgID uuid.UUID, partNumber string) (cents int64, found bool, err error)
}

// Resolver walks the waterfall per part: supplier price, then the org's
// 180-day average, then the catalog price, then no reference.
type Resolver struct {
	source PriceSource
	log    *logger.Logger
}

// NewResolver creates a resolver over the given price source.
func NewResolver(source PriceSource, log *logger.Logger) *Resolver {
	return &Resolver{source: source, log: log}
}

// Resolve returns a reference per part number where one exists. It never
// fails: any store error degrades that part to no reference, because pricing
// is a negotiation aid and must not block placing the call.
func (r *Resolver) Resolve(ctx context.Context, orgID, supplierID uuid.UUID, parts []callstate.Part) map[string]Reference {
	refs := make([]Reference, len(parts))

	var g errgroup.Group
	g.SetLimit(4)

	for i, part := range parts {
		if IsMiscCosts(part.PartNumber) {
			refs[i] = Reference{PartNumber: part.PartNumber, Source: SourceNone}
			continue
		}
		g.Go(func() error {
			refs[i] = r.resolveOne(ctx, orgID, supplierID, part.PartNumber)
			return nil
		})
	}
	g.Wait()

	out := make(map[string]Reference, len(parts))
	for _, ref := range refs {
		if ref.Source != SourceNone && ref.PartNumber != "" {
			out[ref.PartNumber] = ref
		}
	}
	return out
}

func (r *Resolver) resolveOne(ctx context.Context, orgID, supplierID uuid.UUID, partNumber string) Reference {
	levels := []struct {
		source Source
		lookup func() (int64, bool, error)
	}{
		{SourceSupplier, func() (int64, bool, error) {
			return r.source.SupplierPriceCents(ctx, supplierID, partNumber)
		}},
		{SourceHistory, func() (int64, bool, error) {
			return r.source.OrgAveragePriceCents(ctx, orgID, partNumber)
		}},
		{SourceCatalog, func() (int64, bool, error) {
			return r.source.CatalogPriceCents(ctx, orgID, partNumber)
		}},
	}

	for _, level := range levels {
		cents, found, err := level.lookup()
		if err != nil {
			r.log.Warn("reference price lookup failed, degrading to no reference",
				"part_number", partNumber, "level", string(level.source), "error", err)
			return Reference{PartNumber: partNumber, Source: SourceNone}
		}
		if found && cents > 0 {
			return Reference{PartNumber: partNumber, PriceCents: cents, Source: level.source}
		}
	}

	return Reference{PartNumber: partNumber, Source: SourceNone}
}

// IsMiscCosts reports whether a part number is the miscellaneous-costs
// placeholder line.
func IsMiscCosts(partNumber string) bool {
	return strings.EqualFold(partNumber, miscCostsPartNumber)
}
