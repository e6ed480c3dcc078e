// Package shsynth is a fast spherical-harmonic-synthesis engine for the
// HEALPix pixelization: it evaluates complex coefficients a_{l,m} onto
// a HEALPix map via a butterfly-compressed Legendre stage and a
// ring-assembly + inverse-FFT stage, grounded on
// original_source/src/fastsht.c and original_source/src/wavemoth.c.
package shsynth

import (
	"fmt"

	"github.com/tensorwave/shsynth/plan"
)

// FormatVersion mirrors resource.FormatVersion — re-exported here since
// it is part of this package's path convention, not the resource
// package's wire-format detail.
const FormatVersion = 1

// Context replaces the original C implementation's global mutable
// resource-root string and its Nside-keyed cache of precomputed data
// (spec.md §9's Design Note on "Global mutable state"): it is an
// explicit value a caller creates once and passes to PlanToHealpix,
// rather than package-level state configured by a one-time
// configure() call.
type Context struct {
	resourceRoot string
}

// NewContext builds a library context rooted at resourceRoot, the
// directory under which resource files live at
// <resourceRoot>/rev<FormatVersion>/<Nside>.dat (spec.md §6's path
// convention).
func NewContext(resourceRoot string) *Context {
	return &Context{resourceRoot: resourceRoot}
}

// ResourcePath implements plan.ResourceRooter.
func (c *Context) ResourcePath(nside int) string {
	return fmt.Sprintf("%s/rev%d/%d.dat", c.resourceRoot, FormatVersion, nside)
}

// PlanToHealpix builds an immutable execution plan for cfg against ctx,
// implementing spec.md §4.4's plan_to_healpix.
func PlanToHealpix(ctx *Context, cfg plan.Config) (*plan.Plan, error) {
	return plan.New(ctx, cfg)
}
