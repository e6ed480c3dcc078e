package shsynth

import "github.com/tensorwave/shsynth/resource"

// Coefficients is the packed real-array coefficient view from spec.md
// §3's "Coefficient layout (input)": complex a_{l,m} for m = 0..mmax,
// l = m..lmax, packed m-major with NMaps interleaved maps. The block
// for a given m starts at NMaps*m*(2*LMax-m+3) within Data; each (l, m)
// entry occupies 2*NMaps doubles (real, imag for each map).
type Coefficients struct {
	LMax, MMax, NMaps int
	Data              []float64
}

// NewCoefficients allocates a zeroed coefficient array sized for
// (lmax, mmax, nmaps).
func NewCoefficients(lmax, mmax, nmaps int) *Coefficients {
	return &Coefficients{
		LMax: lmax, MMax: mmax, NMaps: nmaps,
		Data: make([]float64, coefficientBlockOffset(lmax, nmaps, mmax+1)),
	}
}

func coefficientBlockOffset(lmax, nmaps, m int) int {
	return nmaps * m * (2*lmax - m + 3)
}

// Set writes a_{l,m} for the given map index.
func (c *Coefficients) Set(l, m, mapIdx int, re, im float64) {
	i := coefficientBlockOffset(c.LMax, c.NMaps, m) + (l-m)*2*c.NMaps + 2*mapIdx
	c.Data[i] = re
	c.Data[i+1] = im
}

// Get reads a_{l,m} for the given map index.
func (c *Coefficients) Get(l, m, mapIdx int) (re, im float64) {
	i := coefficientBlockOffset(c.LMax, c.NMaps, m) + (l-m)*2*c.NMaps + 2*mapIdx
	return c.Data[i], c.Data[i+1]
}

// Map is the packed pixel output from spec.md §3's "Pixel layout
// (output)": NMaps maps laid out consecutively, each holding
// 12*NSide^2 doubles concatenated ring-by-ring (north pole to south
// pole).
type Map struct {
	NSide, NMaps int
	Data         []float64
}

// NewMap allocates a zeroed pixel array sized for (nside, nmaps).
func NewMap(nside, nmaps int) *Map {
	npix := 12 * nside * nside
	return &Map{NSide: nside, NMaps: nmaps, Data: make([]float64, nmaps*npix)}
}

// Pixel reads one map's value at a given HEALPix pixel index.
func (m *Map) Pixel(mapIdx, ipix int) float64 {
	npix := 12 * m.NSide * m.NSide
	return m.Data[mapIdx*npix+ipix]
}

// QueryResourceFile implements spec.md §6's query_resourcefile: it
// opens the resource file at path just long enough to read its header,
// without keeping a live mapping.
func QueryResourceFile(path string) (nside, lmax int, err error) {
	f, err := resource.Load(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	return f.NSide, f.LMax, nil
}
