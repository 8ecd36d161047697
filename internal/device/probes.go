package device

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sort"
	"strconv"
	"strings"

	yaml "github.com/goccy/go-yaml"
)

// Probe coordinates are authored against this resolution and scaled to the
// screenshot at match time.
const (
	BaseWidth  = 1280
	BaseHeight = 720
)

// Point is a position in base coordinates.
type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type probePoint struct {
	X     int    `yaml:"x"`
	Y     int    `yaml:"y"`
	Color string `yaml:"color"`
}

// Probe matches a screen when every point is within Tolerance of its color.
type Probe struct {
	Points    []probePoint `yaml:"points"`
	Tolerance int          `yaml:"tolerance"`
	// Tap is where a click on the matched element lands; defaults to the
	// first point.
	Tap *Point `yaml:"tap"`

	rgb [][3]uint8
}

type probeFile struct {
	Probes map[string]*Probe `yaml:"probes"`
}

// Recognizer holds the named probes of one asset file.
type Recognizer struct {
	probes map[string]*Probe
}

// LoadProbes reads a probe asset file.
func LoadProbes(path string) (*Recognizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("probes: %w", err)
	}
	r, err := ParseProbes(data)
	if err != nil {
		return nil, fmt.Errorf("probes %s: %w", path, err)
	}
	return r, nil
}

// ParseProbes decodes probe YAML.
//
//	probes:
//	  hud.crystal:
//	    tolerance: 24
//	    points:
//	      - {x: 1100, y: 30, color: "#5ac8fa"}
func ParseProbes(data []byte) (*Recognizer, error) {
	var f probeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for name, p := range f.Probes {
		if p == nil || len(p.Points) == 0 {
			return nil, fmt.Errorf("probe %q has no points", name)
		}
		if p.Tolerance <= 0 {
			p.Tolerance = 16
		}
		p.rgb = make([][3]uint8, len(p.Points))
		for i, pt := range p.Points {
			c, err := parseHexColor(pt.Color)
			if err != nil {
				return nil, fmt.Errorf("probe %q point %d: %w", name, i, err)
			}
			if pt.X < 0 || pt.X >= BaseWidth || pt.Y < 0 || pt.Y >= BaseHeight {
				return nil, fmt.Errorf("probe %q point %d: (%d,%d) outside %dx%d", name, i, pt.X, pt.Y, BaseWidth, BaseHeight)
			}
			p.rgb[i] = c
		}
	}
	if f.Probes == nil {
		f.Probes = map[string]*Probe{}
	}
	return &Recognizer{probes: f.Probes}, nil
}

func parseHexColor(s string) ([3]uint8, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return [3]uint8{}, fmt.Errorf("color %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return [3]uint8{}, fmt.Errorf("color %q: %w", s, err)
	}
	return [3]uint8{uint8(v >> 16), uint8(v >> 8), uint8(v)}, nil
}

// Names lists the known probes, sorted.
func (r *Recognizer) Names() []string {
	out := make([]string, 0, len(r.probes))
	for k := range r.probes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Find reports whether probe name matches img, and where to tap it.
// Unknown probes never match.
func (r *Recognizer) Find(img image.Image, name string) (Point, bool) {
	if r == nil || img == nil {
		return Point{}, false
	}
	p, ok := r.probes[name]
	if !ok {
		return Point{}, false
	}
	b := img.Bounds()
	for i, pt := range p.Points {
		x := b.Min.X + pt.X*b.Dx()/BaseWidth
		y := b.Min.Y + pt.Y*b.Dy()/BaseHeight
		cr, cg, cb, _ := img.At(x, y).RGBA()
		want := p.rgb[i]
		if absDiff(uint8(cr>>8), want[0]) > p.Tolerance ||
			absDiff(uint8(cg>>8), want[1]) > p.Tolerance ||
			absDiff(uint8(cb>>8), want[2]) > p.Tolerance {
			return Point{}, false
		}
	}
	if p.Tap != nil {
		return *p.Tap, true
	}
	return Point{X: p.Points[0].X, Y: p.Points[0].Y}, true
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// Paint draws the probe's points onto img so it matches. Tests and asset
// checks use it to synthesize screens.
func (r *Recognizer) Paint(img draw.Image, name string) bool {
	p, ok := r.probes[name]
	if !ok {
		return false
	}
	b := img.Bounds()
	for i, pt := range p.Points {
		c := p.rgb[i]
		img.Set(b.Min.X+pt.X*b.Dx()/BaseWidth, b.Min.Y+pt.Y*b.Dy()/BaseHeight, color.RGBA{R: c[0], G: c[1], B: c[2], A: 0xff})
	}
	return true
}
