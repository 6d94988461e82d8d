package templates

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelstreams.ai/internal/sim/stream/flow"
)

//go:embed catalog.json
var defaultCatalog []byte

//go:embed catalog.schema.json
var catalogSchema []byte

// Library is the expanded catalog. Variants are indexed by category and by
// downstream direction, the side that attaches toward the network root.
type Library struct {
	all    []*Template
	byDir  [3][4][]*Template
	Digest string
}

type catalogFile struct {
	Size      int           `json:"size"`
	Templates []templateDef `json:"templates"`
}

type templateDef struct {
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	Upstream   *anchorDef `json:"upstream,omitempty"`
	Downstream anchorDef  `json:"downstream"`
	Grid       []string   `json:"grid"`
}

type anchorDef struct {
	Direction string  `json:"direction"`
	X         float64 `json:"x"`
	Z         float64 `json:"z"`
}

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("catalog.schema.json", bytes.NewReader(catalogSchema)); err != nil {
		return nil, err
	}
	return c.Compile("catalog.schema.json")
})

var defaultLibrary = sync.OnceValue(func() *Library {
	lib, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("templates: embedded catalog: %v", err))
	}
	return lib
})

// Default returns the library built from the embedded catalog.
func Default() *Library { return defaultLibrary() }

func LoadFile(path string) (*Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lib, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib, nil
}

// Parse validates a JSON catalog against the catalog schema and expands it.
func Parse(raw []byte) (*Library, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	var cf catalogFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if cf.Size != Size {
		return nil, fmt.Errorf("catalog: size %d, want %d", cf.Size, Size)
	}

	canon := make([]Template, 0, len(cf.Templates))
	seen := map[string]bool{}
	for _, d := range cf.Templates {
		if seen[d.Name] {
			return nil, fmt.Errorf("catalog: duplicate template %q", d.Name)
		}
		seen[d.Name] = true
		t, err := buildCanonical(d)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", d.Name, err)
		}
		canon = append(canon, t)
	}

	sum := sha256.Sum256(raw)
	lib := &Library{Digest: hex.EncodeToString(sum[:])}
	for _, t := range canon {
		lib.expand(t)
	}
	return lib, nil
}

func buildCanonical(d templateDef) (Template, error) {
	var t Template
	cat, err := ParseCategory(d.Category)
	if err != nil {
		return t, err
	}
	t.Name = d.Name
	t.Category = cat

	down, err := parseAnchor(d.Downstream)
	if err != nil {
		return t, fmt.Errorf("downstream: %w", err)
	}
	t.Downstream = down
	if d.Upstream != nil {
		up, err := parseAnchor(*d.Upstream)
		if err != nil {
			return t, fmt.Errorf("upstream: %w", err)
		}
		t.Upstream = up
		t.HasUpstream = true
	}
	if cat != Source && !t.HasUpstream {
		return t, fmt.Errorf("%s template needs an upstream anchor", cat)
	}

	if len(d.Grid) != Size {
		return t, fmt.Errorf("grid has %d rows, want %d", len(d.Grid), Size)
	}
	for z, row := range d.Grid {
		cells := strings.Fields(row)
		if len(cells) != Size {
			return t, fmt.Errorf("grid row %d has %d cells, want %d", z, len(cells), Size)
		}
		for x, tok := range cells {
			f, err := flow.ParseFlow(tok)
			if err != nil {
				return t, fmt.Errorf("grid row %d: %w", z, err)
			}
			t.flows[x+Size*z] = f
		}
	}
	return t, nil
}

func parseAnchor(a anchorDef) (Anchor, error) {
	dir, err := flow.ParseDirection(a.Direction)
	if err != nil {
		return Anchor{}, err
	}
	if a.X > Size || a.Z > Size {
		return Anchor{}, fmt.Errorf("anchor (%v,%v) outside the %dx%d grid", a.X, a.Z, Size, Size)
	}
	return Anchor{Dir: dir, X: a.X, Z: a.Z}, nil
}

// expand emits the four rotations of t, each followed by its mirror image.
// Geometrically identical variants are kept; they only pad candidate lists.
func (l *Library) expand(t Template) {
	base := t.Name
	for i := 0; i < 4; i++ {
		l.add(t, base)
		l.add(Mirror(t), base)
		t = RotateCW(t)
	}
}

func (l *Library) add(t Template, base string) {
	t.ID = len(l.all)
	t.Name = variantName(base, t.Rotation, t.Mirrored)
	p := &t
	l.all = append(l.all, p)
	l.byDir[p.Category][p.Downstream.Dir] = append(l.byDir[p.Category][p.Downstream.Dir], p)
}

// Candidates lists the variants of a category whose downstream anchor faces
// dir. The slice is shared; callers must not modify it.
func (l *Library) Candidates(cat Category, dir flow.Direction) []*Template {
	return l.byDir[cat][dir]
}

// Get resolves a persisted template id.
func (l *Library) Get(id int) (*Template, bool) {
	if id < 0 || id >= len(l.all) {
		return nil, false
	}
	return l.all[id], true
}

func (l *Library) Len() int { return len(l.all) }

// Lookup finds a variant by its name, e.g. "curve_1/r2m".
func (l *Library) Lookup(name string) (*Template, bool) {
	for _, t := range l.all {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
