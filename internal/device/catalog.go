package device

import (
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogRawData []byte

// ModelClass is the capability class of a switcher model.
type ModelClass int

const (
	// ClassFull models accept any input the device reports.
	ClassFull ModelClass = iota
	// ClassCompact models expose four assertable inputs.
	ClassCompact
)

// compactInputs is the assertable input count of ClassCompact models.
const compactInputs = 4

func (c ModelClass) String() string {
	switch c {
	case ClassCompact:
		return "compact"
	default:
		return "full"
	}
}

// MaxInputs returns the number of assertable inputs, or 0 when unbounded.
func (c ModelClass) MaxInputs() int {
	if c == ClassCompact {
		return compactInputs
	}
	return 0
}

// Suppresses reports whether input falls in the physical input range a
// compact model does not have. Such inputs are neither broadcast nor
// accepted as switch targets.
func (c ModelClass) Suppresses(input int) bool {
	return c == ClassCompact && input > compactInputs && input <= 2*compactInputs
}

func parseModelClass(s string) (ModelClass, error) {
	switch s {
	case "full", "":
		return ClassFull, nil
	case "compact":
		return ClassCompact, nil
	default:
		return ClassFull, fmt.Errorf("unknown model class %q", s)
	}
}

// ModelInfo describes a switcher model.
type ModelInfo struct {
	ID    int
	Name  string
	Class ModelClass
}

// ErrUnknownInput is returned by ResolveInput for names that are neither a
// number nor a known alias.
var ErrUnknownInput = errors.New("unknown input")

// catalogFile is the top-level structure of the embedded YAML.
type catalogFile struct {
	Models []struct {
		ID    int    `yaml:"id"`
		Name  string `yaml:"name"`
		Class string `yaml:"class"`
	} `yaml:"models"`
	Inputs []struct {
		ID      int      `yaml:"id"`
		Label   string   `yaml:"label"`
		Aliases []string `yaml:"aliases"`
	} `yaml:"inputs"`
}

// Catalog maps model ids to names and classes and input ids to labels.
type Catalog struct {
	models  map[int]ModelInfo
	labels  map[int]string
	aliases map[string]int
}

// ParseCatalog builds a Catalog from YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}

	c := &Catalog{
		models:  make(map[int]ModelInfo, len(f.Models)),
		labels:  make(map[int]string, len(f.Inputs)),
		aliases: make(map[string]int),
	}
	for _, m := range f.Models {
		class, err := parseModelClass(m.Class)
		if err != nil {
			return nil, fmt.Errorf("catalog: model %d: %w", m.ID, err)
		}
		c.models[m.ID] = ModelInfo{ID: m.ID, Name: m.Name, Class: class}
	}
	for _, in := range f.Inputs {
		c.labels[in.ID] = in.Label
		c.aliases[strings.ToLower(in.Label)] = in.ID
		for _, a := range in.Aliases {
			c.aliases[strings.ToLower(a)] = in.ID
		}
	}
	return c, nil
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := ParseCatalog(catalogRawData)
	if err != nil {
		panic("device: embedded " + err.Error())
	}
	return c
})

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() *Catalog {
	return defaultCatalog()
}

// Model returns the model for id. Unknown ids resolve to "Unknown (<id>)"
// in ClassFull.
func (c *Catalog) Model(id int) ModelInfo {
	if m, ok := c.models[id]; ok {
		return m
	}
	return ModelInfo{ID: id, Name: fmt.Sprintf("Unknown (%d)", id), Class: ClassFull}
}

// Label returns the human readable label for an input id, falling back to
// its decimal form.
func (c *Catalog) Label(input int) string {
	if l, ok := c.labels[input]; ok {
		return l
	}
	return strconv.Itoa(input)
}

// ResolveInput parses an input given either as a number or as a
// case-insensitive alias such as "mp1" or "supersource".
func (c *Catalog) ResolveInput(s string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if id, ok := c.aliases[key]; ok {
		return id, nil
	}
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownInput, s)
	}
	return n, nil
}
