package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Manifest is the subset of a package's gren.json the registry keeps.
type Manifest struct {
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	Summary        string         `json:"summary"`
	License        string         `json:"license"`
	Version        string         `json:"version"`
	ExposedModules ExposedModules `json:"exposed-modules"`
	GrenVersion    string         `json:"gren-version"`
}

// ExposedModule is one entry of a manifest's exposed-modules declaration.
type ExposedModule struct {
	Name     string
	Order    int
	Category string // empty when the declaration is a flat list
}

// ExposedModules preserves the declaration order of exposed-modules, which is
// either a flat list or an object mapping category to module list.
type ExposedModules []ExposedModule

func (e *ExposedModules) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = nil
		return nil
	}

	if b[0] == '[' {
		var names []string
		if err := json.Unmarshal(b, &names); err != nil {
			return fmt.Errorf("exposed-modules list: %w", err)
		}
		out := make(ExposedModules, 0, len(names))
		for i, n := range names {
			out = append(out, ExposedModule{Name: n, Order: i})
		}
		*e = out
		return nil
	}

	// Go maps lose key order, so walk the object token by token.
	dec := json.NewDecoder(bytes.NewReader(b))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return fmt.Errorf("exposed-modules must be a list or an object")
	}
	var out ExposedModules
	order := 0
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("exposed-modules category: %w", err)
		}
		category, ok := tok.(string)
		if !ok {
			return fmt.Errorf("exposed-modules category is %T, want string", tok)
		}
		var names []string
		if err := dec.Decode(&names); err != nil {
			return fmt.Errorf("exposed-modules category %q: %w", category, err)
		}
		for _, n := range names {
			out = append(out, ExposedModule{Name: n, Order: order, Category: category})
			order++
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("exposed-modules: %w", err)
	}
	*e = out
	return nil
}

// Lookup returns the declaration for a module name.
func (e ExposedModules) Lookup(name string) (ExposedModule, bool) {
	for _, m := range e {
		if m.Name == name {
			return m, true
		}
	}
	return ExposedModule{}, false
}

// ModuleDocs is the documentation of one module as emitted in docs.json.
type ModuleDocs struct {
	Name    string  `json:"name"`
	Comment string  `json:"comment"`
	Unions  []Union `json:"unions"`
	Aliases []Alias `json:"aliases"`
	Values  []Value `json:"values"`
	Binops  []Binop `json:"binops"`
}

// Union is a custom type. Cases is kept verbatim: a list of
// [constructor, [argument types]] pairs.
type Union struct {
	Name    string          `json:"name"`
	Comment string          `json:"comment"`
	Args    []string        `json:"args"`
	Cases   json.RawMessage `json:"cases"`
}

type Alias struct {
	Name    string   `json:"name"`
	Comment string   `json:"comment"`
	Args    []string `json:"args"`
	Type    string   `json:"type"`
}

type Value struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
	Type    string `json:"type"`
}

// Binop is an infix operator.
type Binop struct {
	Name          string `json:"name"`
	Comment       string `json:"comment"`
	Type          string `json:"type"`
	Associativity string `json:"associativity"`
	Precedence    int    `json:"precedence"`
}

// BuildArtifact is everything a documentation build produces for one
// package version. It lives only for the duration of the BUILD_DOCS step.
type BuildArtifact struct {
	Manifest Manifest
	Readme   string
	Modules  []ModuleDocs

	RawManifest []byte
	RawDocs     []byte
}

// PlacedModule pairs a module's docs with its position in the package's
// module listing.
type PlacedModule struct {
	ModuleDocs
	Order    int
	Category string
}

// PlacedModules orders the artifact's modules by their exposed-modules
// declaration. Modules missing from the declaration are appended in docs
// order without a category.
func (a *BuildArtifact) PlacedModules() []PlacedModule {
	out := make([]PlacedModule, 0, len(a.Modules))
	next := len(a.Manifest.ExposedModules)
	for _, m := range a.Modules {
		pm := PlacedModule{ModuleDocs: m}
		if decl, ok := a.Manifest.ExposedModules.Lookup(m.Name); ok {
			pm.Order = decl.Order
			pm.Category = decl.Category
		} else {
			pm.Order = next
			next++
		}
		out = append(out, pm)
	}
	return out
}

// SearchEntry is the latest indexed version of a package.
type SearchEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Summary string `json:"summary"`
}
