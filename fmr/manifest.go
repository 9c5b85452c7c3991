package fmr

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
)

// Manifest is the human-written TOML form of a descriptor:
//
//	[[module]]
//	name = "led"
//
//	[[module.function]]
//	name = "rgb"
//	index = 0            # optional, defaults to the function's position
//	args = ["u8", "u8", "u8"]
//	return = "void"      # optional, defaults to void
type Manifest struct {
	Modules []ManifestModule `toml:"module"`
}

type ManifestModule struct {
	Name      string             `toml:"name"`
	Functions []ManifestFunction `toml:"function"`
}

type ManifestFunction struct {
	Name   string   `toml:"name"`
	Index  *int     `toml:"index"`
	Args   []string `toml:"args"`
	Return string   `toml:"return"`
}

// LoadManifest reads a TOML manifest and resolves it into modules. The result
// is validated by a round trip through Encode, so it is always encodable.
func LoadManifest(r io.Reader) ([]Module, error) {
	var mf Manifest
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&mf); err != nil {
		return nil, fmt.Errorf("fmr: decode manifest: %w", err)
	}

	modules := make([]Module, 0, len(mf.Modules))
	for _, mm := range mf.Modules {
		m := Module{Name: mm.Name}
		for pos, mfn := range mm.Functions {
			f, err := mfn.resolve(pos)
			if err != nil {
				return nil, fmt.Errorf("fmr: module %s: %w", mm.Name, err)
			}
			m.Functions = append(m.Functions, f)
		}
		modules = append(modules, m)
	}

	if _, err := Encode(modules); err != nil {
		return nil, err
	}
	return modules, nil
}

func (mf ManifestFunction) resolve(pos int) (Function, error) {
	index := pos
	if mf.Index != nil {
		index = *mf.Index
	}
	if index < 0 || index > 0xFF {
		return Function{}, fmt.Errorf("function %s: index %d out of range", mf.Name, index)
	}

	f := Function{Name: mf.Name, Index: uint8(index)}
	for _, a := range mf.Args {
		t, err := ParseType(a)
		if err != nil {
			return Function{}, fmt.Errorf("function %s: %w", mf.Name, err)
		}
		f.Args = append(f.Args, t)
	}
	if mf.Return != "" {
		t, err := ParseType(mf.Return)
		if err != nil {
			return Function{}, fmt.Errorf("function %s: %w", mf.Name, err)
		}
		f.Return = t
	}
	return f, nil
}
