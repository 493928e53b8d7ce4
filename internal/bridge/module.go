package bridge

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Module is a parsed capability module script
type Module struct {
	Name    string           `yaml:"module"`
	Entries map[string]Entry `yaml:"entries"`
}

// Entry is a callable entry point of a module
type Entry struct {
	Params  []string `yaml:"params"`
	Returns []string `yaml:"returns"`
	Steps   []Step   `yaml:"steps"`
	Result  []string `yaml:"result"`
}

// KernelSpec describes a structuring element in a step
type KernelSpec struct {
	Shape  string `yaml:"shape"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Step is one operation. Src, With, Boxes, Model, Dir and Ext name
// registers; As names the register that receives the result.
type Step struct {
	Op  string `yaml:"op"`
	Src string `yaml:"src"`
	As  string `yaml:"as"`

	With       string      `yaml:"with"`
	Width      int         `yaml:"width"`
	Height     int         `yaml:"height"`
	KSize      int         `yaml:"ksize"`
	Level      float64     `yaml:"level"`
	Kernel     *KernelSpec `yaml:"kernel"`
	Iterations int         `yaml:"iterations"`

	Model     string  `yaml:"model"`
	Scale     float64 `yaml:"scale"`
	Neighbors int     `yaml:"neighbors"`

	Boxes     string `yaml:"boxes"`
	Color     string `yaml:"color"`
	Thickness int    `yaml:"thickness"`

	Dir   string `yaml:"dir"`
	Ext   string `yaml:"ext"`
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// ops lists known operations and whether they produce a register
var ops = map[string]bool{
	"read":       true,
	"resize":     true,
	"swap_rb":    true,
	"gray":       true,
	"blur":       true,
	"threshold":  true,
	"absdiff":    true,
	"erode":      true,
	"dilate":     true,
	"open":       true,
	"close":      true,
	"equalize":   true,
	"components": true,
	"cascade":    true,
	"draw":       false,
	"count":      true,
	"write":      true,
	"saved":      true,
	"const":      true,
}

var resultTypes = map[string]bool{"int": true, "string": true, "bool": true}

// ParseModule parses and validates a module source
func ParseModule(src []byte) (*Module, error) {
	var m Module
	if err := yaml.Unmarshal(src, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModuleInvalid, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: missing module name", ErrModuleInvalid)
	}
	if len(m.Entries) == 0 {
		return nil, fmt.Errorf("%w: module %s has no entries", ErrModuleInvalid, m.Name)
	}
	for name, e := range m.Entries {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrModuleInvalid, m.Name, name, err)
		}
	}
	return &m, nil
}

func (e Entry) validate() error {
	seen := map[string]bool{}
	for _, p := range e.Params {
		if p == "" || seen[p] {
			return fmt.Errorf("invalid or duplicate parameter %q", p)
		}
		seen[p] = true
	}
	if len(e.Returns) != len(e.Result) {
		return fmt.Errorf("declares %d return values but yields %d", len(e.Returns), len(e.Result))
	}
	for _, r := range e.Returns {
		if !resultTypes[r] {
			return fmt.Errorf("unsupported return type %q", r)
		}
	}
	for i, s := range e.Steps {
		produces, ok := ops[s.Op]
		if !ok {
			return fmt.Errorf("step %d: unknown op %q", i, s.Op)
		}
		if produces && s.As == "" {
			return fmt.Errorf("step %d: %s needs a target register", i, s.Op)
		}
		if s.Op != "const" && s.Src == "" {
			return fmt.Errorf("step %d: %s needs a source register", i, s.Op)
		}
	}
	return nil
}
