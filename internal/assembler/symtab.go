package assembler

import "github.com/mrc-go/mrc/internal/errs"

// SymbolTable binds label and `equ` constant names to resolved 32-bit
// values. Labels are bound to the section origin plus their byte offset
// during pass 1; `equ` constants are bound to their evaluated expression value as
// soon as they are encountered, per spec.md §4.4's "built-once-then-
// resolved" lifecycle.
type SymbolTable struct {
	values map[string]int32
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{values: make(map[string]int32)}
}

// Bind records name -> value, failing with DuplicateLabel if name is
// already bound: every label and equ constant shares one namespace.
func (s *SymbolTable) Bind(name string, value int32) error {
	if _, exists := s.values[name]; exists {
		return errs.Newf(errs.DuplicateLabel, "%q", name)
	}
	s.values[name] = value
	return nil
}

func (s *SymbolTable) Lookup(name string) (int32, bool) {
	v, ok := s.values[name]
	return v, ok
}

// All returns a copy of every bound name/value pair, for CLI symbol dumps.
func (s *SymbolTable) All() map[string]int32 {
	out := make(map[string]int32, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
