package codegen

import "github.com/bmb-lang/mirback/pkg/mir"

// classification is the result of classifying one function's names into
// SSA values vs. memory variables (§4.5), computed once in setup before
// any IR is built.
type classification struct {
	writtenPlaces map[string]int  // name -> number of instruction-destination writes
	phiDests      map[string]bool // names produced by Phi
	ssaLocals     map[string]bool // non-PHI, non-temporary locals eligible for SSA
	writtenParams map[string]bool // parameters written at least once
	arrayVars     map[string]bool // names whose slot is the array itself
	enumVars      map[string]bool // names known to hold an Enum value
}

// classify computes the sets described in §4.4 Setup step 2 and §4.5: a
// local must be memory-backed when it is a written parameter, a name
// written more than once, or a destination with no natural SSA shape
// (arrays). A local may be SSA when
// written exactly once, is not a PHI destination, and is not a temporary
// (temporaries are always SSA by convention).
func classify(fn *mir.Function) *classification {
	c := &classification{
		writtenPlaces: make(map[string]int),
		phiDests:      make(map[string]bool),
		ssaLocals:     make(map[string]bool),
		writtenParams: make(map[string]bool),
		arrayVars:     make(map[string]bool),
		enumVars:      make(map[string]bool),
	}

	paramSet := make(map[string]bool, len(fn.Params))
	for _, p := range fn.Params {
		paramSet[p.Name] = true
	}

	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Dest == "" {
				continue
			}
			c.writtenPlaces[inst.Dest]++
			if inst.Op == mir.OpPhi {
				c.phiDests[inst.Dest] = true
			}
			if paramSet[inst.Dest] {
				c.writtenParams[inst.Dest] = true
			}
			if inst.Op == mir.OpArrayInit || inst.Op == mir.OpArrayAlloc {
				c.arrayVars[inst.Dest] = true
			}
			if isEnumProducing(inst.Op) {
				c.enumVars[inst.Dest] = true
			}
		}
	}

	for _, local := range fn.Locals {
		name := local.Name
		if (mir.Place{Name: name}).IsTemp() {
			continue // temporaries are always SSA
		}
		if c.phiDests[name] {
			continue // PHI destinations are always SSA, handled separately
		}
		writes := c.writtenPlaces[name]
		if writes <= 1 {
			c.ssaLocals[name] = true
		}
	}

	return c
}

// mustBeMemory reports whether name needs a stack slot: a parameter that is
// later written, a name written more than once, or a name with no natural
// SSA representation (array variables, which are always memory-backed by
// definition -- the alloca pointer *is* the array base).
func (c *classification) mustBeMemory(name string) bool {
	if c.writtenParams[name] {
		return true
	}
	if c.arrayVars[name] {
		return true
	}
	if c.phiDests[name] {
		return false // PHI destinations are SSA, never memory
	}
	return c.writtenPlaces[name] > 1
}

// isSSAEligible reports whether name may be kept as a virtual register.
func (c *classification) isSSAEligible(name string) bool {
	if (mir.Place{Name: name}).IsTemp() {
		return true
	}
	if c.phiDests[name] {
		return true
	}
	return c.ssaLocals[name] && !c.mustBeMemory(name)
}

func isEnumProducing(op mir.Op) bool {
	return op == mir.OpEnumVariant
}
