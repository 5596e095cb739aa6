package mir

// Param is a function parameter (name, type).
type Param struct {
	Name string
	Type *Type
}

// Local is a function-local variable (name, type).
type Local struct {
	Name string
	Type *Type
}

// Function is one MIR function: name, ordered parameters and locals,
// return type, ordered basic blocks, and behavioral flags.
type Function struct {
	Name       string
	Params     []Param
	Locals     []Local
	ReturnType *Type
	Blocks     []*Block

	AlwaysInline bool
	IsMemoryFree bool // "pure": no loads/stores observable outside the call
}

// NewFunction creates an empty MIR function, mirroring the teacher's
// ir.NewFunction constructor.
func NewFunction(name string, returnType *Type) *Function {
	return &Function{Name: name, ReturnType: returnType}
}

// AddParam appends a parameter in declaration order.
func (f *Function) AddParam(name string, t *Type) *Function {
	f.Params = append(f.Params, Param{Name: name, Type: t})
	return f
}

// AddLocal appends a local in declaration order.
func (f *Function) AddLocal(name string, t *Type) *Function {
	f.Locals = append(f.Locals, Local{Name: name, Type: t})
	return f
}

// AddBlock appends and returns a new basic block.
func (f *Function) AddBlock(label string) *Block {
	b := &Block{Label: label}
	f.Blocks = append(f.Blocks, b)
	return b
}

// BlockByLabel finds a block by its label, or nil.
func (f *Function) BlockByLabel(label string) *Block {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// ParamType looks up the declared type of a parameter by name.
func (f *Function) ParamType(name string) (*Type, bool) {
	for _, p := range f.Params {
		if p.Name == name {
			return p.Type, true
		}
	}
	return nil, false
}

// LocalType looks up the declared type of a local by name.
func (f *Function) LocalType(name string) (*Type, bool) {
	for _, l := range f.Locals {
		if l.Name == name {
			return l.Type, true
		}
	}
	return nil, false
}

// EnumDef describes one enum type: name and its variants, keyed by variant
// name (the map does not record declaration order). Variant payload arity
// is tracked per-variant since MIR enums are not uniform.
type EnumDef struct {
	Name         string
	VariantArity map[string]int
}

// Program is the input to the backend: struct definitions, enum
// definitions, and an ordered sequence of functions.
type Program struct {
	Structs map[string]*StructDef
	Enums   map[string]*EnumDef
	Funcs   []*Function
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{
		Structs: make(map[string]*StructDef),
		Enums:   make(map[string]*EnumDef),
	}
}

// AddFunc appends a function in program order.
func (p *Program) AddFunc(f *Function) {
	p.Funcs = append(p.Funcs, f)
}

// AddStruct registers a struct definition.
func (p *Program) AddStruct(d *StructDef) {
	p.Structs[d.Name] = d
}

// AddEnum registers an enum definition.
func (p *Program) AddEnum(d *EnumDef) {
	p.Enums[d.Name] = d
}

// FuncByName finds a function by name, or nil.
func (p *Program) FuncByName(name string) *Function {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}
