package mir

import (
	"fmt"
	"strings"
)

// String renders a function in a readable textual form for debugging. It
// is not a parseable format; MIR textual round-tripping
// is a collaborator (MIR construction) concern, not this package's.
func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Function %s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", p.Name, p.Type)
	}
	fmt.Fprintf(&sb, ") -> %s {\n", f.ReturnType)
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "%s:\n", b.Label)
		for _, inst := range b.Insts {
			fmt.Fprintf(&sb, "  %s\n", inst.String())
		}
		fmt.Fprintf(&sb, "  %s\n", b.Term.String())
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (i Inst) String() string {
	dest := ""
	if i.Dest != "" {
		dest = i.Dest + " = "
	}
	switch i.Op {
	case OpConst:
		return fmt.Sprintf("%sconst %s", dest, i.A)
	case OpCopy:
		return fmt.Sprintf("%scopy %s", dest, i.A)
	case OpBinOp:
		return fmt.Sprintf("%s%s %s, %s", dest, binOpName(i.BinOp), i.A, i.B)
	case OpUnaryOp:
		return fmt.Sprintf("%sunop %s", dest, i.A)
	case OpCast:
		return fmt.Sprintf("%scast %s to %s", dest, i.A, i.Type)
	case OpCall:
		return fmt.Sprintf("%scall %s(...)", dest, i.Callee)
	case OpPhi:
		return fmt.Sprintf("%sphi(%d edges)", dest, len(i.PhiIncoming))
	default:
		return fmt.Sprintf("%s<op %d>", dest, i.Op)
	}
}

func binOpName(k BinOpKind) string {
	names := [...]string{"add", "sub", "mul", "div", "mod", "addw", "subw", "mulw",
		"and", "or", "xor", "shl", "shr", "eq", "ne", "lt", "le", "gt", "ge"}
	if int(k) < len(names) {
		return names[k]
	}
	return "?"
}

func (t Terminator) String() string {
	switch t.Kind {
	case TermReturn:
		if t.HasValue {
			return "return " + t.Value.String()
		}
		return "return"
	case TermGoto:
		return "goto " + t.Target
	case TermBranch:
		return fmt.Sprintf("branch %s, %s, %s", t.Cond, t.Then, t.Else)
	case TermSwitch:
		return fmt.Sprintf("switch %s (%d cases)", t.Disc, len(t.Cases))
	case TermUnreachable:
		return "unreachable"
	default:
		return "?"
	}
}
