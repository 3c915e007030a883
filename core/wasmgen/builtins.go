package wasmgen

import (
	"fmt"

	"codeforge/core/sourcelang"
)

// compileCall lowers one of the DSL's pure-math builtins directly into
// WASM instructions. No builtin needs a host import and there are no
// general function calls: the parser admits any callee name, and a call
// compiles only if it is in sourcelang.PureMathCalls and resolves to one
// of the cases below, which keeps compiled modules deterministic.
func (c *compiler) compileCall(call *sourcelang.CallExpr) ([]byte, error) {
	if !sourcelang.PureMathCalls[call.Callee] {
		return nil, fmt.Errorf("unknown function %q", call.Callee)
	}
	switch call.Callee {
	case "abs":
		return c.compileUnaryBuiltin(call, "abs")
	case "floor":
		return c.compileUnaryBuiltin(call, "floor")
	case "ceil":
		return c.compileUnaryBuiltin(call, "ceil")
	case "sqrt":
		return c.compileUnaryBuiltin(call, "sqrt")
	case "min":
		return c.compileMinMax(call, "min")
	case "max":
		return c.compileMinMax(call, "max")
	case "pow":
		return c.compilePow(call)
	default:
		return nil, fmt.Errorf("unknown function %q", call.Callee)
	}
}

func (c *compiler) compileUnaryBuiltin(call *sourcelang.CallExpr, name string) ([]byte, error) {
	if len(call.Args) != 1 {
		return nil, fmt.Errorf("%s: expects exactly one argument", name)
	}
	t, err := c.typeOf(call.Args[0])
	if err != nil {
		return nil, err
	}
	arg, err := c.compileExpr(call.Args[0], t)
	if err != nil {
		return nil, err
	}

	if name == "floor" || name == "ceil" || name == "sqrt" {
		if t != sourcelang.TypeF64 {
			return nil, fmt.Errorf("%s: requires an f64 argument", name)
		}
		op := map[string]byte{"floor": opF64Floor, "ceil": opF64Ceil, "sqrt": opF64Sqrt}[name]
		return append(arg, op), nil
	}

	// abs
	if t == sourcelang.TypeF64 {
		return append(arg, opF64Abs), nil
	}
	tmp := c.allocLocal(t)
	out := append(arg, opLocalSet)
	out = putULEB128(out, uint64(tmp))
	out = append(out, opLocalGet)
	out = putULEB128(out, uint64(tmp))
	out = append(out, zeroValue(t)...)
	out = append(out, ltOpcode(t))
	out = append(out, opIf, byte(toValType(t)))
	out = append(out, zeroValue(t)...)
	out = append(out, opLocalGet)
	out = putULEB128(out, uint64(tmp))
	out = append(out, subOpcode(t))
	out = append(out, opElse)
	out = append(out, opLocalGet)
	out = putULEB128(out, uint64(tmp))
	out = append(out, opEnd)
	return out, nil
}

func (c *compiler) compileMinMax(call *sourcelang.CallExpr, name string) ([]byte, error) {
	if len(call.Args) != 2 {
		return nil, fmt.Errorf("%s: expects exactly two arguments", name)
	}
	t, err := c.typeOf(call.Args[0])
	if err != nil {
		return nil, err
	}
	a, err := c.compileExpr(call.Args[0], t)
	if err != nil {
		return nil, err
	}
	b, err := c.compileExpr(call.Args[1], t)
	if err != nil {
		return nil, err
	}
	if t == sourcelang.TypeF64 {
		op := opF64Min
		if name == "max" {
			op = opF64Max
		}
		out := append(a, b...)
		return append(out, op), nil
	}

	tmpA, tmpB := c.allocLocal(t), c.allocLocal(t)
	out := append(a, opLocalSet)
	out = putULEB128(out, uint64(tmpA))
	out = append(out, b...)
	out = append(out, opLocalSet)
	out = putULEB128(out, uint64(tmpB))
	out = append(out, opLocalGet)
	out = putULEB128(out, uint64(tmpA))
	out = append(out, opLocalGet)
	out = putULEB128(out, uint64(tmpB))
	if name == "min" {
		out = append(out, ltOpcode(t))
	} else {
		out = append(out, gtOpcode(t))
	}
	out = append(out, opIf, byte(toValType(t)))
	out = append(out, opLocalGet)
	out = putULEB128(out, uint64(tmpA))
	out = append(out, opElse)
	out = append(out, opLocalGet)
	out = putULEB128(out, uint64(tmpB))
	out = append(out, opEnd)
	return out, nil
}

// compilePow only accepts a non-negative integer-literal exponent: it is
// unrolled at compile time rather than requiring a runtime exponentiation
// loop or a host import.
func (c *compiler) compilePow(call *sourcelang.CallExpr) ([]byte, error) {
	if len(call.Args) != 2 {
		return nil, fmt.Errorf("pow: expects exactly two arguments")
	}
	lit, ok := call.Args[1].(*sourcelang.IntLit)
	if !ok || lit.Value < 0 {
		return nil, fmt.Errorf("pow: second argument must be a non-negative integer literal")
	}
	t, err := c.typeOf(call.Args[0])
	if err != nil {
		return nil, err
	}
	base, err := c.compileExpr(call.Args[0], t)
	if err != nil {
		return nil, err
	}
	if lit.Value == 0 {
		return oneValue(t), nil
	}
	out := append([]byte{}, base...)
	for i := int64(1); i < lit.Value; i++ {
		out = append(out, base...)
		out = append(out, mulOpcode(t))
	}
	return out, nil
}

func oneValue(t sourcelang.Type) []byte {
	switch t {
	case sourcelang.TypeI64:
		return putSLEB128([]byte{opI64Const}, 1)
	case sourcelang.TypeF64:
		return append([]byte{opF64Const}, f64Bytes(1)...)
	default:
		return putSLEB128([]byte{opI32Const}, 1)
	}
}

func mulOpcode(t sourcelang.Type) byte {
	switch t {
	case sourcelang.TypeI64:
		return opI64Mul
	case sourcelang.TypeF64:
		return opF64Mul
	default:
		return opI32Mul
	}
}

func ltOpcode(t sourcelang.Type) byte {
	if t == sourcelang.TypeI64 {
		return opI64LtS
	}
	return opI32LtS
}

func gtOpcode(t sourcelang.Type) byte {
	if t == sourcelang.TypeI64 {
		return opI64GtS
	}
	return opI32GtS
}
