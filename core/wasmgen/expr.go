package wasmgen

import (
	"fmt"
	"math"

	"codeforge/core/sourcelang"
)

func f64Bytes(v float64) []byte {
	bits := math.Float64bits(v)
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (8 * uint(i)))
	}
	return b
}

// typeOf infers the static type of an expression under the compiler's
// current local-variable environment. Literals and locals are trivial;
// binary/unary expressions require both operands to already share a type,
// and calls resolve through the fixed builtin table.
func (c *compiler) typeOf(e sourcelang.Expr) (sourcelang.Type, error) {
	switch ex := e.(type) {
	case *sourcelang.IntLit:
		return sourcelang.TypeI32, nil
	case *sourcelang.FloatLit:
		return sourcelang.TypeF64, nil
	case *sourcelang.BoolLit:
		return sourcelang.TypeBool, nil
	case *sourcelang.Ident:
		t, ok := c.localTypes[ex.Name]
		if !ok {
			return 0, fmt.Errorf("reference to undeclared variable %q", ex.Name)
		}
		return t, nil
	case *sourcelang.UnaryExpr:
		return c.typeOf(ex.Operand)
	case *sourcelang.BinaryExpr:
		if isComparisonOp(ex.Op) || ex.Op == "&&" || ex.Op == "||" {
			return sourcelang.TypeBool, nil
		}
		return c.typeOf(ex.Left)
	case *sourcelang.CallExpr:
		return builtinReturnType(ex, c)
	default:
		return 0, fmt.Errorf("wasmgen: cannot infer type of %T", e)
	}
}

func isComparisonOp(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	default:
		return false
	}
}

func builtinReturnType(call *sourcelang.CallExpr, c *compiler) (sourcelang.Type, error) {
	if !sourcelang.PureMathCalls[call.Callee] {
		return 0, fmt.Errorf("unknown function %q (only pure-math builtins are callable)", call.Callee)
	}
	if len(call.Args) == 0 {
		return 0, fmt.Errorf("%s: expects at least one argument", call.Callee)
	}
	return c.typeOf(call.Args[0])
}

// compileExpr compiles e, coercing integer-literal operands to want when
// the surrounding context (a let/assign/return target, or a binary
// operand) expects a wider numeric type.
func (c *compiler) compileExpr(e sourcelang.Expr, want sourcelang.Type) ([]byte, error) {
	switch ex := e.(type) {
	case *sourcelang.IntLit:
		return c.compileIntLit(ex.Value, want), nil

	case *sourcelang.FloatLit:
		return append([]byte{opF64Const}, f64Bytes(ex.Value)...), nil

	case *sourcelang.BoolLit:
		v := int64(0)
		if ex.Value {
			v = 1
		}
		return putSLEB128([]byte{opI32Const}, v), nil

	case *sourcelang.Ident:
		idx, ok := c.localIndex[ex.Name]
		if !ok {
			return nil, fmt.Errorf("reference to undeclared variable %q", ex.Name)
		}
		out := []byte{opLocalGet}
		return putULEB128(out, uint64(idx)), nil

	case *sourcelang.UnaryExpr:
		t, err := c.typeOf(ex.Operand)
		if err != nil {
			return nil, err
		}
		operand, err := c.compileExpr(ex.Operand, t)
		if err != nil {
			return nil, err
		}
		switch ex.Op {
		case "-":
			zero := zeroValue(t)
			out := append(zero, operand...)
			return append(out, subOpcode(t)), nil
		case "!":
			return append(operand, opI32Eqz), nil
		default:
			return nil, fmt.Errorf("unsupported unary operator %q", ex.Op)
		}

	case *sourcelang.BinaryExpr:
		return c.compileBinary(ex)

	case *sourcelang.CallExpr:
		return c.compileCall(ex)

	default:
		return nil, fmt.Errorf("wasmgen: unsupported expression %T", e)
	}
}

func (c *compiler) compileIntLit(v int64, want sourcelang.Type) []byte {
	switch want {
	case sourcelang.TypeI64:
		return putSLEB128([]byte{opI64Const}, v)
	case sourcelang.TypeF64:
		return append([]byte{opF64Const}, f64Bytes(float64(v))...)
	default:
		return putSLEB128([]byte{opI32Const}, v)
	}
}

func (c *compiler) compileBinary(ex *sourcelang.BinaryExpr) ([]byte, error) {
	if ex.Op == "&&" || ex.Op == "||" {
		left, err := c.compileExpr(ex.Left, sourcelang.TypeBool)
		if err != nil {
			return nil, err
		}
		right, err := c.compileExpr(ex.Right, sourcelang.TypeBool)
		if err != nil {
			return nil, err
		}
		op := opI32And
		if ex.Op == "||" {
			op = opI32Or
		}
		out := append(left, right...)
		return append(out, op), nil
	}

	lt, err := c.typeOf(ex.Left)
	if err != nil {
		return nil, err
	}
	left, err := c.compileExpr(ex.Left, lt)
	if err != nil {
		return nil, err
	}
	right, err := c.compileExpr(ex.Right, lt)
	if err != nil {
		return nil, err
	}
	op, err := binOpcode(ex.Op, lt)
	if err != nil {
		return nil, err
	}
	out := append(left, right...)
	return append(out, op), nil
}

func subOpcode(t sourcelang.Type) byte {
	switch t {
	case sourcelang.TypeI64:
		return opI64Sub
	case sourcelang.TypeF64:
		return opF64Sub
	default:
		return opI32Sub
	}
}

func binOpcode(op string, t sourcelang.Type) (byte, error) {
	switch t {
	case sourcelang.TypeI64:
		switch op {
		case "+":
			return opI64Add, nil
		case "-":
			return opI64Sub, nil
		case "*":
			return opI64Mul, nil
		case "/":
			return opI64DivS, nil
		case "%":
			return opI64RemS, nil
		case "==":
			return opI64Eq, nil
		case "!=":
			return opI64Ne, nil
		case "<":
			return opI64LtS, nil
		case ">":
			return opI64GtS, nil
		case "<=":
			return opI64LeS, nil
		case ">=":
			return opI64GeS, nil
		}
	case sourcelang.TypeF64:
		switch op {
		case "+":
			return opF64Add, nil
		case "-":
			return opF64Sub, nil
		case "*":
			return opF64Mul, nil
		case "/":
			return opF64Div, nil
		case "==":
			return opF64Eq, nil
		case "!=":
			return opF64Ne, nil
		case "<":
			return opF64Lt, nil
		case ">":
			return opF64Gt, nil
		case "<=":
			return opF64Le, nil
		case ">=":
			return opF64Ge, nil
		}
	default: // TypeI32, TypeBool
		switch op {
		case "+":
			return opI32Add, nil
		case "-":
			return opI32Sub, nil
		case "*":
			return opI32Mul, nil
		case "/":
			return opI32DivS, nil
		case "%":
			return opI32RemS, nil
		case "==":
			return opI32Eq, nil
		case "!=":
			return opI32Ne, nil
		case "<":
			return opI32LtS, nil
		case ">":
			return opI32GtS, nil
		case "<=":
			return opI32LeS, nil
		case ">=":
			return opI32GeS, nil
		}
	}
	return 0, fmt.Errorf("operator %q not defined for type %s", op, t)
}
