package wasmgen

import (
	"fmt"

	"codeforge/core/sourcelang"
)

// Compile translates a single parsed function declaration into a complete
// WASM binary. It is deterministic: the same FuncDecl always produces the
// same bytes, which is what lets the artifact builder treat the compiled
// module as part of a content-addressed artifact.
func Compile(fn *sourcelang.FuncDecl) ([]byte, error) {
	c := &compiler{
		localIndex: map[string]uint32{},
		localTypes: map[string]sourcelang.Type{},
	}
	for i, p := range fn.Params {
		c.localIndex[p.Name] = uint32(i)
		c.localTypes[p.Name] = p.Type
		c.paramTypes = append(c.paramTypes, toValType(p.Type))
	}
	c.nextLocal = uint32(len(fn.Params))
	c.retType = fn.Return

	body, err := c.compileBlock(fn.Body)
	if err != nil {
		return nil, err
	}
	body = append(body, opEnd)

	mod := &Module{
		ExportName: fn.Name,
		Params:     c.paramTypes,
		Results:    []ValType{toValType(fn.Return)},
		Locals:     c.declaredLocals,
		Body:       body,
	}
	return mod.Encode(), nil
}

type compiler struct {
	localIndex     map[string]uint32
	localTypes     map[string]sourcelang.Type
	paramTypes     []ValType
	declaredLocals []ValType
	nextLocal      uint32
	retType        sourcelang.Type
}

func toValType(t sourcelang.Type) ValType {
	switch t {
	case sourcelang.TypeI64:
		return ValI64
	case sourcelang.TypeF64:
		return ValF64
	default: // TypeI32, TypeBool
		return ValI32
	}
}

// allocLocal reserves a fresh local slot of the given type and returns its
// index, recording it in the declared-locals vector emitted in the function
// body header.
func (c *compiler) allocLocal(t sourcelang.Type) uint32 {
	idx := c.nextLocal
	c.nextLocal++
	c.declaredLocals = append(c.declaredLocals, toValType(t))
	return idx
}

func (c *compiler) compileBlock(stmts []sourcelang.Stmt) ([]byte, error) {
	var out []byte
	for _, s := range stmts {
		out = append(out, emitGasCheck(gasCostOf(s))...)
		b, err := c.compileStmt(s)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// gasCostOf assigns a fixed per-statement-kind cost, the DSL's analogue of
// the host's per-opcode gas table: this compiler has no general call
// instruction or instruction-level host boundary, so metering happens at
// statement granularity instead of per WASM opcode.
func gasCostOf(s sourcelang.Stmt) int32 {
	switch s.(type) {
	case *sourcelang.LetStmt:
		return 3
	case *sourcelang.AssignStmt:
		return 3
	case *sourcelang.IfStmt:
		return 5
	case *sourcelang.WhileStmt:
		return 5
	case *sourcelang.ReturnStmt:
		return 2
	case *sourcelang.ExprStmt:
		return 3
	default:
		return 1
	}
}

// emitGasCheck emits a call to the imported consume_gas(cost) host
// function and traps with opUnreachable on any non-zero return — the
// host signals exhaustion, zero means proceed. The sandbox executor
// distinguishes this trap from a generic runtime trap by comparing its
// gas counter against the budget after the call returns.
func emitGasCheck(cost int32) []byte {
	out := putSLEB128([]byte{opI32Const}, int64(cost))
	out = append(out, opCall)
	out = putULEB128(out, uint64(gasImportFuncIndex))
	out = append(out, opIf, emptyVoidBlock, opUnreachable, opEnd)
	return out
}

func (c *compiler) compileStmt(s sourcelang.Stmt) ([]byte, error) {
	switch st := s.(type) {
	case *sourcelang.LetStmt:
		t, err := c.typeOf(st.Value)
		if err != nil {
			return nil, err
		}
		idx := c.allocLocal(t)
		c.localIndex[st.Name] = idx
		c.localTypes[st.Name] = t
		val, err := c.compileExpr(st.Value, t)
		if err != nil {
			return nil, err
		}
		out := append(val, opLocalSet)
		out = putULEB128(out, uint64(idx))
		return out, nil

	case *sourcelang.AssignStmt:
		idx, ok := c.localIndex[st.Name]
		if !ok {
			return nil, fmt.Errorf("assignment to undeclared variable %q", st.Name)
		}
		t := c.localTypes[st.Name]
		val, err := c.compileExpr(st.Value, t)
		if err != nil {
			return nil, err
		}
		out := append(val, opLocalSet)
		out = putULEB128(out, uint64(idx))
		return out, nil

	case *sourcelang.IfStmt:
		cond, err := c.compileExpr(st.Cond, sourcelang.TypeBool)
		if err != nil {
			return nil, err
		}
		thenBody, err := c.compileBlock(st.Then)
		if err != nil {
			return nil, err
		}
		out := append(cond, opIf, emptyVoidBlock)
		out = append(out, thenBody...)
		if st.Else != nil {
			elseBody, err := c.compileBlock(st.Else)
			if err != nil {
				return nil, err
			}
			out = append(out, opElse)
			out = append(out, elseBody...)
		}
		out = append(out, opEnd)
		return out, nil

	case *sourcelang.WhileStmt:
		cond, err := c.compileExpr(st.Cond, sourcelang.TypeBool)
		if err != nil {
			return nil, err
		}
		body, err := c.compileBlock(st.Body)
		if err != nil {
			return nil, err
		}
		// block { loop { cond; i32.eqz; br_if 1; body; br 0 } }
		out := []byte{0x02, emptyVoidBlock, 0x03, emptyVoidBlock}
		out = append(out, cond...)
		out = append(out, opI32Eqz, opBrIf)
		out = putULEB128(out, 1)
		out = append(out, body...)
		out = append(out, opBr)
		out = putULEB128(out, 0)
		out = append(out, opEnd, opEnd)
		return out, nil

	case *sourcelang.ReturnStmt:
		if st.Value == nil {
			out := zeroValue(c.retType)
			return append(out, opReturn), nil
		}
		val, err := c.compileExpr(st.Value, c.retType)
		if err != nil {
			return nil, err
		}
		return append(val, opReturn), nil

	case *sourcelang.ExprStmt:
		t, err := c.typeOf(st.Value)
		if err != nil {
			return nil, err
		}
		val, err := c.compileExpr(st.Value, t)
		if err != nil {
			return nil, err
		}
		return append(val, opDrop), nil

	default:
		return nil, fmt.Errorf("wasmgen: unsupported statement %T", s)
	}
}

func zeroValue(t sourcelang.Type) []byte {
	switch t {
	case sourcelang.TypeI64:
		return putSLEB128([]byte{opI64Const}, 0)
	case sourcelang.TypeF64:
		return append([]byte{opF64Const}, f64Bytes(0)...)
	default:
		return putSLEB128([]byte{opI32Const}, 0)
	}
}
