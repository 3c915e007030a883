package wasmgen

// Module is a single-function WASM module builder: one imported host
// function, one defined function, one export, one code entry. The single
// import is always the gas-metering hook the sandbox executor's host
// registers as "env"."consume_gas" — every compiled module calls it before
// each statement (see compile.go's emitGasCheck), which is what lets the
// sandbox enforce a gas cap on DSL source that contains unbounded loops.
// Module intentionally does not model memories, tables, or globals; the
// artifact builder only ever emits self-contained scalar functions plus
// this one fixed host call.
type Module struct {
	ExportName string
	Params     []ValType
	Results    []ValType
	Locals     []ValType // declared locals beyond params, in index order
	Body       []byte    // raw instruction bytes, terminated by the caller with opEnd
}

// GasImportModule and GasImportName name the single host import every
// compiled module carries. The sandbox executor's import object must
// register a function under exactly this module/name pair.
const (
	GasImportModule = "env"
	GasImportName   = "consume_gas"
)

// gasImportFuncIndex and mainFuncIndex are fixed because Module always
// emits exactly one import followed by exactly one defined function.
const (
	gasImportFuncIndex uint32 = 0
	mainFuncIndex      uint32 = 1
)

// Encode serializes the module to the WASM binary format: magic number,
// version, then the type, import, function, export and code sections in
// the fixed order the binary format requires.
func (m *Module) Encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d} // "\0asm"
	out = append(out, 0x01, 0x00, 0x00, 0x00)

	out = append(out, secType)
	out = append(out, withLength(m.encodeTypeSection())...)

	out = append(out, secImport)
	out = append(out, withLength(m.encodeImportSection())...)

	out = append(out, secFunction)
	out = append(out, withLength(m.encodeFunctionSection())...)

	out = append(out, secExport)
	out = append(out, withLength(m.encodeExportSection())...)

	out = append(out, secCode)
	out = append(out, withLength(m.encodeCodeSection())...)

	return out
}

// encodeTypeSection emits two function types: type 0 is the gas-check
// import's signature (i32)->(i32), type 1 is the compiled function's own
// signature.
func (m *Module) encodeTypeSection() []byte {
	var b []byte
	b = putVec(b, 2)

	b = append(b, 0x60)
	b = putVec(b, 1)
	b = append(b, byte(ValI32))
	b = putVec(b, 1)
	b = append(b, byte(ValI32))

	b = append(b, 0x60)
	b = putVec(b, len(m.Params))
	for _, p := range m.Params {
		b = append(b, byte(p))
	}
	b = putVec(b, len(m.Results))
	for _, r := range m.Results {
		b = append(b, byte(r))
	}
	return b
}

func (m *Module) encodeImportSection() []byte {
	var b []byte
	b = putVec(b, 1)
	b = putULEB128(b, uint64(len(GasImportModule)))
	b = append(b, []byte(GasImportModule)...)
	b = putULEB128(b, uint64(len(GasImportName)))
	b = append(b, []byte(GasImportName)...)
	b = append(b, 0x00) // import kind: func
	b = putULEB128(b, 0) // type index 0
	return b
}

func (m *Module) encodeFunctionSection() []byte {
	var b []byte
	b = putVec(b, 1)
	b = putULEB128(b, 1) // defined function uses type index 1
	return b
}

func (m *Module) encodeExportSection() []byte {
	var b []byte
	b = putVec(b, 1)
	b = putULEB128(b, uint64(len(m.ExportName)))
	b = append(b, []byte(m.ExportName)...)
	b = append(b, exportKindFunc)
	b = putULEB128(b, uint64(mainFuncIndex))
	return b
}

func (m *Module) encodeCodeSection() []byte {
	var b []byte
	b = putVec(b, 1)
	b = append(b, withLength(m.encodeFuncBody())...)
	return b
}

// encodeFuncBody emits the local-declaration vector (run-length grouped by
// type, as the binary format requires) followed by the instruction stream.
func (m *Module) encodeFuncBody() []byte {
	groups := groupLocals(m.Locals)
	var b []byte
	b = putVec(b, len(groups))
	for _, g := range groups {
		b = putULEB128(b, uint64(g.count))
		b = append(b, byte(g.typ))
	}
	b = append(b, m.Body...)
	return b
}

type localGroup struct {
	count int
	typ   ValType
}

func groupLocals(locals []ValType) []localGroup {
	var groups []localGroup
	for _, t := range locals {
		if len(groups) > 0 && groups[len(groups)-1].typ == t {
			groups[len(groups)-1].count++
			continue
		}
		groups = append(groups, localGroup{count: 1, typ: t})
	}
	return groups
}
