package wasmgen

// f64 unary/binary math opcodes used to implement the DSL's built-in
// pure-math calls (abs, min, max, sqrt, floor, ceil) without any host
// import: the WASM spec defines these natively for f64 operands.
const (
	opF64Eq byte = 0x61
	opF64Ne byte = 0x62
	opF64Lt byte = 0x63
	opF64Gt byte = 0x64
	opF64Le byte = 0x65
	opF64Ge byte = 0x66

	opF64Abs  byte = 0x99
	opF64Ceil byte = 0x9b
	opF64Floor byte = 0x9c
	opF64Sqrt byte = 0x9f
	opF64Min  byte = 0xa4
	opF64Max  byte = 0xa5
)
