package wasmgen

// ValType is a WASM value type byte, as defined by the binary format spec.
type ValType byte

const (
	ValI32 ValType = 0x7f
	ValI64 ValType = 0x7e
	ValF64 ValType = 0x7c
)

// Section IDs, in the fixed order the binary format requires them.
const (
	secType     byte = 1
	secImport   byte = 2
	secFunction byte = 3
	secExport   byte = 7
	secCode     byte = 10
)

const (
	exportKindFunc byte = 0x00
)

// Opcode bytes for the instruction subset the compiler emits. This mirrors
// the numbering in the WebAssembly core specification exactly; it is not an
// independent numbering scheme.
const (
	opUnreachable byte = 0x00
	opBlock       byte = 0x02
	opLoop        byte = 0x03
	opIf          byte = 0x04
	opElse        byte = 0x05
	opEnd         byte = 0x0b
	opBr          byte = 0x0c
	opBrIf        byte = 0x0d
	opReturn      byte = 0x0f
	opCall        byte = 0x10
	opDrop        byte = 0x1a
	opSelect      byte = 0x1b

	opLocalGet byte = 0x20
	opLocalSet byte = 0x21
	opLocalTee byte = 0x22

	opI32Const byte = 0x41
	opI64Const byte = 0x42
	opF64Const byte = 0x44

	opI32Eqz byte = 0x45
	opI32Eq  byte = 0x46
	opI32Ne  byte = 0x47
	opI32LtS byte = 0x48
	opI32GtS byte = 0x4a
	opI32LeS byte = 0x4c
	opI32GeS byte = 0x4e

	opI32And byte = 0x71
	opI32Or  byte = 0x72

	opI32Add byte = 0x6a
	opI32Sub byte = 0x6b
	opI32Mul byte = 0x6c
	opI32DivS byte = 0x6d
	opI32RemS byte = 0x6f

	opI64Eqz byte = 0x50
	opI64Eq  byte = 0x51
	opI64Ne  byte = 0x52
	opI64LtS byte = 0x53
	opI64GtS byte = 0x55
	opI64LeS byte = 0x57
	opI64GeS byte = 0x59

	opI64Add byte = 0x7c
	opI64Sub byte = 0x7d
	opI64Mul byte = 0x7e
	opI64DivS byte = 0x7f
	opI64RemS byte = 0x81

	opF64Add byte = 0xa0
	opF64Sub byte = 0xa1
	opF64Mul byte = 0xa2
	opF64Div byte = 0xa3

	blockTypeEmpty byte = 0x40
)

// emptyVoidBlock is the block-type byte used for if/loop/block constructs
// whose signature produces no value on the stack.
const emptyVoidBlock = blockTypeEmpty
