// Package wasmgen encodes a small, deterministic subset of the WebAssembly
// binary format: just enough sections (type, import, function, export, code) to
// represent a single exported scalar function compiled from a
// codeforge/core/sourcelang AST. There is no dependency on an external wasm
// toolchain; every byte is produced by this package.
package wasmgen

// putULEB128 appends the unsigned LEB128 encoding of v to buf.
func putULEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// putSLEB128 appends the signed LEB128 encoding of v to buf.
func putSLEB128(buf []byte, v int64) []byte {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		buf = append(buf, b)
	}
	return buf
}

// putVec prefixes data with its ULEB128 element count.
func putVec(buf []byte, count int) []byte {
	return putULEB128(buf, uint64(count))
}

// withLength wraps body in a ULEB128 byte-length prefix, as every WASM
// section and every function code entry requires.
func withLength(body []byte) []byte {
	out := putULEB128(nil, uint64(len(body)))
	return append(out, body...)
}
