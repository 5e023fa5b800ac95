// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scte35

// bitWriter packs fields MSB-first into a pre-sized buffer.
type bitWriter struct {
	buf []byte
	pos int
}

func newBitWriter(size int) *bitWriter {
	return &bitWriter{buf: make([]byte, size)}
}

func (w *bitWriter) flag(v bool) {
	if w.pos >= len(w.buf)*8 {
		return
	}
	if v {
		w.buf[w.pos/8] |= 1 << uint(7-w.pos%8)
	}
	w.pos++
}

func (w *bitWriter) uint(n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		w.flag((v>>uint(i))&1 == 1)
	}
}

func (w *bitWriter) reserved(n int) {
	w.uint(n, (1<<uint(n))-1)
}

func (w *bitWriter) raw(b []byte) {
	for _, v := range b {
		w.uint(8, uint64(v))
	}
}

func (w *bitWriter) bytes() []byte { return w.buf }

// bitReader is the inverse of bitWriter. Reads past the end set short.
type bitReader struct {
	buf   []byte
	pos   int
	short bool
}

func newBitReader(b []byte) *bitReader {
	return &bitReader{buf: b}
}

func (r *bitReader) flag() bool {
	if r.pos >= len(r.buf)*8 {
		r.short = true
		return false
	}
	v := (r.buf[r.pos/8]>>uint(7-r.pos%8))&1 == 1
	r.pos++
	return v
}

func (r *bitReader) uint(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v <<= 1
		if r.flag() {
			v |= 1
		}
	}
	return v
}

func (r *bitReader) skip(n int) {
	r.pos += n
	if r.pos > len(r.buf)*8 {
		r.short = true
	}
}

func (r *bitReader) raw(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.uint(8))
	}
	return out
}
