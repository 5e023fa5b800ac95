// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scte35

import "fmt"

// crcTable is the CRC-32/MPEG-2 table (poly 0x04C11DB7, no reflection).
var crcTable = func() (t [256]uint32) {
	for i := range t {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 != 0 {
				c = c<<1 ^ 0x04C11DB7
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

func crc32MPEG2(b []byte) uint32 {
	c := uint32(0xFFFFFFFF)
	for _, v := range b {
		c = c<<8 ^ crcTable[byte(c>>24)^v]
	}
	return c
}

func checkCRC(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("scte35: section too short for CRC (%d bytes)", len(b))
	}
	n := len(b) - 4
	stored := uint32(b[n])<<24 | uint32(b[n+1])<<16 | uint32(b[n+2])<<8 | uint32(b[n+3])
	if got := crc32MPEG2(b[:n]); got != stored {
		return fmt.Errorf("scte35: CRC mismatch: computed 0x%08X, stored 0x%08X", got, stored)
	}
	return nil
}
