// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scte35

import "fmt"

const (
	segmentationTag = 0x02
	cueIdentifier   = 0x43554549 // "CUEI"
)

// Segmentation type IDs used by this service.
const (
	SegmentationProgramStart       uint8 = 0x10
	SegmentationProgramEnd         uint8 = 0x11
	SegmentationBreakStart         uint8 = 0x22
	SegmentationBreakEnd           uint8 = 0x23
	SegmentationProviderAdStart    uint8 = 0x30
	SegmentationProviderAdEnd      uint8 = 0x31
	SegmentationDistributorAdStart uint8 = 0x32
	SegmentationDistributorAdEnd   uint8 = 0x33
)

// UPID types.
const (
	UPIDNotUsed uint8 = 0x00
	UPIDTI      uint8 = 0x08
	UPIDADI     uint8 = 0x09
	UPIDURI     uint8 = 0x0F
)

// maxDescriptorBody is the largest descriptor_length an 8-bit field can carry.
const maxDescriptorBody = 255

// SegmentationDescriptor is a program-level segmentation_descriptor with an
// optional duration and UPID.
type SegmentationDescriptor struct {
	EventID          uint32
	TypeID           uint8
	Duration         *uint64 // 90 kHz ticks, 40 bits
	UPIDType         uint8
	UPID             []byte
	SegmentNum       uint8
	SegmentsExpected uint8
}

func (d *SegmentationDescriptor) bodyLength() int {
	n := 4 + 4 + 1 + 1 // identifier, event id, cancel byte, flags byte
	if d.Duration != nil {
		n += 5
	}
	n += 2 + len(d.UPID) + 3
	return n
}

func (d *SegmentationDescriptor) validate() error {
	if l := d.bodyLength(); l > maxDescriptorBody {
		return fmt.Errorf("scte35: segmentation descriptor too long (%d bytes, upid %d bytes)", l, len(d.UPID))
	}
	if d.UPIDType == UPIDNotUsed && len(d.UPID) > 0 {
		return fmt.Errorf("scte35: upid bytes present with upid type 0x00")
	}
	return nil
}

func (d *SegmentationDescriptor) encode(w *bitWriter) {
	w.uint(8, segmentationTag)
	w.uint(8, uint64(d.bodyLength()))
	w.uint(32, cueIdentifier)
	w.uint(32, uint64(d.EventID))
	w.flag(false) // cancel
	w.flag(true)  // event id compliance
	w.reserved(6)
	w.flag(true) // program_segmentation_flag
	w.flag(d.Duration != nil)
	w.flag(true) // delivery_not_restricted_flag
	w.reserved(5)
	if d.Duration != nil {
		w.uint(40, *d.Duration)
	}
	w.uint(8, uint64(d.UPIDType))
	w.uint(8, uint64(len(d.UPID)))
	w.raw(d.UPID)
	w.uint(8, uint64(d.TypeID))
	w.uint(8, uint64(d.SegmentNum))
	w.uint(8, uint64(d.SegmentsExpected))
}

// decodeSegmentation parses one descriptor body (after tag and length).
func decodeSegmentation(body []byte) (*SegmentationDescriptor, error) {
	r := newBitReader(body)
	if id := r.uint(32); id != cueIdentifier {
		return nil, fmt.Errorf("scte35: unexpected descriptor identifier 0x%08X", id)
	}
	d := &SegmentationDescriptor{EventID: uint32(r.uint(32))}
	cancel := r.flag()
	r.skip(7)
	if cancel {
		return d, nil
	}
	program := r.flag()
	hasDuration := r.flag()
	r.skip(6)
	if !program {
		n := int(r.uint(8))
		r.skip(n * 48)
	}
	if hasDuration {
		v := r.uint(40)
		d.Duration = &v
	}
	d.UPIDType = uint8(r.uint(8))
	d.UPID = r.raw(int(r.uint(8)))
	d.TypeID = uint8(r.uint(8))
	d.SegmentNum = uint8(r.uint(8))
	d.SegmentsExpected = uint8(r.uint(8))
	if r.short {
		return nil, errTruncated("segmentation_descriptor")
	}
	return d, nil
}
