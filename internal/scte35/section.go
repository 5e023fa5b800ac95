// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package scte35 encodes and decodes the subset of SCTE-35
// splice_info_section used for ad-break signalling: splice_insert,
// time_signal and splice_null commands with segmentation descriptors.
package scte35

import (
	"errors"
	"fmt"
)

const tableID = 0xFC

// TicksPerSecond is the 90 kHz presentation clock rate.
const TicksPerSecond = 90000

// ErrUnsupportedCommand is returned by Decode for command types outside this package.
var ErrUnsupportedCommand = errors.New("scte35: unsupported splice command")

func errTruncated(what string) error {
	return fmt.Errorf("scte35: truncated %s", what)
}

// Section is a splice_info_section.
type Section struct {
	SAPType       uint8
	PTSAdjustment uint64
	Tier          uint16
	Command       Command
	Descriptors   []*SegmentationDescriptor
}

// header (3) + fixed fields (11) + command length/type folded into fixed.
const fixedBytes = 11

func (s *Section) command() Command {
	if s.Command == nil {
		return SpliceNull{}
	}
	return s.Command
}

func (s *Section) descriptorLoopLength() int {
	n := 0
	for _, d := range s.Descriptors {
		n += 2 + d.bodyLength()
	}
	return n
}

// Encode serializes the section including its CRC-32.
func (s *Section) Encode() ([]byte, error) {
	for _, d := range s.Descriptors {
		if err := d.validate(); err != nil {
			return nil, err
		}
	}
	cmd := s.command()
	sectionLen := fixedBytes + cmd.length() + 2 + s.descriptorLoopLength() + 4
	if sectionLen > 4093 {
		return nil, fmt.Errorf("scte35: section length %d exceeds 4093", sectionLen)
	}

	w := newBitWriter(3 + sectionLen)
	w.uint(8, tableID)
	w.flag(false) // section_syntax_indicator
	w.flag(false) // private_indicator
	w.uint(2, uint64(s.SAPType))
	w.uint(12, uint64(sectionLen))
	w.uint(8, 0)  // protocol_version
	w.flag(false) // encrypted_packet
	w.uint(6, 0)  // encryption_algorithm
	w.uint(33, s.PTSAdjustment)
	w.uint(8, 0) // cw_index
	w.uint(12, uint64(s.Tier))
	w.uint(12, uint64(cmd.length()))
	w.uint(8, uint64(cmd.Type()))
	cmd.encode(w)
	w.uint(16, uint64(s.descriptorLoopLength()))
	for _, d := range s.Descriptors {
		d.encode(w)
	}

	out := w.bytes()
	crc := crc32MPEG2(out[:len(out)-4])
	w.uint(32, uint64(crc))
	return out, nil
}

// Decode parses a splice_info_section, verifying its CRC.
func Decode(b []byte) (*Section, error) {
	if err := checkCRC(b); err != nil {
		return nil, err
	}
	r := newBitReader(b)
	if id := r.uint(8); id != tableID {
		return nil, fmt.Errorf("scte35: unexpected table id 0x%02X", id)
	}
	r.skip(2)
	s := &Section{SAPType: uint8(r.uint(2))}
	sectionLen := int(r.uint(12))
	if sectionLen+3 != len(b) {
		return nil, fmt.Errorf("scte35: section length %d does not match %d bytes", sectionLen, len(b))
	}
	r.skip(8)
	if r.flag() {
		return nil, errors.New("scte35: encrypted sections are not supported")
	}
	r.skip(6)
	s.PTSAdjustment = r.uint(33)
	r.skip(8)
	s.Tier = uint16(r.uint(12))
	cmdLen := int(r.uint(12))
	cmdType := uint8(r.uint(8))
	if cmdLen == 0xFFF {
		return nil, errors.New("scte35: legacy unspecified command length is not supported")
	}
	cmdBytes := r.raw(cmdLen)
	if r.short {
		return nil, errTruncated("splice command")
	}

	var err error
	switch cmdType {
	case CommandSpliceNull:
		s.Command = SpliceNull{}
	case CommandSpliceInsert:
		s.Command, err = decodeSpliceInsert(cmdBytes)
	case CommandTimeSignal:
		s.Command, err = decodeTimeSignal(cmdBytes)
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedCommand, cmdType)
	}
	if err != nil {
		return nil, err
	}

	loop := r.raw(int(r.uint(16)))
	if r.short {
		return nil, errTruncated("descriptor loop")
	}
	for off := 0; off+2 <= len(loop); {
		tag, n := loop[off], int(loop[off+1])
		end := off + 2 + n
		if end > len(loop) {
			return nil, errTruncated("descriptor")
		}
		if tag == segmentationTag {
			d, derr := decodeSegmentation(loop[off+2 : end])
			if derr != nil {
				return nil, derr
			}
			s.Descriptors = append(s.Descriptors, d)
		}
		off = end
	}
	return s, nil
}
