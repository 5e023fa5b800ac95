// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scte35

// Splice command types.
const (
	CommandSpliceNull   uint8 = 0x00
	CommandSpliceInsert uint8 = 0x05
	CommandTimeSignal   uint8 = 0x06
)

// Command is a splice command carried by a Section.
type Command interface {
	Type() uint8
	length() int
	encode(w *bitWriter)
}

// BreakDuration is the break_duration() structure in 90 kHz ticks.
type BreakDuration struct {
	AutoReturn bool
	Ticks      uint64
}

// SpliceInsert is an immediate, program-level splice_insert command.
type SpliceInsert struct {
	EventID         uint32
	Cancel          bool
	OutOfNetwork    bool
	Immediate       bool
	Duration        *BreakDuration
	UniqueProgramID uint16
	AvailNum        uint8
	AvailsExpected  uint8
}

func (*SpliceInsert) Type() uint8 { return CommandSpliceInsert }

func (c *SpliceInsert) length() int {
	bits := 32 + 1 + 7
	if !c.Cancel {
		bits += 4 + 4 + 8 // flags, reserved, component_count
		if c.Duration != nil {
			bits += 40
		}
		bits += 32
	}
	return bits / 8
}

func (c *SpliceInsert) encode(w *bitWriter) {
	w.uint(32, uint64(c.EventID))
	w.flag(c.Cancel)
	w.reserved(7)
	if c.Cancel {
		return
	}
	w.flag(c.OutOfNetwork)
	w.flag(false) // program_splice_flag; component mode with zero components
	w.flag(c.Duration != nil)
	w.flag(c.Immediate)
	w.reserved(4)
	w.uint(8, 0)
	if c.Duration != nil {
		w.flag(c.Duration.AutoReturn)
		w.reserved(6)
		w.uint(33, c.Duration.Ticks)
	}
	w.uint(16, uint64(c.UniqueProgramID))
	w.uint(8, uint64(c.AvailNum))
	w.uint(8, uint64(c.AvailsExpected))
}

func decodeSpliceInsert(b []byte) (*SpliceInsert, error) {
	r := newBitReader(b)
	c := &SpliceInsert{EventID: uint32(r.uint(32))}
	c.Cancel = r.flag()
	r.skip(7)
	if !c.Cancel {
		c.OutOfNetwork = r.flag()
		program := r.flag()
		hasDuration := r.flag()
		c.Immediate = r.flag()
		r.skip(4)
		if program {
			if !c.Immediate {
				if r.flag() {
					r.skip(6 + 33)
				} else {
					r.skip(7)
				}
			}
		} else {
			n := int(r.uint(8))
			for i := 0; i < n; i++ {
				r.skip(8)
				if !c.Immediate {
					if r.flag() {
						r.skip(6 + 33)
					} else {
						r.skip(7)
					}
				}
			}
		}
		if hasDuration {
			d := &BreakDuration{AutoReturn: r.flag()}
			r.skip(6)
			d.Ticks = r.uint(33)
			c.Duration = d
		}
		c.UniqueProgramID = uint16(r.uint(16))
		c.AvailNum = uint8(r.uint(8))
		c.AvailsExpected = uint8(r.uint(8))
	}
	if r.short {
		return nil, errTruncated("splice_insert")
	}
	return c, nil
}

// TimeSignal is a time_signal command. A nil PTS means immediate.
type TimeSignal struct {
	PTS *uint64
}

func (*TimeSignal) Type() uint8 { return CommandTimeSignal }

func (c *TimeSignal) length() int {
	if c.PTS != nil {
		return 5
	}
	return 1
}

func (c *TimeSignal) encode(w *bitWriter) {
	if c.PTS == nil {
		w.flag(false)
		w.reserved(7)
		return
	}
	w.flag(true)
	w.reserved(6)
	w.uint(33, *c.PTS)
}

func decodeTimeSignal(b []byte) (*TimeSignal, error) {
	r := newBitReader(b)
	c := &TimeSignal{}
	if r.flag() {
		r.skip(6)
		pts := r.uint(33)
		c.PTS = &pts
	}
	if r.short {
		return nil, errTruncated("time_signal")
	}
	return c, nil
}

// SpliceNull carries no payload.
type SpliceNull struct{}

func (SpliceNull) Type() uint8 { return CommandSpliceNull }

func (SpliceNull) length() int { return 0 }

func (SpliceNull) encode(*bitWriter) {}
