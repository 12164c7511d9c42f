package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Record discriminators. Every persisted record starts with one of them.
var (
	registryTag = [8]byte{'g', 'r', 'w', 't', 'h', 'o', 'r', 'g'}
	scoreTag    = [8]byte{'g', 'r', 'w', 't', 'h', 's', 'c', 'r'}
)

// Kind identifies the record type stored in a byte slice.
type Kind int

const (
	KindUnknown Kind = iota
	KindRegistry
	KindScore
)

// KindOf inspects the discriminator of data.
func KindOf(data []byte) Kind {
	if len(data) < len(registryTag) {
		return KindUnknown
	}
	switch {
	case bytes.Equal(data[:8], registryTag[:]):
		return KindRegistry
	case bytes.Equal(data[:8], scoreTag[:]):
		return KindScore
	default:
		return KindUnknown
	}
}

// RegistryBaseSize is the footprint of a Registry with empty variable fields;
// new Registry records are created at this size and grown afterward.
var RegistryBaseSize = len(EncodeRegistry(&Registry{}))

// ScoreBaseSize is the footprint of a ScoreRecord with empty variable fields.
var ScoreBaseSize = len(EncodeScore(&ScoreRecord{}))

type encoder struct{ buf []byte }

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) i32(v int32)  { e.u32(uint32(v)) }
func (e *encoder) i64(v int64)  { e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v)) }
func (e *encoder) f64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
func (e *encoder) key(k Key) { e.buf = append(e.buf, k[:]...) }
func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}
func (e *encoder) f64s(v []float64) {
	e.u32(uint32(len(v)))
	for _, f := range v {
		e.f64(f)
	}
}

type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrCorruptRecord, n, d.off, len(d.buf))
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) i32() int32 { return int32(d.u32()) }

func (d *decoder) i64() int64 {
	if b := d.take(8); b != nil {
		return int64(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (d *decoder) f64() float64 {
	if b := d.take(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (d *decoder) key() Key {
	var k Key
	if b := d.take(len(k)); b != nil {
		copy(k[:], b)
	}
	return k
}

// length reads a u32 element count and bounds it by the bytes left so a
// corrupt prefix cannot trigger a huge allocation.
func (d *decoder) length(elemSize int) int {
	n := int(d.u32())
	if d.err == nil && n*elemSize > len(d.buf)-d.off {
		d.err = fmt.Errorf("%w: length %d overruns record", ErrCorruptRecord, n)
		return 0
	}
	return n
}

func (d *decoder) str() string {
	n := d.length(1)
	return string(d.take(n))
}

func (d *decoder) f64s() []float64 {
	n := d.length(8)
	out := make([]float64, n)
	for i := range out {
		out[i] = d.f64()
	}
	return out
}

func (d *decoder) tag(want [8]byte) {
	if b := d.take(8); b != nil && !bytes.Equal(b, want[:]) {
		d.err = fmt.Errorf("%w: unexpected discriminator %q", ErrCorruptRecord, b)
	}
}

// EncodeRegistry serializes r.
func EncodeRegistry(r *Registry) []byte {
	e := &encoder{}
	e.buf = append(e.buf, registryTag[:]...)
	e.str(r.Name)
	e.u8(r.MinReviews)
	e.f64s(r.Weights)
	e.u32(uint32(len(r.Ranges)))
	e.buf = append(e.buf, r.Ranges...)
	e.u32(uint32(len(r.Levels)))
	for _, l := range r.Levels {
		e.f64s(l)
	}
	e.key(r.Mint)
	e.key(r.Authority)
	e.str(r.Domain)
	e.i32(r.LevelWait)
	return e.buf
}

// DecodeRegistry parses a Registry, ignoring zero-filled trailing bytes.
func DecodeRegistry(data []byte) (*Registry, error) {
	d := &decoder{buf: data}
	d.tag(registryTag)
	r := &Registry{}
	r.Name = d.str()
	r.MinReviews = d.u8()
	r.Weights = d.f64s()
	r.Ranges = append([]uint8(nil), d.take(d.length(1))...)
	groups := d.length(4)
	r.Levels = make([][]float64, groups)
	for i := range r.Levels {
		r.Levels[i] = d.f64s()
	}
	r.Mint = d.key()
	r.Authority = d.key()
	r.Domain = d.str()
	r.LevelWait = d.i32()
	if d.err != nil {
		return nil, d.err
	}
	return r, nil
}

// EncodeScore serializes s.
func EncodeScore(s *ScoreRecord) []byte {
	e := &encoder{}
	e.buf = append(e.buf, scoreTag[:]...)
	e.str(s.Name)
	e.f64s(s.Scores)
	e.f64s(s.ScoresSum)
	e.key(s.Applicant)
	e.key(s.Mint)
	e.u32(uint32(len(s.ReviewsReceived)))
	for _, v := range s.ReviewsReceived {
		e.u16(v)
	}
	e.u16(s.ReviewsSent)
	e.u32(uint32(len(s.Levels)))
	e.buf = append(e.buf, s.Levels...)
	e.i64(s.LastUpdate)
	return e.buf
}

// DecodeScore parses a ScoreRecord, ignoring zero-filled trailing bytes.
func DecodeScore(data []byte) (*ScoreRecord, error) {
	d := &decoder{buf: data}
	d.tag(scoreTag)
	s := &ScoreRecord{}
	s.Name = d.str()
	s.Scores = d.f64s()
	s.ScoresSum = d.f64s()
	s.Applicant = d.key()
	s.Mint = d.key()
	s.ReviewsReceived = make([]uint16, d.length(2))
	for i := range s.ReviewsReceived {
		s.ReviewsReceived[i] = d.u16()
	}
	s.ReviewsSent = d.u16()
	s.Levels = append([]uint8(nil), d.take(d.length(1))...)
	s.LastUpdate = d.i64()
	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}
