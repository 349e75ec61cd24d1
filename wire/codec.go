package wire

import (
	"encoding/binary"
	"math"
)

// commandHeaderSize is the id and size prefix of every command.
const commandHeaderSize = 8

// encoder appends little-endian fields to a byte slice.
type encoder struct {
	buf []byte
}

func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *encoder) boolean(v bool) {
	if v {
		e.u32(1)
		return
	}
	e.u32(0)
}

func (e *encoder) handle(h ObjectHandle) {
	e.u32(h.ID)
	e.u32(h.Serial)
}

func (e *encoder) bytes(b []byte) {
	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) ids(v []uint32) {
	e.u32(uint32(len(v)))
	for _, id := range v {
		e.u32(id)
	}
}

// decoder reads little-endian fields. The first failure sticks; later reads
// return zero values.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int, field string) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf) {
		d.err = ProtocolError("truncated %s: need %d bytes, have %d", field, n, len(d.buf))
		return nil
	}
	b := d.buf[:n:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) u32(field string) uint32 {
	b := d.take(4, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) u64(field string) uint64 {
	b := d.take(8, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) boolean(field string) bool {
	v := d.u32(field)
	if v > 1 && d.err == nil {
		d.err = ProtocolError("%s: invalid bool %d", field, v)
	}
	return v == 1
}

func (d *decoder) handle(field string) ObjectHandle {
	return ObjectHandle{ID: d.u32(field), Serial: d.u32(field)}
}

func (d *decoder) bytes(field string) []byte {
	n := d.u32(field)
	if n > math.MaxInt32 {
		d.err = ProtocolError("%s: length %d", field, n)
		return nil
	}
	b := d.take(int(n), field)
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

func (d *decoder) str(field string) string {
	n := d.u32(field)
	if n > math.MaxInt32 {
		d.err = ProtocolError("%s: length %d", field, n)
		return ""
	}
	return string(d.take(int(n), field))
}

func (d *decoder) ids(field string) []uint32 {
	n := d.u32(field)
	if uint64(n)*4 > uint64(len(d.buf)) {
		if d.err == nil {
			d.err = ProtocolError("%s: %d ids exceed command", field, n)
		}
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = d.u32(field)
	}
	return out
}

// AppendCommand appends the encoded form of cmd to dst.
func AppendCommand(dst []byte, cmd Command) []byte {
	e := encoder{buf: dst}
	start := len(e.buf)
	e.u32(uint32(cmd.ID()))
	e.u32(0)
	cmd.encode(&e)
	binary.LittleEndian.PutUint32(e.buf[start+4:], uint32(len(e.buf)-start))
	return e.buf
}

// NextCommand decodes the first command of b and returns the bytes after
// it. Unknown command ids, sizes that disagree with the payload and
// truncated fields are protocol errors.
func NextCommand(b []byte) (Command, []byte, error) {
	if len(b) < commandHeaderSize {
		return nil, nil, ProtocolError("truncated command header: %d bytes", len(b))
	}
	id := CommandID(binary.LittleEndian.Uint32(b))
	size := binary.LittleEndian.Uint32(b[4:])
	if size < commandHeaderSize || uint64(size) > uint64(len(b)) {
		return nil, nil, ProtocolError("command %v: size %d out of range (%d bytes left)", id, size, len(b))
	}
	cmd := newCommand(id)
	if cmd == nil {
		return nil, nil, ProtocolError("unknown command id %d", uint32(id))
	}
	d := decoder{buf: b[commandHeaderSize:size]}
	cmd.decode(&d)
	if d.err != nil {
		return nil, nil, d.err
	}
	if len(d.buf) != 0 {
		return nil, nil, ProtocolError("command %v: %d trailing bytes", id, len(d.buf))
	}
	return cmd, b[size:], nil
}

// DecodeCommands calls fn for every command in payload, in order, and stops
// at the first decode or handler error.
func DecodeCommands(payload []byte, fn func(Command) error) error {
	for len(payload) > 0 {
		cmd, rest, err := NextCommand(payload)
		if err != nil {
			return err
		}
		if err := fn(cmd); err != nil {
			return err
		}
		payload = rest
	}
	return nil
}
