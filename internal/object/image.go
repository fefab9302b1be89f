package object

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/rvmtoolchain/rvmc/internal/isa"
)

// Magic is the 5-byte marker that opens every binary image, per spec §6:
// "Image = binary blob: magic \"RLINK\"...".
var Magic = [5]byte{'R', 'L', 'I', 'N', 'K'}

// Image is the linker's final loadable artifact: a header naming the entry
// address and section sizes, followed by the concatenated, fully patched
// instruction and data sections (spec §4.5 step 6, §6).
type Image struct {
	EntryAddress uint32
	Instructions []isa.Instruction
	Data         []byte
}

// Encode writes img in the wire format spec §6 fixes: magic, entry address,
// instruction count, N 8-byte instructions, data size, data bytes. Each
// instruction word is 16 bits per spec §4.5, so the 4-word instruction
// packs into 8 bytes; only the low 16 bits of each operand are written,
// since the assembler/linker reject anything that would not fit earlier.
func (img *Image) Encode(w io.Writer) error {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	if err := binary.Write(&buf, binary.BigEndian, img.EntryAddress); err != nil {
		return errors.Wrap(err, "object: encode image entry address")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(img.Instructions))); err != nil {
		return errors.Wrap(err, "object: encode image instruction count")
	}
	for _, inst := range img.Instructions {
		words := [4]uint16{
			uint16(inst.Op),
			uint16(inst.A),
			uint16(inst.B),
			uint16(inst.C),
		}
		for _, word := range words {
			if err := binary.Write(&buf, binary.BigEndian, word); err != nil {
				return errors.Wrap(err, "object: encode image instruction")
			}
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(img.Data))); err != nil {
		return errors.Wrap(err, "object: encode image data size")
	}
	buf.Write(img.Data)
	_, err := w.Write(buf.Bytes())
	return errors.Wrap(err, "object: write image")
}

// DecodeImage reads an Image previously written by Encode.
func DecodeImage(r io.Reader) (*Image, error) {
	var magic [5]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, errors.Wrap(err, "object: read image magic")
	}
	if magic != Magic {
		return nil, errors.Errorf("object: bad image magic %q, want %q", magic, Magic)
	}
	var entry, instCount uint32
	if err := binary.Read(r, binary.BigEndian, &entry); err != nil {
		return nil, errors.Wrap(err, "object: read image entry address")
	}
	if err := binary.Read(r, binary.BigEndian, &instCount); err != nil {
		return nil, errors.Wrap(err, "object: read image instruction count")
	}
	insts := make([]isa.Instruction, instCount)
	for i := range insts {
		var words [4]uint16
		for j := range words {
			if err := binary.Read(r, binary.BigEndian, &words[j]); err != nil {
				return nil, errors.Wrap(err, "object: read image instruction")
			}
		}
		insts[i] = isa.Instruction{
			Op: isa.Op(words[0]),
			A:  int32(words[1]),
			B:  int32(words[2]),
			C:  int32(words[3]),
		}
	}
	var dataSize uint32
	if err := binary.Read(r, binary.BigEndian, &dataSize); err != nil {
		return nil, errors.Wrap(err, "object: read image data size")
	}
	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errors.Wrap(err, "object: read image data")
	}
	return &Image{EntryAddress: entry, Instructions: insts, Data: data}, nil
}
