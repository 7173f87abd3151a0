package xlsb

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// The fixtures below are hand-assembled BIFF12 parts covering exactly the
// record subset the reader understands.

func appendRecord(buf *bytes.Buffer, id int, payload []byte) {
	if id < 0x80 {
		buf.WriteByte(byte(id))
	} else {
		buf.WriteByte(byte(id&0x7F) | 0x80)
		buf.WriteByte(byte(id >> 7))
	}

	size := len(payload)
	for {
		b := byte(size & 0x7F)
		size >>= 7
		if size != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if size == 0 {
			break
		}
	}
	buf.Write(payload)
}

func wideString(s string) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(s)))
	for _, r := range s {
		out = binary.LittleEndian.AppendUint16(out, uint16(r))
	}
	return out
}

func bundleShPayload(relID, name string) []byte {
	out := make([]byte, 8) // hsState, iTabID
	out = append(out, wideString(relID)...)
	out = append(out, wideString(name)...)
	return out
}

func rowHdr(row uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, row)
}

func cellHeader(col uint32) []byte {
	out := binary.LittleEndian.AppendUint32(nil, col)
	return binary.LittleEndian.AppendUint32(out, 0) // style + flags
}

func cellReal(col uint32, v float64) []byte {
	return binary.LittleEndian.AppendUint64(cellHeader(col), math.Float64bits(v))
}

func cellRk(col, raw uint32) []byte {
	return binary.LittleEndian.AppendUint32(cellHeader(col), raw)
}

func cellFmlaNum(col uint32, v float64) []byte {
	out := binary.LittleEndian.AppendUint64(cellHeader(col), math.Float64bits(v))
	// Trailing formula body; the reader must ignore it.
	return append(out, 0xDE, 0xAD, 0xBE, 0xEF)
}

func rkInt(v int32) uint32      { return uint32(v)<<2 | 0x2 }
func rkIntX100(v int32) uint32  { return uint32(v)<<2 | 0x3 }
func rkDouble(v float64) uint32 { return uint32(math.Float64bits(v)>>32) & 0xFFFFFFFC }

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.microsoft.com/office/2006/relationships/xlBinary" Target="worksheets/sheet1.bin"/>
</Relationships>`

// writeFixture assembles a .xlsb archive containing one sheet.
func writeFixture(t *testing.T, sheetName string, sheetPart []byte) string {
	t.Helper()

	var workbook bytes.Buffer
	appendRecord(&workbook, recBundleSh, bundleShPayload("rId1", sheetName))

	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)
	for name, data := range map[string][]byte{
		"xl/workbook.bin":             workbook.Bytes(),
		"xl/_rels/workbook.bin.rels":  []byte(relsXML),
		"xl/worksheets/sheet1.bin":    sheetPart,
	} {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	path := filepath.Join(t.TempDir(), "fixture.xlsb")
	if err := os.WriteFile(path, zbuf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestSheet_ReadsAllNumericCellShapes(t *testing.T) {
	var sheet bytes.Buffer
	appendRecord(&sheet, recRowHdr, rowHdr(3)) // row 4 in A1 terms
	appendRecord(&sheet, recCellReal, cellReal(9, 1234.56))
	appendRecord(&sheet, recCellRk, cellRk(10, rkInt(42)))
	appendRecord(&sheet, recRowHdr, rowHdr(17)) // row 18
	appendRecord(&sheet, recCellRk, cellRk(9, rkIntX100(1299)))
	appendRecord(&sheet, recCellRk, cellRk(11, rkDouble(2.5)))
	appendRecord(&sheet, recFmlaNum, cellFmlaNum(12, 88.25))

	path := writeFixture(t, "Summary", sheet.Bytes())
	wb, err := Open(path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer wb.Close()

	if !wb.HasSheet("Summary") {
		t.Fatal("expected Summary sheet to be indexed")
	}

	s, err := wb.Sheet("Summary")
	if err != nil {
		t.Fatalf("parse sheet: %v", err)
	}

	cases := []struct {
		col  string
		row  int
		want float64
	}{
		{"J", 4, 1234.56},
		{"K", 4, 42},
		{"J", 18, 12.99},
		{"L", 18, 2.5},
		{"M", 18, 88.25},
	}
	for _, c := range cases {
		got, ok := s.Number(c.col, c.row)
		if !ok {
			t.Fatalf("cell %s%d missing", c.col, c.row)
		}
		if math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("cell %s%d = %v, want %v", c.col, c.row, got, c.want)
		}
	}

	if _, ok := s.Number("A", 1); ok {
		t.Fatal("unwritten cell should not exist")
	}
}

func TestSheet_UnknownNameFails(t *testing.T) {
	var sheet bytes.Buffer
	appendRecord(&sheet, recRowHdr, rowHdr(0))
	appendRecord(&sheet, recCellReal, cellReal(0, 1))

	path := writeFixture(t, "Summary", sheet.Bytes())
	wb, err := Open(path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer wb.Close()

	if wb.HasSheet("Costs") {
		t.Fatal("unexpected sheet")
	}
	if _, err := wb.Sheet("Costs"); !errors.Is(err, ErrSheetNotFound) {
		t.Fatalf("expected ErrSheetNotFound, got %v", err)
	}
}

func TestOpen_RejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsb")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for corrupt archive")
	}
}

func TestColumnIndex(t *testing.T) {
	cases := map[string]int{"A": 0, "J": 9, "Z": 25, "AA": 26, "AB": 27}
	for col, want := range cases {
		got, err := ColumnIndex(col)
		if err != nil {
			t.Fatalf("ColumnIndex(%q) error: %v", col, err)
		}
		if got != want {
			t.Fatalf("ColumnIndex(%q) = %d, want %d", col, got, want)
		}
	}
	if _, err := ColumnIndex("J4"); err == nil {
		t.Fatal("expected error for mixed reference")
	}
}
