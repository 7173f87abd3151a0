// Package xlsb reads numeric cell values from binary workbook (.xlsb) files.
//
// It is deliberately narrow: the pricing loader only needs cached numeric
// values from a handful of cells on one worksheet, so this parser understands
// just the BIFF12 framing, the sheet directory, row headers, and the three
// numeric cell record shapes. Strings, styles, and formula bodies are
// skipped.
package xlsb

import (
	"archive/zip"
	"bufio"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
)

// ErrSheetNotFound is returned by Workbook.Sheet for an unknown sheet name.
var ErrSheetNotFound = errors.New("xlsb: sheet not found")

// BIFF12 record type identifiers, per the binary workbook part format.
const (
	recRowHdr   = 0
	recCellRk   = 2
	recCellReal = 5
	recFmlaNum  = 9
	recBundleSh = 156
)

// Workbook is an open .xlsb container. It holds the zip reader for the
// lifetime of the value; Close releases it.
type Workbook struct {
	zr *zip.ReadCloser
	// sheet name -> zip part path (e.g. xl/worksheets/sheet1.bin)
	sheets map[string]string
}

// Open opens path and indexes its worksheets.
func Open(filename string) (*Workbook, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("xlsb: open %s: %w", filename, err)
	}

	wb := &Workbook{zr: zr, sheets: map[string]string{}}
	if err := wb.indexSheets(); err != nil {
		zr.Close()
		return nil, err
	}
	return wb, nil
}

// Close releases the underlying archive.
func (w *Workbook) Close() error {
	return w.zr.Close()
}

// HasSheet reports whether the workbook contains a sheet with the given name.
func (w *Workbook) HasSheet(name string) bool {
	_, ok := w.sheets[name]
	return ok
}

// Sheet parses the named worksheet and returns its numeric cells.
func (w *Workbook) Sheet(name string) (*Sheet, error) {
	part, ok := w.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, name)
	}

	f, err := w.open(part)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := &Sheet{values: map[cellKey]float64{}}
	if err := parseSheet(bufio.NewReader(f), sheet); err != nil {
		return nil, fmt.Errorf("xlsb: parse sheet %s: %w", name, err)
	}
	return sheet, nil
}

// Sheet holds the numeric cells of one worksheet.
type Sheet struct {
	values map[cellKey]float64
}

type cellKey struct {
	row uint32 // 0-based
	col uint32 // 0-based
}

// Number returns the numeric value of the cell at the given column letters
// and 1-based row, and whether such a cell exists. Non-numeric cells are
// invisible to this reader and report false.
func (s *Sheet) Number(col string, row int) (float64, bool) {
	ci, err := ColumnIndex(col)
	if err != nil || row < 1 {
		return 0, false
	}
	v, ok := s.values[cellKey{row: uint32(row - 1), col: uint32(ci)}]
	return v, ok
}

// ColumnIndex converts column letters ("A", "J", "AA") to a 0-based index.
func ColumnIndex(col string) (int, error) {
	if col == "" {
		return 0, errors.New("xlsb: empty column reference")
	}
	n := 0
	for _, ch := range strings.ToUpper(col) {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("xlsb: invalid column reference %q", col)
		}
		n = n*26 + int(ch-'A'+1)
	}
	return n - 1, nil
}

// ---------------------------------------------------------------------------
// Container plumbing

func (w *Workbook) open(name string) (io.ReadCloser, error) {
	for _, f := range w.zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("xlsb: missing archive part %s", name)
}

// relationships is the workbook rels part, mapping rIds to sheet targets.
type relationships struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

func (w *Workbook) indexSheets() error {
	rels, err := w.readRels("xl/_rels/workbook.bin.rels")
	if err != nil {
		return err
	}

	f, err := w.open("xl/workbook.bin")
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		id, payload, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("xlsb: parse workbook part: %w", err)
		}
		if id != recBundleSh {
			continue
		}
		name, relID, err := parseBundleSh(payload)
		if err != nil {
			return fmt.Errorf("xlsb: parse sheet entry: %w", err)
		}
		target, ok := rels[relID]
		if !ok {
			continue
		}
		w.sheets[name] = resolveTarget(target)
	}
	return nil
}

func (w *Workbook) readRels(name string) (map[string]string, error) {
	f, err := w.open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rels relationships
	if err := xml.NewDecoder(f).Decode(&rels); err != nil {
		return nil, fmt.Errorf("xlsb: parse %s: %w", name, err)
	}
	out := make(map[string]string, len(rels.Rels))
	for _, rel := range rels.Rels {
		out[rel.ID] = rel.Target
	}
	return out, nil
}

func resolveTarget(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join("xl", target)
}

// ---------------------------------------------------------------------------
// Record stream

// readRecord reads one framed record: a 7-bit variable-length type id
// (1–2 bytes) followed by a 7-bit variable-length payload size (1–4 bytes).
func readRecord(r *bufio.Reader) (id int, payload []byte, err error) {
	b1, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	id = int(b1 & 0x7F)
	if b1&0x80 != 0 {
		b2, err := r.ReadByte()
		if err != nil {
			return 0, nil, unexpectedEOF(err)
		}
		id |= int(b2&0x7F) << 7
	}

	size := 0
	for shift := 0; ; shift += 7 {
		if shift > 21 {
			return 0, nil, errors.New("record size varint too long")
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, nil, unexpectedEOF(err)
		}
		size |= int(b&0x7F) << shift
		if b&0x80 == 0 {
			break
		}
	}

	payload = make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, unexpectedEOF(err)
	}
	return id, payload, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// parseBundleSh extracts the sheet name and relationship id from a
// BrtBundleSh payload: hsState(4) iTabID(4) relID(nullable wide string)
// name(wide string).
func parseBundleSh(p []byte) (name, relID string, err error) {
	if len(p) < 8 {
		return "", "", io.ErrUnexpectedEOF
	}
	p = p[8:]

	relID, p, err = readNullableWideString(p)
	if err != nil {
		return "", "", err
	}
	name, _, err = readWideString(p)
	if err != nil {
		return "", "", err
	}
	return name, relID, nil
}

func readNullableWideString(p []byte) (string, []byte, error) {
	if len(p) < 4 {
		return "", nil, io.ErrUnexpectedEOF
	}
	cch := binary.LittleEndian.Uint32(p)
	if cch == 0xFFFFFFFF {
		return "", p[4:], nil
	}
	return decodeWide(p[4:], cch)
}

func readWideString(p []byte) (string, []byte, error) {
	if len(p) < 4 {
		return "", nil, io.ErrUnexpectedEOF
	}
	return decodeWide(p[4:], binary.LittleEndian.Uint32(p))
}

func decodeWide(p []byte, cch uint32) (string, []byte, error) {
	n := int(cch) * 2
	if n < 0 || len(p) < n {
		return "", nil, io.ErrUnexpectedEOF
	}
	u16 := make([]rune, 0, cch)
	for i := 0; i < n; i += 2 {
		u16 = append(u16, rune(binary.LittleEndian.Uint16(p[i:])))
	}
	return string(u16), p[n:], nil
}

// parseSheet walks a worksheet part collecting numeric cells. Row position
// comes from the preceding row-header record; every cell record starts with
// its column and style reference.
func parseSheet(r *bufio.Reader, sheet *Sheet) error {
	var row uint32
	for {
		id, payload, err := readRecord(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch id {
		case recRowHdr:
			if len(payload) < 4 {
				return io.ErrUnexpectedEOF
			}
			row = binary.LittleEndian.Uint32(payload)

		case recCellReal, recFmlaNum:
			// col(4) style+flags(4) xnum(8); formula records carry the
			// cached result first, which is all we need.
			if len(payload) < 16 {
				return io.ErrUnexpectedEOF
			}
			col := binary.LittleEndian.Uint32(payload)
			bits := binary.LittleEndian.Uint64(payload[8:])
			sheet.values[cellKey{row: row, col: col}] = math.Float64frombits(bits)

		case recCellRk:
			if len(payload) < 12 {
				return io.ErrUnexpectedEOF
			}
			col := binary.LittleEndian.Uint32(payload)
			raw := binary.LittleEndian.Uint32(payload[8:])
			sheet.values[cellKey{row: row, col: col}] = decodeRk(raw)
		}
	}
}

// decodeRk expands the packed RK number encoding: bit 0 divides by 100,
// bit 1 selects integer vs truncated-double representation.
func decodeRk(raw uint32) float64 {
	var v float64
	if raw&0x2 != 0 {
		v = float64(int32(raw) >> 2)
	} else {
		v = math.Float64frombits(uint64(raw&0xFFFFFFFC) << 32)
	}
	if raw&0x1 != 0 {
		v /= 100
	}
	return v
}
