package record

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sbinet/npyio"
)

// ErrUnsupportedDType is returned for array element types the reader does
// not decode, such as pickled objects.
var ErrUnsupportedDType = errors.New("unsupported dtype")

var npyMagic = []byte("\x93NUMPY")

// npyArray is a decoded .npy array. Numeric data is widened to float64 and
// stored in C (row-major) order; string arrays fill strs instead.
type npyArray struct {
	shape []int
	data  []float64
	strs  []string
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

type npyHeader struct {
	descr   string
	fortran bool
	shape   []int
}

var (
	descrRe   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

func parseNPYHeader(h string) (npyHeader, error) {
	var hdr npyHeader
	m := descrRe.FindStringSubmatch(h)
	if m == nil {
		return hdr, fmt.Errorf("npy header missing descr: %q", h)
	}
	hdr.descr = m[1]
	if m = fortranRe.FindStringSubmatch(h); m == nil {
		return hdr, fmt.Errorf("npy header missing fortran_order: %q", h)
	}
	hdr.fortran = m[1] == "True"
	if m = shapeRe.FindStringSubmatch(h); m == nil {
		return hdr, fmt.Errorf("npy header missing shape: %q", h)
	}
	for _, f := range strings.Split(m[1], ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		d, err := strconv.Atoi(strings.TrimSuffix(f, "L"))
		if err != nil || d < 0 {
			return hdr, fmt.Errorf("npy header bad shape %q", m[1])
		}
		hdr.shape = append(hdr.shape, d)
	}
	return hdr, nil
}

// readNPYNumeric decodes a numeric .npy array with npyio and widens it to
// float64 in C order.
func readNPYNumeric(r io.Reader) (*npyArray, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read npy header: %w", err)
	}
	descr := nr.Header.Descr
	arr := &npyArray{shape: descr.Shape}
	n := shapeSize(descr.Shape)
	if arr.data, err = readWidened(nr, strings.TrimLeft(descr.Type, "<>|="), n); err != nil {
		return nil, fmt.Errorf("%w %q", err, descr.Type)
	}
	if descr.Fortran && len(arr.shape) == 2 {
		arr.data = fortranToC(arr.data, arr.shape[0], arr.shape[1])
	}
	return arr, nil
}

func readWidened(nr *npyio.Reader, kind string, n int) ([]float64, error) {
	switch kind {
	case "f8":
		v := make([]float64, n)
		if err := nr.Read(&v); err != nil {
			return nil, err
		}
		return v, nil
	case "f4":
		v := make([]float32, n)
		return widen(v, nr.Read(&v))
	case "i1":
		v := make([]int8, n)
		return widen(v, nr.Read(&v))
	case "i2":
		v := make([]int16, n)
		return widen(v, nr.Read(&v))
	case "i4":
		v := make([]int32, n)
		return widen(v, nr.Read(&v))
	case "i8":
		v := make([]int64, n)
		return widen(v, nr.Read(&v))
	case "u1":
		v := make([]uint8, n)
		return widen(v, nr.Read(&v))
	case "u2":
		v := make([]uint16, n)
		return widen(v, nr.Read(&v))
	case "u4":
		v := make([]uint32, n)
		return widen(v, nr.Read(&v))
	}
	return nil, ErrUnsupportedDType
}

func widen[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | float32](v []T, err error) ([]float64, error) {
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out, nil
}

// readNPYStrings decodes a fixed-width unicode .npy array, versions 1 to 3.
// npyio has no decoder for the '<U' dtype numpy uses for label arrays.
func readNPYStrings(r io.Reader) (*npyArray, error) {
	br := bufio.NewReader(r)
	pre := make([]byte, 8)
	if _, err := io.ReadFull(br, pre); err != nil {
		return nil, fmt.Errorf("read npy preamble: %w", err)
	}
	if !bytes.Equal(pre[:6], npyMagic) {
		return nil, fmt.Errorf("not an npy array")
	}
	var hlen int
	switch pre[6] {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("read npy header length: %w", err)
		}
		hlen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("read npy header length: %w", err)
		}
		hlen = int(n)
	default:
		return nil, fmt.Errorf("npy version %d.%d not supported", pre[6], pre[7])
	}
	raw := make([]byte, hlen)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("read npy header: %w", err)
	}
	hdr, err := parseNPYHeader(string(raw))
	if err != nil {
		return nil, err
	}
	if len(hdr.descr) < 3 || hdr.descr[1] != 'U' {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedDType, hdr.descr)
	}
	width, err := strconv.Atoi(hdr.descr[2:])
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedDType, hdr.descr)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if hdr.descr[0] == '>' {
		order = binary.BigEndian
	}
	arr := &npyArray{shape: hdr.shape}
	if arr.strs, err = readUnicode(br, order, shapeSize(hdr.shape), width); err != nil {
		return nil, err
	}
	return arr, nil
}

// readUnicode decodes n fixed-width UTF-32 strings of width code points,
// trimming trailing NULs.
func readUnicode(r io.Reader, order binary.ByteOrder, n, width int) ([]string, error) {
	buf := make([]byte, n*width*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read npy strings: %w", err)
	}
	out := make([]string, n)
	for i := range out {
		var sb strings.Builder
		for j := 0; j < width; j++ {
			off := (i*width + j) * 4
			cp := rune(order.Uint32(buf[off : off+4]))
			if cp == 0 {
				break
			}
			if !utf8.ValidRune(cp) {
				cp = utf8.RuneError
			}
			sb.WriteRune(cp)
		}
		out[i] = sb.String()
	}
	return out, nil
}

func fortranToC(data []float64, rows, cols int) []float64 {
	out := make([]float64, len(data))
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			out[r*cols+c] = data[c*rows+r]
		}
	}
	return out
}

// writeNPYHeader writes a version 1.0 preamble and header padded to a
// multiple of 64 bytes.
func writeNPYHeader(w io.Writer, descr string, shape []int) error {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	shp := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shp += ","
	}
	h := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, shp)
	total := len(npyMagic) + 2 + 2 + len(h) + 1
	if rem := total % 64; rem != 0 {
		h += strings.Repeat(" ", 64-rem)
	}
	h += "\n"

	var pre bytes.Buffer
	pre.Write(npyMagic)
	pre.Write([]byte{1, 0})
	if err := binary.Write(&pre, binary.LittleEndian, uint16(len(h))); err != nil {
		return err
	}
	pre.WriteString(h)
	_, err := w.Write(pre.Bytes())
	return err
}

func writeNPYStrings(w io.Writer, strs []string) error {
	width := 1
	for _, s := range strs {
		width = max(width, utf8.RuneCountInString(s))
	}
	if err := writeNPYHeader(w, fmt.Sprintf("<U%d", width), []int{len(strs)}); err != nil {
		return err
	}
	buf := make([]uint32, len(strs)*width)
	for i, s := range strs {
		j := 0
		for _, r := range s {
			buf[i*width+j] = uint32(r)
			j++
		}
	}
	return binary.Write(w, binary.LittleEndian, buf)
}
