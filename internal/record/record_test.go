package record

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/ecg.report/internal/ecg"
)

func testRecord(rows, cols int) *Record {
	m := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, float64(i*10+j))
		}
	}
	return &Record{ID: "rec", Samples: m, FS: 100, Leads: ResolveLeads(nil, cols)}
}

// ---------------------------------------------------------------------------
// Windows
// ---------------------------------------------------------------------------

func TestWindow(t *testing.T) {
	rec := testRecord(1000, 2) // 10 s at 100 Hz

	testCases := []struct {
		name       string
		start, end float64
		wantOffset int
		wantLen    int
	}{
		{"interior", 2, 4, 200, 200},
		{"negative start clamped", -1, 1, 0, 100},
		{"end past record clamped", 9, 20, 900, 100},
		{"whole record", 0, 10, 0, 1000},
		{"sub-sample rounding", 1.004, 1.996, 100, 100},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := rec.Window(tc.start, tc.end)
			require.NoError(t, err)
			assert.Equal(t, tc.wantOffset, w.Offset)
			assert.Equal(t, tc.wantLen, w.Len())
			assert.Equal(t, 2, w.NumLeads())
			assert.Equal(t, rec.Samples.At(tc.wantOffset, 1), w.Samples.At(0, 1))
		})
	}
}

func TestWindow_Empty(t *testing.T) {
	rec := testRecord(1000, 1)
	for _, bounds := range [][2]float64{{5, 5}, {6, 5}, {20, 30}, {-5, -1}} {
		_, err := rec.Window(bounds[0], bounds[1])
		assert.True(t, errors.Is(err, ErrEmptyWindow), "bounds %v: %v", bounds, err)
	}
}

func TestWindow_IsAView(t *testing.T) {
	rec := testRecord(1000, 2)
	w, err := rec.Window(1, 2)
	require.NoError(t, err)
	w.Samples.Set(0, 0, -42)
	assert.Equal(t, -42.0, rec.Samples.At(100, 0))

	// Lead returns a copy.
	lead := w.Lead(0)
	lead[1] = 99
	assert.NotEqual(t, 99.0, rec.Samples.At(101, 0))
}

func TestWindow_Nested(t *testing.T) {
	rec := testRecord(1000, 1)
	w, err := rec.Window(2, 8)
	require.NoError(t, err)
	inner, err := w.Window(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 300, inner.Offset)
	assert.Equal(t, ecg.WindowID{Record: "rec", Start: 300, End: 400}, inner.WindowID())
	assert.Equal(t, 3000.0, inner.Samples.At(0, 0))
}

func TestTail(t *testing.T) {
	rec := testRecord(1000, 1)
	tail := rec.Tail(2.5)
	assert.Equal(t, 250, tail.Len())
	assert.Equal(t, 750, tail.Offset)
	assert.Same(t, rec, rec.Tail(30))
	assert.Same(t, rec, rec.Tail(0))
	assert.InDelta(t, 10, rec.Duration(), 1e-12)
}

func TestResolveLeads(t *testing.T) {
	assert.Equal(t, []string{"I", "II"}, ResolveLeads([]string{"I", " II"}, 2))
	assert.Equal(t, []string{"L1", "L2", "L3"}, ResolveLeads([]string{"I", "II"}, 3))
	assert.Equal(t, []string{"L1"}, ResolveLeads(nil, 1))
	assert.Empty(t, ResolveLeads(nil, 0))
}

// ---------------------------------------------------------------------------
// NPZ
// ---------------------------------------------------------------------------

func TestWriteLoadNPZ_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patient_01.npz")
	rec := testRecord(300, 3)
	rec.Leads = []string{"I", "II", "aVR"}
	require.NoError(t, WriteNPZ(path, rec))

	got, err := LoadNPZ(path)
	require.NoError(t, err)
	assert.Equal(t, "patient_01", got.ID)
	assert.Equal(t, path, got.Path)
	assert.Equal(t, 100.0, got.FS)
	assert.Equal(t, []string{"I", "II", "aVR"}, got.Leads)
	assert.True(t, mat.Equal(rec.Samples, got.Samples))
}

func TestWriteNPZ_Window(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.npz")
	w, err := testRecord(300, 2).Window(1, 2)
	require.NoError(t, err)
	require.NoError(t, WriteNPZ(path, w))

	got, err := LoadNPZ(path)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Len())
	assert.Equal(t, 1001.0, got.Samples.At(0, 1))
}

// npzEntry is one raw array written by writeTestNPZ.
type npzEntry struct {
	name string
	raw  []byte
}

func npyBytes(t *testing.T, descr string, fortran bool, shape string, data interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	h := "{'descr': '" + descr + "', 'fortran_order': "
	if fortran {
		h += "True"
	} else {
		h += "False"
	}
	h += ", 'shape': (" + shape + "), }\n"
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(h))))
	buf.WriteString(h)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, data))
	return buf.Bytes()
}

func writeTestNPZ(t *testing.T, entries ...npzEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.npz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write(e.raw)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestLoadNPZ_DTypesAndLayouts(t *testing.T) {
	fs := npzEntry{"fs.npy", npyBytes(t, "<i8", false, "", []int64{250})}

	testCases := []struct {
		name  string
		sig   npzEntry
		want  [][]float64
		leads []string
	}{
		{
			name: "1-D float32",
			sig:  npzEntry{"signal.npy", npyBytes(t, "<f4", false, "3,", []float32{0.5, -1, 2})},
			want: [][]float64{{0.5}, {-1}, {2}},
		},
		{
			name: "2-D int16 C order",
			sig:  npzEntry{"signal.npy", npyBytes(t, "<i2", false, "2, 3", []int16{1, 2, 3, -4, 5, 6})},
			want: [][]float64{{1, 2, 3}, {-4, 5, 6}},
		},
		{
			name: "2-D float64 Fortran order",
			sig:  npzEntry{"signal.npy", npyBytes(t, "<f8", true, "2, 3", []float64{1, -4, 2, 5, 3, 6})},
			want: [][]float64{{1, 2, 3}, {-4, 5, 6}},
		},
		{
			name: "big endian int32",
			sig: npzEntry{"signal.npy", func() []byte {
				var buf bytes.Buffer
				h := "{'descr': '>i4', 'fortran_order': False, 'shape': (2,), }\n"
				buf.Write(npyMagic)
				buf.Write([]byte{1, 0})
				_ = binary.Write(&buf, binary.LittleEndian, uint16(len(h)))
				buf.WriteString(h)
				_ = binary.Write(&buf, binary.BigEndian, []int32{7, -8})
				return buf.Bytes()
			}()},
			want: [][]float64{{7}, {-8}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := LoadNPZ(writeTestNPZ(t, tc.sig, fs))
			require.NoError(t, err)
			assert.Equal(t, 250.0, rec.FS)
			rows, cols := rec.Samples.Dims()
			got := make([][]float64, rows)
			for i := range got {
				got[i] = make([]float64, cols)
				for j := range got[i] {
					got[i][j] = rec.Samples.At(i, j)
				}
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("samples mismatch (-want +got):\n%s", diff)
			}
			assert.Len(t, rec.Leads, cols)
		})
	}
}

func TestLoadNPZ_NpyioArrays(t *testing.T) {
	npy := func(v interface{}) []byte {
		var buf bytes.Buffer
		require.NoError(t, npyio.Write(&buf, v))
		return buf.Bytes()
	}
	m := mat.NewDense(3, 2, []float64{0.1, -0.2, 0.3, -0.4, 0.5, -0.6})
	path := writeTestNPZ(t,
		npzEntry{"signal.npy", npy(m)},
		npzEntry{"fs.npy", npy([]float64{360})},
	)

	rec, err := LoadNPZ(path)
	require.NoError(t, err)
	assert.Equal(t, 360.0, rec.FS)
	assert.True(t, mat.Equal(m, rec.Samples))
	assert.Equal(t, []string{"L1", "L2"}, rec.Leads)
}

func TestLoadNPZ_Leads(t *testing.T) {
	sig := npzEntry{"signal.npy", npyBytes(t, "<f8", false, "2, 2", []float64{1, 2, 3, 4})}
	fs := npzEntry{"fs.npy", npyBytes(t, "<f8", false, "", []float64{500})}

	t.Run("unicode labels", func(t *testing.T) {
		leads := npzEntry{"leads.npy", npyBytes(t, "<U2", false, "2,", []uint32{'I', 0, 'V', '2'})}
		rec, err := LoadNPZ(writeTestNPZ(t, sig, fs, leads))
		require.NoError(t, err)
		assert.Equal(t, []string{"I", "V2"}, rec.Leads)
	})

	t.Run("count mismatch", func(t *testing.T) {
		leads := npzEntry{"leads.npy", npyBytes(t, "<U2", false, "1,", []uint32{'I', 'I'})}
		rec, err := LoadNPZ(writeTestNPZ(t, sig, fs, leads))
		require.NoError(t, err)
		assert.Equal(t, []string{"L1", "L2"}, rec.Leads)
	})

	t.Run("pickled objects", func(t *testing.T) {
		leads := npzEntry{"leads.npy", npyBytes(t, "|O", false, "2,", []uint64{0, 0})}
		rec, err := LoadNPZ(writeTestNPZ(t, sig, fs, leads))
		require.NoError(t, err)
		assert.Equal(t, []string{"L1", "L2"}, rec.Leads)
	})

	t.Run("absent", func(t *testing.T) {
		rec, err := LoadNPZ(writeTestNPZ(t, sig, fs))
		require.NoError(t, err)
		assert.Equal(t, []string{"L1", "L2"}, rec.Leads)
	})
}

func TestLoadNPZ_Errors(t *testing.T) {
	sig := npzEntry{"signal.npy", npyBytes(t, "<f8", false, "2,", []float64{1, 2})}
	fs := npzEntry{"fs.npy", npyBytes(t, "<f8", false, "", []float64{500})}

	_, err := LoadNPZ(writeTestNPZ(t, fs))
	assert.True(t, errors.Is(err, ErrMissingData), "missing signal: %v", err)

	_, err = LoadNPZ(writeTestNPZ(t, sig))
	assert.True(t, errors.Is(err, ErrMissingData), "missing fs: %v", err)

	badSig := npzEntry{"signal.npy", npyBytes(t, "<c16", false, "1,", []float64{1, 2})}
	_, err = LoadNPZ(writeTestNPZ(t, badSig, fs))
	assert.True(t, errors.Is(err, ErrUnsupportedDType), "complex signal: %v", err)

	_, err = LoadNPZ(filepath.Join(t.TempDir(), "missing.npz"))
	assert.Error(t, err)

	notZip := filepath.Join(t.TempDir(), "bad.npz")
	require.NoError(t, os.WriteFile(notZip, []byte("nope"), 0o644))
	_, err = LoadNPZ(notZip)
	assert.Error(t, err)
}

func TestParseNPYHeader(t *testing.T) {
	h, err := parseNPYHeader("{'descr': '<f8', 'fortran_order': False, 'shape': (5000, 12), }")
	require.NoError(t, err)
	assert.Equal(t, "<f8", h.descr)
	assert.False(t, h.fortran)
	assert.Equal(t, []int{5000, 12}, h.shape)

	h, err = parseNPYHeader("{'descr': '<f8', 'fortran_order': True, 'shape': (), }")
	require.NoError(t, err)
	assert.True(t, h.fortran)
	assert.Empty(t, h.shape)

	_, err = parseNPYHeader("{'fortran_order': False, 'shape': (1,), }")
	assert.Error(t, err)
}
