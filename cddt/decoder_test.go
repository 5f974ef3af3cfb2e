package cddt

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDocument = `cddt:
  lut_translations: [0.5, 0.25]
  max_range: 500
  theta_discretization: 1
  map:
    path: maps/basement.png
    width: 3
    height: 4
    data:
      - [0, 1, 2, 3]
      - [10, 11, 12, 13]
      - [20, 21, 22, 23]
  compressed_lut:
    - theta: 0
      zeros:
        - [2.0, 5.0]
        - [3.0]
        - []
    - theta: 0.5
      zeros:
        - []
        - []
        - []
`

func encodeTestDocument(t *testing.T, doc *Document, c Compression) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, EncodeDocument(&buf, doc, c))
	return buf.Bytes()
}

func TestDecodeDocument_RoundTrip(t *testing.T) {
	doc := testDocument(4)

	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionGzip} {
		t.Run(string(c)+"json", func(t *testing.T) {
			data := encodeTestDocument(t, doc, c)
			switch c {
			case CompressionZstd:
				assert.True(t, bytes.HasPrefix(data, zstdMagic))
			case CompressionGzip:
				assert.True(t, bytes.HasPrefix(data, gzipMagic))
			default:
				assert.Equal(t, byte('{'), data[0])
			}

			got, err := DecodeDocument(data)
			require.NoError(t, err)
			if diff := cmp.Diff(doc, got); diff != "" {
				t.Errorf("document mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeDocument_YAML(t *testing.T) {
	doc, err := DecodeDocument([]byte(yamlDocument))
	require.NoError(t, err)
	require.NotNil(t, doc.CDDT)

	raw := doc.CDDT
	assert.Equal(t, 500.0, raw.MaxRange)
	assert.Equal(t, 1, raw.ThetaDiscretization)
	assert.Equal(t, "maps/basement.png", raw.Map.Path)
	require.Len(t, raw.CompressedLUT, 2)
	if diff := cmp.Diff([][]float64{{2, 5}, {3}, {}}, raw.CompressedLUT[0].Zeros); diff != "" {
		t.Errorf("zeros mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDocument_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"whitespace", []byte("  \n\t ")},
		{"bad json", []byte(`{"cddt": [`)},
		{"bad yaml", []byte("cddt: [unclosed")},
		{"corrupt zstd", append(append([]byte{}, zstdMagic...), 0x00, 0x01)},
		{"corrupt gzip", append(append([]byte{}, gzipMagic...), 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDocument(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestLoadTableBytes(t *testing.T) {
	muteLogs(t)

	table, err := LoadTableBytes([]byte(yamlDocument), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len(), "half of two stored slices")

	table, err = LoadTableBytes(encodeTestDocument(t, testDocument(6), CompressionZstd), LoadOptions{Truncation: TruncateNone})
	require.NoError(t, err)
	assert.Equal(t, 6, table.Len())
}

func TestLoadTableBytes_MissingKey(t *testing.T) {
	muteLogs(t)
	for _, data := range []string{`{"table": {}}`, "other: 1\n"} {
		table, err := LoadTableBytes([]byte(data), LoadOptions{})
		assert.ErrorIs(t, err, ErrFormat, "input %q", data)
		assert.Nil(t, table)
	}
}

func TestLoadTableBytes_SchemaValidation(t *testing.T) {
	muteLogs(t)
	// compressed_lut entries must carry "zeros"
	bad := []byte(`{"cddt": {"max_range": 1, "theta_discretization": 1,
		"map": {"width": 1, "height": 1}, "compressed_lut": [{"theta": 0}, {"theta": 1}]}}`)

	_, err := LoadTableBytes(bad, LoadOptions{ValidateSchema: true})
	assert.ErrorIs(t, err, ErrFormat)

	// Without validation the missing bins load as a degenerate slice.
	table, err := LoadTableBytes(bad, LoadOptions{})
	require.NoError(t, err)
	assert.True(t, table.Slices[0].IsDegenerate())

	_, err = LoadTableBytes([]byte(yamlDocument), LoadOptions{ValidateSchema: true})
	assert.NoError(t, err)
}

func TestValidateDocument(t *testing.T) {
	assert.NoError(t, ValidateDocument(encodeTestDocument(t, testDocument(2), CompressionGzip)))
	assert.NoError(t, ValidateDocument([]byte(yamlDocument)))

	err := ValidateDocument([]byte(`{"cddt": {"max_range": "far"}}`))
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)

	err = ValidateDocument([]byte(`{"something": "else"}`))
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
}

func TestLoadTable_File(t *testing.T) {
	muteLogs(t)
	dir := t.TempDir()

	for _, name := range []string{"table.json", "table.json.zst", "table.json.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, SaveDocument(path, testDocument(4)))

			table, err := LoadTable(path, LoadOptions{})
			require.NoError(t, err)
			assert.Equal(t, 2, table.Len())
		})
	}

	_, err := LoadTable(filepath.Join(dir, "missing.json"), LoadOptions{})
	assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
}

func TestCompressionForPath(t *testing.T) {
	tests := map[string]Compression{
		"a.json":      CompressionNone,
		"a.yaml":      CompressionNone,
		"a.json.zst":  CompressionZstd,
		"a.JSON.ZSTD": CompressionZstd,
		"a.json.gz":   CompressionGzip,
	}
	for path, want := range tests {
		assert.Equal(t, want, CompressionForPath(path), path)
	}
}

func TestEncodeDocument_UnknownCompression(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, EncodeDocument(&buf, testDocument(2), Compression("lz4")))
}

func TestLoadTableBytes_NonFiniteCrossings(t *testing.T) {
	muteLogs(t)
	for _, bad := range []string{".inf", "-.inf", ".nan"} {
		t.Run(bad, func(t *testing.T) {
			data := strings.Replace(yamlDocument, "- [3.0]", "- [3.0, "+bad+"]", 1)
			require.NotEqual(t, yamlDocument, data)

			table, err := LoadTableBytes([]byte(data), LoadOptions{})
			assert.Nil(t, table)
			assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
			assert.Contains(t, err.Error(), "slice 0")
			assert.Contains(t, err.Error(), "bin 1")
		})
	}
}
