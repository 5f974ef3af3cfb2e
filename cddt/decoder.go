package cddt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// Format identifies the text encoding of a CDDT document
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// Compression identifies an optional compression wrapper around a document
type Compression string

const (
	CompressionNone Compression = ""
	CompressionZstd Compression = "zstd"
	CompressionGzip Compression = "gzip"
)

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	gzipMagic = []byte{0x1F, 0x8B}
)

// ParseFile reads and decodes a CDDT document from disk or an http(s) URL
func ParseFile(path string) (*Document, error) {
	data, err := ReadSource(context.Background(), path)
	if err != nil {
		return nil, err
	}
	return DecodeDocument(data)
}

// DecodeDocument decodes CDDT data from any supported layout:
// - zstd or gzip compressed payloads (sniffed by magic bytes)
// - JSON (first non-space byte is '{')
// - YAML (anything else)
func DecodeDocument(data []byte) (*Document, error) {
	body, format, err := unwrapPayload(data)
	if err != nil {
		return nil, err
	}
	return parseBody(body, format)
}

// unwrapPayload strips any compression and reports the text format.
func unwrapPayload(data []byte) ([]byte, Format, error) {
	if len(data) == 0 {
		return nil, FormatJSON, fmt.Errorf("empty data")
	}

	body := data
	var err error
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		body, err = inflateZstd(data)
		if err != nil {
			return nil, FormatJSON, fmt.Errorf("decompressing zstd data: %w", err)
		}
	case bytes.HasPrefix(data, gzipMagic):
		body, err = inflateGzip(data)
		if err != nil {
			return nil, FormatJSON, fmt.Errorf("decompressing gzip data: %w", err)
		}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, FormatJSON, fmt.Errorf("decoded payload is empty")
	}
	if trimmed[0] == '{' {
		return trimmed, FormatJSON, nil
	}
	return trimmed, FormatYAML, nil
}

func parseBody(body []byte, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	}
	return &doc, nil
}

func inflateZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

func inflateGzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	return io.ReadAll(zr)
}

// EncodeDocument writes doc as JSON, optionally compressed.
func EncodeDocument(w io.Writer, doc *Document, compression Compression) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}

	switch compression {
	case CompressionNone:
		_, err = w.Write(payload)
		return err
	case CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("creating zstd writer: %w", err)
		}
		bw := bufio.NewWriterSize(enc, 256*1024)
		if _, err := bw.Write(payload); err != nil {
			_ = enc.Close()
			return err
		}
		if err := bw.Flush(); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	case CompressionGzip:
		zw := gzip.NewWriter(w)
		if _, err := zw.Write(payload); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	}
	return fmt.Errorf("unsupported compression %q", compression)
}

// SaveDocument writes doc to path, picking compression from the extension
// (.zst or .gz).
func SaveDocument(path string, doc *Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := EncodeDocument(f, doc, CompressionForPath(path)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// CompressionForPath infers the compression from a file name
func CompressionForPath(path string) Compression {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return CompressionZstd
	case strings.HasSuffix(lower, ".gz"):
		return CompressionGzip
	}
	return CompressionNone
}

// LoadTable loads a serialized CDDT from disk. http(s) paths are fetched.
func LoadTable(path string, opts LoadOptions) (*Table, error) {
	if IsRemotePath(path) {
		return FetchTable(context.Background(), path, opts)
	}
	Logf("Loading CDDT: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return LoadTableBytes(data, opts)
}

// LoadTableBytes decodes, optionally validates, and builds a Table
func LoadTableBytes(data []byte, opts LoadOptions) (*Table, error) {
	body, format, err := unwrapPayload(data)
	if err != nil {
		return nil, err
	}

	Logf("..parsing %s", format)
	doc, err := parseBody(body, format)
	if err != nil {
		return nil, err
	}
	if doc.CDDT == nil {
		return nil, fmt.Errorf("%w: missing top-level %q key", ErrFormat, "cddt")
	}

	if opts.ValidateSchema {
		if err := validateBody(body, format); err != nil {
			return nil, err
		}
	}

	return NewTable(doc, opts)
}
