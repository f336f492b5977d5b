package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wudi/docseal/ir/raw"
)

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()
	return buf.Bytes()
}

func predictorParams(predictor, colors, columns int64) *raw.DictObj {
	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(predictor))
	params.Set("Colors", raw.NumberInt(colors))
	params.Set("BitsPerComponent", raw.NumberInt(8))
	params.Set("Columns", raw.NumberInt(columns))
	return params
}

func TestFlateDecode(t *testing.T) {
	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), zlibBytes(t, []byte("hello world")), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()

	out, err := NewFlateDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	comp := zlibBytes(t, []byte{1, 10, 12, 20})
	out, err := NewFlateDecoder().Decode(context.Background(), comp, predictorParams(12, 1, 3))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestPNGPredictorRows(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"up", []byte{0, 1, 2, 2, 1, 1}, []byte{1, 2, 2, 3}},
		{"average", []byte{0, 4, 8, 3, 2, 2}, []byte{4, 8, 4, 8}},
		{"paeth", []byte{0, 5, 9, 4, 1, 1}, []byte{5, 9, 6, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := applyPredictor(tt.in, predictorParams(15, 1, 2))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(out, tt.want) {
				t.Fatalf("unexpected rows: got %v want %v", out, tt.want)
			}
		})
	}
}

func TestTIFFPredictor(t *testing.T) {
	out, err := applyPredictor([]byte{10, 1, 1, 5, 5, 5}, predictorParams(2, 1, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, []byte{10, 11, 12, 5, 10, 15}) {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	input := []byte("hello hello hello")
	if _, err := w.Write(input); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	for _, early := range []int64{0, 1} {
		params := raw.Dict()
		params.Set("EarlyChange", raw.NumberInt(early))
		out, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), params)
		if err != nil {
			t.Fatalf("early change %d: decode error: %v", early, err)
		}
		if !bytes.Equal(out, input) {
			t.Fatalf("early change %d: unexpected output: %q", early, out)
		}
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("68 656c6c6f20776f726c6\n>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello worl`" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestDCTPassThrough(t *testing.T) {
	in := []byte{0xff, 0xd8, 0xff, 0xd9}
	out, err := NewDCTDecoder().Decode(context.Background(), in, nil)
	if err != nil || !bytes.Equal(out, in) {
		t.Fatalf("expected pass-through, got %v %v", out, err)
	}
	if !IsPassThrough("DCT") {
		t.Fatalf("abbreviated DCT name not recognised")
	}
}

func TestPipelineChainsFilters(t *testing.T) {
	comp := zlibBytes(t, []byte("chained"))
	hexed := []byte{}
	const digits = "0123456789abcdef"
	for _, b := range comp {
		hexed = append(hexed, digits[b>>4], digits[b&0x0f])
	}
	hexed = append(hexed, '>')

	p := NewDefaultPipeline(Limits{})
	out, err := p.Decode(context.Background(), hexed, []string{"AHx", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("pipeline decode error: %v", err)
	}
	if string(out) != "chained" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineLimits(t *testing.T) {
	p := NewDefaultPipeline(Limits{MaxDecompressedSize: 8})
	_, err := p.Decode(context.Background(), zlibBytes(t, bytes.Repeat([]byte("x"), 64)), []string{"FlateDecode"}, nil)
	if !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("expected size limit error, got %v", err)
	}

	p = NewDefaultPipeline(Limits{MaxDecodeTime: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Decode(ctx, []byte("00>"), []string{"ASCIIHexDecode"}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled context, got %v", err)
	}
}

func TestUnsupportedFilters(t *testing.T) {
	fp := NewDefaultPipeline(Limits{})
	_, err := fp.Decode(context.Background(), []byte{0x00}, []string{"JPXDecode"}, nil)
	var ue UnsupportedError
	if err == nil || !errors.As(err, &ue) || ue.Filter != "JPXDecode" {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestExtractFilters(t *testing.T) {
	parms := raw.Dict()
	parms.Set("Predictor", raw.NumberInt(12))
	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.NameLiteral("ASCII85Decode"), raw.NameLiteral("FlateDecode")))
	dict.Set("DecodeParms", raw.NewArray(raw.NullObj{}, parms))

	names, params := ExtractFilters(nil, dict)
	if len(names) != 2 || names[1] != "FlateDecode" {
		t.Fatalf("unexpected names %v", names)
	}
	if len(params) != 2 || params[0] != nil || params[1] != parms {
		t.Fatalf("params not aligned with filters: %v", params)
	}

	single := raw.Dict()
	single.Set("Filter", raw.NameLiteral("FlateDecode"))
	single.Set("DecodeParms", parms)
	if _, params := ExtractFilters(nil, single); len(params) != 1 || params[0] != parms {
		t.Fatalf("unexpected single params %v", params)
	}
}
