// Package filters decodes and encodes PDF stream data.
package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wudi/regionedit/ir/raw"
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary) ([]byte, error)
}

// UnsupportedError reports a filter the pipeline cannot decode. Image
// codecs (DCT, JPX, JBIG2, CCITT) fall in this class: their payloads never
// hold text.
type UnsupportedError struct{ Filter string }

func (e UnsupportedError) Error() string { return "unsupported filter: " + e.Filter }

// ErrLimit is returned when decoded data exceeds the configured limits.
var ErrLimit = errors.New("decode limit exceeded")

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// DefaultPipeline decodes every text-bearing filter.
func DefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
	}, limits)
}

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec := p.findDecoder(expandAbbreviation(name))
		if dec == nil {
			return nil, UnsupportedError{Filter: name}
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, fmt.Errorf("%s: %w", name, ErrLimit)
		}
		data = out
	}
	return data, nil
}

// DecodeStream runs the filters named in the stream dictionary. An
// unfiltered stream is returned as is.
func (p *Pipeline) DecodeStream(ctx context.Context, st *raw.StreamObj) ([]byte, error) {
	names, params := streamFilters(st.Dict)
	if len(names) == 0 {
		return st.Data, nil
	}
	return p.Decode(ctx, st.Data, names, params)
}

// streamFilters lists the /Filter chain of a stream and the /DecodeParms
// aligned with it. Both entries may be a single value or an array.
func streamFilters(dict raw.Dictionary) (names []string, params []raw.Dictionary) {
	f, _ := dict.Get(raw.NameObj{Val: "Filter"})
	for _, o := range items(f) {
		if n, ok := o.(raw.Name); ok {
			names = append(names, n.Value())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	p, _ := dict.Get(raw.NameObj{Val: "DecodeParms"})
	for _, o := range items(p) {
		// null entries keep later parameters aligned with their filters
		d, _ := o.(raw.Dictionary)
		params = append(params, d)
	}
	return names, params
}

func items(o raw.Object) []raw.Object {
	switch v := o.(type) {
	case nil:
		return nil
	case *raw.ArrayObj:
		return v.Items
	}
	return []raw.Object{o}
}

// expandAbbreviation maps inline-image filter abbreviations.
func expandAbbreviation(name string) string {
	switch name {
	case "Fl":
		return "FlateDecode"
	case "LZW":
		return "LZWDecode"
	case "A85":
		return "ASCII85Decode"
	case "AHx":
		return "ASCIIHexDecode"
	case "RL":
		return "RunLengthDecode"
	}
	return name
}

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }
func NewFlateDecoder() Decoder    { return flateDecoder{} }

// Decode inflates zlib data. Streams with a broken checksum or a truncated
// tail keep whatever was inflated before the error.
func (flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var out bytes.Buffer
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		_, err = io.Copy(&out, zr)
		zr.Close()
	}
	if err != nil {
		// some producers omit the zlib header
		out.Reset()
		fr := flate.NewReader(bytes.NewReader(in))
		_, ferr := io.Copy(&out, fr)
		fr.Close()
		if ferr != nil && out.Len() == 0 {
			return nil, err
		}
	}
	return applyPredictor(out.Bytes(), params)
}

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }
func (lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil && out.Len() == 0 {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}
func NewLZWDecoder() Decoder { return lzwDecoder{} }

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func (ascii85Decoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	if i := bytes.IndexByte(in, '>'); i >= 0 {
		in = in[:i]
	}
	digits := make([]byte, 0, len(in))
	for _, c := range in {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
			digits = append(digits, c)
		case c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0:
		default:
			return nil, fmt.Errorf("invalid hex digit %q", c)
		}
	}
	// an odd final digit is padded with 0
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	result := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(result, digits)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}
func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func (runLengthDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				end = len(in)
			}
			out.Write(in[i:end])
			i = end
		default:
			if i >= len(in) {
				return out.Bytes(), nil
			}
			out.Write(bytes.Repeat(in[i:i+1], 257-n))
			i++
		}
	}
	return out.Bytes(), nil
}
func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }

// applyPredictor undoes TIFF and PNG predictors declared in DecodeParms.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	predictor := intParam(params, "Predictor", 1)
	if predictor < 2 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if rowLen <= 0 || bpp <= 0 {
		return nil, errors.New("invalid predictor parameters")
	}

	if predictor == 2 {
		if bpc != 8 {
			return data, nil
		}
		out := append([]byte(nil), data...)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[row+i] += out[row+i-bpp]
			}
		}
		return out, nil
	}

	// PNG predictors: every row starts with a filter type byte.
	var out []byte
	prev := make([]byte, rowLen)
	for pos := 0; pos < len(data); pos += rowLen + 1 {
		end := pos + rowLen + 1
		if end > len(data) {
			break
		}
		ft := data[pos]
		cur := append([]byte(nil), data[pos+1:end]...)
		for i := range cur {
			var left, up, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch ft {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("unknown png filter type %d", ft)
			}
		}
		out = append(out, cur...)
		prev = cur
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func intParam(d raw.Dictionary, key string, def int) int {
	if v, ok := d.Get(raw.NameObj{Val: key}); ok {
		if n, ok := v.(raw.Number); ok {
			return int(n.Int())
		}
	}
	return def
}

// EncodeFlate compresses data with zlib framing, as FlateDecode expects.
func EncodeFlate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
