package filters

import (
	"context"
	"testing"

	"github.com/wudi/regionedit/ir/raw"
)

// FuzzDecodeStream feeds arbitrary stream bodies through filter chains; the
// pipeline must return data or an error, never panic.
func FuzzDecodeStream(f *testing.F) {
	enc, _ := EncodeFlate([]byte("BT (x) Tj ET"))
	f.Add(enc, "FlateDecode", "")
	f.Add([]byte("<~87cURD_*#4DfTZ)+T~>"), "ASCII85Decode", "")
	f.Add([]byte("48656c6c6f>"), "ASCIIHexDecode", "RunLengthDecode")
	f.Add([]byte{2, 1, 2, 3, 128}, "RunLengthDecode", "LZWDecode")

	p := DefaultPipeline(Limits{MaxDecompressedSize: 1 << 20})
	f.Fuzz(func(t *testing.T, data []byte, first, second string) {
		names := []raw.Object{raw.NameLiteral(first)}
		if second != "" {
			names = append(names, raw.NameLiteral(second))
		}
		dict := raw.Dict()
		dict.Set(raw.NameObj{Val: "Filter"}, raw.NewArray(names...))
		dict.Set(raw.NameObj{Val: "DecodeParms"}, predictorParams(12, 4))
		_, _ = p.DecodeStream(context.Background(), raw.NewStream(dict, data))
	})
}
