package writer_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/wudi/regionedit/ir/raw"
	"github.com/wudi/regionedit/pdftest"
	"github.com/wudi/regionedit/writer"
)

func parse(t *testing.T, data []byte) *raw.Document {
	t.Helper()
	doc, err := raw.Parse(context.Background(), data, raw.ParserConfig{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestUpdateAppendsSection(t *testing.T) {
	base := pdftest.Invoice()
	doc := parse(t, base)
	maxNum := doc.MaxObjectNum()

	u := writer.NewUpdate(base, doc)
	added := u.Add(raw.NewStream(raw.Dict(), []byte("q Q")))
	if added.R.Num != maxNum+1 {
		t.Fatalf("allocated %d, want %d", added.R.Num, maxNum+1)
	}
	catalogRef := doc.Trailer.Lookup("Root").(raw.RefObj).R
	catalog := doc.Objects[catalogRef].(*raw.DictObj).Clone()
	catalog.SetKey("Marked", raw.Bool(true))
	u.Set(catalogRef, catalog)

	out, err := u.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if !bytes.HasPrefix(out, base) {
		t.Fatalf("original bytes were modified")
	}
	if !bytes.HasSuffix(out, []byte("%%EOF\n")) {
		t.Fatalf("update must end with %%%%EOF")
	}

	updated := parse(t, out[:])
	if b, ok := updated.Objects[catalogRef].(*raw.DictObj).Lookup("Marked").(raw.BoolObj); !ok || !b.V {
		t.Fatalf("replaced catalog did not win")
	}
	if _, ok := updated.Stream(raw.RefObj{R: added.R}); !ok {
		t.Fatalf("added stream missing")
	}
	prev, _ := updated.Number(updated.Trailer.Lookup("Prev"))
	if int64(prev) != doc.StartXRef {
		t.Fatalf("/Prev = %v, want %d", prev, doc.StartXRef)
	}
	size, _ := updated.Number(updated.Trailer.Lookup("Size"))
	if int(size) != maxNum+2 {
		t.Fatalf("/Size = %v, want %d", size, maxNum+2)
	}
	oldID, _ := doc.Array(doc.Trailer.Lookup("ID"))
	newID, _ := updated.Array(updated.Trailer.Lookup("ID"))
	if !bytes.Equal(oldID.Items[0].(raw.StringObj).Bytes, newID.Items[0].(raw.StringObj).Bytes) {
		t.Fatalf("permanent identifier changed")
	}
	if bytes.Equal(oldID.Items[1].(raw.StringObj).Bytes, newID.Items[1].(raw.StringObj).Bytes) {
		t.Fatalf("changing identifier not regenerated")
	}
	if updated.StartXRef <= doc.StartXRef {
		t.Fatalf("startxref not advanced: %d", updated.StartXRef)
	}
}

func TestUpdateXRefEntries(t *testing.T) {
	base := pdftest.Invoice()
	doc := parse(t, base)
	u := writer.NewUpdate(base, doc)
	first := u.Add(raw.NumberInt(1))
	second := u.Add(raw.NumberInt(2))
	out, err := u.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	tail := out[len(base):]
	header := []byte("xref\n0 1\n0000000000 65535 f \n")
	if !bytes.Contains(tail, header) {
		t.Fatalf("xref header missing: %s", tail)
	}
	want := []byte(" 2\n")
	if !bytes.Contains(tail, append([]byte(itoa(first.R.Num)), want...)) || second.R.Num != first.R.Num+1 {
		t.Fatalf("consecutive objects should share a subsection: %s", tail)
	}
}

func itoa(n int) string {
	return string(writer.Serialize(raw.NumberInt(int64(n))))
}

func TestUpdateErrors(t *testing.T) {
	base := pdftest.Build([]pdftest.Page{{Content: "BT ET"}}, pdftest.Options{Encrypt: true})
	doc := parse(t, base)
	u := writer.NewUpdate(base, doc)
	u.Add(raw.NumberInt(1))
	if _, err := u.Bytes(); !errors.Is(err, writer.ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}

	plain := pdftest.Invoice()
	if _, err := writer.NewUpdate(plain, parse(t, plain)).Bytes(); !errors.Is(err, writer.ErrNoChanges) {
		t.Fatalf("expected ErrNoChanges, got %v", err)
	}
}
