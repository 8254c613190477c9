package writer

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/wudi/regionedit/ir/raw"
)

var (
	// ErrEncrypted is returned when the base document is encrypted;
	// updates would have to be encrypted with the document key.
	ErrEncrypted = errors.New("cannot append to an encrypted document")
	// ErrNoChanges is returned by Bytes when nothing was added or replaced.
	ErrNoChanges = errors.New("incremental update is empty")
)

// idSpace namespaces the second file identifier of updated documents.
var idSpace = uuid.MustParse("5c1f0d8e-7a43-4c8b-9a4e-2f6b9e0d3a11")

// Update appends new and replaced objects to an existing file as an
// incremental update section. The original bytes are never modified.
type Update struct {
	base    []byte
	doc     *raw.Document
	next    int
	objects map[raw.ObjectRef]raw.Object
}

// NewUpdate starts an update over base, the exact bytes doc was parsed from.
func NewUpdate(base []byte, doc *raw.Document) *Update {
	return &Update{
		base:    base,
		doc:     doc,
		next:    doc.MaxObjectNum() + 1,
		objects: make(map[raw.ObjectRef]raw.Object),
	}
}

// Allocate reserves a fresh object number.
func (u *Update) Allocate() raw.ObjectRef {
	ref := raw.ObjectRef{Num: u.next}
	u.next++
	return ref
}

// Add stores obj under a fresh object number.
func (u *Update) Add(obj raw.Object) raw.RefObj {
	ref := u.Allocate()
	u.objects[ref] = obj
	return raw.RefObj{R: ref}
}

// Set stores obj under ref, replacing any earlier definition.
func (u *Update) Set(ref raw.ObjectRef, obj raw.Object) {
	u.objects[ref] = obj
	if ref.Num >= u.next {
		u.next = ref.Num + 1
	}
}

// Len reports how many objects the update will write.
func (u *Update) Len() int { return len(u.objects) }

// Bytes returns base followed by the update section: the objects, a
// cross-reference table, a trailer chained to the previous one with /Prev,
// startxref and %%EOF.
func (u *Update) Bytes() ([]byte, error) {
	if u.doc.Encrypted {
		return nil, ErrEncrypted
	}
	if len(u.objects) == 0 {
		return nil, ErrNoChanges
	}
	root, ok := u.doc.Trailer.Lookup("Root").(raw.RefObj)
	if !ok {
		return nil, errors.New("trailer has no /Root reference")
	}

	var buf bytes.Buffer
	buf.Grow(len(u.base) + 4096)
	buf.Write(u.base)
	if n := len(u.base); n > 0 && u.base[n-1] != '\n' && u.base[n-1] != '\r' {
		buf.WriteByte('\n')
	}

	refs := make([]raw.ObjectRef, 0, len(u.objects))
	for ref := range u.objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })
	offsets := make(map[raw.ObjectRef]int64, len(refs))
	start := buf.Len()
	for _, ref := range refs {
		offsets[ref] = int64(buf.Len())
		buf.Write(SerializeObject(ref, u.objects[ref]))
	}

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 1\n0000000000 65535 f \n")
	for _, sub := range subsections(refs) {
		fmt.Fprintf(&buf, "%d %d\n", sub[0].Num, len(sub))
		for _, ref := range sub {
			fmt.Fprintf(&buf, "%010d %05d n \n", offsets[ref], ref.Gen)
		}
	}

	trailer := raw.Dict()
	trailer.SetKey("Size", raw.NumberInt(int64(u.size())))
	trailer.SetKey("Root", root)
	if info, ok := u.doc.Trailer.Lookup("Info").(raw.RefObj); ok {
		trailer.SetKey("Info", info)
	}
	trailer.SetKey("ID", u.fileID(buf.Bytes()[start:]))
	if u.doc.StartXRef >= 0 {
		trailer.SetKey("Prev", raw.NumberInt(u.doc.StartXRef))
	}
	buf.WriteString("trailer\n")
	buf.Write(Serialize(trailer))
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes(), nil
}

func (u *Update) size() int {
	size := u.doc.MaxObjectNum() + 1
	for ref := range u.objects {
		if ref.Num+1 > size {
			size = ref.Num + 1
		}
	}
	return size
}

// fileID keeps the permanent identifier and derives a new changing one from
// the update body.
func (u *Update) fileID(body []byte) *raw.ArrayObj {
	changing := uuid.NewSHA1(idSpace, body)
	permanent := changing[:]
	if arr, ok := u.doc.Array(u.doc.Trailer.Lookup("ID")); ok && len(arr.Items) > 0 {
		if s, ok := u.doc.Resolve(arr.Items[0]).(raw.StringObj); ok && len(s.Bytes) > 0 {
			permanent = s.Bytes
		}
	}
	return raw.NewArray(raw.HexStr(permanent), raw.HexStr(changing[:]))
}

// subsections groups sorted refs into runs of consecutive object numbers.
func subsections(refs []raw.ObjectRef) [][]raw.ObjectRef {
	var out [][]raw.ObjectRef
	for i, ref := range refs {
		if i == 0 || ref.Num != refs[i-1].Num+1 {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], ref)
	}
	return out
}
