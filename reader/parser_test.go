package reader

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestParseObject(t *testing.T) {
	tests := []struct {
		in   string
		want Object
	}{
		{"42", Integer(42)},
		{"-7", Integer(-7)},
		{"+.5", Real(0.5)},
		{"3.25", Real(3.25)},
		{"/Type", Name("Type")},
		{"/A#20B", Name("A B")},
		{"true", Boolean(true)},
		{"null", Null{}},
		{"(Hello (nested) World)", String{Value: []byte("Hello (nested) World")}},
		{`(a\nb\051\\)`, String{Value: []byte("a\nb)\\")}},
		{"(split \\\nline)", String{Value: []byte("split line")}},
		{"<48656C6C6F>", String{Value: []byte("Hello"), IsHex: true}},
		{"<4 8 6>", String{Value: []byte{0x48, 0x60}, IsHex: true}},
		{"10 0 R", Reference{Number: 10}},
		{"[1 2 /X 3 0 R]", Array{Integer(1), Integer(2), Name("X"), Reference{Number: 3}}},
		{"[]", Array{}},
		{"<< /Type /Page /Count 3 /Gone null >>", Dict{"Type": Name("Page"), "Count": Integer(3)}},
		{"% comment\n7", Integer(7)},
	}
	for _, tt := range tests {
		got, err := newParser([]byte(tt.in)).object()
		if err != nil {
			t.Errorf("%q: %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%q = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestParseObjectErrors(t *testing.T) {
	for _, in := range []string{"", "(open", "<zz>", "[1 2", "<< 1 2 >>", ">", "obj"} {
		if obj, err := newParser([]byte(in)).object(); err == nil {
			t.Errorf("%q: expected error, got %#v", in, obj)
		}
	}
}

func TestDictAccessors(t *testing.T) {
	obj, err := newParser([]byte("<< /Name /Test /Count 5 /W 2.5 /Sub << /Key /Value >> /Items [1 2] >>")).object()
	if err != nil {
		t.Fatal(err)
	}
	d := obj.(Dict)
	if d.GetName("Name") != "Test" || d.GetName("Missing") != "" {
		t.Errorf("GetName: %q %q", d.GetName("Name"), d.GetName("Missing"))
	}
	if v, ok := d.GetInt("Count"); !ok || v != 5 {
		t.Errorf("GetInt = %d, %v", v, ok)
	}
	if v, ok := d.GetNumber("W"); !ok || v != 2.5 {
		t.Errorf("GetNumber = %g, %v", v, ok)
	}
	if sub := d.GetDict("Sub"); sub.GetName("Key") != "Value" {
		t.Errorf("GetDict = %v", sub)
	}
	if len(d.GetArray("Items")) != 2 || d.GetArray("Name") != nil {
		t.Errorf("GetArray = %v", d.GetArray("Items"))
	}
}

func TestParseIndirectStream(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		length lengthFunc
		want   string
	}{
		{"direct length", "7 0 obj << /Length 5 >> stream\r\nhello\nendstream endobj", nil, "hello"},
		{"wrong length", "7 0 obj << /Length 2 >> stream\nhello world\nendstream\nendobj", nil, "hello world"},
		{"indirect length", "7 0 obj << /Length 9 0 R >> stream\nhello\nendstream", func(r Reference) (int, bool) {
			return 5, r.Number == 9
		}, "hello"},
		{"unresolved length", "7 0 obj << /Length 9 0 R >> stream\nab\r\nendstream", nil, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, obj, err := parseIndirect([]byte(tt.in), tt.length)
			if err != nil {
				t.Fatal(err)
			}
			if ref != (Reference{Number: 7}) {
				t.Errorf("ref = %v", ref)
			}
			s, ok := obj.(Stream)
			if !ok {
				t.Fatalf("got %T, want Stream", obj)
			}
			if string(s.Data) != tt.want {
				t.Errorf("data = %q, want %q", s.Data, tt.want)
			}
		})
	}

	if _, _, err := parseIndirect([]byte("7 0 obj 5 stream\nx\nendstream"), nil); err == nil {
		t.Error("expected error for a stream without dictionary")
	}
	if _, _, err := parseIndirect([]byte("7 obj 5"), nil); err == nil {
		t.Error("expected header error")
	}
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeStream(t *testing.T) {
	tests := []struct {
		name string
		s    Stream
		want string
	}{
		{"none", Stream{Dict: Dict{}, Data: []byte("raw")}, "raw"},
		{"hex", Stream{Dict: Dict{"Filter": Name("AHx")}, Data: []byte("48 69>")}, "Hi"},
		{"ascii85", Stream{Dict: Dict{"Filter": Name("ASCII85Decode")}, Data: []byte("87cURD]i,\"Ebo7~>")}, "Hello World"},
		{"run length", Stream{Dict: Dict{"Filter": Name("RunLengthDecode")}, Data: []byte{1, 'a', 'b', 254, 'c', 128}}, "abccc"},
		{"chain", Stream{
			Dict: Dict{"Filter": Array{Name("ASCIIHexDecode"), Name("FlateDecode")}},
			Data: []byte(fmt.Sprintf("%X>", deflate(t, []byte("chained")))),
		}, "chained"},
		{"dct kept", Stream{Dict: Dict{"Filter": Name("DCTDecode")}, Data: []byte("\xff\xd8jpeg")}, "\xff\xd8jpeg"},
	}
	for _, tt := range tests {
		got, err := decodeStream(tt.s)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
		}
	}

	for _, s := range []Stream{
		{Dict: Dict{"Filter": Name("LZWDecode")}},
		{Dict: Dict{"Filter": Array{Name("DCTDecode"), Name("FlateDecode")}}},
	} {
		if _, err := decodeStream(s); err == nil {
			t.Errorf("%v: expected error", s.Dict["Filter"])
		}
	}
}

func TestPNGPredictor(t *testing.T) {
	rows := [][]byte{{1, 2, 3}, {4, 6, 8}, {5, 5, 5}}
	var raw []byte
	prev := make([]byte, 3)
	for i, row := range rows {
		switch i {
		case 0: // Sub
			raw = append(raw, 1, row[0], row[1]-row[0], row[2]-row[1])
		case 1: // Up
			raw = append(raw, 2, row[0]-prev[0], row[1]-prev[1], row[2]-prev[2])
		case 2: // None
			raw = append(raw, 0)
			raw = append(raw, row...)
		}
		prev = row
	}
	s := Stream{
		Dict: Dict{
			"Filter":      Name("FlateDecode"),
			"DecodeParms": Dict{"Predictor": Integer(12), "Columns": Integer(3)},
		},
		Data: deflate(t, raw),
	}
	got, err := decodeStream(s)
	if err != nil {
		t.Fatal(err)
	}
	if want := bytes.Join(rows, nil); !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// compressedPDF builds a PDF 1.5 file whose catalog and page tree live in
// an object stream, indexed by a predictor-encoded cross-reference stream.
func compressedPDF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	offsets := map[int]int{}
	obj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	catalog := "<< /Type /Catalog /Pages 2 0 R >>"
	pages := "<< /Type /Pages /Kids [3 0 R] /Count 1 >>"
	header := fmt.Sprintf("1 0 2 %d ", len(catalog)+1)
	content := header + catalog + " " + pages
	obj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] >>")
	obj(4, fmt.Sprintf("<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n%s\nendstream", len(header), len(content), content))

	xrefAt := buf.Len()
	entries := [][4]byte{
		{0, 0, 0, 255},
		{2, 0, 4, 0},
		{2, 0, 4, 1},
		{1, byte(offsets[3] >> 8), byte(offsets[3]), 0},
		{1, byte(offsets[4] >> 8), byte(offsets[4]), 0},
		{1, byte(xrefAt >> 8), byte(xrefAt), 0},
	}
	var raw []byte
	var prev [4]byte
	for _, e := range entries {
		raw = append(raw, 2) // Up
		for i := range e {
			raw = append(raw, e[i]-prev[i])
		}
		prev = e
	}
	data := deflate(t, raw)
	fmt.Fprintf(&buf, "5 0 obj\n<< /Type /XRef /Size 6 /W [1 2 1] /Root 1 0 R /Filter /FlateDecode "+
		"/DecodeParms << /Predictor 12 /Columns 4 >> /Length %d >>\nstream\n", len(data))
	buf.Write(data)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefAt)
	return buf.Bytes()
}

func TestParseCompressed(t *testing.T) {
	doc, err := Parse(compressedPDF(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Version != "1.5" {
		t.Errorf("Version = %q", doc.Version)
	}
	if doc.NumPages() != 1 {
		t.Fatalf("NumPages = %d, want 1", doc.NumPages())
	}
	p, _ := doc.Page(1)
	if p.MediaBox.Width() != 200 || p.MediaBox.Height() != 100 {
		t.Errorf("MediaBox = %+v", p.MediaBox)
	}
	if e := doc.xref[1]; e.kind != entryInStream || e.stream != 4 {
		t.Errorf("xref[1] = %+v", e)
	}
}

const brokenXref = `%PDF-1.4
1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj
2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj
3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 300 400] /Contents 4 0 R >> endobj
4 0 obj << /Length 5 0 R >> stream
q 300 0 0 400 0 0 cm /Im0 Do Q
endstream endobj
5 0 obj 30 endobj
trailer << /Root 1 0 R /Size 6 >>
startxref
999999
%%EOF
`

func TestParseRecoversBrokenXref(t *testing.T) {
	doc, err := Parse([]byte(brokenXref))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.NumPages() != 1 {
		t.Fatalf("NumPages = %d", doc.NumPages())
	}
	p, _ := doc.Page(1)
	content, err := p.ContentStream()
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(content)); got != "q 300 0 0 400 0 0 cm /Im0 Do Q" {
		t.Errorf("content = %q", got)
	}

	noTrailer := strings.Replace(brokenXref, "trailer << /Root 1 0 R /Size 6 >>", "", 1)
	doc, err = Parse([]byte(noTrailer))
	if err != nil {
		t.Fatalf("Parse without trailer: %v", err)
	}
	if doc.NumPages() != 1 {
		t.Errorf("NumPages without trailer = %d", doc.NumPages())
	}
}

func TestXrefLoop(t *testing.T) {
	pdf := "%PDF-1.4\nxref\n0 1\n0000000000 65535 f \ntrailer << /Size 1 /Prev 9 >>\nstartxref\n9\n%%EOF\n"
	if _, _, err := loadXref([]byte(pdf)); err == nil || !strings.Contains(err.Error(), "loop") {
		t.Errorf("expected loop error, got %v", err)
	}
}
