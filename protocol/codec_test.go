package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeader_Layout(t *testing.T) {
	header, err := EncodeHeader(10, 10, 0x01020304, 20, 0xA0B0C0D0)
	require.NoError(t, err)

	expected := []byte{
		0x00,                   // reserved
		0x0A,                   // control
		0x0A,                   // format-1
		0x01, 0x02, 0x03, 0x04, // length-1
		0x14,                   // format-2
		0xA0, 0xB0, 0xC0, 0xD0, // length-2
	}
	assert.Equal(t, expected, header)
}

func TestEncodeHeader_OutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		control int
		format1 int
		length1 int64
		format2 int
		length2 int64
	}{
		{"control too large", 256, 10, 0, 10, 0},
		{"negative control", -1, 10, 0, 10, 0},
		{"format-1 too large", 10, 300, 0, 10, 0},
		{"format-2 negative", 10, 10, 0, -5, 0},
		{"length-1 too large", 10, 10, MaxContentLength + 1, 10, 0},
		{"length-2 negative", 10, 10, 0, 10, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeHeader(tt.control, tt.format1, tt.length1, tt.format2, tt.length2)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEncoding)
		})
	}
}

func TestEncodeHeader_Bounds(t *testing.T) {
	header, err := EncodeHeader(255, 0, MaxContentLength, 255, 0)
	require.NoError(t, err)

	h, err := DecodeHeader(header)
	require.NoError(t, err)
	assert.Equal(t, byte(255), h.Control)
	assert.Equal(t, uint32(MaxContentLength), h.Length1)
	assert.Equal(t, uint32(0), h.Length2)
}

func TestDecodeHeader_Short(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderLen-1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedHeader)

	_, err = DecodeHeader(nil)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestEncodeRecord_ByteLengths(t *testing.T) {
	content1 := `{"title":"héllo wörld"}`
	content2 := "/tpl/日本.tpl"

	rec, err := EncodeRecord(int(OpParseTemplate), int(FormatJSON), content1, int(FormatPath), content2)
	require.NoError(t, err)
	require.Len(t, rec, HeaderLen+len(content1)+len(content2))

	h, err := DecodeHeader(rec)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(content1)), h.Length1)
	assert.Equal(t, uint32(len(content2)), h.Length2)
	assert.Equal(t, content1, string(rec[HeaderLen:HeaderLen+len(content1)]))
	assert.Equal(t, content2, string(rec[HeaderLen+len(content1):]))
}

func TestDecodeRecord(t *testing.T) {
	rec, err := EncodeRecord(0, int(FormatJSON), `{"a":1}`, int(FormatText), "body")
	require.NoError(t, err)

	decoded, err := DecodeRecord(rec[:HeaderLen], rec[HeaderLen:HeaderLen+7], rec[HeaderLen+7:])
	require.NoError(t, err)
	assert.Equal(t, StatusOK, decoded.Response().Status)
	assert.Equal(t, FormatJSON, decoded.Header.Format1)
	assert.Equal(t, FormatText, decoded.Header.Format2)
	assert.Equal(t, `{"a":1}`, string(decoded.Content1))
	assert.Equal(t, "body", string(decoded.Content2))
}

func TestRecord_Validate(t *testing.T) {
	invalid := []byte{0xff, 0xfe, 0xfd}

	t.Run("valid text", func(t *testing.T) {
		rec := Request{Op: OpParseTemplate, Format1: FormatJSON, Content1: "{}", Format2: FormatText, Content2: "ok"}.Record()
		assert.NoError(t, rec.Validate())
	})

	t.Run("invalid utf8 in text payload", func(t *testing.T) {
		rec := Response{Format1: FormatJSON, Content1: []byte("{}"), Format2: FormatText, Content2: invalid}.Record()
		assert.ErrorIs(t, rec.Validate(), ErrInvalidUTF8)
	})

	t.Run("binary payload is opaque", func(t *testing.T) {
		rec := Response{Format1: FormatJSON, Content1: []byte("{}"), Format2: FormatBinary, Content2: invalid}.Record()
		assert.NoError(t, rec.Validate())
	})

	t.Run("unknown format", func(t *testing.T) {
		rec := Response{Format1: Format(99), Format2: FormatText}.Record()
		assert.ErrorIs(t, rec.Validate(), ErrUnknownFormat)
	})
}

func TestReadRecord_OneByteAtATime(t *testing.T) {
	req := Request{
		Op:       OpParseTemplate,
		Format1:  FormatJSON,
		Content1: `{"title":"hi"}`,
		Format2:  FormatPath,
		Content2: "/tpl/home.tpl",
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, req.Record()))

	rec, err := ReadRecord(iotest.OneByteReader(&buf), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, req, rec.Request())
}

func TestReadRecord_DataErrReader(t *testing.T) {
	rec := Response{Status: StatusOK, Format1: FormatJSON, Content1: []byte(`{}`), Format2: FormatText, Content2: []byte("done")}.Record()
	raw, err := rec.MarshalBinary()
	require.NoError(t, err)

	// The final read returns data together with io.EOF.
	got, err := ReadRecord(iotest.DataErrReader(bytes.NewReader(raw)), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, "done", string(got.Content2))
}

func TestReadRecord_TruncatedHeader(t *testing.T) {
	header, err := EncodeHeader(0, 10, 0, 30, 0)
	require.NoError(t, err)

	_, err = ReadRecord(bytes.NewReader(header[:HeaderLen-1]), DefaultLimits())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompleteHeader)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadRecord_EmptyStream(t *testing.T) {
	_, err := ReadRecord(bytes.NewReader(nil), DefaultLimits())
	assert.ErrorIs(t, err, ErrIncompleteHeader)
}

func TestReadRecord_TruncatedPayload(t *testing.T) {
	header, err := EncodeHeader(0, 10, 100, 30, 0)
	require.NoError(t, err)
	raw := append(header, bytes.Repeat([]byte{'x'}, 50)...)

	_, err = ReadRecord(bytes.NewReader(raw), DefaultLimits())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamRead)
	assert.NotErrorIs(t, err, ErrIncompleteHeader)
	assert.Contains(t, err.Error(), "got 50 of 100 bytes")
}

func TestReadRecord_ZeroLengthPayloads(t *testing.T) {
	header, err := EncodeHeader(0, 10, 0, 30, 0)
	require.NoError(t, err)

	rec, err := ReadRecord(bytes.NewReader(header), DefaultLimits())
	require.NoError(t, err)
	assert.Empty(t, rec.Content1)
	assert.Empty(t, rec.Content2)
}

func TestReadRecord_RejectsOversizedDeclaration(t *testing.T) {
	header, err := EncodeHeader(0, 10, MaxContentLength, 30, 0)
	require.NoError(t, err)

	reader := &countingReader{r: bytes.NewReader(header)}
	_, err = ReadRecord(reader, Limits{ChunkSize: 64, MaxPayloadSize: 1024})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Equal(t, HeaderLen, reader.total, "no payload bytes should be requested")
}

func TestReadRecord_RejectsReservedByte(t *testing.T) {
	header, err := EncodeHeader(0, 10, 0, 30, 0)
	require.NoError(t, err)
	header[0] = 1

	_, err = ReadRecord(bytes.NewReader(header), DefaultLimits())
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestReadRecord_RespectsChunkSize(t *testing.T) {
	content := bytes.Repeat([]byte("abcdefgh"), 100)
	rec := Response{Format1: FormatJSON, Content1: []byte("{}"), Format2: FormatText, Content2: content}.Record()
	raw, err := rec.MarshalBinary()
	require.NoError(t, err)

	reader := &countingReader{r: bytes.NewReader(raw)}
	got, err := ReadRecord(reader, Limits{ChunkSize: 7})
	require.NoError(t, err)
	assert.Equal(t, content, got.Content2)
	assert.LessOrEqual(t, reader.maxRequest, 7)
}

func TestReadRecord_ZeroProgressReader(t *testing.T) {
	header, err := EncodeHeader(0, 10, 10, 30, 0)
	require.NoError(t, err)

	r := io.MultiReader(bytes.NewReader(header), stalledReader{})
	_, err = ReadRecord(r, DefaultLimits())
	assert.ErrorIs(t, err, ErrStreamRead)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWriteRecord_ShortWrites(t *testing.T) {
	req := Request{Op: OpParseTemplate, Format1: FormatJSON, Content1: `{"k":"v"}`, Format2: FormatText, Content2: "{:;:}"}
	w := &trickleWriter{max: 3}

	require.NoError(t, WriteRecord(w, req.Record()))

	expected, err := EncodeRecord(int(req.Op), int(req.Format1), req.Content1, int(req.Format2), req.Content2)
	require.NoError(t, err)
	assert.Equal(t, expected, w.buf.Bytes())
	assert.Greater(t, w.calls, 1)
}

func TestWriteRecord_NoProgress(t *testing.T) {
	req := Request{Op: OpParseTemplate, Format1: FormatJSON, Content1: "{}", Format2: FormatText, Content2: "x"}
	err := WriteRecord(&trickleWriter{max: 0}, req.Record())
	assert.ErrorIs(t, err, ErrShortWrite)
}

func TestWriteRecord_WriterError(t *testing.T) {
	boom := errors.New("boom")
	req := Request{Op: OpParseTemplate, Format1: FormatJSON, Content1: "{}", Format2: FormatText}
	err := WriteRecord(failingWriter{err: boom}, req.Record())
	assert.ErrorIs(t, err, boom)
}

// BenchmarkReadRecord benchmarks record decoding with various payload sizes
func BenchmarkReadRecord(b *testing.B) {
	sizes := []struct {
		name string
		size int
	}{
		{"64B", 64},
		{"1KB", 1024},
		{"64KB", 65536},
	}

	for _, s := range sizes {
		b.Run(s.name, func(b *testing.B) {
			rec := Response{Format1: FormatJSON, Content1: []byte("{}"), Format2: FormatText, Content2: bytes.Repeat([]byte{'a'}, s.size)}.Record()
			raw, err := rec.MarshalBinary()
			if err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := ReadRecord(bytes.NewReader(raw), DefaultLimits()); err != nil {
					b.Fatalf("ReadRecord failed: %v", err)
				}
			}
		})
	}
}

type countingReader struct {
	r          io.Reader
	total      int
	maxRequest int
}

func (c *countingReader) Read(p []byte) (int, error) {
	if len(p) > c.maxRequest {
		c.maxRequest = len(p)
	}
	n, err := c.r.Read(p)
	c.total += n
	return n, err
}

type stalledReader struct{}

func (stalledReader) Read(p []byte) (int, error) { return 0, nil }

type trickleWriter struct {
	buf   bytes.Buffer
	max   int
	calls int
}

func (w *trickleWriter) Write(p []byte) (int, error) {
	w.calls++
	n := min(len(p), w.max)
	w.buf.Write(p[:n])
	return n, nil
}

type failingWriter struct{ err error }

func (f failingWriter) Write(p []byte) (int, error) { return 0, f.err }
