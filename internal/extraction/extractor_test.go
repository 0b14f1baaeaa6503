package extraction

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) Recognize(_ context.Context, _ []byte, _ string) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		doc     Document
		want    Format
		wantErr bool
	}{
		{Document{Name: "a.pdf"}, FormatPDF, false},
		{Document{Name: "a.PNG"}, FormatImage, false},
		{Document{Name: "scan.jpg"}, FormatImage, false},
		{Document{Name: "scan.JPEG"}, FormatImage, false},
		{Document{Name: "notes.txt"}, FormatText, false},
		{Document{Name: "labs.csv"}, FormatCSV, false},
		{Document{Name: "upload", Extension: ".CSV"}, FormatCSV, false},
		{Document{Name: "report.pdf", Extension: "txt"}, FormatText, false},
		{Document{Name: "report.docx"}, "", true},
		{Document{Name: "noext"}, "", true},
		{Document{Name: "image.gif"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.doc.Name+"/"+tt.doc.Extension, func(t *testing.T) {
			got, err := DetectFormat(tt.doc)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ErrUnsupportedFormat, CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_UnsupportedFormatIsFatal(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), Document{Name: "a.docx", Data: []byte("x")})
	require.Error(t, err)

	var extErr *ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, ErrUnsupportedFormat, extErr.Code)
	assert.True(t, extErr.Fatal())
}

func TestExtract_Text(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"plain", []byte("  Glucose: 130\n"), "Glucose: 130"},
		{"bom stripped", append([]byte{0xEF, 0xBB, 0xBF}, []byte("BP: 120")...), "BP: 120"},
		{"unicode", []byte("Patient: José\nBMI: 31"), "Patient: José\nBMI: 31"},
	}

	ex := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ex.Extract(context.Background(), Document{Name: "n.txt", Data: tt.data})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Text)
			assert.Nil(t, out.Record)
		})
	}
}

func TestExtract_TextEncodingError(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), Document{Name: "n.txt", Data: []byte{0xff, 0xfe, 'a', 0x80}})
	require.Error(t, err)
	assert.Equal(t, ErrEncoding, CodeOf(err))
}

func TestExtract_EmptyText(t *testing.T) {
	out, err := NewExtractor().Extract(context.Background(), Document{Name: "n.txt"})
	require.NoError(t, err)
	assert.Empty(t, out.Text)
	assert.NotEmpty(t, out.Diagnostics)
}

func TestExtract_CSV(t *testing.T) {
	data := []byte("Age,Glucose,Cholesterol,Blood Pressure,BMI,Doctor's Prescription\n" +
		"52,140,260,150,31.5,\"Patient shows signs of hypertension and high cholesterol\"\n" +
		"30,90,150,110,22,second row is ignored\n")

	out, err := NewExtractor().Extract(context.Background(), Document{Name: "labs.csv", Data: data})
	require.NoError(t, err)

	assert.Equal(t, FormatCSV, out.Format)
	assert.Equal(t, "Patient shows signs of hypertension and high cholesterol", out.Text)
	assert.Equal(t, map[string]float64{
		"age":            52,
		"glucose":        140,
		"cholesterol":    260,
		"blood_pressure": 150,
		"bmi":            31.5,
	}, out.Record)
	assert.Empty(t, out.Diagnostics)
}

func TestExtract_CSVWithoutPrescriptionColumn(t *testing.T) {
	data := []byte("age,glucose,notes\n40,130,fasting\n")

	out, err := NewExtractor().Extract(context.Background(), Document{Name: "labs.csv", Data: data})
	require.NoError(t, err)

	assert.Empty(t, out.Text)
	assert.Equal(t, map[string]float64{"age": 40, "glucose": 130}, out.Record)
	require.Len(t, out.Diagnostics, 1)
	assert.Contains(t, out.Diagnostics[0], "doctor_prescription")
}

func TestExtract_CSVEdgeCases(t *testing.T) {
	t.Run("header only", func(t *testing.T) {
		out, err := NewExtractor().Extract(context.Background(), Document{Name: "a.csv", Data: []byte("doctor_prescription,age\n")})
		require.NoError(t, err)
		assert.Empty(t, out.Text)
		assert.Nil(t, out.Record)
		assert.NotEmpty(t, out.Diagnostics)
	})

	t.Run("empty file", func(t *testing.T) {
		out, err := NewExtractor().Extract(context.Background(), Document{Name: "a.csv"})
		require.NoError(t, err)
		assert.Empty(t, out.Text)
		assert.NotEmpty(t, out.Diagnostics)
	})

	t.Run("short row", func(t *testing.T) {
		out, err := NewExtractor().Extract(context.Background(), Document{Name: "a.csv", Data: []byte("age,bmi,doctor_prescription\n61\n")})
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"age": 61}, out.Record)
	})

	t.Run("bom and non-finite", func(t *testing.T) {
		data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("age,glucose\nNaN,120\n")...)
		out, err := NewExtractor().Extract(context.Background(), Document{Name: "a.csv", Data: data})
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"glucose": 120}, out.Record)
	})

	t.Run("bare quote", func(t *testing.T) {
		_, err := NewExtractor().Extract(context.Background(), Document{Name: "a.csv", Data: []byte("age,doctor_prescription\n40,take 2\"x daily\n")})
		require.Error(t, err)
		assert.Equal(t, ErrCorruptDocument, CodeOf(err))
	})

	t.Run("invalid utf8", func(t *testing.T) {
		_, err := NewExtractor().Extract(context.Background(), Document{Name: "a.csv", Data: []byte("age\n\xff\n")})
		require.Error(t, err)
		assert.Equal(t, ErrEncoding, CodeOf(err))
	})
}

func TestNormalizeColumn(t *testing.T) {
	tests := map[string]string{
		"Doctor's Prescription":  "doctor_prescription",
		"doctor_prescription":    "doctor_prescription",
		" Blood-Pressure ":       "blood_pressure",
		"Doctor’s  Prescription": "doctor_prescription",
		"BMI":                    "bmi",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeColumn(in), in)
	}
}

func TestExtract_ImageWithoutOCR(t *testing.T) {
	out, err := NewExtractor().Extract(context.Background(), Document{Name: "scan.png", Data: pngBytes(t)})
	require.NoError(t, err)
	assert.Equal(t, OCRUnavailableText, out.Text)
	assert.NotEmpty(t, out.Diagnostics)
}

func TestExtract_ImageWithOCR(t *testing.T) {
	ocr := &fakeOCR{text: "  Glucose: 140  "}
	out, err := NewExtractor(WithOCR(ocr)).Extract(context.Background(), Document{Name: "scan.jpg", Data: jpegBytes(t)})
	require.NoError(t, err)
	assert.Equal(t, "Glucose: 140", out.Text)
	assert.Equal(t, 1, ocr.calls)
}

func TestExtract_ImageOCRFindsNoText(t *testing.T) {
	ocr := &fakeOCR{text: "  \n "}
	out, err := NewExtractor(WithOCR(ocr)).Extract(context.Background(), Document{Name: "blank.png", Data: pngBytes(t)})
	require.NoError(t, err)
	assert.Empty(t, out.Text, "a blank scan is not an OCR failure")
	assert.Contains(t, out.Diagnostics, "OCR returned no text")
}

func TestExtract_ImageOCRFailureDegrades(t *testing.T) {
	ocr := &fakeOCR{err: ErrUnavailable}
	out, err := NewExtractor(WithOCR(ocr)).Extract(context.Background(), Document{Name: "scan.jpeg", Data: jpegBytes(t)})
	require.NoError(t, err)
	assert.Equal(t, OCRUnavailableText, out.Text)
	assert.NotEmpty(t, out.Diagnostics)
}

func TestExtract_CorruptImage(t *testing.T) {
	ocr := &fakeOCR{text: "never called"}
	_, err := NewExtractor(WithOCR(ocr)).Extract(context.Background(), Document{Name: "scan.png", Data: []byte("not really a png")})
	require.Error(t, err)
	assert.Equal(t, ErrCorruptDocument, CodeOf(err))
	assert.Zero(t, ocr.calls)
}

func TestExtract_EmptyBinaryDocument(t *testing.T) {
	for _, name := range []string{"a.pdf", "a.png"} {
		_, err := NewExtractor().Extract(context.Background(), Document{Name: name})
		require.Error(t, err, name)
		assert.Equal(t, ErrCorruptDocument, CodeOf(err), name)
	}
}
