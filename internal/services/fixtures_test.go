package services_test

import (
	"bytes"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/subitocasaweb/lead-intake/internal/models"
)

// tinyPNG is a complete 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
	0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41, 0x54,
	0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00, 0x05, 0x00, 0x01,
	0x0d, 0x0a, 0x2d, 0xb4,
	0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44,
	0xae, 0x42, 0x60, 0x82,
}

// fakeJPEG carries a real JPEG signature and APP0 header followed by
// garbage, so content sniffing says image/jpeg but header parsing fails.
var fakeJPEG = append([]byte{
	0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10,
	'J', 'F', 'I', 'F', 0x00,
	0x01, 0x01, 0x00,
	0x00, 0x01, 0x00, 0x01,
	0x00, 0x00,
}, []byte("this is not a jpeg at all")...)

var tinyPDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type testFile struct {
	name    string
	content []byte
}

// fileHeaders builds real multipart file headers the way a browser
// submission would produce them.
func fileHeaders(t *testing.T, files ...testFile) []*multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := w.CreateFormFile("allegati[]", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	reader := multipart.NewReader(&body, w.Boundary())
	form, err := reader.ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	return form.File["allegati[]"]
}

func candidates(headers []*multipart.FileHeader) []models.UploadCandidate {
	var out []models.UploadCandidate
	for _, h := range headers {
		out = append(out, models.UploadCandidate{
			OriginalName: h.Filename,
			Header:       h,
			Size:         h.Size,
		})
	}
	return out
}
