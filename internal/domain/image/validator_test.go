package image

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shravan-server-go/internal/platform/config"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func testSecurity() *config.SecurityConfig {
	sec := config.DefaultConfig().Security
	return &sec
}

func TestValidateBytes(t *testing.T) {
	v := NewSecurityValidator(testSecurity(), nil)

	tests := []struct {
		name     string
		raw      []byte
		declared string
		valid    bool
		risk     string
	}{
		{name: "valid png", raw: encodePNG(t, 64, 48), valid: true},
		{name: "empty", raw: nil, valid: false},
		{name: "not an image", raw: []byte("hello world"), valid: false, risk: "corrupted image data"},
		{name: "declared format not allowed", raw: encodePNG(t, 4, 4), declared: "tiff", valid: false, risk: "unapproved format"},
		{name: "too wide", raw: encodePNG(t, 5000, 1), valid: false, risk: "dimensions too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateBytes(tt.raw, tt.declared)
			assert.Equal(t, tt.valid, res.IsValid)
			if tt.valid {
				assert.Equal(t, "png", res.Format)
				assert.Equal(t, "image/png", res.MIME)
				assert.NoError(t, res.Error)
			} else {
				assert.Error(t, res.Error)
			}
			if tt.risk != "" {
				assert.Equal(t, tt.risk, res.SecurityRisk)
			}
		})
	}
}

func TestValidateBytes_SizeLimit(t *testing.T) {
	sec := testSecurity()
	sec.MaxFileSize = 10
	v := NewSecurityValidator(sec, nil)

	res := v.ValidateBytes(encodePNG(t, 8, 8), "")
	assert.False(t, res.IsValid)
	assert.Equal(t, "file too large", res.SecurityRisk)
}

func TestPipeline_Process(t *testing.T) {
	p, err := NewPipeline(Options{Security: testSecurity()})
	require.NoError(t, err)

	raw := encodePNG(t, 32, 16)
	out, err := p.Process(context.Background(), Input{Reader: bytes.NewReader(raw), Source: "test"})
	require.NoError(t, err)

	assert.Equal(t, raw, out.Frame.Data)
	assert.Equal(t, 32, out.Frame.Width)
	assert.Equal(t, 16, out.Frame.Height)
	assert.Equal(t, "image/png", out.Frame.MIMEType())
	assert.Contains(t, out.Frame.DataURL(), "data:image/png;base64,iVBOR")
}

func TestPipeline_RejectsOversizedStream(t *testing.T) {
	sec := testSecurity()
	sec.MaxFileSize = 16
	p, err := NewPipeline(Options{Security: sec})
	require.NoError(t, err)

	_, err = p.Process(context.Background(), Input{Reader: bytes.NewReader(encodePNG(t, 32, 32))})
	assert.ErrorContains(t, err, "exceeds maximum size")
}

func TestNewPipeline_RequiresSecurity(t *testing.T) {
	_, err := NewPipeline(Options{})
	assert.Error(t, err)
}
