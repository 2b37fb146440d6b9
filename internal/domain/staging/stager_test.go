package staging

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainimage "shravan-server-go/internal/domain/image"
	platformerrors "shravan-server-go/internal/platform/errors"
	platformtesting "shravan-server-go/internal/platform/testing"
)

func newTestStager(t *testing.T) *Stager {
	t.Helper()
	cfg := platformtesting.SetupTestConfig(t)
	logger := platformtesting.SetupTestLogger(t)
	pipeline, err := domainimage.NewPipeline(domainimage.Options{Security: &cfg.Security, Logger: logger})
	require.NoError(t, err)
	stager, err := NewStager(cfg.Staging, pipeline, logger)
	require.NoError(t, err)
	return stager
}

func pngBase64(t *testing.T) string {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, image.NewGray(image.Rect(0, 0, 20, 10))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodePayload(t *testing.T) {
	want := []byte("hello audio")
	std := base64.StdEncoding.EncodeToString(want)

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "bare", in: std},
		{name: "data url", in: "data:audio/wav;base64," + std},
		{name: "raw no padding", in: base64.RawStdEncoding.EncodeToString(want)},
		{name: "url alphabet", in: base64.URLEncoding.EncodeToString(want)},
		{name: "wrapped lines", in: std[:4] + "\n" + std[4:]},
		{name: "empty", in: "   ", wantErr: true},
		{name: "prefix only", in: "data:image/png;base64,", wantErr: true},
		{name: "garbage", in: "!!!not base64!!!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestStage_Image(t *testing.T) {
	stager := newTestStager(t)
	stager.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 123456000, time.UTC) }

	asset, err := stager.Stage(context.Background(), KindImage, "data:image/png;base64,"+pngBase64(t))
	require.NoError(t, err)

	assert.Equal(t, KindImage, asset.Kind)
	assert.Regexp(t, `^frame_20240301_093000\.123456_[0-9a-f-]{8}\.png$`, asset.Name)
	assert.Equal(t, filepath.Join(stager.Dir(), asset.Name), asset.Path)
	require.NotNil(t, asset.Frame)
	assert.Equal(t, 20, asset.Frame.Width)
	assert.FileExists(t, asset.Path)

	stager.Release(asset)
	assert.NoFileExists(t, asset.Path)
}

func TestStage_NamesAreUnique(t *testing.T) {
	stager := newTestStager(t)
	fixed := time.Now()
	stager.now = func() time.Time { return fixed }

	a, err := stager.Stage(context.Background(), KindImage, pngBase64(t))
	require.NoError(t, err)
	b, err := stager.Stage(context.Background(), KindImage, pngBase64(t))
	require.NoError(t, err)
	defer stager.Release(a)
	defer stager.Release(b)

	assert.NotEqual(t, a.Path, b.Path)
}

func TestStage_Audio(t *testing.T) {
	stager := newTestStager(t)

	// minimal RIFF/WAVE header
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)
	asset, err := stager.Stage(context.Background(), KindAudio, base64.StdEncoding.EncodeToString(wav))
	require.NoError(t, err)
	defer stager.Release(asset)

	assert.Equal(t, ".wav", filepath.Ext(asset.Name))
	assert.Nil(t, asset.Frame)
	data, err := os.ReadFile(asset.Path)
	require.NoError(t, err)
	assert.Equal(t, wav, data)
}

func TestStage_UnknownAudioFallsBackToWav(t *testing.T) {
	stager := newTestStager(t)
	asset, err := stager.StageBytes(context.Background(), KindAudio, []byte("opaque bytes"))
	require.NoError(t, err)
	defer stager.Release(asset)
	assert.Equal(t, fallbackAudioExt, filepath.Ext(asset.Name))
}

func TestStage_DecodeFailures(t *testing.T) {
	stager := newTestStager(t)

	tests := []struct {
		name    string
		kind    Kind
		payload string
	}{
		{name: "bad base64", kind: KindImage, payload: "%%%"},
		{name: "not an image", kind: KindImage, payload: base64.StdEncoding.EncodeToString([]byte("plain text"))},
		{name: "empty audio", kind: KindAudio, payload: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset, err := stager.Stage(context.Background(), tt.kind, tt.payload)
			assert.Nil(t, asset)
			assert.True(t, platformerrors.IsKind(err, platformerrors.KindDecode), "got %v", err)
		})
	}

	entries, err := os.ReadDir(stager.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected payloads must not leave files behind")
}

func TestRelease_Idempotent(t *testing.T) {
	stager := newTestStager(t)
	asset, err := stager.Stage(context.Background(), KindImage, pngBase64(t))
	require.NoError(t, err)

	stager.Release(asset)
	stager.Release(asset)
	stager.Release(nil)
	stager.Release(&Asset{Name: "never-created", Path: filepath.Join(stager.Dir(), "never-created.png")})

	assert.NoFileExists(t, asset.Path)
}
