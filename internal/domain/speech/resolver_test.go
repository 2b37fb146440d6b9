package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shravan-server-go/internal/domain/staging"
	platformerrors "shravan-server-go/internal/platform/errors"
	platformtesting "shravan-server-go/internal/platform/testing"
)

type MockTranscriber struct {
	mock.Mock
}

func (m *MockTranscriber) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*TranscribeResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

const defaultPrompt = "Describe what you see and tell me where I am."

func newResolver(t *testing.T, tr Transcriber) *Resolver {
	t.Helper()
	r, err := NewResolver(tr, Options{
		DefaultPrompt: defaultPrompt,
		Timeout:       time.Second,
		Logger:        platformtesting.SetupTestLogger(t),
	})
	require.NoError(t, err)
	return r
}

var audioAsset = &staging.Asset{Kind: staging.KindAudio, Name: "audio_x.wav", Path: "/tmp/audio_x.wav", MIME: "audio/wav"}

func TestResolve_TextWinsOverAudio(t *testing.T) {
	tr := new(MockTranscriber)
	r := newResolver(t, tr)

	got := r.Resolve(context.Background(), "What's in front of me?", audioAsset)

	assert.Equal(t, Utterance{Text: "What's in front of me?", Source: SourceText}, got)
	tr.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestResolve_Transcribes(t *testing.T) {
	tr := new(MockTranscriber)
	tr.On("Transcribe", mock.Anything, mock.MatchedBy(func(req TranscribeRequest) bool {
		return req.FilePath == audioAsset.Path && req.Format == "audio/wav"
	})).Return(&TranscribeResponse{Text: "  where is the door  "}, nil).Once()

	got := newResolver(t, tr).Resolve(context.Background(), "   ", audioAsset)

	assert.Equal(t, "where is the door", got.Text)
	assert.Equal(t, SourceTranscription, got.Source)
	assert.NoError(t, got.Degraded)
	tr.AssertExpectations(t)
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	tests := []struct {
		name  string
		audio *staging.Asset
		resp  *TranscribeResponse
		err   error
	}{
		{name: "no audio"},
		{name: "transcription error", audio: audioAsset, err: errors.New("upstream 503")},
		{name: "blank transcript", audio: audioAsset, resp: &TranscribeResponse{Text: " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := new(MockTranscriber)
			if tt.audio != nil {
				tr.On("Transcribe", mock.Anything, mock.Anything).Return(tt.resp, tt.err)
			}

			got := newResolver(t, tr).Resolve(context.Background(), "", tt.audio)

			assert.Equal(t, defaultPrompt, got.Text)
			assert.Equal(t, SourceDefault, got.Source)
			if tt.audio != nil {
				assert.True(t, platformerrors.IsKind(got.Degraded, platformerrors.KindTranscription))
			} else {
				tr.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestTranscribe_AppliesTimeout(t *testing.T) {
	tr := new(MockTranscriber)
	tr.On("Transcribe", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, ok := ctx.Deadline()
		assert.True(t, ok, "transcription must carry a deadline")
	}).Return(&TranscribeResponse{Text: "hi"}, nil)

	text, err := newResolver(t, tr).Transcribe(context.Background(), audioAsset)
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
}

func TestNewResolver_Validates(t *testing.T) {
	_, err := NewResolver(nil, Options{DefaultPrompt: defaultPrompt})
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindConfig))

	_, err = NewResolver(new(MockTranscriber), Options{})
	assert.Error(t, err)
}
