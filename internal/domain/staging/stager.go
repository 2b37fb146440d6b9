package staging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	domainimage "shravan-server-go/internal/domain/image"
	"shravan-server-go/internal/platform/config"
	platformerrors "shravan-server-go/internal/platform/errors"
	"shravan-server-go/internal/platform/logging"
)

type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// fallbackAudioExt is used when the audio container cannot be sniffed.
const fallbackAudioExt = ".wav"

// Asset is a payload written to the staging directory. It belongs to exactly
// one request and must be handed back to Release when that request ends.
type Asset struct {
	Kind       Kind
	Name       string
	Path       string
	Size       int64
	MIME       string
	AcquiredAt time.Time
	// Frame is set for image assets.
	Frame *domainimage.Frame

	released atomic.Bool
}

// Stager decodes inbound payloads and writes them under Dir.
type Stager struct {
	dir      string
	maxAudio int64
	images   *domainimage.Pipeline
	logger   *logging.Logger
	now      func() time.Time
}

func NewStager(cfg config.StagingConfig, images *domainimage.Pipeline, logger *logging.Logger) (*Stager, error) {
	if images == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "staging:new", "image pipeline is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "staging:new", "create staging dir", err)
	}
	return &Stager{
		dir:      cfg.Dir,
		maxAudio: cfg.MaxAudioBytes,
		images:   images,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Dir returns the staging directory.
func (s *Stager) Dir() string { return s.dir }

// Stage decodes a bare or data-URL base64 payload and writes it to disk.
func (s *Stager) Stage(ctx context.Context, kind Kind, encoded string) (*Asset, error) {
	raw, err := DecodePayload(encoded)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindDecode, "staging:"+string(kind), "invalid "+string(kind)+" payload", err)
	}
	return s.StageBytes(ctx, kind, raw)
}

// StageBytes validates already-decoded bytes and writes them to disk.
func (s *Stager) StageBytes(ctx context.Context, kind Kind, raw []byte) (*Asset, error) {
	op := "staging:" + string(kind)
	if len(raw) == 0 {
		return nil, platformerrors.New(platformerrors.KindDecode, op, "empty "+string(kind)+" payload")
	}

	asset := &Asset{Kind: kind, AcquiredAt: s.now(), Size: int64(len(raw))}

	var ext string
	switch kind {
	case KindImage:
		out, err := s.images.Process(ctx, domainimage.Input{Reader: bytes.NewReader(raw), Source: "request"})
		if err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindDecode, op, "image rejected", err)
		}
		asset.Frame = out.Frame
		asset.MIME = out.Frame.MIMEType()
		ext = "." + out.Frame.Format
		if ext == ".jpeg" {
			ext = ".jpg"
		}
	case KindAudio:
		if s.maxAudio > 0 && int64(len(raw)) > s.maxAudio {
			return nil, platformerrors.New(platformerrors.KindDecode, op,
				fmt.Sprintf("audio exceeds maximum size of %d bytes", s.maxAudio))
		}
		sniffed := mimetype.Detect(raw)
		asset.MIME = sniffed.String()
		ext = sniffed.Extension()
		if !strings.HasPrefix(asset.MIME, "audio/") && !strings.HasPrefix(asset.MIME, "video/") {
			ext = fallbackAudioExt
		}
	default:
		return nil, platformerrors.New(platformerrors.KindInternal, op, "unknown asset kind")
	}

	asset.Name = s.assetName(kind, asset.AcquiredAt, ext)
	asset.Path = filepath.Join(s.dir, asset.Name)

	if err := os.WriteFile(asset.Path, raw, 0o600); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, op, "write staged asset", err)
	}

	s.logger.DebugTag("STAGING", "staged %s %s (%d bytes, %s)", kind, asset.Name, asset.Size, asset.MIME)
	return asset, nil
}

// assetName derives a unique name from the acquisition time plus a short
// random suffix.
func (s *Stager) assetName(kind Kind, at time.Time, ext string) string {
	prefix := "frame"
	if kind == KindAudio {
		prefix = "audio"
	}
	return fmt.Sprintf("%s_%s_%s%s", prefix, at.Format("20060102_150405.000000"), uuid.NewString()[:8], ext)
}

// Release removes the asset's file. Releasing nil, an already released asset
// or a file that is already gone is not an error.
func (s *Stager) Release(asset *Asset) {
	if asset == nil || asset.Path == "" {
		return
	}
	if asset.released.Swap(true) {
		s.logger.DebugTag("STAGING", "asset %s already released", asset.Name)
		return
	}
	if err := os.Remove(asset.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.DebugTag("STAGING", "asset %s was already removed", asset.Name)
			return
		}
		s.logger.WarnTag("STAGING", "failed to remove %s: %v", asset.Path, err)
		return
	}
	s.logger.DebugTag("STAGING", "released %s", asset.Name)
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodePayload accepts raw base64 or a data URL ("data:image/jpeg;base64,...").
// Everything up to the first comma is treated as the prefix.
func DecodePayload(encoded string) ([]byte, error) {
	payload := strings.TrimSpace(encoded)
	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		payload = payload[idx+1:]
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, errors.New("empty payload")
	}

	var lastErr error
	for _, enc := range base64Encodings {
		raw, err := enc.DecodeString(payload)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("decode base64: %w", lastErr)
}
