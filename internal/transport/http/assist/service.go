package assist

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shravan-server-go/internal/app/services"
	"shravan-server-go/internal/domain/speech"
	platformerrors "shravan-server-go/internal/platform/errors"
	"shravan-server-go/internal/platform/logging"
	httptransport "shravan-server-go/internal/transport/http"
)

const noAudioMessage = "No audio file"

// Pipeline is the part of the orchestrator the handlers need.
type Pipeline interface {
	Process(ctx context.Context, req services.QueryRequest) (*services.Reply, error)
	Transcribe(ctx context.Context, encoded string) (string, error)
	TranscribeBytes(ctx context.Context, raw []byte) (string, error)
}

// Service exposes the query, transcription and health endpoints.
type Service struct {
	pipeline      Pipeline
	logger        *logging.Logger
	maxAudioBytes int64
}

func NewService(pipeline Pipeline, logger *logging.Logger, maxAudioBytes int64) (*Service, error) {
	if pipeline == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "assist:new", "pipeline is required")
	}
	if logger == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "assist:new", "logger is required")
	}
	return &Service{pipeline: pipeline, logger: logger, maxAudioBytes: maxAudioBytes}, nil
}

// Register mounts the endpoints on router.
func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	router.POST("/query", s.handleQuery)
	router.POST("/transcribe", s.handleTranscribe)
	router.GET("/health", s.handleHealth)

	s.logger.InfoTag("HTTP", "assist routes registered under %q", router.BasePath())
	return nil
}

// handleQuery runs the guidance pipeline.
// @Summary Ask for guidance
// @Description Combines the camera frame, the spoken or typed question and the server location into one guidance reply.
// @Tags Assist
// @Accept json
// @Produce json
// @Param request body QueryRequest true "text, audio and image (base64 or data URL); at least one is required"
// @Success 200 {object} QueryResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 502 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /query [post]
func (s *Service) handleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.WarnTag("HTTP", "invalid query body: %v", err)
		httptransport.RespondError(c, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	reply, err := s.pipeline.Process(c.Request.Context(), services.QueryRequest{
		Text:  req.Text,
		Audio: req.Audio,
		Image: req.Image,
	})
	if err != nil {
		httptransport.RespondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, toQueryResponse(reply))
}

// handleTranscribe transcribes a standalone recording.
// @Summary Transcribe audio
// @Description Accepts a multipart upload in field "audio" or a JSON body {"audio": "<base64>"}.
// @Tags Assist
// @Accept mpfd
// @Accept json
// @Produce json
// @Param audio formData file false "audio recording"
// @Success 200 {object} TranscribeResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 502 {object} httptransport.ErrorResponse
// @Router /transcribe [post]
func (s *Service) handleTranscribe(c *gin.Context) {
	var (
		text string
		err  error
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		raw, readErr := s.readUpload(c)
		if readErr != nil {
			httptransport.RespondErr(c, readErr)
			return
		}
		text, err = s.pipeline.TranscribeBytes(c.Request.Context(), raw)
	} else {
		var req TranscribeRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil || strings.TrimSpace(req.Audio) == "" {
			httptransport.RespondError(c, http.StatusBadRequest, noAudioMessage)
			return
		}
		text, err = s.pipeline.Transcribe(c.Request.Context(), req.Audio)
	}

	if err != nil {
		s.logger.WarnTag("SPEECH", "transcription endpoint failed: %v", err)
		httptransport.RespondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, TranscribeResponse{Text: text})
}

func (s *Service) readUpload(c *gin.Context) ([]byte, error) {
	const op = "assist:transcribe"
	header, err := c.FormFile("audio")
	if err != nil {
		return nil, platformerrors.New(platformerrors.KindDecode, op, noAudioMessage)
	}
	if s.maxAudioBytes > 0 && header.Size > s.maxAudioBytes {
		return nil, platformerrors.New(platformerrors.KindDecode, op, "audio file too large")
	}

	file, err := header.Open()
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindDecode, op, "cannot open upload", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindDecode, op, "cannot read upload", err)
	}
	if len(raw) == 0 {
		return nil, platformerrors.New(platformerrors.KindDecode, op, noAudioMessage)
	}
	return raw, nil
}

// handleHealth
// @Summary Health check
// @Tags Assist
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Message: "Server is running"})
}

func toQueryResponse(reply *services.Reply) QueryResponse {
	objects := make([]DetectedObject, 0, len(reply.Scene.Detections))
	for _, d := range reply.Scene.Detections {
		objects = append(objects, DetectedObject{
			Object:     d.Label,
			Confidence: d.Confidence,
			Position:   BoundingBox{X1: d.Box.X1, Y1: d.Box.Y1, X2: d.Box.X2, Y2: d.Box.Y2},
		})
	}

	resp := QueryResponse{
		Reply:           reply.Text,
		Object:          reply.Scene.Label(),
		DetectedObjects: objects,
		Location:        reply.Location.Sentence,
		SceneStatus:     string(reply.Scene.Status),
	}
	if reply.Utterance.Source != speech.SourceText {
		resp.SpeechRecognized = reply.Utterance.Text
	}
	return resp
}

