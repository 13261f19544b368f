package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/config"
	"github.com/dkeye/voicebridge/internal/domain"
	"github.com/dkeye/voicebridge/internal/future"
)

// Transport is the part of the voice transport the status API drives.
type Transport interface {
	State(ctx context.Context) domain.TransportState
	Tracks(ctx context.Context) domain.Tracks
	Participants(ctx context.Context) []domain.Participant
	Bot(ctx context.Context) *domain.Participant

	GetAllMics(ctx context.Context) *future.Future[[]domain.MediaDeviceInfo]
	GetAllCams(ctx context.Context) *future.Future[[]domain.MediaDeviceInfo]
	SelectedMic(ctx context.Context) *domain.MediaDeviceInfo
	SelectedCam(ctx context.Context) *domain.MediaDeviceInfo
	IsMicEnabled(ctx context.Context) bool
	IsCamEnabled(ctx context.Context) bool

	EnableMic(ctx context.Context, enable bool) *future.Future[struct{}]
	EnableCam(ctx context.Context, enable bool) *future.Future[struct{}]
	UpdateMic(ctx context.Context, id domain.MediaDeviceID) *future.Future[struct{}]
	UpdateCam(ctx context.Context, id domain.MediaDeviceID) *future.Future[struct{}]
	SendMessage(ctx context.Context, msg domain.MsgClientToServer) *future.Future[struct{}]
	Disconnect(ctx context.Context) *future.Future[struct{}]
}

const requestIDHeader = "X-Request-ID"

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, tr Transport) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	h := &handlers{tr: tr, timeout: 10 * time.Second}

	api := r.Group("/api")
	api.GET("/state", h.state)
	api.GET("/tracks", h.tracks)
	api.GET("/participants", h.participants)
	api.GET("/devices", h.devices)
	api.POST("/mic", h.mic)
	api.POST("/cam", h.cam)
	api.POST("/message", h.message)
	api.POST("/disconnect", h.disconnect)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
