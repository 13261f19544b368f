package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
	"github.com/dkeye/voicebridge/internal/future"
)

type handlers struct {
	tr      Transport
	timeout time.Duration
}

type DeviceRequest struct {
	Enabled  *bool                 `json:"enabled"`
	DeviceID *domain.MediaDeviceID `json:"device_id"`
}

type MessageRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func statusOf(err error) int {
	var opErr *core.OperationFailedError
	var excErr *core.ExceptionThrownError
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, core.ErrMalformedAuthPayload):
		return http.StatusBadRequest
	case errors.As(err, &opErr), errors.As(err, &excErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := statusOf(err)
	log.Warn().Err(err).Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).Int("status", status).Msg("request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}

// await blocks the request until f settles.
func await[V any](h *handlers, c *gin.Context, f *future.Future[V]) (V, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	v, err := f.Await(ctx)
	if err != nil {
		h.fail(c, err)
		return v, false
	}
	return v, true
}

func (h *handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.tr.State(c.Request.Context())})
}

func (h *handlers) tracks(c *gin.Context) {
	c.JSON(http.StatusOK, h.tr.Tracks(c.Request.Context()))
}

func (h *handlers) participants(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"participants": h.tr.Participants(ctx),
		"bot":          h.tr.Bot(ctx),
	})
}

func (h *handlers) devices(c *gin.Context) {
	ctx := c.Request.Context()
	mics, ok := await(h, c, h.tr.GetAllMics(ctx))
	if !ok {
		return
	}
	cams, ok := await(h, c, h.tr.GetAllCams(ctx))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mics":         mics,
		"cams":         cams,
		"selected_mic": h.tr.SelectedMic(ctx),
		"selected_cam": h.tr.SelectedCam(ctx),
		"mic_enabled":  h.tr.IsMicEnabled(ctx),
		"cam_enabled":  h.tr.IsCamEnabled(ctx),
	})
}

func (h *handlers) mic(c *gin.Context) {
	h.device(c, h.tr.EnableMic, h.tr.UpdateMic)
}

func (h *handlers) cam(c *gin.Context) {
	h.device(c, h.tr.EnableCam, h.tr.UpdateCam)
}

func (h *handlers) device(
	c *gin.Context,
	enable func(context.Context, bool) *future.Future[struct{}],
	update func(context.Context, domain.MediaDeviceID) *future.Future[struct{}],
) {
	var req DeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Enabled == nil && req.DeviceID == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected enabled or device_id"})
		return
	}
	ctx := c.Request.Context()
	if req.DeviceID != nil {
		if _, ok := await(h, c, update(ctx, *req.DeviceID)); !ok {
			return
		}
	}
	if req.Enabled != nil {
		if _, ok := await(h, c, enable(ctx, *req.Enabled)); !ok {
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) message(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid type"})
		return
	}
	msg := domain.MsgClientToServer{
		ID:    uuid.NewString(),
		Label: domain.ProtocolLabel,
		Type:  req.Type,
		Data:  req.Data,
	}
	if _, ok := await(h, c, h.tr.SendMessage(c.Request.Context(), msg)); !ok {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": msg.ID})
}

func (h *handlers) disconnect(c *gin.Context) {
	if _, ok := await(h, c, h.tr.Disconnect(c.Request.Context())); !ok {
		return
	}
	c.Status(http.StatusNoContent)
}
