package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/livevoice/internal/services"
	"github.com/yoockh/livevoice/internal/utils"
)

const maxImageBytes = 10 << 20

// ControlHandler exposes the node actions a UI drives.
type ControlHandler struct {
	voice    services.VoiceService
	chat     services.ChatService
	settings services.SettingsService
}

func NewControlHandler(voice services.VoiceService, chat services.ChatService, settings services.SettingsService) *ControlHandler {
	return &ControlHandler{voice: voice, chat: chat, settings: settings}
}

type renameReq struct {
	Name string `json:"name"`
}

type volumeReq struct {
	Volume *float64 `json:"volume"`
}

type textReq struct {
	Text string `json:"text"`
}

func (h *ControlHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Me())
}

func (h *ControlHandler) Rename(c *gin.Context) {
	var req renameReq
	if !bindJSON(c, "ControlHandler.Rename", &req) {
		return
	}
	me, err := h.settings.Rename(req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

func (h *ControlHandler) SetVolume(c *gin.Context) {
	const op = "ControlHandler.SetVolume"

	var req volumeReq
	if !bindJSON(c, op, &req) {
		return
	}
	if req.Volume == nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "volume is required", nil))
		return
	}
	me, err := h.settings.SetVolume(*req.Volume)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

func (h *ControlHandler) StartCapture(c *gin.Context) {
	if err := h.voice.StartCapture(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.settings.Me())
}

func (h *ControlHandler) StopCapture(c *gin.Context) {
	if err := h.voice.StopCapture(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.settings.Me())
}

func (h *ControlHandler) SendText(c *gin.Context) {
	var req textReq
	if !bindJSON(c, "ControlHandler.SendText", &req) {
		return
	}
	if err := h.chat.SendText(c.Request.Context(), req.Text); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *ControlHandler) SendImage(c *gin.Context) {
	const op = "ControlHandler.SendImage"

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "multipart field 'file' is required", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "failed to read upload", err))
		return
	}
	defer f.Close()

	if err := h.chat.SendImage(c.Request.Context(), fh.Filename, fh.Header.Get("Content-Type"), f); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *ControlHandler) History(c *gin.Context) {
	const op = "ControlHandler.History"

	var limit int64
	if v := c.Query("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "limit must be a non-negative integer", err))
			return
		}
		limit = n
	}
	msgs, err := h.chat.History(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
