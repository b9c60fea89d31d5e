package handler

import (
	"net/http"

	"github.com/classgate/access-server/internal/engine"
	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/util"
)

// DeviceHandler accepts detections from networked readers.
type DeviceHandler struct {
	engine *engine.Engine
}

func NewDeviceHandler(eng *engine.Engine) *DeviceHandler {
	return &DeviceHandler{engine: eng}
}

func (h *DeviceHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if util.IsBlank(req.Credential) {
		writeError(w, apperrors.MissingRequired("credential"))
		return
	}

	res, err := h.engine.Scan(r.Context(), model.Credential(req.Credential))
	writeScan(w, res, err)
}
