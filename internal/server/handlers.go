package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Dangoware/confetti-box/pkg/appctx"
	"github.com/Dangoware/confetti-box/pkg/errtypes"
	"github.com/Dangoware/confetti-box/pkg/lookup"
	"github.com/Dangoware/confetti-box/pkg/mmid"
	"github.com/Dangoware/confetti-box/pkg/upload"
)

// upgrader accepts WebSocket upgrades from any origin: this service has no
// session/cookie-based auth for the upgrade to protect, and cross-origin
// access control is a reverse-proxy concern same as the rest of the surface.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handlers holds the dependencies every route needs; chi dispatches
// straight to its methods.
type handlers struct {
	upload *upload.Service
	lookup *lookup.Service
	log    zerolog.Logger
}

type startChunkedRequest struct {
	Name           string `json:"name"`
	Size           uint64 `json:"size"`
	ExpireDuration int64  `json:"expire_duration"`
}

type startChunkedResponse struct {
	Status    bool    `json:"status"`
	Message   string  `json:"message"`
	UUID      string  `json:"uuid,omitempty"`
	ChunkSize *uint64 `json:"chunk_size,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), startChunkedResponse{Status: false, Message: err.Error()})
}

// startChunked handles POST /upload/chunked.
func (h *handlers) startChunked(w http.ResponseWriter, r *http.Request) {
	var req startChunkedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errtypes.Validation("malformed request body"))
		return
	}

	result, err := h.upload.StartChunked(req.Name, req.Size, time.Duration(req.ExpireDuration)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}

	chunkSize := result.ChunkSize
	writeJSON(w, http.StatusOK, startChunkedResponse{
		Status:    true,
		Message:   "upload started",
		UUID:      result.UUID.String(),
		ChunkSize: &chunkSize,
	})
}

// continueChunked handles POST /upload/chunked/{uuid}?chunk=<k>.
func (h *handlers) continueChunked(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, errtypes.Validation("malformed uuid"))
		return
	}

	chunkParam := r.URL.Query().Get("chunk")
	index, err := strconv.ParseUint(chunkParam, 10, 64)
	if err != nil {
		writeError(w, errtypes.Validation("missing or malformed chunk index"))
		return
	}

	if err := h.upload.ContinueChunked(id, index, r.Body); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// finishChunked handles GET /upload/chunked/{uuid}?finish.
func (h *handlers) finishChunked(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, errtypes.Validation("malformed uuid"))
		return
	}
	if _, ok := r.URL.Query()["finish"]; !ok {
		writeError(w, errtypes.Validation("missing finish query parameter"))
		return
	}

	entry, err := h.upload.FinishChunked(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// websocketUpload handles GET /upload/websocket?name=&size=&duration=,
// upgrading the connection and then driving the streaming upload to
// completion over it.
func (h *handlers) websocketUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")

	size, err := strconv.ParseUint(q.Get("size"), 10, 64)
	if err != nil {
		writeError(w, errtypes.Validation("missing or malformed size"))
		return
	}

	var expireDuration time.Duration
	if d := q.Get("duration"); d != "" {
		seconds, err := strconv.ParseInt(d, 10, 64)
		if err != nil {
			writeError(w, errtypes.Validation("malformed duration"))
			return
		}
		expireDuration = time.Duration(seconds) * time.Second
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("server: websocket upgrade failed")
		return
	}

	if err := h.upload.RunStream(conn, name, size, expireDuration); err != nil {
		h.log.Warn().Err(err).Msg("server: websocket upload ended with error")
	}
}

// info handles GET /info.
func (h *handlers) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.lookup.ServerCapabilities())
}

// infoByMMID handles GET /info/{mmid}.
func (h *handlers) infoByMMID(w http.ResponseWriter, r *http.Request) {
	m := mmid.MMID(chi.URLParam(r, "mmid"))
	entry, err := h.lookup.GetEntry(m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// fetchByMMID handles GET /f/{mmid}, redirecting to /f/{mmid}/{name} unless
// noredir is set, in which case it streams the blob directly.
func (h *handlers) fetchByMMID(w http.ResponseWriter, r *http.Request) {
	m := mmid.MMID(chi.URLParam(r, "mmid"))

	if _, noredir := r.URL.Query()["noredir"]; !noredir {
		entry, err := h.lookup.GetEntry(m)
		if err != nil {
			writeError(w, err)
			return
		}
		http.Redirect(w, r, "/f/"+entry.MMID.String()+"/"+entry.Name, http.StatusSeeOther)
		return
	}

	h.streamBlob(w, r, m, "")
}

// fetchByMMIDAndName handles GET /f/{mmid}/{name}, 404ing if name does not
// match the entry's stored name.
func (h *handlers) fetchByMMIDAndName(w http.ResponseWriter, r *http.Request) {
	m := mmid.MMID(chi.URLParam(r, "mmid"))
	name := chi.URLParam(r, "name")
	h.streamBlob(w, r, m, name)
}

func (h *handlers) streamBlob(w http.ResponseWriter, r *http.Request, m mmid.MMID, expectName string) {
	entry, f, err := h.lookup.OpenBlob(m)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	if expectName != "" && expectName != entry.Name {
		writeError(w, errtypes.NotFound("name does not match entry"))
		return
	}

	w.Header().Set("Content-Type", entry.MimeType)

	download := r.URL.Query().Get("download")
	if download == "true" || download == "1" {
		w.Header().Set("Content-Disposition", contentDisposition("attachment", entry.Name))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		appctx.GetLogger(r.Context()).Warn().Err(err).Msg("server: failed to stream blob body")
	}
}
