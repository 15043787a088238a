package upload

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dangoware/confetti-box/pkg/errtypes"
	"github.com/Dangoware/confetti-box/pkg/metaindex"
)

// maxAllowed is the ceiling the streaming variant enforces per spec
// §4.4.2: "min(declared_size, max_filesize)".
func (s *Service) maxAllowed(declaredSize uint64) uint64 {
	if declaredSize < s.cfg.MaxFilesize {
		return declaredSize
	}
	return s.cfg.MaxFilesize
}

// RunStream drives one full WebSocket upload session to completion: it
// reads binary frames, appends each to the staging file, sends back a
// binary progress frame after each, and on an empty frame (end-of-stream)
// finalizes the upload and writes a single text frame carrying the created
// Entry's JSON before returning. RunStream closes the connection after the
// final frame and when a frame is rejected by staging; on any other error
// the connection is left for the caller to close.
func (s *Service) RunStream(conn *websocket.Conn, name string, size uint64, expireDuration time.Duration) error {
	if err := s.validateStart(name, size, expireDuration); err != nil {
		return err
	}

	sess, err := s.cs.NewStreamUpload(name, size, expireDuration, s.cfg.MaxFilesize)
	if err != nil {
		return err
	}

	limit := s.maxAllowed(size)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			s.cs.Cancel(sess.ID)
			return errtypes.InternalWrap(err, "upload: websocket read")
		}
		if msgType != websocket.BinaryMessage {
			s.cs.Cancel(sess.ID)
			return errtypes.ProtocolViolation("expected binary frame")
		}

		if len(data) == 0 {
			// End-of-stream.
			entry, err := s.cs.PromoteStreamed(sess.ID, s.bs, s.idx)
			if err != nil {
				return err
			}
			return writeFinalEntry(conn, entry)
		}

		total, err := s.cs.AppendStreamFrame(sess.ID, data, limit)
		if err != nil {
			_ = conn.Close()
			return err
		}

		if err := writeProgress(conn, total); err != nil {
			s.cs.Cancel(sess.ID)
			return errtypes.InternalWrap(err, "upload: websocket write")
		}
	}
}

// writeProgress sends the little-endian 8-byte cumulative byte count, per
// spec §4.4.2.
func writeProgress(conn *websocket.Conn, total uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, total)
	return conn.WriteMessage(websocket.BinaryMessage, buf)
}

// writeFinalEntry sends the single terminal text frame carrying the created
// Entry, then closes the connection cleanly.
func writeFinalEntry(conn *websocket.Conn, entry metaindex.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return errtypes.InternalWrap(err, "upload: encode final entry")
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errtypes.InternalWrap(err, "upload: websocket write final frame")
	}
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	return conn.Close()
}
