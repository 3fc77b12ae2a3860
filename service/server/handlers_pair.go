package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"beacon/service/util"

	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
)

// pairPayload is what the companion app scans to find this host: its base
// URL and the API key it must present.
type pairPayload struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// handlePair renders the pairing payload as a QR code PNG. The endpoint
// already sits behind auth, so it only re-states a key the caller holds.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	host := util.GetLANIP()
	if host == "" {
		host = "localhost"
	}

	payload, err := json.Marshal(pairPayload{
		URL: fmt.Sprintf("http://%s:%d", host, s.cfg.Port),
		Key: s.cfg.APIKey,
	})
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to build pairing payload", http.StatusInternalServerError, err)
		return
	}

	qrc, err := qrcode.New(string(payload))
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to generate pairing code", http.StatusInternalServerError, err)
		return
	}

	var buf bytes.Buffer
	writer := standard.NewWithWriter(nopWriteCloser{&buf})
	if err := qrc.Save(writer); err != nil {
		util.LogAndError(w, s.logger, "Failed to render pairing code", http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w) //nolint:errcheck
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
