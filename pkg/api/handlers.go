package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dixieflatline76/InstaRatio/config"
	"github.com/dixieflatline76/InstaRatio/pkg/crop"
	"github.com/dixieflatline76/InstaRatio/pkg/sink"
	"github.com/dixieflatline76/InstaRatio/util/log"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
)

type ctxKey struct{}

// requestID tags every request with a uuid and logs it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		log.Debugf("[%s] %s %s", id, r.Method, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func reqID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

type rectJSON struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func toRectJSON(r image.Rectangle) rectJSON {
	return rectJSON{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

type imageJSON struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

type outputJSON struct {
	imageJSON
	Filename string `json:"filename"`
	Size     int    `json:"size"`
}

type stateJSON struct {
	Preset string      `json:"preset"`
	Ratio  string      `json:"ratio"`
	Image  *imageJSON  `json:"image,omitempty"`
	Crop   *rectJSON   `json:"crop,omitempty"`
	Output *outputJSON `json:"output,omitempty"`
}

type presetJSON struct {
	Name  string   `json:"name"`
	Label string   `json:"label"`
	Ratio *float64 `json:"ratio"` // null for free crop
}

// rectSetter is implemented by surfaces that accept a crop box from outside.
type rectSetter interface {
	SetRect(image.Rectangle) image.Rectangle
}

func (s *Server) state() stateJSON {
	st := stateJSON{
		Preset: s.session.SelectedPreset(),
		Ratio:  s.session.Ratio().String(),
	}
	if src := s.session.Source(); src != nil {
		st.Image = &imageJSON{Width: src.Width(), Height: src.Height(), Format: src.MIMEType}
	}
	if surf := s.session.Surface(); surf != nil {
		rj := toRectJSON(surf.CropRect())
		st.Crop = &rj
	}
	if out := s.session.Output(); out != nil {
		name, _ := s.session.DownloadName()
		st.Output = &outputJSON{
			imageJSON: imageJSON{Width: out.Width, Height: out.Height, Format: out.MIMEType},
			Filename:  name,
			Size:      len(out.Data),
		}
	}
	return st
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// writeError maps the session error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, crop.ErrUnknownPreset):
		status = http.StatusBadRequest
	case errors.Is(err, crop.ErrUnsupportedImage):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, crop.ErrNoActiveCrop), errors.Is(err, crop.ErrStaleLoad):
		status = http.StatusConflict
	case errors.Is(err, crop.ErrRasterization):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, crop.ErrNoOutput):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.Printf("[%s] %s %s: %v", reqID(r), r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "running",
		"version": config.AppVersion,
	})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	var out []presetJSON
	for p := range s.session.Registry().List() {
		pj := presetJSON{Name: p.Name, Label: p.Label()}
		if v, ok := p.Ratio.Value(); ok {
			pj.Ratio = &v
		}
		out = append(out, pj)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.uploads.Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many uploads"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid upload: " + err.Error()})
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file field"})
		return
	}
	defer file.Close()

	mimeType := hdr.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "not an image: " + mimeType})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading upload: " + err.Error()})
		return
	}

	// A newer upload wins even if this one finishes decoding first. Only
	// requests that got this far take a ticket.
	ticket := s.session.BeginLoad()
	if _, err := s.session.CommitLoad(r.Context(), ticket, data, mimeType); err != nil {
		writeError(w, r, err)
		return
	}
	log.Printf("[%s] Loaded %s (%d bytes)", reqID(r), hdr.Filename, len(data))
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleSelectPreset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.session.SelectPreset(req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleSetCrop(w http.ResponseWriter, r *http.Request) {
	var req rectJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	surf := s.session.Surface()
	if surf == nil {
		writeError(w, r, crop.ErrNoActiveCrop)
		return
	}
	setter, ok := surf.(rectSetter)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "surface does not accept crop rectangles"})
		return
	}
	got := setter.SetRect(image.Rect(req.X, req.Y, req.X+req.W, req.Y+req.H))
	writeJSON(w, http.StatusOK, toRectJSON(got))
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if _, err := s.session.Process(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

// handleOutput serves the processed image inline, optionally as a thumbnail.
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	out := s.session.Output()
	if out == nil {
		writeError(w, r, crop.ErrNoOutput)
		return
	}

	data := out.Data
	if v := r.URL.Query().Get("thumb"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 4096 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid thumb size"})
			return
		}
		data, err = thumbnail(out, uint(n))
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", out.MIMEType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.session.Download(r.Context(), sink.NewResponse(w)); err != nil {
		writeError(w, r, err)
	}
}

// handleWebSocket upgrades the connection and keeps it registered until the
// client goes away. The client receives the current state on connect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.clientsMu.Lock()
	s.clients[conn] = true
	err = conn.WriteJSON(map[string]interface{}{"type": "state", "state": s.state()})
	s.clientsMu.Unlock()
	if err != nil {
		log.Printf("WebSocket hello failed: %v", err)
	}

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func thumbnail(out *crop.Output, n uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(out.Data))
	if err != nil {
		return nil, err
	}
	small := resize.Thumbnail(n, n, img, resize.Lanczos3)

	var buf bytes.Buffer
	if out.MIMEType == crop.MIMEJPEG {
		err = jpeg.Encode(&buf, small, &jpeg.Options{Quality: 85})
	} else {
		err = png.Encode(&buf, small)
	}
	return buf.Bytes(), err
}
