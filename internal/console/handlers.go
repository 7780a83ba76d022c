package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/andresmejia3/faceguard/internal/enroll"
	"github.com/andresmejia3/faceguard/internal/gallery"
	"github.com/andresmejia3/faceguard/internal/overlay"
	"github.com/andresmejia3/faceguard/internal/stream"
	"github.com/andresmejia3/faceguard/internal/types"
)

const (
	maxUploadImages = 16
	mjpegBoundary   = "faceguardframe"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"gallery":   s.gallery.Len(),
		"streaming": s.ctrl != nil && s.ctrl.Streaming(),
	})
}

type streamView struct {
	Mode    string             `json:"mode"`
	Running bool               `json:"running"`
	Busy    bool               `json:"busy"`
	Stats   stream.Stats       `json:"stats"`
	Overlay overlay.Annotation `json:"overlay"`
	Frames  uint64             `json:"painted"`
	Viewers int                `json:"viewers"`
}

func (s *Server) listStreams(w http.ResponseWriter, r *http.Request) {
	if s.ctrl == nil {
		respondError(w, http.StatusServiceUnavailable, "streaming is not available")
		return
	}
	infos := s.ctrl.Streams()
	views := make([]streamView, 0, len(infos))
	for _, info := range infos {
		v := streamView{Mode: info.Mode, Running: info.Running, Busy: info.Busy, Stats: info.Stats}
		if m, err := types.ParseMode(info.Mode); err == nil {
			if sl, ok := s.slots[m]; ok {
				_, v.Overlay, v.Frames = sl.latest()
				v.Viewers = sl.viewers()
			}
		}
		views = append(views, v)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"streaming": s.ctrl.Streaming(),
		"streams":   views,
	})
}

func (s *Server) startStreams(w http.ResponseWriter, r *http.Request) {
	if s.ctrl == nil {
		respondError(w, http.StatusServiceUnavailable, "streaming is not available")
		return
	}
	if err := s.ctrl.Start(s.base); err != nil {
		if errors.Is(err, enroll.ErrGalleryChanging) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("failed to start streaming")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"streaming": true})
}

func (s *Server) stopStreams(w http.ResponseWriter, r *http.Request) {
	if s.ctrl == nil {
		respondError(w, http.StatusServiceUnavailable, "streaming is not available")
		return
	}
	s.ctrl.Stop()
	respondJSON(w, http.StatusOK, map[string]bool{"streaming": false})
}

func (s *Server) toggleStreams(w http.ResponseWriter, r *http.Request) {
	if s.ctrl == nil {
		respondError(w, http.StatusServiceUnavailable, "streaming is not available")
		return
	}
	on, err := s.ctrl.Toggle(s.base)
	if err != nil {
		if errors.Is(err, enroll.ErrGalleryChanging) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("failed to toggle streaming")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"streaming": on})
}

// slotFor resolves the {mode} parameter, answering 404 for unknown or unconfigured streams.
func (s *Server) slotFor(w http.ResponseWriter, r *http.Request) (*slot, bool) {
	mode, err := types.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	sl, ok := s.slots[mode]
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("%s stream is not configured", mode))
		return nil, false
	}
	return sl, true
}

func (s *Server) streamOverlay(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.slotFor(w, r)
	if !ok {
		return
	}
	_, ann, _ := sl.latest()
	respondJSON(w, http.StatusOK, ann)
}

func (s *Server) streamFrame(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.slotFor(w, r)
	if !ok {
		return
	}
	data, _, _ := sl.latest()
	if data == nil {
		respondError(w, http.StatusServiceUnavailable, "no frame captured yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (s *Server) streamMJPEG(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.slotFor(w, r)
	if !ok {
		return
	}
	frames, unsubscribe := sl.subscribe()
	defer unsubscribe()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.base.Done():
			return
		case data := <-frames:
			if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(data)); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := io.WriteString(w, "\r\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

type galleryItem struct {
	Index        int    `json:"index"`
	Label        string `json:"label"`
	FeatureBytes int    `json:"feature_bytes"`
	Thumbnail    bool   `json:"thumbnail"`
}

func (s *Server) listGallery(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	entries, gen := s.gallery.Snapshot()
	items := make([]galleryItem, 0, len(entries))
	for i, e := range entries {
		if filter != "" && !gallery.MatchesFilter(e.Label, filter) {
			continue
		}
		items = append(items, galleryItem{
			Index:        i,
			Label:        e.Label,
			FeatureBytes: e.Feature.Size(),
			Thumbnail:    len(e.Thumbnail) > 0,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"generation": gen,
		"total":      len(entries),
		"entries":    items,
	})
}

func (s *Server) clearGallery(w http.ResponseWriter, r *http.Request) {
	if s.ctrl == nil {
		respondError(w, http.StatusServiceUnavailable, "streaming is not available")
		return
	}
	if err := s.ctrl.ClearGallery(r.Context()); err != nil {
		if errors.Is(err, enroll.ErrStreamingActive) || errors.Is(err, enroll.ErrGalleryChanging) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("failed to clear gallery")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"entries": s.gallery.Len()})
}

func (s *Server) thumbnail(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	entry, ok := s.gallery.Entry(index)
	if !ok || len(entry.Thumbnail) == 0 {
		respondError(w, http.StatusNotFound, "no thumbnail for that entry")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(entry.Thumbnail)
}

type enrollResult struct {
	Source string `json:"source"`
	Label  string `json:"label"`
	Index  int    `json:"index"`
	Error  string `json:"error,omitempty"`
}

// enrollImages accepts a multipart form with a "label" field and one or more "image" files.
func (s *Server) enrollImages(w http.ResponseWriter, r *http.Request) {
	if s.enroller == nil {
		respondError(w, http.StatusServiceUnavailable, "enrollment is not available")
		return
	}
	if s.ctrl != nil && s.ctrl.Streaming() {
		respondError(w, http.StatusConflict, enroll.ErrStreamingActive.Error())
		return
	}

	maxBody := int64(maxUploadImages*enroll.MaxImageBytes + 1<<20)
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(maxBody); err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	label := r.FormValue("label")
	if label == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}
	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "at least one image is required")
		return
	}
	if len(files) > maxUploadImages {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d images per request", maxUploadImages))
		return
	}

	var out []enrollResult
	var inputs []enroll.Input
	for _, fh := range files {
		img, err := readUpload(fh)
		if err != nil {
			out = append(out, enrollResult{Source: fh.Filename, Label: label, Index: -1, Error: err.Error()})
			continue
		}
		inputs = append(inputs, enroll.Input{Label: label, Source: fh.Filename, Image: img})
	}

	results, err := s.enroller.Enroll(r.Context(), inputs, nil)
	if errors.Is(err, enroll.ErrStreamingActive) || errors.Is(err, enroll.ErrGalleryChanging) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	enrolled := 0
	for _, res := range results {
		er := enrollResult{Source: res.Source, Label: res.Label, Index: res.Index}
		if res.Err != nil {
			er.Error = res.Err.Error()
		} else {
			enrolled++
		}
		out = append(out, er)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("enrollment interrupted")
	}

	status := http.StatusOK
	if enrolled == 0 {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, map[string]any{"enrolled": enrolled, "results": out})
}

// readUpload reads one multipart file, refusing anything over the image size limit.
func readUpload(fh *multipart.FileHeader) (image.Image, error) {
	if fh.Size > enroll.MaxImageBytes {
		return nil, enroll.ErrImageTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, enroll.MaxImageBytes+1))
	if err != nil {
		return nil, err
	}
	return enroll.DecodeImage(data, filepath.Ext(fh.Filename))
}
