package webui

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"toolbox_backend/metrics"
	"toolbox_backend/mirror"
)

// mirrorRequest is the POST /api/mirror body.
type mirrorRequest struct {
	ImageBase64    string `json:"imageBase64"`
	MimeType       string `json:"mimeType"`
	VariationLevel int    `json:"variationLevel"`
}

// mirrorResponse is the POST /api/mirror reply.
type mirrorResponse struct {
	ImageBase64      string `json:"imageBase64"`
	MimeType         string `json:"mimeType"`
	RemainingCredits int    `json:"remainingCredits"`
}

// creditsResponse is the GET /api/credits reply.
type creditsResponse struct {
	Credits int `json:"credits"`
}

// handleMirror serves POST /api/mirror. One credit is spent per call; see
// mirror.Service for the refund rules.
func (s *Server) handleMirror(w http.ResponseWriter, r *http.Request) {
	profile, err := currentProfile(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	if !s.deps.Mirror.Enabled() {
		WriteError(w, s.logger, mirror.ErrNotConfigured)
		return
	}

	// base64 inflates the image by a third
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes/3*4+4096)
	var body mirrorRequest
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, s.logger, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	start := time.Now()
	var resp *mirror.Response
	err = s.track(r.Context(), "mirror", func(ctx context.Context) error {
		var err error
		resp, err = s.deps.Mirror.Transform(ctx, profile.ID, req)
		return err
	})
	s.recordMirrorTask(profile.ID, start, err)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, mirrorResponse{
		ImageBase64:      base64.StdEncoding.EncodeToString(resp.Image),
		MimeType:         resp.MIMEType,
		RemainingCredits: resp.RemainingCredits,
	})
}

// handleCredits serves GET /api/credits. It applies the daily reset but
// never charges.
func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	profile, err := currentProfile(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	balance, err := s.deps.Mirror.Credits(r.Context(), profile.ID)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, creditsResponse{Credits: balance})
}

func (s *Server) recordMirrorTask(profileID string, start time.Time, err error) {
	task := metrics.TaskRecord{
		Type:      metrics.TaskTypeMirror,
		ProfileID: profileID,
		Status:    metrics.TaskStatusSuccess,
		StartTime: start,
		EndTime:   time.Now(),
		Duration:  time.Since(start),
		Items:     1,
	}
	if err != nil {
		task.Status = metrics.TaskStatusError
		task.ErrorMsg = err.Error()
		task.Items = 0
	}
	s.recordTask(task)
}

// toRequest decodes the image. A data URL prefix is accepted and supplies
// the MIME type when mimeType is empty.
func (m mirrorRequest) toRequest() (mirror.Request, error) {
	data := strings.TrimSpace(m.ImageBase64)
	mimeType := strings.TrimSpace(m.MimeType)

	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return mirror.Request{}, fmt.Errorf("%w: malformed data URL", mirror.ErrInvalidRequest)
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		data = payload
	}
	if data == "" || mimeType == "" {
		return mirror.Request{}, fmt.Errorf("%w: imageBase64 and mimeType are required", mirror.ErrInvalidRequest)
	}

	image, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return mirror.Request{}, fmt.Errorf("%w: imageBase64 is not valid base64", mirror.ErrInvalidRequest)
	}
	return mirror.Request{Image: image, MIMEType: mimeType, Level: m.VariationLevel}, nil
}
