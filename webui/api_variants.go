package webui

import (
	"archive/zip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"toolbox_backend/db"
	"toolbox_backend/logging"
	"toolbox_backend/metrics"
	"toolbox_backend/variation"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in
// memory before spilling to disk.
const multipartMemory = 8 << 20

// variantJSON is one variant in the JSON response.
type variantJSON struct {
	Index         int                   `json:"index"`
	Label         string                `json:"label"`
	Filename      string                `json:"filename"`
	MimeType      string                `json:"mimeType"`
	ImageBase64   string                `json:"imageBase64"`
	UniqueHash    string                `json:"uniqueHash"`
	UniqueID      string                `json:"uniqueId"`
	Seed          int64                 `json:"seed,string"`
	Width         int                   `json:"width"`
	Height        int                   `json:"height"`
	Timestamp     time.Time             `json:"timestamp"`
	AppliedStages []variation.StageName `json:"appliedStages"`
	SkippedStages []variation.StageName `json:"skippedStages"`
	Fallback      bool                  `json:"fallback"`
}

// variantsResponse is the POST /api/variants JSON body.
type variantsResponse struct {
	BatchID  string        `json:"batchId"`
	Level    int           `json:"level"`
	Count    int           `json:"count"`
	Variants []variantJSON `json:"variants"`
}

// manifestEntry describes one file in the ZIP download.
type manifestEntry struct {
	Filename   string `json:"filename"`
	Label      string `json:"label"`
	UniqueHash string `json:"uniqueHash"`
	UniqueID   string `json:"uniqueId"`
	Seed       int64  `json:"seed,string"`
	Fallback   bool   `json:"fallback"`
}

// handleVariants serves POST /api/variants.
//
// Multipart fields: image (file), level (1-3, default 1), count (default
// DefaultVariantCount), format ("zip" for a single archive download).
func (s *Server) handleVariants(w http.ResponseWriter, r *http.Request) {
	profile, err := currentProfile(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		WriteError(w, s.logger, uploadError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	source, err := readFormFile(r, "image")
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	level, count, err := parseVariantParams(r.FormValue("level"), r.FormValue("count"), s.config.DefaultVariantCount)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	batchID := uuid.NewString()
	records, err := s.runBatch(r.Context(), batchID, profile.ID, source, count, level)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	if r.FormValue("format") == "zip" {
		s.writeZip(w, batchID, records)
		return
	}

	resp := variantsResponse{
		BatchID:  batchID,
		Level:    int(level),
		Count:    len(records),
		Variants: make([]variantJSON, 0, len(records)),
	}
	for _, rec := range records {
		resp.Variants = append(resp.Variants, variantJSON{
			Index:         rec.Index,
			Label:         rec.Label,
			Filename:      rec.Filename(),
			MimeType:      rec.MimeType,
			ImageBase64:   base64.StdEncoding.EncodeToString(rec.Data),
			UniqueHash:    rec.UniqueHash,
			UniqueID:      rec.UniqueID,
			Seed:          rec.Seed,
			Width:         rec.Width,
			Height:        rec.Height,
			Timestamp:     rec.Timestamp,
			AppliedStages: nonNilStages(rec.AppliedStages),
			SkippedStages: nonNilStages(rec.SkippedStages),
			Fallback:      rec.Fallback,
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}

// runBatch generates one batch under the concurrency bound and the
// shutdown tracker, then records the audit row and metrics.
func (s *Server) runBatch(ctx context.Context, batchID, profileID string, source []byte, count int, level variation.Level) ([]variation.ProcessedImageRecord, error) {
	start := time.Now()
	var records []variation.ProcessedImageRecord

	err := s.track(ctx, "variants", func(ctx context.Context) error {
		if err := s.batchSem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer s.batchSem.Release(1)

		var err error
		records, err = s.deps.Generator.GenerateVariants(ctx, source, count, level, nil)
		return err
	})

	s.recordBatch(ctx, batchID, profileID, level, count, records, time.Since(start), err)
	return records, err
}

func (s *Server) recordBatch(ctx context.Context, batchID, profileID string, level variation.Level, count int, records []variation.ProcessedImageRecord, duration time.Duration, batchErr error) {
	status := db.StatusSuccess
	switch {
	case errors.Is(batchErr, context.Canceled):
		status = db.StatusCanceled
	case batchErr != nil:
		status = db.StatusError
	}

	rec := db.BatchRecord{
		ID:           batchID,
		ProfileID:    profileID,
		Level:        int(level),
		VariantCount: count,
		Seeds:        make([]int64, 0, len(records)),
		Hashes:       make([]string, 0, len(records)),
		DurationMS:   duration.Milliseconds(),
		Status:       status,
	}
	for _, v := range records {
		rec.Seeds = append(rec.Seeds, v.Seed)
		rec.Hashes = append(rec.Hashes, v.UniqueHash)
		if v.Fallback {
			rec.FallbackCount++
		}
	}
	if batchErr != nil {
		rec.ErrorMessage = batchErr.Error()
	}

	log := s.logger.With(logging.BatchFields(batchID, int(level), count, duration)...)
	if batchErr != nil {
		log.Warn("variant batch failed", zap.String("status", status), zap.Error(batchErr))
	} else {
		log.Info("variant batch completed", zap.Int("fallbacks", rec.FallbackCount))
	}

	if s.deps.Batches != nil {
		if _, err := s.deps.Batches.InsertBatch(context.WithoutCancel(ctx), rec); err != nil {
			log.Warn("failed to record variant batch", zap.Error(err))
		}
	}
	if s.deps.Exporter != nil {
		s.deps.Exporter.ObserveBatch(status)
	}

	taskStatus := metrics.TaskStatusSuccess
	if batchErr != nil {
		taskStatus = metrics.TaskStatusError
	}
	end := time.Now()
	s.recordTask(metrics.TaskRecord{
		ID:        batchID,
		Type:      metrics.TaskTypeVariants,
		ProfileID: profileID,
		Status:    taskStatus,
		StartTime: end.Add(-duration),
		EndTime:   end,
		Duration:  duration,
		Items:     len(records),
		ErrorMsg:  rec.ErrorMessage,
	})
}

// writeZip streams the batch as one stored (uncompressed) archive in
// variant order, followed by manifest.json.
func (s *Server) writeZip(w http.ResponseWriter, batchID string, records []variation.ProcessedImageRecord) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="variants_%s.zip"`, batchID))
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	manifest := make([]manifestEntry, 0, len(records))
	for _, rec := range records {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     rec.Filename(),
			Method:   zip.Store,
			Modified: rec.Timestamp,
		})
		if err == nil {
			_, err = fw.Write(rec.Data)
		}
		if err != nil {
			s.logger.Warn("failed to write zip entry", zap.String("batch_id", batchID), zap.Error(err))
			return
		}
		manifest = append(manifest, manifestEntry{
			Filename:   rec.Filename(),
			Label:      rec.Label,
			UniqueHash: rec.UniqueHash,
			UniqueID:   rec.UniqueID,
			Seed:       rec.Seed,
			Fallback:   rec.Fallback,
		})
	}

	fw, err := zw.CreateHeader(&zip.FileHeader{Name: "manifest.json", Method: zip.Store, Modified: time.Now()})
	if err == nil {
		err = json.NewEncoder(fw).Encode(manifest)
	}
	if err == nil {
		err = zw.Close()
	}
	if err != nil {
		s.logger.Warn("failed to finish zip", zap.String("batch_id", batchID), zap.Error(err))
	}
}

// parseVariantParams reads the level and count form values. Range checks
// are left to the generator.
func parseVariantParams(levelStr, countStr string, defaultCount int) (variation.Level, int, error) {
	level := variation.LevelSubtle
	if levelStr != "" {
		n, err := strconv.Atoi(levelStr)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: level must be a number", ErrBadRequest)
		}
		level = variation.Level(n)
	}

	count := defaultCount
	if countStr != "" {
		n, err := strconv.Atoi(countStr)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: count must be a number", ErrBadRequest)
		}
		count = n
	}
	return level, count, nil
}

// readFormFile returns the bytes of a multipart file field.
func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %q file", ErrBadRequest, field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, uploadError(err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %q is empty", ErrBadRequest, field)
	}
	return data, nil
}

// uploadError maps body read failures to 413 or 400.
func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, tooLarge.Limit)
	}
	// multipart parsing may flatten the error chain
	if strings.Contains(err.Error(), "request body too large") {
		return fmt.Errorf("%w: %v", ErrUploadTooLarge, err)
	}
	return fmt.Errorf("%w: %v", ErrBadRequest, err)
}

func nonNilStages(stages []variation.StageName) []variation.StageName {
	if stages == nil {
		return []variation.StageName{}
	}
	return stages
}
