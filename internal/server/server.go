package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/pavel-fokin/media-stash/internal/fs"
	"github.com/pavel-fokin/media-stash/internal/httprange"
	"github.com/pavel-fokin/media-stash/internal/media"
)

// publicPrefix is the static mount of the storage root.
const publicPrefix = "/uploads/"

type Config struct {
	Port        int      `env:"MEDIA_STASH_PORT" envDefault:"8000"`
	DataDir     string   `env:"MEDIA_STASH_DATA_DIR" envDefault:"uploads"`
	MaxSize     int64    `env:"MEDIA_STASH_MAX_SIZE" envDefault:"524288000"`
	CORSOrigins []string `env:"MEDIA_STASH_CORS_ORIGINS" envDefault:"http://localhost:3000,http://localhost:5173"`
	Extensions  []string `env:"MEDIA_STASH_EXTENSIONS"`
}

func New(cfg *Config) (*http.Server, error) {
	// Initialize structured logger with JSON handler
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = media.DefaultExtensions
	}
	allowed := media.NewExtensionSet(exts)

	// Initialize storage; the root must exist before the first request.
	storage := fs.NewStorage(cfg.DataDir, allowed)
	if err := storage.EnsureRoot(); err != nil {
		return nil, err
	}

	mediaService := media.NewService(storage, allowed, cfg.MaxSize)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health)
	mux.HandleFunc("GET /api/videos", listVideos(mediaService))
	mux.HandleFunc("POST /api/upload", uploadVideo(cfg, mediaService))
	mux.HandleFunc("DELETE /api/videos/{filename}", deleteVideo(mediaService))
	mux.HandleFunc("GET /api/stream/{filename}", streamVideo(mediaService))
	mux.Handle("GET "+publicPrefix, http.StripPrefix(publicPrefix, http.FileServer(http.Dir(cfg.DataDir))))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type", "Content-Range", "Accept-Ranges", "Content-Disposition"},
	})

	handler := recoverPanics(loggingMiddleware(c.Handler(mux)))

	slog.Info("storage ready",
		"data_dir", cfg.DataDir,
		"max_upload_size", humanize.IBytes(uint64(cfg.MaxSize)),
	)

	// Uploads and video streams can legitimately run for minutes, so no
	// read/write timeouts on the requests themselves.
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

func health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type fileResponse struct {
	*media.File
	URL string `json:"url"`
}

type uploadResponse struct {
	Message string `json:"message"`
	fileResponse
}

func streamURL(storedName string) string {
	return "/api/stream/" + url.PathEscape(storedName)
}

func listVideos(mediaService *media.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := mediaService.List()
		if err != nil {
			slog.Error("List files failed", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to list files")
			return
		}

		resp := make([]fileResponse, 0, len(files))
		for _, f := range files {
			resp = append(resp, fileResponse{File: f, URL: streamURL(f.StoredName)})
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

func uploadVideo(cfg *Config, mediaService *media.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Allowance on top of the file limit for multipart framing; the
		// exact per-file guard lives in the service.
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxSize+1<<20)

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large") {
				respondError(w, http.StatusBadRequest, "file exceeds the maximum upload size of "+humanize.IBytes(uint64(cfg.MaxSize)))
				return
			}
			respondError(w, http.StatusBadRequest, "failed to parse multipart form")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, "no file provided")
			return
		}
		defer file.Close()

		result, err := mediaService.Upload(&media.UploadRequest{
			Name:    header.Filename,
			Size:    header.Size,
			Content: file,
		})
		switch {
		case errors.Is(err, media.ErrTooLarge), errors.Is(err, media.ErrUnsupportedType):
			respondError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			slog.Error("Upload failed", "error", err, "filename", header.Filename)
			respondError(w, http.StatusInternalServerError, "upload failed")
			return
		}

		slog.Info("File uploaded", "filename", result.StoredName, "size", result.Size)
		respondJSON(w, http.StatusOK, uploadResponse{
			Message:      "file uploaded successfully",
			fileResponse: fileResponse{File: result, URL: streamURL(result.StoredName)},
		})
	}
}

func deleteVideo(mediaService *media.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := r.PathValue("filename")

		err := mediaService.Delete(filename)
		switch {
		case errors.Is(err, media.ErrUnsafeName):
			respondError(w, http.StatusBadRequest, "invalid filename")
		case errors.Is(err, media.ErrNotFound):
			respondError(w, http.StatusNotFound, "file not found")
		case err != nil:
			slog.Error("Delete failed", "error", err, "filename", filename)
			respondError(w, http.StatusInternalServerError, "delete failed")
		default:
			slog.Info("File deleted", "filename", filename)
			respondJSON(w, http.StatusOK, map[string]string{"message": "file deleted successfully"})
		}
	}
}

func streamVideo(mediaService *media.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := r.PathValue("filename")

		file, content, err := mediaService.Open(filename)
		switch {
		case errors.Is(err, media.ErrUnsafeName):
			respondError(w, http.StatusBadRequest, "invalid filename")
			return
		case errors.Is(err, media.ErrNotFound):
			respondError(w, http.StatusNotFound, "file not found")
			return
		case err != nil:
			slog.Error("Stream failed", "error", err, "filename", filename)
			respondError(w, http.StatusInternalServerError, "stream failed")
			return
		}
		defer content.Close()

		w.Header().Set("Content-Type", file.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", file.Name))

		// Ranged delivery is only offered for streamable media types.
		rangeHeader := ""
		if media.Streamable(file.MimeType) {
			w.Header().Set("Accept-Ranges", "bytes")
			rangeHeader = r.Header.Get("Range")
		}

		window, partial, err := httprange.Resolve(rangeHeader, file.Size)
		if errors.Is(err, httprange.ErrUnsatisfiable) {
			w.Header().Set("Content-Range", httprange.Unsatisfiable(file.Size))
			respondError(w, http.StatusRequestedRangeNotSatisfiable, "range not satisfiable")
			return
		}

		if !partial {
			w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
			w.WriteHeader(http.StatusOK)
			// A client hanging up mid-stream is a normal termination.
			if _, err := io.Copy(w, content); err != nil {
				slog.Debug("stream interrupted", "error", err, "filename", filename)
			}
			return
		}

		if _, err := content.Seek(window.Start, io.SeekStart); err != nil {
			slog.Error("Seek failed", "error", err, "filename", filename)
			respondError(w, http.StatusInternalServerError, "stream failed")
			return
		}

		w.Header().Set("Content-Range", window.ContentRange())
		w.Header().Set("Content-Length", strconv.FormatInt(window.Length(), 10))
		w.WriteHeader(http.StatusPartialContent)
		if _, err := io.CopyN(w, content, window.Length()); err != nil {
			slog.Debug("stream interrupted", "error", err, "filename", filename)
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// loggingMiddleware logs HTTP requests with structured logging.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		slog.Info("HTTP request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// recoverPanics converts an escaped panic into a generic 500 so no
// internal detail reaches the client.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Panic in handler", "panic", rec, "path", r.URL.Path)
				respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
