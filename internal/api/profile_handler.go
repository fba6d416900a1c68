package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	app_errors "study-buddy/backend/internal/errors"
	"study-buddy/backend/internal/input"
	"study-buddy/backend/internal/interfaces"
	"study-buddy/backend/internal/service"
)

// MaxUploadBytes caps a single uploaded file.
const MaxUploadBytes = 10 << 20

// ThemeRequest switches the UI theme.
type ThemeRequest struct {
	Theme string `json:"theme" validate:"required,oneof=dark light"`
}

// ThemeResponse reports the current theme.
type ThemeResponse struct {
	Theme string `json:"theme"`
}

// UploadResponse describes a processed upload. Images come back as a data
// URL to attach to the next message; other files as a text marker for the
// composer.
type UploadResponse struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Image    string `json:"image,omitempty"`
	Marker   string `json:"marker,omitempty"`
}

// ProfileHandler serves the user profile, theme, environments and uploads.
type ProfileHandler struct {
	profile interfaces.ProfileService
}

func NewProfileHandler(profile interfaces.ProfileService) *ProfileHandler {
	return &ProfileHandler{profile: profile}
}

// HandleLogin godoc
// @Summary      Sign in
// @Description  Stores a local profile. There is no real authentication.
// @Tags         Profile
// @Accept       json
// @Produce      json
// @Param        credentials  body      service.LoginRequest  true  "Name and email"
// @Success      200          {object}  model.User
// @Failure      400          {object}  ErrorResponse
// @Router       /v1/auth/login [post]
func (h *ProfileHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	user, err := h.profile.Login(r.Context(), &req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

// HandleLogout godoc
// @Summary      Sign out
// @Tags         Profile
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /v1/auth/logout [post]
func (h *ProfileHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.profile.Logout(r.Context())
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleGetUser godoc
// @Summary      Get the signed-in user
// @Tags         Profile
// @Produce      json
// @Success      200  {object}  model.User
// @Failure      404  {object}  ErrorResponse
// @Router       /v1/user [get]
func (h *ProfileHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.profile.CurrentUser(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

// HandleGetTheme godoc
// @Summary      Get the theme
// @Tags         Profile
// @Produce      json
// @Success      200  {object}  ThemeResponse
// @Router       /v1/theme [get]
func (h *ProfileHandler) HandleGetTheme(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, ThemeResponse{Theme: h.profile.Theme(r.Context())})
}

// HandleSetTheme godoc
// @Summary      Set the theme
// @Tags         Profile
// @Accept       json
// @Produce      json
// @Param        theme  body      ThemeRequest  true  "dark or light"
// @Success      200    {object}  ThemeResponse
// @Failure      400    {object}  ErrorResponse
// @Router       /v1/theme [put]
func (h *ProfileHandler) HandleSetTheme(w http.ResponseWriter, r *http.Request) {
	var req ThemeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.profile.SetTheme(r.Context(), req.Theme); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ThemeResponse{Theme: req.Theme})
}

// HandleListEnvironments godoc
// @Summary      List learning environments
// @Tags         Environments
// @Produce      json
// @Success      200  {array}  model.LearningEnvironment
// @Router       /v1/environments [get]
func (h *ProfileHandler) HandleListEnvironments(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.profile.ListEnvironments(r.Context()))
}

// HandleCreateEnvironment godoc
// @Summary      Create a learning environment
// @Tags         Environments
// @Accept       json
// @Produce      json
// @Param        environment  body      service.EnvironmentRequest  true  "Environment"
// @Success      201          {object}  model.LearningEnvironment
// @Failure      400          {object}  ErrorResponse
// @Router       /v1/environments [post]
func (h *ProfileHandler) HandleCreateEnvironment(w http.ResponseWriter, r *http.Request) {
	var req service.EnvironmentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	env, err := h.profile.CreateEnvironment(r.Context(), &req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, env)
}

// HandleDeleteEnvironment godoc
// @Summary      Delete a learning environment
// @Description  Sessions that used the environment fall back to none.
// @Tags         Environments
// @Param        envID  path  string  true  "Environment ID"
// @Success      204
// @Failure      404  {object}  ErrorResponse
// @Router       /v1/environments/{envID} [delete]
func (h *ProfileHandler) HandleDeleteEnvironment(w http.ResponseWriter, r *http.Request) {
	if err := h.profile.DeleteEnvironment(r.Context(), chi.URLParam(r, "envID")); err != nil {
		respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpload godoc
// @Summary      Upload a file
// @Description  Images come back as a data URL to attach to the next message, other files as a text marker. Nothing is stored.
// @Tags         Uploads
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Image or text file"
// @Success      200   {object}  UploadResponse
// @Failure      400   {object}  ErrorResponse
// @Router       /v1/uploads [post]
func (h *ProfileHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, fmt.Errorf("%w: file exceeds %d bytes", app_errors.ErrValidation, MaxUploadBytes))
			return
		}
		respondWithError(w, fmt.Errorf("%w: invalid multipart form: %s", app_errors.ErrValidation, err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, fmt.Errorf("%w: field 'file' is required", app_errors.ErrValidation))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		respondWithError(w, fmt.Errorf("reading upload: %w", err))
		return
	}
	if len(data) > MaxUploadBytes {
		respondWithError(w, fmt.Errorf("%w: file exceeds %d bytes", app_errors.ErrValidation, MaxUploadBytes))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	composer := input.NewComposer()
	if err := composer.AttachFile(header.Filename, mimeType, data); err != nil {
		respondWithError(w, fmt.Errorf("%w: %s", app_errors.ErrValidation, err.Error()))
		return
	}
	marker, image := composer.Take()
	resp := UploadResponse{Name: header.Filename, MimeType: mimeType, Image: image, Marker: marker}
	slog.Info("Processed upload", "name", header.Filename, "mime_type", mimeType, "bytes", len(data))
	respondWithJSON(w, http.StatusOK, resp)
}
