package api

import (
	"errors"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/oishii-app/oishii/internal/auth"
	"github.com/oishii-app/oishii/internal/files"
)

// uploadResponse reports where an uploaded file was stored.
type uploadResponse struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, files.MaxFileSize+maxBodySize)
	if err := r.ParseMultipartForm(files.MaxFileSize); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var folder string
	switch r.FormValue("purpose") {
	case "profile_picture":
		folder = files.FolderProfilePictures
	case "food_image", "":
		folder = files.FolderFoodImages
	default:
		s.writeError(w, http.StatusBadRequest, "purpose must be profile_picture or food_image")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	relPath, err := s.files.Save(file, header.Filename, folder)
	switch {
	case errors.Is(err, files.ErrBadExtension):
		s.writeError(w, http.StatusBadRequest, "file type not allowed")
		return
	case errors.Is(err, files.ErrFileTooLarge):
		s.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the 5 MiB limit")
		return
	case err != nil:
		s.logger.Error("save upload", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	url := "/v1/uploads/" + relPath

	if folder == files.FolderProfilePictures {
		user.ProfilePicture = url
		if err := s.store.UpdateUser(r.Context(), user); err != nil {
			s.logger.Error("update profile picture", "error", err)
		}
	}

	s.writeJSON(w, http.StatusCreated, uploadResponse{Path: relPath, URL: url})
}

func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	relPath := path.Join(chi.URLParam(r, "folder"), chi.URLParam(r, "name"))

	full, err := s.files.Resolve(relPath)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}

	http.ServeFile(w, r, full)
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	relPath := path.Join(chi.URLParam(r, "folder"), chi.URLParam(r, "name"))

	if err := s.files.Delete(relPath); err != nil {
		if errors.Is(err, files.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.logger.Error("delete upload", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete file")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
