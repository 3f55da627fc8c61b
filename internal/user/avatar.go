package user

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/drosic/taskman/internal/httpx"
	"github.com/drosic/taskman/internal/middleware"
)

const (
	maxAvatarBytes = 1 << 20 // 1 MB
	avatarSize     = 250
)

// UploadAvatar accepts a png/jpeg image in the multipart field "avatar",
// normalizes it to a 250px square PNG, and stores it.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+4096)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		httpx.Error(w, http.StatusBadRequest, "image must be at most 1MB")
		return
	}
	file, _, err := r.FormFile("avatar")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, `multipart field "avatar" is required`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "unable to read image")
		return
	}
	if len(data) > maxAvatarBytes {
		httpx.Error(w, http.StatusBadRequest, "image must be at most 1MB")
		return
	}

	normalized, err := normalizeAvatar(data)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "avatar must be a png or jpeg image")
		return
	}

	key := "avatars/" + s.User.ID.Hex()
	if err := h.blobs.Upload(r.Context(), key, normalized, "image/png"); err != nil {
		h.internal(w, "upload avatar", err)
		return
	}
	if err := h.users.SetAvatarKey(r.Context(), s.User.ID, key); err != nil {
		h.internal(w, "set avatar key", err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"message": "avatar uploaded"})
}

// DeleteAvatar clears the stored avatar, if any.
func (h *Handler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r)

	if s.User.AvatarKey != "" {
		if err := h.blobs.Remove(r.Context(), s.User.AvatarKey); err != nil {
			h.internal(w, "remove avatar", err)
			return
		}
		if err := h.users.ClearAvatarKey(r.Context(), s.User.ID); err != nil {
			h.internal(w, "clear avatar key", err)
			return
		}
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"message": "avatar removed"})
}

// GetAvatar serves any user's avatar bytes. Public; 404 whenever the user
// or their avatar is absent.
func (h *Handler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusNotFound, "not found")
		return
	}
	u, err := h.users.GetByID(r.Context(), id)
	if err != nil || u.AvatarKey == "" {
		httpx.Error(w, http.StatusNotFound, "not found")
		return
	}

	data, contentType, err := h.blobs.Download(r.Context(), u.AvatarKey)
	if err != nil {
		httpx.Error(w, http.StatusNotFound, "not found")
		return
	}
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// normalizeAvatar decodes the image, crops/scales it to a fixed square,
// and re-encodes it as PNG so every stored avatar has one shape and format.
func normalizeAvatar(data []byte) ([]byte, error) {
	contentType := http.DetectContentType(data)
	if contentType != "image/png" && contentType != "image/jpeg" {
		return nil, errors.New("unsupported image type: " + contentType)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	square := imaging.Fill(img, avatarSize, avatarSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, square, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
