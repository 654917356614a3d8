package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/authhub/internal/avatar"
	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/geocoder89/authhub/internal/security"
	"github.com/gin-gonic/gin"
)

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id int64) (user.User, error)
	Create(ctx context.Context, email, passwordHash string) (user.User, error)
	UpdateAvatarPath(ctx context.Context, id int64, path *string) error
}

type SessionWriter interface {
	Issue(ctx *gin.Context, userID int64, email string) error
	Clear(ctx *gin.Context)
}

type AvatarStore interface {
	Save(userID int64, fileName string, size int64, r io.Reader) (string, error)
	Remove(relPath string) error
	RemoveQuietly(relPath string)
	PublicURL(ctx *gin.Context, relPath *string) *string
}

type AuthHandler struct {
	users    UserStore
	sessions SessionWriter
	avatars  AvatarStore
	log      *slog.Logger
}

func NewAuthHandler(users UserStore, sessions SessionWriter, avatars AvatarStore, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		avatars:  avatars,
		log:      log,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UserResponse is the public view of a user record: never the hash, and the
// avatar URL is recomputed against the requesting origin every time.
type UserResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *AuthHandler) userResponse(ctx *gin.Context, u user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		AvatarURL: h.avatars.PublicURL(ctx, u.AvatarPath),
		CreatedAt: u.CreatedAt,
	}
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		h.log.Error("failed to hash password during registration", "err", err)
		RespondInternal(ctx, "Registration failed")
		return
	}

	u, err := h.users.Create(cctx, req.Email, hash)

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondBadRequest(ctx, "Email is already registered to another account", nil)
			return
		}

		h.log.Error("failed to create user", "op", "register", "email", req.Email, "err", err)
		RespondInternal(ctx, "Registration failed")
		return
	}

	if err := h.sessions.Issue(ctx, u.ID, u.Email); err != nil {
		h.log.Error("failed to issue session", "op", "register", "user_id", u.ID, "err", err)
		RespondInternal(ctx, "Registration failed")
		return
	}

	RespondOK(ctx, "Registration successful", h.userResponse(ctx, u))
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// short timeout for DB lookup
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	// unknown email and wrong password share one message so the response
	// never reveals which part failed
	foundUser, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondUnauthorized(ctx, "Invalid email or password")
			return
		}

		h.log.Error("failed to look up user", "op", "login", "err", err)
		RespondInternal(ctx, "Login failed")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		RespondUnauthorized(ctx, "Invalid email or password")
		return
	}

	if err := h.sessions.Issue(ctx, foundUser.ID, foundUser.Email); err != nil {
		h.log.Error("failed to issue session", "op", "login", "user_id", foundUser.ID, "err", err)
		RespondInternal(ctx, "Login failed")
		return
	}

	RespondOK(ctx, "Logged in successfully", h.userResponse(ctx, foundUser))
}

// Logout terminates the session unconditionally; logging out without a
// session is still a success.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	h.sessions.Clear(ctx)
	RespondOK(ctx, "Logged out successfully", nil)
}

var errStaleSession = errors.New("stale session claims")

// currentUser re-fetches the user behind the resolved session claims and
// rejects the session when the stored email no longer matches the snapshot.
func (h *AuthHandler) currentUser(ctx *gin.Context) (user.User, error) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		return user.User{}, errStaleSession
	}

	email, ok := middlewares.EmailFromContext(ctx)

	if !ok {
		return user.User{}, errStaleSession
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, errStaleSession
		}
		return user.User{}, err
	}

	if u.Email != email {
		return user.User{}, errStaleSession
	}

	return u, nil
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	u, err := h.currentUser(ctx)

	if err != nil {
		// session problems are never a server error here
		RespondUnauthorized(ctx, "Invalid authentication token")
		return
	}

	RespondOK(ctx, "User data retrieved successfully", h.userResponse(ctx, u))
}

func (h *AuthHandler) UploadAvatar(ctx *gin.Context) {
	u, err := h.currentUser(ctx)

	if err != nil {
		if errors.Is(err, errStaleSession) {
			RespondUnauthorized(ctx, "Invalid authentication token")
			return
		}

		h.log.Error("failed to load current user", "op", "upload_avatar", "err", err)
		RespondInternal(ctx, "Failed to upload avatar")
		return
	}

	fileHeader, err := ctx.FormFile("file")

	if err != nil {
		RespondBadRequest(ctx, "No file uploaded", nil)
		return
	}

	f, err := fileHeader.Open()

	if err != nil {
		h.log.Error("failed to open uploaded file", "op", "upload_avatar", "user_id", u.ID, "err", err)
		RespondInternal(ctx, "Failed to upload avatar")
		return
	}
	defer f.Close()

	newPath, err := h.avatars.Save(u.ID, fileHeader.Filename, fileHeader.Size, f)

	if err != nil {
		switch {
		case errors.Is(err, avatar.ErrEmptyFile):
			RespondBadRequest(ctx, "No file uploaded", nil)
		case errors.Is(err, avatar.ErrInvalidFile):
			RespondBadRequest(ctx, "Invalid file type. Only JPG, JPEG, PNG, GIF and WEBP formats are allowed", nil)
		case errors.Is(err, avatar.ErrFileTooLarge):
			RespondBadRequest(ctx, "File is too large. The maximum size is 5 MB", nil)
		default:
			h.log.Error("failed to store avatar file", "op", "upload_avatar", "user_id", u.ID, "err", err)
			RespondInternal(ctx, "Failed to upload avatar")
		}
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	// persist first: a failed update must leave the record pointing at a file
	// that still exists
	if err := h.users.UpdateAvatarPath(cctx, u.ID, &newPath); err != nil {
		// do not leave the fresh file orphaned
		h.avatars.RemoveQuietly(newPath)

		if errors.Is(err, user.ErrNotFound) {
			RespondUnauthorized(ctx, "User not found")
			return
		}

		h.log.Error("failed to persist avatar path", "op", "upload_avatar", "user_id", u.ID, "err", err)
		RespondInternal(ctx, "Failed to upload avatar")
		return
	}

	// the previous file goes away best-effort; a missing old file must not
	// fail the upload
	if u.AvatarPath != nil {
		h.avatars.RemoveQuietly(*u.AvatarPath)
	}

	u.AvatarPath = &newPath

	RespondOK(ctx, "Avatar uploaded successfully", h.userResponse(ctx, u))
}

func (h *AuthHandler) DeleteAvatar(ctx *gin.Context) {
	u, err := h.currentUser(ctx)

	if err != nil {
		if errors.Is(err, errStaleSession) {
			RespondUnauthorized(ctx, "Invalid authentication token")
			return
		}

		h.log.Error("failed to load current user", "op", "delete_avatar", "err", err)
		RespondInternal(ctx, "Failed to delete avatar")
		return
	}

	if u.AvatarPath == nil || *u.AvatarPath == "" {
		RespondBadRequest(ctx, "No avatar to delete", nil)
		return
	}

	if err := h.avatars.Remove(*u.AvatarPath); err != nil {
		h.log.Error("failed to remove avatar file", "op", "delete_avatar", "user_id", u.ID, "err", err)
		RespondInternal(ctx, "Failed to delete avatar")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	if err := h.users.UpdateAvatarPath(cctx, u.ID, nil); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondUnauthorized(ctx, "User not found")
			return
		}

		h.log.Error("failed to clear avatar path", "op", "delete_avatar", "user_id", u.ID, "err", err)
		RespondInternal(ctx, "Failed to delete avatar")
		return
	}

	u.AvatarPath = nil

	RespondOK(ctx, "Avatar deleted successfully", h.userResponse(ctx, u))
}

// Unauthorized is the session layer's configured login-path target.
func (h *AuthHandler) Unauthorized(ctx *gin.Context) {
	RespondUnauthorized(ctx, "Authentication required")
}

// Forbidden is the configured access-denied target.
func (h *AuthHandler) Forbidden(ctx *gin.Context) {
	Respond(ctx, http.StatusForbidden, false, "Access denied", nil)
}
