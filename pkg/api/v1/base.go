package apiv1

import (
	"context"
	"errors"
	"net/http"

	"github.com/beam-cloud/bucketmount/pkg/mount"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/labstack/echo/v4"
)

const (
	HttpServerBaseRoute string = "/api/v1"
	HttpServerRootRoute string = ""
)

// Supervisor is the part of mount.Supervisor the API drives.
type Supervisor interface {
	RequestMount(ctx context.Context, cfg types.MountConfig) error
	RequestUnmount(ctx context.Context) error
	Status() mount.Status
}

// ProfileStore is implemented by profiles.Store.
type ProfileStore interface {
	List() ([]types.MountConfig, error)
	Get(name string) (types.MountConfig, error)
	Put(profile types.MountConfig) error
	Delete(name string) error
}

// Response is a standard API response structure
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SuccessResponse returns a successful response
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// ErrorResponse returns an error response
func ErrorResponse(c echo.Context, code int, message string) error {
	return c.JSON(code, Response{
		Success: false,
		Error:   message,
	})
}

// FailureResponse maps err onto a status code and writes an error response.
func FailureResponse(c echo.Context, err error) error {
	return ErrorResponse(c, StatusForError(err), err.Error())
}

func StatusForError(err error) int {
	switch {
	case types.IsAlreadyActive(err), types.IsNotMounted(err):
		return http.StatusConflict
	case types.IsValidation(err):
		return http.StatusBadRequest
	case types.IsProfileNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, mount.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
