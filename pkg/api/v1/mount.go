package apiv1

import (
	"net/http"

	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/labstack/echo/v4"
)

// MountGroup exposes the supervisor: status, mount and unmount.
type MountGroup struct {
	supervisor Supervisor
	profiles   ProfileStore
}

func NewMountGroup(g *echo.Group, supervisor Supervisor, profiles ProfileStore) *MountGroup {
	mg := &MountGroup{supervisor: supervisor, profiles: profiles}
	g.GET("/status", mg.Status)
	g.POST("/mount", mg.Mount)
	g.POST("/unmount", mg.Unmount)
	return mg
}

// MountRequest names a stored profile or carries a full configuration.
type MountRequest struct {
	Profile string             `json:"profile"`
	Config  *types.MountConfig `json:"config"`
}

func (mg *MountGroup) Status(c echo.Context) error {
	return SuccessResponse(c, mg.supervisor.Status())
}

func (mg *MountGroup) Mount(c echo.Context) error {
	var req MountRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request")
	}

	var cfg types.MountConfig
	switch {
	case req.Config != nil:
		cfg = *req.Config
	case req.Profile != "":
		if mg.profiles == nil {
			return ErrorResponse(c, http.StatusBadRequest, "profile store not configured")
		}
		p, err := mg.profiles.Get(req.Profile)
		if err != nil {
			return FailureResponse(c, err)
		}
		cfg = p
	default:
		return ErrorResponse(c, http.StatusBadRequest, "profile or config required")
	}

	if err := mg.supervisor.RequestMount(c.Request().Context(), cfg); err != nil {
		return FailureResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, Response{Success: true, Data: mg.supervisor.Status()})
}

func (mg *MountGroup) Unmount(c echo.Context) error {
	if err := mg.supervisor.RequestUnmount(c.Request().Context()); err != nil {
		return FailureResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, Response{Success: true, Data: mg.supervisor.Status()})
}
