package apiv1

import (
	"net/http"

	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/labstack/echo/v4"
)

// ProfilesGroup manages stored profiles. Secrets are never echoed back.
type ProfilesGroup struct {
	store ProfileStore
}

func NewProfilesGroup(g *echo.Group, store ProfileStore) *ProfilesGroup {
	pg := &ProfilesGroup{store: store}
	g.GET("", pg.List)
	g.GET("/:name", pg.Get)
	g.PUT("/:name", pg.Put)
	g.DELETE("/:name", pg.Delete)
	return pg
}

func (pg *ProfilesGroup) List(c echo.Context) error {
	list, err := pg.store.List()
	if err != nil {
		return FailureResponse(c, err)
	}

	redacted := make([]types.MountConfig, 0, len(list))
	for _, p := range list {
		redacted = append(redacted, p.Redact())
	}
	return SuccessResponse(c, redacted)
}

func (pg *ProfilesGroup) Get(c echo.Context) error {
	p, err := pg.store.Get(c.Param("name"))
	if err != nil {
		return FailureResponse(c, err)
	}
	return SuccessResponse(c, p.Redact())
}

func (pg *ProfilesGroup) Put(c echo.Context) error {
	var p types.MountConfig
	if err := c.Bind(&p); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request")
	}

	name := c.Param("name")
	if p.ProfileName != "" && p.ProfileName != name {
		return ErrorResponse(c, http.StatusBadRequest, "profile_name does not match path")
	}
	p.ProfileName = name

	if err := pg.store.Put(p); err != nil {
		return FailureResponse(c, err)
	}
	return SuccessResponse(c, p.Redact())
}

func (pg *ProfilesGroup) Delete(c echo.Context) error {
	if err := pg.store.Delete(c.Param("name")); err != nil {
		return FailureResponse(c, err)
	}
	return SuccessResponse(c, nil)
}
