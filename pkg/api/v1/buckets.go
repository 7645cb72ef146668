package apiv1

import (
	"net/http"

	"github.com/beam-cloud/bucketmount/pkg/buckets"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/labstack/echo/v4"
)

type BucketsGroup struct {
	lister   buckets.Lister
	profiles ProfileStore
}

func NewBucketsGroup(g *echo.Group, lister buckets.Lister, profiles ProfileStore) *BucketsGroup {
	bg := &BucketsGroup{lister: lister, profiles: profiles}
	g.GET("", bg.ListForProfile)
	g.POST("", bg.List)
	return bg
}

type BucketsResponse struct {
	Buckets []string `json:"buckets"`
}

// ListForProfile lists buckets with a stored profile's credentials (?profile=name).
func (bg *BucketsGroup) ListForProfile(c echo.Context) error {
	name := c.QueryParam("profile")
	if name == "" {
		return ErrorResponse(c, http.StatusBadRequest, "profile required")
	}
	if bg.profiles == nil {
		return ErrorResponse(c, http.StatusBadRequest, "profile store not configured")
	}

	p, err := bg.profiles.Get(name)
	if err != nil {
		return FailureResponse(c, err)
	}
	return bg.list(c, p.Credentials())
}

// List lists buckets with credentials from the request body.
func (bg *BucketsGroup) List(c echo.Context) error {
	var creds types.Credentials
	if err := c.Bind(&creds); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request")
	}
	return bg.list(c, creds)
}

func (bg *BucketsGroup) list(c echo.Context, creds types.Credentials) error {
	names, err := bg.lister.ListBuckets(c.Request().Context(), creds)
	if err != nil {
		if types.IsValidation(err) {
			return FailureResponse(c, err)
		}
		return ErrorResponse(c, http.StatusBadGateway, err.Error())
	}
	return SuccessResponse(c, BucketsResponse{Buckets: names})
}
