package apiv1

import (
	"context"
	"net/http"

	"github.com/beam-cloud/bucketmount/pkg/common"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Prober reports the version of the mount backend.
type Prober interface {
	Probe(ctx context.Context) (string, error)
}

type HealthGroup struct {
	redisClient *common.RedisClient
	prober      Prober
	routerGroup *echo.Group
}

func NewHealthGroup(g *echo.Group, rdb *common.RedisClient, prober Prober) *HealthGroup {
	group := &HealthGroup{routerGroup: g, redisClient: rdb, prober: prober}

	g.GET("", group.HealthCheck)

	return group
}

func (h *HealthGroup) HealthCheck(c echo.Context) error {
	ctx := c.Request().Context()
	body := map[string]string{"status": "ok"}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("health check failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"status": "not ok",
				"error":  err.Error(),
			})
		}
	}

	if h.prober != nil {
		version, err := h.prober.Probe(ctx)
		if err != nil {
			log.Error().Err(err).Msg("rclone probe failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"status": "not ok",
				"error":  err.Error(),
			})
		}
		body["rclone"] = version
	}

	return c.JSON(http.StatusOK, body)
}
