package apiv1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const eventsKeepAlive = 15 * time.Second

// EventSource is implemented by common.EventBus.
type EventSource interface {
	Subscribe() (<-chan types.Event, func())
}

type EventsGroup struct {
	source EventSource
}

func NewEventsGroup(g *echo.Group, source EventSource) *EventsGroup {
	eg := &EventsGroup{source: source}
	g.GET("", eg.Stream)
	return eg
}

// Stream writes events as server-sent events until the client goes away.
func (eg *EventsGroup) Stream(c echo.Context) error {
	events, cancel := eg.source.Subscribe()
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	keepAlive := time.NewTicker(eventsKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(e)
			if err != nil {
				log.Warn().Err(err).Msg("failed to encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
				return nil
			}
			w.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
