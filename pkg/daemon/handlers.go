package daemon

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/config"
	"github.com/charlie0129/battstat/pkg/events"
	"github.com/charlie0129/battstat/pkg/version"
)

// getStatus returns the last status read by the loop. With ?fresh=true
// the status is read now.
func getStatus(c *gin.Context) {
	if c.Query("fresh") == "true" || lastUpdateTime().IsZero() {
		c.IndentedJSON(http.StatusOK, updateStatus(c.Request.Context(), "api"))
		return
	}

	c.IndentedJSON(http.StatusOK, currentStatus())
}

func getBackend(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, mon.Info())
}

func getCompositeCapable(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, mon.IsCompositeCapable())
}

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Get())
}

// sseKeepAlive is how often a comment is sent on an idle event stream so
// that clients and proxies do not time it out.
var sseKeepAlive = 30 * time.Second

// streamEvents sends status.changed events as server-sent events,
// starting with the current status.
func streamEvents(c *gin.Context) {
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	s := currentStatus()
	c.SSEvent(events.StatusChanged, events.StatusChangedEvent{
		Status:  s,
		State:   s.State().String(),
		Backend: mon.BackendName(),
		Ts:      lastUpdateTime().Unix(),
	})
	c.Writer.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	logrus.Debug("event stream opened")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-keepAlive.C:
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		}
	})
	logrus.Debug("event stream closed")
}
