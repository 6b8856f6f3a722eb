package client

import (
	"encoding/json"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/battstat/pkg/config"
	"github.com/charlie0129/battstat/pkg/monitor"
	"github.com/charlie0129/battstat/pkg/powerinfo"
	"github.com/charlie0129/battstat/pkg/version"
)

// GetStatus returns the status last read by the daemon. fresh makes the
// daemon read it again first.
func (c *Client) GetStatus(fresh bool) (*powerinfo.CompositeStatus, error) {
	path := "/status"
	if fresh {
		path += "?fresh=true"
	}
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get battery status")
	}
	return parseJSONResponse[powerinfo.CompositeStatus](ret)
}

func (c *Client) GetBackend() (*monitor.Info, error) {
	ret, err := c.Get("/backend")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get backend info")
	}
	return parseJSONResponse[monitor.Info](ret)
}

func (c *Client) GetCompositeCapable() (bool, error) {
	ret, err := c.Get("/composite-capable")
	if err != nil {
		return false, pkgerrors.Wrapf(err, "failed to get composite capability")
	}
	return parseBoolResponse(ret)
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	return parseJSONResponse[config.RawFileConfig](ret)
}

func (c *Client) GetVersion() (*version.Info, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get daemon version")
	}
	return parseJSONResponse[version.Info](ret)
}

func parseJSONResponse[T any](resp string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(resp), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "unexpected response: %s", resp)
	}
	return &v, nil
}

func parseBoolResponse(resp string) (bool, error) {
	var b bool
	if err := json.Unmarshal([]byte(resp), &b); err != nil {
		return false, pkgerrors.Errorf("unexpected response: %s", resp)
	}
	return b, nil
}
