package client

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/drip/pkg/config"
	"github.com/charlie0129/drip/pkg/types"
)

// Start starts (or re-arms) watering for the given interval token.
func (c *Client) Start(interval string) error {
	_, err := c.Get("/start?interval=" + url.QueryEscape(interval))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to start watering")
	}
	return nil
}

// Stop switches watering off and returns the interval that was active, if any.
func (c *Client) Stop() (string, error) {
	ret, err := c.Get("/off")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to stop watering")
	}
	return ret, nil
}

func (c *Client) GetRemainingWateringTime() (*types.RemainingWateringTime, error) {
	ret, err := c.Get("/remainingWateringTime")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get remaining watering time")
	}

	var r types.RemainingWateringTime
	if err := json.Unmarshal([]byte(ret), &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal remaining watering time")
	}
	return &r, nil
}

func (c *Client) GetStatus() (*types.Status, error) {
	ret, err := c.Get("/api/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var st types.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return &st, nil
}

// GetHistory returns recent watering cycles, newest first. A limit of zero
// uses the daemon's default.
func (c *Client) GetHistory(limit int) ([]types.Cycle, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get watering history")
	}

	var cycles []types.Cycle
	if err := json.Unmarshal([]byte(ret), &cycles); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal watering history")
	}
	return cycles, nil
}

func (c *Client) GetSchedule() (*types.ScheduleStatus, error) {
	ret, err := c.Get("/api/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedule")
	}
	return parseSchedule(ret)
}

// SetSchedule replaces the watering schedule. An empty cron disables it and an
// empty interval keeps the current one.
func (c *Client) SetSchedule(cron, interval string) (*types.ScheduleStatus, error) {
	payload, err := json.Marshal(types.ScheduleRequest{Cron: cron, Interval: interval})
	if err != nil {
		return nil, err
	}

	ret, err := c.Put("/api/schedule", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set schedule")
	}
	return parseSchedule(ret)
}

func (c *Client) SkipSchedule() (*types.ScheduleStatus, error) {
	ret, err := c.Post("/api/schedule/skip", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to skip scheduled watering")
	}
	return parseSchedule(ret)
}

func (c *Client) PostponeSchedule(d time.Duration) (*types.ScheduleStatus, error) {
	payload, err := json.Marshal(d.String())
	if err != nil {
		return nil, err
	}

	ret, err := c.Post("/api/schedule/postpone", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to postpone scheduled watering")
	}
	return parseSchedule(ret)
}

func parseSchedule(ret string) (*types.ScheduleStatus, error) {
	var ss types.ScheduleStatus
	if err := json.Unmarshal([]byte(ret), &ss); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule")
	}
	return &ss, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/api/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/api/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}

	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}
