package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/drip/pkg/config"
	"github.com/charlie0129/drip/pkg/types"
	"github.com/charlie0129/drip/pkg/version"
	"github.com/charlie0129/drip/pkg/watering"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

type indexPage struct {
	Hostname  string
	State     string
	Interval  string
	Remaining string
	Intervals []string
}

func (d *Daemon) indexPage() indexPage {
	st := d.timer.Status()

	on := st.RelayOn
	if v, err := d.relay.IsOn(); err == nil {
		on = v
	} else {
		logrus.Warnf("failed to read back relay state: %v", err)
	}

	state := "OFF"
	if on {
		state = "ON"
	}

	p := indexPage{
		Hostname: d.conf.Hostname(),
		State:    state,
		Interval: st.Interval.Token(),
	}
	if st.State == watering.StateRunning {
		p.Remaining = (time.Duration(st.RemainingSeconds) * time.Second).String()
	}
	for _, i := range watering.Intervals {
		p.Intervals = append(p.Intervals, i.Token())
	}
	return p
}

func (d *Daemon) getIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", d.indexPage())
}

func (d *Daemon) getStyle(c *gin.Context) {
	b, err := webFS.ReadFile("web/style.css")
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "text/css; charset=utf-8", b)
}

func (d *Daemon) startWatering(c *gin.Context) {
	token := c.Query("interval")

	if err := d.timer.Start(token); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, watering.ErrUnknownInterval) {
			status = http.StatusBadRequest
		}
		c.String(status, err.Error())
		_ = c.AbortWithError(status, err)
		return
	}

	c.HTML(http.StatusOK, "index.html", d.indexPage())
}

func (d *Daemon) stopWatering(c *gin.Context) {
	prev := d.timer.Stop()
	c.String(http.StatusOK, prev)
}

func (d *Daemon) getRemainingWateringTime(c *gin.Context) {
	st := d.timer.Status()
	if st.State != watering.StateRunning {
		logrus.Debug("watering inactive")
	}

	b, err := json.Marshal(types.RemainingWateringTime{
		RemainingSeconds: st.RemainingSeconds,
		IntervalSet:      st.Interval.Token(),
	})
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", b)
}

func (d *Daemon) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.status())
}

func (d *Daemon) getHistory(c *gin.Context) {
	if d.store == nil {
		err := errors.New("watering history is disabled")
		c.IndentedJSON(http.StatusServiceUnavailable, err.Error())
		_ = c.AbortWithError(http.StatusServiceUnavailable, err)
		return
	}

	limit := defaultHistoryLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			err := fmt.Errorf("limit must be a positive integer, got %q", s)
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	cycles, err := d.store.List(limit)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusOK, cycles)
}

func (d *Daemon) getSchedule(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.scheduleStatus())
}

func (d *Daemon) setSchedule(c *gin.Context) {
	var req types.ScheduleRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	interval := req.Interval
	if interval == "" {
		interval = d.conf.ScheduleInterval()
	}
	if _, err := watering.ParseInterval(interval); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if req.Cron != "" {
		if err := d.scheduler.Validate(req.Cron); err != nil {
			err = fmt.Errorf("invalid cron expression %q: %w", req.Cron, err)
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}
	}

	d.conf.SetScheduleCron(req.Cron)
	d.conf.SetScheduleInterval(interval)
	if err := d.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	d.applySchedule()

	if req.Cron == "" {
		logrus.Info("watering schedule disabled")
	}

	c.IndentedJSON(http.StatusCreated, d.scheduleStatus())
}

func (d *Daemon) skipSchedule(c *gin.Context) {
	if err := d.scheduler.Skip(); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	next, _ := d.scheduler.Status()
	logrus.Infof("skipped scheduled watering, next run at %s", next.Format(time.DateTime))
	c.IndentedJSON(http.StatusCreated, d.scheduleStatus())
}

func (d *Daemon) postponeSchedule(c *gin.Context) {
	var s string
	if err := c.BindJSON(&s); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := d.scheduler.Postpone(dur); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	next, _ := d.scheduler.Status()
	logrus.Infof("postponed scheduled watering to %s", next.Format(time.DateTime))
	c.IndentedJSON(http.StatusCreated, d.scheduleStatus())
}

func (d *Daemon) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(d.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (d *Daemon) getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
