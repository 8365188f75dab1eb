package daemon

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/drip/pkg/config"
	"github.com/charlie0129/drip/pkg/events"
	"github.com/charlie0129/drip/pkg/history"
	"github.com/charlie0129/drip/pkg/relay"
	"github.com/charlie0129/drip/pkg/types"
	"github.com/charlie0129/drip/pkg/watering"
)

const (
	tickRecordCount   = 60
	scheduleLookahead = 5

	endReasonInterrupted = "interrupted"
	endReasonShutdown    = "shutdown"
)

//go:embed web/index.html web/style.css
var webFS embed.FS

// Daemon owns the watering timer and everything that drives or observes it.
type Daemon struct {
	conf      config.Config
	relay     relay.Output
	timer     *watering.Timer
	hub       *events.EventHub
	ticks     *TimeSeriesRecorder
	scheduler *Scheduler
	store     *history.Store
	recorder  *historyRecorder
	router    *gin.Engine
}

// New builds a Daemon on an opened driver. A nil store disables history.
func New(conf config.Config, driver relay.Driver, store *history.Store, opts ...watering.Option) (*Daemon, error) {
	relayPin := relay.PinConfig{Pin: conf.RelayPin(), ActiveLow: conf.RelayActiveLow()}
	relayOut, err := driver.Output(relayPin.Pin, relayPin.ActiveLow)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set up relay on %s", relayPin)
	}

	if pin := conf.IndicatorPin(); pin >= 0 {
		indicatorPin := relay.PinConfig{Pin: pin, ActiveLow: conf.IndicatorActiveLow()}
		indicator, err := driver.Output(indicatorPin.Pin, indicatorPin.ActiveLow)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to set up indicator on %s", indicatorPin)
		}
		opts = append([]watering.Option{watering.WithIndicator(indicator)}, opts...)
	}

	d := &Daemon{
		conf:  conf,
		relay: relayOut,
		hub:   events.NewEventHub(),
		ticks: NewTimeSeriesRecorder(tickRecordCount, conf.TickInterval()),
		store: store,
	}
	if store != nil {
		d.recorder = newHistoryRecorder(store)
	}

	// Switches the relay off before anything else can touch it.
	d.timer = watering.NewTimer(relayOut, opts...)
	d.timer.OnTransition(d.onTransition)

	d.scheduler = NewScheduler(d.runScheduledWatering, d.checkScheduledWatering, d.onScheduleUpcoming, d.onScheduleError)

	d.router, err = d.setupRoutes()
	if err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Daemon) setupRoutes() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)

	tmpl, err := template.ParseFS(webFS, "web/index.html")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to parse status page")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logrus.StandardLogger()))
	router.SetHTMLTemplate(tmpl)

	router.GET("/", d.getIndex)
	router.GET("/style.css", d.getStyle)
	router.GET("/start", d.startWatering)
	router.GET("/off", d.stopWatering)
	router.GET("/remainingWateringTime", d.getRemainingWateringTime)

	api := router.Group("/api")
	api.GET("/status", d.getStatus)
	api.GET("/events", d.streamEvents)
	api.GET("/history", d.getHistory)
	api.GET("/schedule", d.getSchedule)
	api.PUT("/schedule", d.setSchedule)
	api.POST("/schedule/skip", d.skipSchedule)
	api.POST("/schedule/postpone", d.postponeSchedule)
	api.GET("/config", d.getConfig)
	api.GET("/version", d.getVersion)

	return router, nil
}

// Handler returns the HTTP handler serving every endpoint.
func (d *Daemon) Handler() http.Handler {
	return d.router
}

// Timer exposes the watering timer.
func (d *Daemon) Timer() *watering.Timer {
	return d.timer
}

// Events exposes the event hub.
func (d *Daemon) Events() *events.EventHub {
	return d.hub
}

func (d *Daemon) onTransition(tr watering.Transition) {
	d.hub.Publish(events.WateringState, events.WateringStateEvent{
		From:             string(tr.From),
		To:               string(tr.To),
		Reason:           string(tr.Reason),
		Interval:         tr.Interval.Token(),
		Previous:         tr.Previous.Token(),
		RemainingSeconds: max(0, tr.RemainingMillis/1000),
		Ts:               tr.At.Unix(),
	})

	if d.recorder != nil {
		d.recorder.enqueue(tr)
	}
}

func (d *Daemon) applySchedule() {
	expr := d.conf.ScheduleCron()
	if err := d.scheduler.Schedule(expr); err != nil {
		logrus.Errorf("failed to apply watering schedule: %v", err)
		return
	}
	if expr == "" {
		logrus.Debug("no watering schedule configured")
		return
	}

	next, _ := d.scheduler.Status()
	logrus.WithFields(logrus.Fields{
		"cron":     expr,
		"interval": d.conf.ScheduleInterval(),
		"nextRun":  next.Format(time.DateTime),
	}).Info("watering schedule applied")
}

func (d *Daemon) runScheduledWatering() error {
	i, err := watering.ParseInterval(d.conf.ScheduleInterval())
	if err != nil {
		return err
	}
	logrus.WithField("interval", i.Token()).Info("starting scheduled watering")
	// A manual start can still land after the precheck passed.
	return d.timer.StartIfIdle(i)
}

// checkScheduledWatering keeps a schedule from cutting short a cycle someone
// started by hand. It only decides whether to retry; runScheduledWatering
// repeats the check atomically.
func (d *Daemon) checkScheduledWatering() error {
	if st := d.timer.Status(); st.State == watering.StateRunning {
		return watering.ErrWateringInProgress
	}
	return nil
}

func (d *Daemon) onScheduleUpcoming(runAt time.Time) {
	logrus.WithFields(logrus.Fields{
		"runAt":    runAt.Format(time.DateTime),
		"interval": d.conf.ScheduleInterval(),
	}).Info("scheduled watering is about to start")

	d.hub.Publish(events.ScheduleUpcoming, events.ScheduleUpcomingEvent{
		RunAt:    runAt.Unix(),
		Interval: d.conf.ScheduleInterval(),
		Ts:       time.Now().Unix(),
	})
}

func (d *Daemon) onScheduleError(err error) {
	logrus.Errorf("scheduled watering: %v", err)

	d.hub.Publish(events.ScheduleError, events.ScheduleErrorEvent{
		Message: err.Error(),
		Ts:      time.Now().Unix(),
	})
}

func (d *Daemon) status() types.Status {
	st := d.timer.Status()

	s := types.Status{
		State:            string(st.State),
		RelayOn:          st.RelayOn,
		RemainingSeconds: st.RemainingSeconds,
		Interval:         st.Interval.Token(),
		TickHealthy:      d.ticks.Healthy(),
		SimulateHardware: d.conf.SimulateHardware(),
	}
	if st.State == watering.StateRunning {
		endsAt := time.Now().Add(time.Duration(st.RemainingSeconds) * time.Second).Truncate(time.Second)
		s.EndsAt = &endsAt
	}
	if last := d.ticks.GetLastRecord(); !last.IsZero() {
		last = last.Round(0)
		s.LastTick = &last
	}
	sched := d.scheduleStatus()
	s.Schedule = &sched

	return s
}

func (d *Daemon) scheduleStatus() types.ScheduleStatus {
	expr := d.scheduler.Expression()
	return types.ScheduleStatus{
		Enabled:  expr != "",
		Cron:     expr,
		Interval: d.conf.ScheduleInterval(),
		NextRuns: d.scheduler.NextRuns(scheduleLookahead),
	}
}

// shutdown turns the valve off and flushes history. The relay is always
// switched off even if history cannot be written.
func (d *Daemon) shutdown() {
	d.scheduler.Stop()

	if d.recorder != nil {
		d.recorder.close()
	}

	if prev := d.timer.Stop(); prev != "" {
		logrus.WithField("interval", prev).Info("watering cut short by shutdown")
	}

	if d.store != nil {
		if _, err := d.store.CloseOpen(endReasonShutdown, time.Now()); err != nil {
			logrus.Errorf("failed to close open watering cycles: %v", err)
		}
	}

	d.hub.Close()
}

func openHistory(path string) *history.Store {
	if path == "" {
		logrus.Info("historyPath is empty, watering history disabled")
		return nil
	}

	store, err := history.Open(path)
	if err != nil {
		logrus.Errorf("failed to open watering history, continuing without it: %v", err)
		return nil
	}

	n, err := store.CloseOpen(endReasonInterrupted, time.Now())
	if err != nil {
		logrus.Errorf("failed to close interrupted watering cycles: %v", err)
	} else if n > 0 {
		logrus.Warnf("closed %d watering cycles interrupted by a previous crash", n)
	}

	return store
}

func openDriver(conf config.Config) relay.Driver {
	var driver relay.Driver = relay.NewGPIO()
	if conf.SimulateHardware() {
		logrus.Warn("simulateHardware is set, using mocked gpio: no valve will be switched")
		driver = relay.NewMock(nil)
	}

	if err := driver.Open(); err != nil {
		logrus.Fatalf("failed to open gpio: %v", err)
	}
	return driver
}

func listenUnix(unixSocketPath string, allowNonRoot bool) net.Listener {
	// A socket left behind by a crash would make Listen fail.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Fatal(err)
	}

	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	return l
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	driver := openDriver(conf)
	store := openHistory(conf.HistoryPath())

	d, err := New(conf, driver, store)
	if err != nil {
		logrus.Fatal(err)
	}

	d.applySchedule()
	d.scheduler.Start()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
			d.applySchedule()
		}
	}()

	ctx, cancelTicks := context.WithCancel(context.Background())
	go d.tickLoop(ctx)

	srv := &http.Server{
		Handler: d.router,
	}

	listeners := make([]net.Listener, 0, 2)
	tcp, err := net.Listen("tcp", conf.ListenAddress())
	if err != nil {
		logrus.Fatal(err)
	}
	listeners = append(listeners, tcp)
	if unixSocketPath != "" {
		listeners = append(listeners, listenUnix(unixSocketPath, conf.AllowNonRootAccess() || allowNonRoot))
	}

	for _, l := range listeners {
		go func(l net.Listener) {
			logrus.Infof("http server listening on %s", l.Addr().String())
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Fatal(err)
			}
		}(l)
	}

	var ad *advertiser
	if conf.AdvertiseMDNS() {
		ad, err = advertise(conf.Hostname(), conf.ListenAddress())
		if err != nil {
			logrus.Errorf("failed to advertise over mDNS: %v", err)
		}
	}

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	// Ends event streams so Shutdown does not wait on them.
	d.hub.Close()

	logrus.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	if ad != nil {
		logrus.Info("stopping mDNS advertisement")
		ad.Shutdown()
	}

	logrus.Info("stopping tick loop")
	cancelTicks()

	logrus.Info("switching valve off")
	d.shutdown()

	if store != nil {
		logrus.Info("closing watering history")
		if err := store.Close(); err != nil {
			logrus.Errorf("failed to close watering history: %v", err)
		}
	}

	logrus.Info("closing gpio")
	err = driver.Close()
	if err != nil {
		logrus.Errorf("failed to close gpio: %v", err)
	}

	logrus.Info("exiting")
	return nil
}
