package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/drip/pkg/utils/ptr"
)

// minTickIntervalMillis keeps a misconfigured loop from spinning.
const minTickIntervalMillis = 10

var (
	defaultFileConfig = &RawFileConfig{
		ListenAddress:      ptr.To(":8080"),
		Hostname:           ptr.To("micro-drip-relay"),
		AdvertiseMDNS:      ptr.To(true),
		AllowNonRootAccess: ptr.To(false),
		// Stock relay board wiring: relay on GPIO5 (high = on),
		// status LED on GPIO2 (low = on).
		RelayPin:           ptr.To(5),
		RelayActiveLow:     ptr.To(false),
		IndicatorPin:       ptr.To(2),
		IndicatorActiveLow: ptr.To(true),
		SimulateHardware:   ptr.To(false),
		TickIntervalMillis: ptr.To(100),
		ScheduleCron:       ptr.To(""),
		ScheduleInterval:   ptr.To("1hr"),
		HistoryPath:        ptr.To("/var/lib/drip/history.db"),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	ListenAddress      *string `json:"listenAddress,omitempty"`
	Hostname           *string `json:"hostname,omitempty"`
	AdvertiseMDNS      *bool   `json:"advertiseMDNS,omitempty"`
	AllowNonRootAccess *bool   `json:"allowNonRootAccess,omitempty"`
	RelayPin           *int    `json:"relayPin,omitempty"`
	RelayActiveLow     *bool   `json:"relayActiveLow,omitempty"`
	IndicatorPin       *int    `json:"indicatorPin,omitempty"`
	IndicatorActiveLow *bool   `json:"indicatorActiveLow,omitempty"`
	SimulateHardware   *bool   `json:"simulateHardware,omitempty"`
	TickIntervalMillis *int    `json:"tickIntervalMillis,omitempty"`
	ScheduleCron       *string `json:"scheduleCron,omitempty"`
	ScheduleInterval   *string `json:"scheduleInterval,omitempty"`
	HistoryPath        *string `json:"historyPath,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		ListenAddress:      ptr.To(c.ListenAddress()),
		Hostname:           ptr.To(c.Hostname()),
		AdvertiseMDNS:      ptr.To(c.AdvertiseMDNS()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
		RelayPin:           ptr.To(c.RelayPin()),
		RelayActiveLow:     ptr.To(c.RelayActiveLow()),
		IndicatorPin:       ptr.To(c.IndicatorPin()),
		IndicatorActiveLow: ptr.To(c.IndicatorActiveLow()),
		SimulateHardware:   ptr.To(c.SimulateHardware()),
		TickIntervalMillis: ptr.To(int(c.TickInterval() / time.Millisecond)),
		ScheduleCron:       ptr.To(c.ScheduleCron()),
		ScheduleInterval:   ptr.To(c.ScheduleInterval()),
		HistoryPath:        ptr.To(c.HistoryPath()),
	}

	return rawConfig, nil
}

// read runs fn with the raw config under the read lock.
func (f *File) read(fn func(c *RawFileConfig)) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	fn(f.c)
}

func (f *File) ListenAddress() string {
	var v string
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.ListenAddress, *defaultFileConfig.ListenAddress) })
	return v
}

func (f *File) Hostname() string {
	var v string
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.Hostname, *defaultFileConfig.Hostname) })
	return v
}

func (f *File) AdvertiseMDNS() bool {
	var v bool
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.AdvertiseMDNS, *defaultFileConfig.AdvertiseMDNS) })
	return v
}

func (f *File) AllowNonRootAccess() bool {
	var v bool
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess) })
	return v
}

func (f *File) RelayPin() int {
	var v int
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.RelayPin, *defaultFileConfig.RelayPin) })
	return v
}

func (f *File) RelayActiveLow() bool {
	var v bool
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.RelayActiveLow, *defaultFileConfig.RelayActiveLow) })
	return v
}

func (f *File) IndicatorPin() int {
	var v int
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.IndicatorPin, *defaultFileConfig.IndicatorPin) })
	return v
}

func (f *File) IndicatorActiveLow() bool {
	var v bool
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.IndicatorActiveLow, *defaultFileConfig.IndicatorActiveLow) })
	return v
}

func (f *File) SimulateHardware() bool {
	var v bool
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.SimulateHardware, *defaultFileConfig.SimulateHardware) })
	return v
}

func (f *File) TickInterval() time.Duration {
	var ms int
	f.read(func(c *RawFileConfig) { ms = ptr.Deref(c.TickIntervalMillis, *defaultFileConfig.TickIntervalMillis) })
	if ms < minTickIntervalMillis {
		ms = minTickIntervalMillis
	}
	return time.Duration(ms) * time.Millisecond
}

func (f *File) ScheduleCron() string {
	var v string
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.ScheduleCron, *defaultFileConfig.ScheduleCron) })
	return v
}

func (f *File) ScheduleInterval() string {
	var v string
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.ScheduleInterval, *defaultFileConfig.ScheduleInterval) })
	return v
}

func (f *File) HistoryPath() string {
	var v string
	f.read(func(c *RawFileConfig) { v = ptr.Deref(c.HistoryPath, *defaultFileConfig.HistoryPath) })
	return v
}

func (f *File) SetAdvertiseMDNS(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AdvertiseMDNS = &b
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = &b
}

func (f *File) SetScheduleCron(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.ScheduleCron = &s
}

func (f *File) SetScheduleInterval(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.ScheduleInterval = &s
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"listenAddress":      f.ListenAddress(),
		"hostname":           f.Hostname(),
		"advertiseMDNS":      f.AdvertiseMDNS(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"relayPin":           f.RelayPin(),
		"relayActiveLow":     f.RelayActiveLow(),
		"indicatorPin":       f.IndicatorPin(),
		"indicatorActiveLow": f.IndicatorActiveLow(),
		"simulateHardware":   f.SimulateHardware(),
		"tickInterval":       f.TickInterval().String(),
		"scheduleCron":       f.ScheduleCron(),
		"scheduleInterval":   f.ScheduleInterval(),
		"historyPath":        f.HistoryPath(),
	}
}
