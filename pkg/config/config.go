package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Config interface {
	ListenAddress() string
	Hostname() string
	AdvertiseMDNS() bool
	AllowNonRootAccess() bool

	RelayPin() int
	RelayActiveLow() bool
	// IndicatorPin returns the indicator LED pin, or a negative number if
	// there is no indicator.
	IndicatorPin() int
	IndicatorActiveLow() bool
	SimulateHardware() bool

	TickInterval() time.Duration
	ScheduleCron() string
	ScheduleInterval() string
	HistoryPath() string

	SetAdvertiseMDNS(bool)
	SetAllowNonRootAccess(bool)
	SetScheduleCron(string)
	SetScheduleInterval(string)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
