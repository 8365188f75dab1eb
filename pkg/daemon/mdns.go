package daemon

import (
	"fmt"
	"net"
	"strconv"

	"github.com/enbility/zeroconf/v3"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/drip/pkg/version"
)

const (
	mdnsService = "_http._tcp"
	mdnsDomain  = "local."
)

// advertiser announces the web UI on the local network.
type advertiser struct {
	server *zeroconf.Server
}

// mdnsTXT returns the TXT records published with the service.
func mdnsTXT() []string {
	return []string{
		"path=/",
		"version=" + version.Version,
	}
}

// listenPort extracts the TCP port from a listen address like ":8080".
func listenPort(listenAddress string) (int, error) {
	_, portStr, err := net.SplitHostPort(listenAddress)
	if err != nil {
		return 0, fmt.Errorf("invalid listen address %q: %w", listenAddress, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in listen address %q", listenAddress)
	}
	return port, nil
}

func advertise(instance, listenAddress string) (*advertiser, error) {
	port, err := listenPort(listenAddress)
	if err != nil {
		return nil, err
	}

	// nil interfaces means all of them
	server, err := zeroconf.Register(instance, mdnsService, mdnsDomain, port, mdnsTXT(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register %s service: %w", mdnsService, err)
	}

	logrus.WithFields(logrus.Fields{
		"instance": instance,
		"service":  mdnsService,
		"port":     port,
	}).Info("advertising over mDNS")

	return &advertiser{server: server}, nil
}

func (a *advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}
