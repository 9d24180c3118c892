package event

import (
	"os"
	"sync"

	"github.com/shirou/gopsutil/v4/host"
)

// HostInfo describes the machine events are produced on
type HostInfo struct {
	Hostname string
	OS       string
	Platform string
	Kernel   string
}

var (
	hostOnce   sync.Once
	cachedHost HostInfo
)

// LocalHost returns information about the current host, detected on first use
func LocalHost() HostInfo {
	hostOnce.Do(func() {
		cachedHost = detectHost()
	})
	return cachedHost
}

func detectHost() HostInfo {
	info, err := host.Info()
	if err == nil && info.Hostname != "" {
		return HostInfo{
			Hostname: info.Hostname,
			OS:       info.OS,
			Platform: info.Platform,
			Kernel:   info.KernelVersion,
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unavailable"
	}
	return HostInfo{Hostname: hostname}
}
