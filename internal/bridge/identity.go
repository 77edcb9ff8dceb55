package bridge

import (
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Identity names this process to the coordinator.
type Identity struct {
	MachineID  string
	ServiceID  string
	RunID      string
	ClusterID  string
	InstanceID string
	ExecName   string
	Addresses  []string
}

func NewIdentity(serviceID string) Identity {
	machine, err := os.Hostname()
	if err != nil || strings.TrimSpace(machine) == "" {
		machine = "localhost"
	}
	cluster := machine + ":" + serviceID
	return Identity{
		MachineID:  machine,
		ServiceID:  serviceID,
		RunID:      uuid.NewString(),
		ClusterID:  cluster,
		InstanceID: cluster,
		ExecName:   filepath.Base(os.Args[0]),
		Addresses:  localAddresses(),
	}
}

func localAddresses() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return []string{}
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.IsLinkLocalUnicast() {
			continue
		}
		out = append(out, ipnet.IP.String())
	}
	return out
}
