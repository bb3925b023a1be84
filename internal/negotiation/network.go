package negotiation

import (
	"net"
	"strings"

	"github.com/samber/lo"
)

var (
	tunnelMarkers = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}
	cgnatBlock    = mustCIDR("100.64.0.0/10")
)

func mustCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return block
}

// iface is the subset of an interface the relay heuristic inspects.
type iface struct {
	Name  string
	Up    bool
	Loop  bool
	Addrs []net.IP
}

// ShouldForceRelay reports whether the host looks like it sits behind a VPN
// tunnel or carrier-grade NAT, where direct media paths rarely work.
func ShouldForceRelay() bool {
	ifaces, err := localInterfaces()
	if err != nil {
		return false
	}
	return needsRelay(ifaces)
}

func needsRelay(ifaces []iface) bool {
	return lo.SomeBy(ifaces, func(i iface) bool {
		if !i.Up || i.Loop {
			return false
		}

		name := strings.ToLower(i.Name)
		if lo.SomeBy(tunnelMarkers, func(m string) bool { return strings.Contains(name, m) }) {
			return true
		}

		return lo.SomeBy(i.Addrs, cgnatBlock.Contains)
	})
}

func localInterfaces() ([]iface, error) {
	raw, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]iface, 0, len(raw))
	for _, r := range raw {
		i := iface{
			Name: r.Name,
			Up:   r.Flags&net.FlagUp != 0,
			Loop: r.Flags&net.FlagLoopback != 0,
		}

		addrs, err := r.Addrs()
		if err == nil {
			for _, a := range addrs {
				switch v := a.(type) {
				case *net.IPNet:
					i.Addrs = append(i.Addrs, v.IP)
				case *net.IPAddr:
					i.Addrs = append(i.Addrs, v.IP)
				}
			}
		}
		out = append(out, i)
	}
	return out, nil
}
