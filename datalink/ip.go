package datalink

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/caio-sobreiro/bacnetstack/address"
)

// DefaultPort is the BACnet/IP well-known UDP port, per ASHRAE 135
// Annex J.
const DefaultPort = 0xBAC0 // 47808

// IPDatalink is a BACnet/IP (Annex J) Datalink over a UDP socket.
type IPDatalink struct {
	conn *net.UDPConn
	myAddr address.Address
	broadcast address.Address
}

// OpenIPDatalink binds a UDP socket on ifaceName (or the first
// non-loopback interface with an IPv4 address if ifaceName is empty)
// and port, computing the subnet broadcast address via netlink so
// Who-Is can reach every device on the segment.
func OpenIPDatalink(ifaceName string, port int) (*IPDatalink, error) {
	if port == 0 {
		port = DefaultPort
	}

	ip, bcast, err := discoverIPv4(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("datalink: discover interface: %w", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("datalink: listen udp: %w", err)
	}

	dl := &IPDatalink{
		conn: conn,
		myAddr: addressFromUDP(ip, port),
		broadcast: addressFromUDP(bcast, port),
	}
	slog.Info("datalink: opened BACnet/IP socket", "iface", ifaceName, "port", port, "broadcast", bcast.String())
	return dl, nil
}

// discoverIPv4 returns ifaceName's (or the first usable interface's)
// IPv4 address and subnet broadcast address, via netlink.
func discoverIPv4(ifaceName string) (ip net.IP, broadcast net.IP, err error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, nil, err
	}
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Flags&net.FlagLoopback != 0 {
			continue
		}
		if ifaceName != "" && attrs.Name != ifaceName {
			continue
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil || len(addrs) == 0 {
			continue
		}
		a := addrs[0]
		bcast := a.Broadcast
		if bcast == nil {
			bcast = computeBroadcast(a.IPNet)
		}
		return a.IPNet.IP, bcast, nil
	}
	return nil, nil, fmt.Errorf("no usable IPv4 interface found (want %q)", ifaceName)
}

func computeBroadcast(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	mask := n.Mask
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

func addressFromUDP(ip net.IP, port int) address.Address {
	v4 := ip.To4()
	mac := append(append([]byte{}, v4...), byte(port>>8), byte(port))
	return address.NewLocalMAC(mac)
}

// Receive implements Datalink.
func (d *IPDatalink) Receive() (address.Address, []byte, error) {
	buf := make([]byte, 1500)
	n, peer, err := d.conn.ReadFromUDP(buf)
	if err != nil {
		return address.Address{}, nil, err
	}
	return addressFromUDP(peer.IP, peer.Port), buf[:n], nil
}

// SendPDU implements Datalink.
func (d *IPDatalink) SendPDU(dst address.Address, payload []byte) (int, error) {
	if dst.MacLen < 4 {
		return 0, fmt.Errorf("datalink: destination address too short for BACnet/IP")
	}
	ip := net.IP(dst.Mac[:4])
	port := int(dst.Mac[4])<<8 | int(dst.Mac[5])
	if port == 0 {
		port = DefaultPort
	}
	return d.conn.WriteToUDP(payload, &net.UDPAddr{IP: ip, Port: port})
}

// GetBroadcastAddress implements Datalink.
func (d *IPDatalink) GetBroadcastAddress() address.Address {
	return d.broadcast
}

// GetMyAddress implements Datalink.
func (d *IPDatalink) GetMyAddress() address.Address {
	return d.myAddr
}

// Close implements Datalink.
func (d *IPDatalink) Close() error {
	return d.conn.Close()
}
