// Package datalink implements the BACnet/IP datalink behind the
// Datalink interface. It generalizes a single-connection UDP client's
// Connect/receiver-goroutine shape into a connectionless,
// broadcast-capable listener, with interface/broadcast-address
// discovery via vishvananda/netlink the way a production BACnet/IP node
// must pick its own egress interface rather than hardcode one.
package datalink

import (
	"github.com/caio-sobreiro/bacnetstack/address"
)

// Datalink is the transport the core rides on. A datalink carries raw
// NPDU+APDU bytes; it knows nothing about invoke-IDs or services.
type Datalink interface {
	// Receive blocks until one frame arrives, returning its source
	// address and payload.
	Receive() (src address.Address, payload []byte, err error)

	// SendPDU transmits payload to dst.
	SendPDU(dst address.Address, payload []byte) (int, error)

	// GetBroadcastAddress returns this datalink's local-segment
	// broadcast address, used for Who-Is.
	GetBroadcastAddress() address.Address

	// GetMyAddress returns this node's own datalink address.
	GetMyAddress() address.Address

	// Close releases the underlying transport.
	Close() error
}
