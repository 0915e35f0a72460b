// Package backend defines the transport between the station process and
// its two peers, the radio front-end and the network server.
package backend

import (
	"github.com/lorawan-station/stationd/internal/models"
)

var backend Backend

// GetBackend returns the active backend.
func GetBackend() Backend {
	return backend
}

// SetBackend sets the active backend.
func SetBackend(b Backend) {
	backend = b
}

// Backend is the interface of a station transport backend. It moves raw
// radio traffic in and transmission commands out on one side, and the
// encoded station protocol on the other.
type Backend interface {
	// RadioPacketChan returns the channel of frames delivered by the
	// radio front-end.
	RadioPacketChan() chan models.RadioPacket

	// LNSMessageChan returns the channel of raw protocol messages
	// received from the network server.
	LNSMessageChan() chan []byte

	// PublishUplink sends an encoded protocol message to the network
	// server.
	PublishUplink(payload []byte) error

	// PublishTx sends a transmission command to the radio front-end.
	PublishTx(pkt models.TXPacket) error

	// Close closes the backend.
	Close() error
}
