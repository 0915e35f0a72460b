package models

import (
	"github.com/brocaar/lorawan"
)

// RadioMetadata holds the reception metadata the radio front-end reports
// for a single uplink frame.
type RadioMetadata struct {
	// DR is the data-rate index the frame was received on.
	DR int `json:"dr"`

	// Freq is the frequency in Hz.
	Freq uint32 `json:"freq"`

	// RCtx is an opaque radio context (antenna / board selector).
	RCtx int64 `json:"rctx"`

	// XTime is the internal radio timestamp of the reception.
	XTime int64 `json:"xtime"`

	// GPSTime is the reception time in microseconds since the GPS epoch,
	// 0 when no GPS time source is available.
	GPSTime int64 `json:"gpstime"`

	RSSI int32   `json:"rssi"`
	SNR  float32 `json:"snr"`

	// FTS is the fine timestamp in nanoseconds, -1 when absent.
	FTS int32 `json:"fts"`

	// RxTime is the UTC reception time in seconds since the Unix epoch.
	RxTime float64 `json:"rxtime"`
}

// RadioPacket contains a received PHY payload together with its radio
// metadata.
type RadioPacket struct {
	PHYPayload []byte        `json:"phyPayload"`
	RXInfo     RadioMetadata `json:"rxInfo"`
}

// TXPacket holds a downlink PHY payload together with its transmission
// parameters.
type TXPacket struct {
	DevEUI   lorawan.EUI64 `json:"devEUI"`
	DIID     int64         `json:"diid"`
	PDU      []byte        `json:"pdu"`
	DR       int           `json:"dr"`
	Freq     uint32        `json:"freq"`
	RCtx     int64         `json:"rctx"`
	XTime    int64         `json:"xtime"`
	GPSTime  int64         `json:"gpstime"`
	Priority int           `json:"priority"`
}
