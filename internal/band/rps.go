package band

import (
	"fmt"
)

// SF identifies a LoRa spreading factor, or FSK modulation.
type SF uint8

// Spreading factors. The order follows the radio parameter encoding: lower
// values are slower (higher spreading factor).
const (
	SF12 SF = iota
	SF11
	SF10
	SF9
	SF8
	SF7
	SF6
	SF5
	FSK
)

var sfNames = [...]string{"SF12", "SF11", "SF10", "SF9", "SF8", "SF7", "SF6", "SF5", "FSK"}

// String implements fmt.Stringer.
func (sf SF) String() string {
	if int(sf) < len(sfNames) {
		return sfNames[sf]
	}
	return fmt.Sprintf("SF(%d)", uint8(sf))
}

// Bandwidth identifies a LoRa channel bandwidth.
type Bandwidth uint8

// Channel bandwidths.
const (
	BW125 Bandwidth = iota
	BW250
	BW500
)

// String implements fmt.Stringer.
func (bw Bandwidth) String() string {
	switch bw {
	case BW125:
		return "BW125"
	case BW250:
		return "BW250"
	case BW500:
		return "BW500"
	default:
		return fmt.Sprintf("BW(%d)", uint8(bw))
	}
}

// RPS packs a spreading factor and bandwidth into a single radio parameter
// set byte: the low nibble holds the spreading factor code, the high nibble
// the bandwidth code.
type RPS uint8

// RPSIllegal marks an undefined data-rate entry. Both of its nibbles decode
// outside every defined code, so it can never satisfy a channel scan.
const RPSIllegal RPS = 0xff

// RPSFSK is the radio parameter set of an FSK data rate.
const RPSFSK = RPS(FSK) | RPS(BW125)<<4

// MakeRPS packs a spreading factor and bandwidth.
func MakeRPS(sf SF, bw Bandwidth) RPS {
	return RPS(sf)&0x0f | RPS(bw)<<4
}

// SF returns the spreading factor code.
func (r RPS) SF() SF {
	return SF(r & 0x0f)
}

// Bandwidth returns the bandwidth code.
func (r RPS) Bandwidth() Bandwidth {
	return Bandwidth(r >> 4)
}

// String implements fmt.Stringer.
func (r RPS) String() string {
	if r == RPSIllegal {
		return "ILLEGAL"
	}
	if r.SF() == FSK {
		return "FSK"
	}
	return fmt.Sprintf("%s/%s", r.SF(), r.Bandwidth())
}
