package frame

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"

	"github.com/lorawan-station/stationd/internal/config"
)

// NewDecoderFromConfig builds a Decoder with the admission filters given
// in the station configuration.
func NewDecoderFromConfig(c config.Config) (*Decoder, error) {
	d := NewDecoder()

	var ranges [][2]uint64
	for i, pair := range c.Station.Filters.JoinEUIs {
		var begin, end lorawan.EUI64
		if err := begin.UnmarshalText([]byte(pair[0])); err != nil {
			return nil, errors.Wrapf(err, "parse joineui filter %d begin error", i)
		}
		if err := end.UnmarshalText([]byte(pair[1])); err != nil {
			return nil, errors.Wrapf(err, "parse joineui filter %d end error", i)
		}
		ranges = append(ranges, [2]uint64{euiValue(begin), euiValue(end)})
	}
	d.SetJoinEUIFilter(ranges)

	var netIDs []lorawan.NetID
	for i, s := range c.Station.Filters.NetIDs {
		var id lorawan.NetID
		if err := id.UnmarshalText([]byte(s)); err != nil {
			return nil, errors.Wrapf(err, "parse netid filter %d error", i)
		}
		netIDs = append(netIDs, id)
	}
	d.SetNetIDFilter(netIDs)

	return d, nil
}

// euiValue returns the numeric value of an EUI64.
func euiValue(eui lorawan.EUI64) uint64 {
	return binary.BigEndian.Uint64(eui[:])
}
