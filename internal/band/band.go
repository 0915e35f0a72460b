package band

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lorawan-station/stationd/internal/config"
)

// DRCount is the number of data-rate indices in a plan.
const DRCount = 16

// Plan maps data-rate indices to radio parameter sets, per direction.
// The uplink and downlink tables differ in regions that define asymmetric
// data rates, such as US915 under RP2-1.0.5 where SF5 and SF6 exist
// upstream only.
type Plan struct {
	up [DRCount]RPS
	dn [DRCount]RPS
}

// NewPlan creates a plan from per-direction data-rate tables. Indices
// beyond the given tables are illegal. The plan is immutable once built.
func NewPlan(up, dn []RPS) Plan {
	var p Plan
	for i := 0; i < DRCount; i++ {
		p.up[i] = RPSIllegal
		p.dn[i] = RPSIllegal
	}
	copy(p.up[:], up)
	copy(p.dn[:], dn)
	return p
}

// NewSymmetricPlan creates a plan using the same table for both directions.
func NewSymmetricPlan(drs []RPS) Plan {
	return NewPlan(drs, drs)
}

// UplinkRPS returns the radio parameter set of an uplink data-rate index.
// Out of range or undefined indices return RPSIllegal.
func (p *Plan) UplinkRPS(dr int) RPS {
	if dr < 0 || dr >= DRCount {
		return RPSIllegal
	}
	return p.up[dr]
}

// DownlinkRPS returns the radio parameter set of a downlink data-rate
// index. Out of range or undefined indices return RPSIllegal.
func (p *Plan) DownlinkRPS(dr int) RPS {
	if dr < 0 || dr >= DRCount {
		return RPSIllegal
	}
	return p.dn[dr]
}

// Any125kHz reports whether any uplink data rate within [minDR, maxDR] is
// a LoRa rate at 125 kHz, together with the smallest and largest matching
// parameter sets. FSK never matches.
func (p *Plan) Any125kHz(minDR, maxDR int) (min, max RPS, ok bool) {
	min, max = RPSIllegal, RPSIllegal
	for dr := minDR; dr <= maxDR; dr++ {
		rps := p.UplinkRPS(dr)
		if rps == RPSFSK || rps.Bandwidth() != BW125 {
			continue
		}
		if !ok || rps < min {
			min = rps
		}
		if !ok || rps > max {
			max = rps
		}
		ok = true
	}
	return min, max, ok
}

// HasFastLora reports whether any uplink data rate within [minDR, maxDR]
// is a LoRa rate at 250 or 500 kHz, returning the first match.
func (p *Plan) HasFastLora(minDR, maxDR int) (RPS, bool) {
	for dr := minDR; dr <= maxDR; dr++ {
		rps := p.UplinkRPS(dr)
		if bw := rps.Bandwidth(); bw == BW250 || bw == BW500 {
			return rps, true
		}
	}
	return RPSIllegal, false
}

// HasFSK reports whether any uplink data rate within [minDR, maxDR] is FSK.
func (p *Plan) HasFSK(minDR, maxDR int) bool {
	for dr := minDR; dr <= maxDR; dr++ {
		if p.UplinkRPS(dr) == RPSFSK {
			return true
		}
	}
	return false
}

// US902Legacy returns the US915 plan as defined before RP2-1.0.5, with one
// table shared by both directions. DR0-DR4 are the uplink rates, DR8-DR13
// the downlink rates.
func US902Legacy() Plan {
	return NewSymmetricPlan([]RPS{
		MakeRPS(SF10, BW125), // DR0
		MakeRPS(SF9, BW125),  // DR1
		MakeRPS(SF8, BW125),  // DR2
		MakeRPS(SF7, BW125),  // DR3
		MakeRPS(SF8, BW500),  // DR4
		RPSIllegal,           // DR5
		RPSIllegal,           // DR6
		RPSIllegal,           // DR7
		MakeRPS(SF12, BW500), // DR8
		MakeRPS(SF11, BW500), // DR9
		MakeRPS(SF10, BW500), // DR10
		MakeRPS(SF9, BW500),  // DR11
		MakeRPS(SF8, BW500),  // DR12
		MakeRPS(SF7, BW500),  // DR13
	})
}

// US902RP2 returns the RP2-1.0.5 US915 plan with asymmetric uplink and
// downlink tables. The LR-FHSS rates DR5 and DR6 are not supported.
func US902RP2() Plan {
	up := []RPS{
		MakeRPS(SF10, BW125), // DR0
		MakeRPS(SF9, BW125),  // DR1
		MakeRPS(SF8, BW125),  // DR2
		MakeRPS(SF7, BW125),  // DR3
		MakeRPS(SF8, BW500),  // DR4
		RPSIllegal,           // DR5 LR-FHSS
		RPSIllegal,           // DR6 LR-FHSS
		MakeRPS(SF6, BW125),  // DR7
		MakeRPS(SF5, BW125),  // DR8
	}
	dn := []RPS{
		MakeRPS(SF5, BW500), // DR0
		RPSIllegal,          // DR1
		RPSIllegal,          // DR2
		RPSIllegal,          // DR3
		RPSIllegal,          // DR4
		RPSIllegal,          // DR5
		RPSIllegal,          // DR6
		RPSIllegal,          // DR7
		MakeRPS(SF12, BW500), // DR8
		MakeRPS(SF11, BW500), // DR9
		MakeRPS(SF10, BW500), // DR10
		MakeRPS(SF9, BW500),  // DR11
		MakeRPS(SF8, BW500),  // DR12
		MakeRPS(SF7, BW500),  // DR13
		MakeRPS(SF6, BW500),  // DR14
	}
	return NewPlan(up, dn)
}

// EU868 returns the EU868 plan.
func EU868() Plan {
	return NewSymmetricPlan([]RPS{
		MakeRPS(SF12, BW125), // DR0
		MakeRPS(SF11, BW125), // DR1
		MakeRPS(SF10, BW125), // DR2
		MakeRPS(SF9, BW125),  // DR3
		MakeRPS(SF8, BW125),  // DR4
		MakeRPS(SF7, BW125),  // DR5
		MakeRPS(SF7, BW250),  // DR6
		RPSFSK,               // DR7
	})
}

var plan Plan

// Setup sets up the data-rate plan for the configured band.
func Setup(c config.Config) error {
	name := c.Station.Band.Name
	switch name {
	case "", "EU868":
		plan = EU868()
	case "US902_LEGACY":
		plan = US902Legacy()
	case "US902_RP2":
		plan = US902RP2()
	default:
		return errors.Errorf("band: unknown band name: %s", name)
	}

	log.WithField("band", name).Info("band: data-rate plan configured")
	return nil
}

// GetPlan returns the configured data-rate plan.
func GetPlan() Plan {
	return plan
}
