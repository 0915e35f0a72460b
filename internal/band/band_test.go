package band

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lorawan-station/stationd/internal/config"
)

func TestUS902Legacy(t *testing.T) {
	assert := require.New(t)
	p := US902Legacy()

	tests := []struct {
		dr  int
		rps RPS
	}{
		{0, MakeRPS(SF10, BW125)},
		{1, MakeRPS(SF9, BW125)},
		{2, MakeRPS(SF8, BW125)},
		{3, MakeRPS(SF7, BW125)},
		{4, MakeRPS(SF8, BW500)},
		{5, RPSIllegal},
		{6, RPSIllegal},
		{7, RPSIllegal},
		{8, MakeRPS(SF12, BW500)},
		{9, MakeRPS(SF11, BW500)},
		{10, MakeRPS(SF10, BW500)},
		{11, MakeRPS(SF9, BW500)},
		{12, MakeRPS(SF8, BW500)},
		{13, MakeRPS(SF7, BW500)},
		{14, RPSIllegal},
		{15, RPSIllegal},
	}
	for _, tst := range tests {
		assert.Equal(tst.rps, p.UplinkRPS(tst.dr), "DR%d", tst.dr)
		assert.Equal(tst.rps, p.DownlinkRPS(tst.dr), "DR%d", tst.dr)
	}

	assert.Equal(RPSIllegal, p.UplinkRPS(-1))
	assert.Equal(RPSIllegal, p.UplinkRPS(16))
	assert.Equal(RPSIllegal, p.DownlinkRPS(100))
}

func TestUS902RP2(t *testing.T) {
	assert := require.New(t)
	p := US902RP2()

	upTests := []struct {
		dr  int
		rps RPS
	}{
		{0, MakeRPS(SF10, BW125)},
		{1, MakeRPS(SF9, BW125)},
		{2, MakeRPS(SF8, BW125)},
		{3, MakeRPS(SF7, BW125)},
		{4, MakeRPS(SF8, BW500)},
		{5, RPSIllegal},
		{6, RPSIllegal},
		{7, MakeRPS(SF6, BW125)},
		{8, MakeRPS(SF5, BW125)},
		{9, RPSIllegal},
		{15, RPSIllegal},
	}
	for _, tst := range upTests {
		assert.Equal(tst.rps, p.UplinkRPS(tst.dr), "up DR%d", tst.dr)
	}

	dnTests := []struct {
		dr  int
		rps RPS
	}{
		{0, MakeRPS(SF5, BW500)},
		{1, RPSIllegal},
		{7, RPSIllegal},
		{8, MakeRPS(SF12, BW500)},
		{9, MakeRPS(SF11, BW500)},
		{10, MakeRPS(SF10, BW500)},
		{11, MakeRPS(SF9, BW500)},
		{12, MakeRPS(SF8, BW500)},
		{13, MakeRPS(SF7, BW500)},
		{14, MakeRPS(SF6, BW500)},
		{15, RPSIllegal},
	}
	for _, tst := range dnTests {
		assert.Equal(tst.rps, p.DownlinkRPS(tst.dr), "dn DR%d", tst.dr)
	}

	// uplink and downlink DR0 differ in asymmetric mode
	assert.NotEqual(p.UplinkRPS(0), p.DownlinkRPS(0))
}

func TestEU868(t *testing.T) {
	assert := require.New(t)
	p := EU868()

	assert.Equal(MakeRPS(SF12, BW125), p.UplinkRPS(0))
	assert.Equal(MakeRPS(SF7, BW125), p.UplinkRPS(5))
	assert.Equal(MakeRPS(SF7, BW250), p.UplinkRPS(6))
	assert.Equal(RPSFSK, p.UplinkRPS(7))
	assert.Equal(RPSIllegal, p.UplinkRPS(8))
	assert.Equal(p.UplinkRPS(3), p.DownlinkRPS(3))
}

func TestAny125kHz(t *testing.T) {
	assert := require.New(t)

	legacy := US902Legacy()
	min, max, ok := legacy.Any125kHz(0, 5)
	assert.True(ok)
	assert.Equal(MakeRPS(SF10, BW125), min)
	assert.Equal(MakeRPS(SF7, BW125), max)

	rp2 := US902RP2()
	min, max, ok = rp2.Any125kHz(0, 8)
	assert.True(ok)
	assert.Equal(MakeRPS(SF10, BW125), min)
	assert.Equal(MakeRPS(SF5, BW125), max)

	// only a 500 kHz rate in range
	_, _, ok = legacy.Any125kHz(4, 4)
	assert.False(ok)

	// undefined entries never match
	_, _, ok = rp2.Any125kHz(9, 15)
	assert.False(ok)

	// FSK never matches, even though it shares the 125 kHz bandwidth code
	eu := EU868()
	_, _, ok = eu.Any125kHz(7, 7)
	assert.False(ok)

	// inverted span is empty
	_, _, ok = legacy.Any125kHz(5, 0)
	assert.False(ok)
}

func TestHasFastLora(t *testing.T) {
	assert := require.New(t)

	rp2 := US902RP2()
	rps, ok := rp2.HasFastLora(0, 8)
	assert.True(ok)
	assert.Equal(MakeRPS(SF8, BW500), rps)

	_, ok = rp2.HasFastLora(0, 3)
	assert.False(ok)

	eu := EU868()
	rps, ok = eu.HasFastLora(0, 15)
	assert.True(ok)
	assert.Equal(MakeRPS(SF7, BW250), rps)
}

func TestHasFSK(t *testing.T) {
	assert := require.New(t)

	assert.False(US902Legacy().HasFSK(0, 15))
	assert.False(US902RP2().HasFSK(0, 15))

	eu := EU868()
	assert.True(eu.HasFSK(0, 15))
	assert.False(eu.HasFSK(0, 6))
	assert.True(eu.HasFSK(7, 7))
}

func TestEmptyPlanScans(t *testing.T) {
	assert := require.New(t)

	empty := NewSymmetricPlan(nil)
	_, _, ok := empty.Any125kHz(0, 15)
	assert.False(ok)
	_, ok = empty.HasFastLora(0, 15)
	assert.False(ok)
	assert.False(empty.HasFSK(0, 15))
	assert.False(empty.HasFSK(16, 31))
}

func TestSetup(t *testing.T) {
	assert := require.New(t)
	var c config.Config

	c.Station.Band.Name = "US902_RP2"
	assert.NoError(Setup(c))
	assert.Equal(MakeRPS(SF5, BW125), GetPlan().UplinkRPS(8))

	c.Station.Band.Name = "US902_LEGACY"
	assert.NoError(Setup(c))
	assert.Equal(MakeRPS(SF10, BW125), GetPlan().UplinkRPS(0))

	c.Station.Band.Name = ""
	assert.NoError(Setup(c))
	assert.Equal(RPSFSK, GetPlan().UplinkRPS(7))

	c.Station.Band.Name = "AS923"
	assert.Error(Setup(c))
}
