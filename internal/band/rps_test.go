package band

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRPS(t *testing.T) {
	assert := require.New(t)

	for sf := SF12; sf <= FSK; sf++ {
		for _, bw := range []Bandwidth{BW125, BW250, BW500} {
			rps := MakeRPS(sf, bw)
			assert.Equal(sf, rps.SF())
			assert.Equal(bw, rps.Bandwidth())
			assert.NotEqual(RPSIllegal, rps)
		}
	}

	assert.Equal(RPSFSK, MakeRPS(FSK, BW125))

	// the illegal sentinel decodes outside every defined code
	assert.Greater(uint8(RPSIllegal.SF()), uint8(FSK))
	assert.Greater(uint8(RPSIllegal.Bandwidth()), uint8(BW500))
}

func TestRPSString(t *testing.T) {
	assert := require.New(t)

	assert.Equal("SF7/BW125", MakeRPS(SF7, BW125).String())
	assert.Equal("SF12/BW500", MakeRPS(SF12, BW500).String())
	assert.Equal("SF5/BW250", MakeRPS(SF5, BW250).String())
	assert.Equal("FSK", RPSFSK.String())
	assert.Equal("ILLEGAL", RPSIllegal.String())
}
