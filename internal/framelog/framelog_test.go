package framelog

import (
	"encoding/json"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-station/stationd/internal/models"
)

func TestMessageToFrameLog(t *testing.T) {
	assert := require.New(t)

	up := UplinkFrameLog{
		PHYPayload: []byte{0x40, 0x01, 0x02},
		RXInfo:     models.RadioMetadata{DR: 5, Freq: 868100000, RSSI: -95, FTS: -1},
		MsgType:    "updf",
	}
	b, err := json.Marshal(up)
	assert.NoError(err)

	fl, err := messageToFrameLog(&redis.Message{Channel: "up-key", Payload: string(b)}, "up-key", "dn-key")
	assert.NoError(err)
	assert.Nil(fl.DownlinkFrame)
	assert.NotNil(fl.UplinkFrame)
	assert.Equal(up, *fl.UplinkFrame)

	dn := DownlinkFrameLog{
		TXPacket: models.TXPacket{DIID: 42, PDU: []byte{0x60, 0x01}, Freq: 869525000},
		MsgType:  "dnmsg",
	}
	b, err = json.Marshal(dn)
	assert.NoError(err)

	fl, err = messageToFrameLog(&redis.Message{Channel: "dn-key", Payload: string(b)}, "up-key", "dn-key")
	assert.NoError(err)
	assert.Nil(fl.UplinkFrame)
	assert.NotNil(fl.DownlinkFrame)
	assert.Equal(dn, *fl.DownlinkFrame)

	_, err = messageToFrameLog(&redis.Message{Channel: "up-key", Payload: "not json"}, "up-key", "dn-key")
	assert.Error(err)
}
