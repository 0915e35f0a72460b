// Package framelog publishes the frames moving through the station to
// redis pub/sub channels for live inspection.
package framelog

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/lorawan-station/stationd/internal/models"
	"github.com/lorawan-station/stationd/internal/storage"
)

const (
	uplinkPubSubKeyTempl   = "station:%s:pubsub:frame:uplink"
	downlinkPubSubKeyTempl = "station:%s:pubsub:frame:downlink"
)

// UplinkFrameLog contains the details of a received radio frame.
type UplinkFrameLog struct {
	PHYPayload []byte               `json:"phyPayload"`
	RXInfo     models.RadioMetadata `json:"rxInfo"`
	MsgType    string               `json:"msgType"`
}

// DownlinkFrameLog contains the details of a transmission command.
type DownlinkFrameLog struct {
	TXPacket models.TXPacket `json:"txPacket"`
	MsgType  string          `json:"msgType"`
}

// FrameLog contains either an uplink or a downlink frame.
type FrameLog struct {
	UplinkFrame   *UplinkFrameLog
	DownlinkFrame *DownlinkFrameLog
}

// LogUplinkFrame logs the given uplink frame to the station pub-sub
// channel.
func LogUplinkFrame(ctx context.Context, stationID string, fl UplinkFrameLog) error {
	key := storage.GetRedisKey(uplinkPubSubKeyTempl, stationID)

	b, err := json.Marshal(fl)
	if err != nil {
		return errors.Wrap(err, "marshal uplink frame log error")
	}

	if err := storage.RedisClient().Publish(ctx, key, b).Err(); err != nil {
		return errors.Wrap(err, "publish uplink frame log error")
	}
	return nil
}

// LogDownlinkFrame logs the given downlink frame to the station pub-sub
// channel.
func LogDownlinkFrame(ctx context.Context, stationID string, fl DownlinkFrameLog) error {
	key := storage.GetRedisKey(downlinkPubSubKeyTempl, stationID)

	b, err := json.Marshal(fl)
	if err != nil {
		return errors.Wrap(err, "marshal downlink frame log error")
	}

	if err := storage.RedisClient().Publish(ctx, key, b).Err(); err != nil {
		return errors.Wrap(err, "publish downlink frame log error")
	}
	return nil
}

// GetFrameLogForStation subscribes to the uplink and downlink frame logs
// of the given station and forwards them to the given channel. It blocks
// until the context is cancelled.
func GetFrameLogForStation(ctx context.Context, stationID string, frameLogChan chan FrameLog) error {
	uplinkKey := storage.GetRedisKey(uplinkPubSubKeyTempl, stationID)
	downlinkKey := storage.GetRedisKey(downlinkPubSubKeyTempl, stationID)

	sub := storage.RedisClient().Subscribe(ctx, uplinkKey, downlinkKey)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fl, err := messageToFrameLog(msg, uplinkKey, downlinkKey)
			if err != nil {
				return err
			}
			select {
			case frameLogChan <- fl:
			case <-ctx.Done():
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func messageToFrameLog(msg *redis.Message, uplinkKey, downlinkKey string) (FrameLog, error) {
	var fl FrameLog

	switch msg.Channel {
	case uplinkKey:
		fl.UplinkFrame = &UplinkFrameLog{}
		if err := json.Unmarshal([]byte(msg.Payload), fl.UplinkFrame); err != nil {
			return fl, errors.Wrap(err, "unmarshal uplink frame log error")
		}
	case downlinkKey:
		fl.DownlinkFrame = &DownlinkFrameLog{}
		if err := json.Unmarshal([]byte(msg.Payload), fl.DownlinkFrame); err != nil {
			return fl, errors.Wrap(err, "unmarshal downlink frame log error")
		}
	}

	return fl, nil
}
