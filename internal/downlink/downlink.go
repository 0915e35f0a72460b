// Package downlink executes the messages received from the network
// server: downlink transmissions, time synchronisation and remote
// management commands.
package downlink

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lorawan-station/stationd/internal/backend"
	"github.com/lorawan-station/stationd/internal/band"
	"github.com/lorawan-station/stationd/internal/config"
	"github.com/lorawan-station/stationd/internal/framelog"
	"github.com/lorawan-station/stationd/internal/gps"
	"github.com/lorawan-station/stationd/internal/logging"
	"github.com/lorawan-station/stationd/internal/models"
	"github.com/lorawan-station/stationd/internal/tcproto"
)

// Server represents a server executing network-server messages.
type Server struct {
	wg          sync.WaitGroup
	stationID   string
	allowRunCmd bool
	codec       tcproto.Codec
}

// NewServer creates a new downlink server for the given configuration.
func NewServer(c config.Config) *Server {
	format := tcproto.ParseFormat(c.Station.ProtocolFormat)
	return &Server{
		stationID:   c.Station.ID,
		allowRunCmd: c.Station.AllowRunCmd,
		codec:       tcproto.NewCodec(format, c.Station.PDUOnly),
	}
}

// Start starts handling network-server messages.
func (s *Server) Start() error {
	go func() {
		s.wg.Add(1)
		defer s.wg.Done()
		s.handleLNSMessages()
	}()
	return nil
}

// Stop waits for the server to complete the pending messages. The
// backend is closed by the uplink server.
func (s *Server) Stop() error {
	log.Info("downlink: waiting for pending messages to complete")
	s.wg.Wait()
	return nil
}

// handleLNSMessages consumes the messages received from the network
// server and handles each in a separate go-routine. Errors are logged.
func (s *Server) handleLNSMessages() {
	for msg := range backend.GetBackend().LNSMessageChan() {
		go func(msg []byte) {
			s.wg.Add(1)
			defer s.wg.Done()
			if err := s.handleLNSMessage(msg); err != nil {
				downlinkMessageErrorCounter().Inc()
				log.WithError(err).Error("downlink: processing message error")
			}
		}(msg)
	}
}

func (s *Server) handleLNSMessage(b []byte) error {
	ctxID, err := uuid.NewV4()
	if err != nil {
		return errors.Wrap(err, "get new uuid error")
	}
	ctx := context.WithValue(context.Background(), logging.ContextIDKey, ctxID)

	msg, err := s.codec.UnmarshalDownlink(b)
	if err != nil {
		return errors.Wrap(err, "unmarshal message error")
	}

	downlinkMessageCounter(msg.Kind.String()).Inc()

	switch msg.Kind {
	case tcproto.Dnmsg:
		return s.handleDownlinkMessage(ctx, *msg.Dnmsg)
	case tcproto.Dnsched:
		for i := range msg.Dnsched {
			if err := s.handleDownlinkMessage(ctx, msg.Dnsched[i]); err != nil {
				return err
			}
		}
		return nil
	case tcproto.Timesync:
		return s.handleTimesyncRequest(ctx, *msg.Timesync)
	case tcproto.TimesyncResp:
		s.handleTimesyncResponse(ctx, *msg.Timesync)
		return nil
	case tcproto.Runcmd:
		return s.handleRunCommand(ctx, *msg.Runcmd)
	case tcproto.Rmtsh:
		log.WithFields(log.Fields{
			"ctx_id": ctxID,
			"user":   msg.Rmtsh.User,
			"start":  msg.Rmtsh.Start,
			"stop":   msg.Rmtsh.Stop,
		}).Warning("downlink: remote shell not supported, message dropped")
		return nil
	default:
		log.WithFields(log.Fields{
			"ctx_id":  ctxID,
			"msgtype": msg.Kind.String(),
		}).Warning("downlink: unexpected message type ignored")
		return nil
	}
}

// handleDownlinkMessage validates a downlink instruction and hands it to
// the radio front-end. Class A replies use the rx1 window parameters,
// then rx2, scheduled class B and C transmissions carry dr and freq
// directly.
func (s *Server) handleDownlinkMessage(ctx context.Context, d tcproto.DownlinkMessage) error {
	dr, freq := d.RX1DR, d.RX1Freq
	if freq == 0 {
		dr, freq = d.RX2DR, d.RX2Freq
	}
	if freq == 0 {
		dr, freq = d.DR, d.Freq
	}
	if freq == 0 {
		return errors.New("no transmit frequency")
	}

	plan := band.GetPlan()
	if plan.DownlinkRPS(dr) == band.RPSIllegal {
		downlinkMessageDroppedCounter("dr").Inc()
		log.WithFields(log.Fields{
			"ctx_id": ctx.Value(logging.ContextIDKey),
			"diid":   d.DIID,
			"dr":     dr,
			"freq":   freq,
		}).Warning("downlink: illegal data-rate index, transmission dropped")
		return nil
	}

	txPacket := models.TXPacket{
		DevEUI:   d.DevEUI,
		DIID:     d.DIID,
		PDU:      d.PDU,
		DR:       dr,
		Freq:     freq,
		RCtx:     d.RCtx,
		XTime:    d.XTime,
		GPSTime:  d.GPSTime,
		Priority: d.Priority,
	}

	if err := backend.GetBackend().PublishTx(txPacket); err != nil {
		return errors.Wrap(err, "publish tx packet error")
	}

	if err := framelog.LogDownlinkFrame(ctx, s.stationID, framelog.DownlinkFrameLog{
		TXPacket: txPacket,
		MsgType:  tcproto.Dnmsg.String(),
	}); err != nil {
		log.WithFields(log.Fields{
			"ctx_id": ctx.Value(logging.ContextIDKey),
		}).WithError(err).Error("downlink: log frame error")
	}

	if err := s.confirmTx(d); err != nil {
		return errors.Wrap(err, "confirm tx error")
	}

	log.WithFields(log.Fields{
		"ctx_id":  ctx.Value(logging.ContextIDKey),
		"dev_eui": d.DevEUI,
		"diid":    d.DIID,
		"dr":      dr,
		"freq":    freq,
	}).Info("downlink: transmission forwarded to radio front-end")

	return nil
}

// confirmTx reports the transmission back to the network server.
func (s *Server) confirmTx(d tcproto.DownlinkMessage) error {
	now := time.Now()

	txc := tcproto.TxConfirmation{
		DIID:    d.DIID,
		DevEUI:  d.DevEUI,
		RCtx:    d.RCtx,
		XTime:   d.XTime,
		TxTime:  float64(now.UnixNano()) / float64(time.Second),
		GPSTime: gps.Time(now).Microseconds(),
	}

	b, err := s.codec.MarshalTxConfirmation(txc)
	if err != nil {
		return errors.Wrap(err, "marshal tx confirmation error")
	}
	return backend.GetBackend().PublishUplink(b)
}

// handleTimesyncRequest answers a time synchronisation request with the
// current GPS time, echoing the server transmit timestamp.
func (s *Server) handleTimesyncRequest(ctx context.Context, req tcproto.TimesyncRecord) error {
	resp := tcproto.TimesyncRecord{
		TxTime:  req.TxTime,
		XTime:   req.XTime,
		GPSTime: gps.Time(time.Now()).Microseconds(),
	}

	b, err := s.codec.MarshalTimesync(resp, true)
	if err != nil {
		return errors.Wrap(err, "marshal timesync response error")
	}
	if err := backend.GetBackend().PublishUplink(b); err != nil {
		return errors.Wrap(err, "publish timesync response error")
	}

	log.WithFields(log.Fields{
		"ctx_id":  ctx.Value(logging.ContextIDKey),
		"txtime":  req.TxTime,
		"gpstime": resp.GPSTime,
	}).Info("downlink: timesync response published")
	return nil
}

// handleTimesyncResponse records the offset between the server clock and
// the local clock.
func (s *Server) handleTimesyncResponse(ctx context.Context, ts tcproto.TimesyncRecord) {
	offset := ts.GPSTime - gps.Time(time.Now()).Microseconds()
	timesyncOffsetGauge().Set(float64(offset))

	log.WithFields(log.Fields{
		"ctx_id":    ctx.Value(logging.ContextIDKey),
		"gpstime":   ts.GPSTime,
		"offset_us": offset,
	}).Info("downlink: timesync offset recorded")
}

// handleRunCommand executes a host command when enabled by the station
// configuration.
func (s *Server) handleRunCommand(ctx context.Context, cmd tcproto.RunCommand) error {
	if !s.allowRunCmd {
		downlinkMessageDroppedCounter("runcmd_disabled").Inc()
		log.WithFields(log.Fields{
			"ctx_id":  ctx.Value(logging.ContextIDKey),
			"command": cmd.Command,
		}).Warning("downlink: runcmd is disabled, command dropped")
		return nil
	}

	out, err := exec.CommandContext(ctx, cmd.Command, cmd.Arguments...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "run command error: %s", cmd.Command)
	}

	log.WithFields(log.Fields{
		"ctx_id":     ctx.Value(logging.ContextIDKey),
		"command":    cmd.Command,
		"output_len": len(out),
	}).Info("downlink: command executed")
	return nil
}
