package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lorawan-station/stationd/internal/backend"
	"github.com/lorawan-station/stationd/internal/backend/mqtt"
	"github.com/lorawan-station/stationd/internal/band"
	"github.com/lorawan-station/stationd/internal/config"
	"github.com/lorawan-station/stationd/internal/downlink"
	"github.com/lorawan-station/stationd/internal/monitoring"
	"github.com/lorawan-station/stationd/internal/storage"
	"github.com/lorawan-station/stationd/internal/uplink"
)

var (
	uplinkServer   *uplink.Server
	downlinkServer *downlink.Server
)

func run(cmd *cobra.Command, args []string) error {
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			return errors.Wrap(err, "could not create cpu profile file")
		}
		defer f.Close()

		if err := pprof.StartCPUProfile(f); err != nil {
			return errors.Wrap(err, "could not start cpu profile")
		}
		defer pprof.StopCPUProfile()
	}

	tasks := []func() error{
		setLogLevel,
		setSyslog,
		checkStationID,
		setupBand,
		printStartMessage,
		setupMonitoring,
		setupStorage,
		setupBackend,
		startDownlinkServer,
		startUplinkServer,
	}

	for _, t := range tasks {
		if err := t(); err != nil {
			log.Fatal(err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	exitChan := make(chan struct{})
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.WithField("signal", <-sigChan).Info("signal received")
	go func() {
		log.Warning("stopping stationd")
		if err := uplinkServer.Stop(); err != nil {
			log.Fatal(err)
		}
		if err := downlinkServer.Stop(); err != nil {
			log.Fatal(err)
		}
		exitChan <- struct{}{}
	}()
	select {
	case <-exitChan:
	case s := <-sigChan:
		log.WithField("signal", s).Info("signal received, stopping immediately")
	}

	return nil
}

func setLogLevel() error {
	log.SetLevel(log.Level(uint8(config.C.General.LogLevel)))
	return nil
}

func checkStationID() error {
	if config.C.Station.ID == "" {
		return errors.New("station.id must be configured")
	}
	return nil
}

func setupBand() error {
	if err := band.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup band error")
	}
	return nil
}

func printStartMessage() error {
	log.WithFields(log.Fields{
		"version":         version,
		"station":         config.C.Station.ID,
		"band":            config.C.Station.Band.Name,
		"protocol_format": config.C.Station.ProtocolFormat,
	}).Info("starting stationd")
	return nil
}

func setupMonitoring() error {
	if err := monitoring.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup monitoring error")
	}
	return nil
}

func setupStorage() error {
	if err := storage.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup storage error")
	}
	return nil
}

func setupBackend() error {
	switch config.C.Backend.Type {
	case "mqtt":
		b, err := mqtt.NewBackend(config.C)
		if err != nil {
			return errors.Wrap(err, "setup mqtt backend error")
		}
		backend.SetBackend(b)
	default:
		return fmt.Errorf("unexpected backend type: %s", config.C.Backend.Type)
	}
	return nil
}

func startDownlinkServer() error {
	downlinkServer = downlink.NewServer(config.C)
	return downlinkServer.Start()
}

func startUplinkServer() error {
	var err error
	uplinkServer, err = uplink.NewServer(config.C)
	if err != nil {
		return errors.Wrap(err, "setup uplink server error")
	}
	return uplinkServer.Start()
}
