// Copyright © 2024 Mutker Telag <witty.text5011@fastmail.com>
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/smlmqttprocessor/internal/config"
	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/lineio"
	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
	"codeberg.org/mutker/smlmqttprocessor/internal/metrics"
	"codeberg.org/mutker/smlmqttprocessor/internal/pid"
	"codeberg.org/mutker/smlmqttprocessor/internal/processor"
	"codeberg.org/mutker/smlmqttprocessor/internal/publish"
	"codeberg.org/mutker/smlmqttprocessor/internal/window"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	if cfg.ShowVersion {
		fmt.Printf("smlmqttprocessor %s\n", version)
		return 0
	}

	logger.Init(cfg.LogLevel.Level(), logger.IsService())
	logger.Info().Str("version", version).Msg("Starting smlmqttprocessor")
	logger.Info().Object("config", cfg).Msg("Config loaded")

	if cfg.PIDFile != "" {
		pidFile := pid.New(cfg.PIDFile)
		if err := pidFile.Write(); err != nil {
			logger.Error().Err(err).Str("pid_file", cfg.PIDFile).Msg("Failed to write PID file")
			return 1
		}
		defer func() {
			if err := pidFile.Remove(); err != nil {
				logger.Warn().Err(err).Msg("Failed to remove PID file")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := serve(ctx, cfg); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("Error in main loop")
		} else {
			logger.Error().Err(err).Msg("Error in main loop")
		}
		return 1
	}

	logger.Info().Msg("Exiting...")
	return 0
}

func serve(ctx context.Context, cfg *config.Config) error {
	collector, err := metrics.NewService(cfg.Metrics)
	if err != nil {
		return err
	}

	src, err := lineio.Open(cfg.Input)
	if err != nil {
		return err
	}
	defer src.Close()
	logger.Info().Str("input", src.Name()).Msg("Input stream opened")

	pub, err := publish.Open(ctx, publish.Config{
		Kind: cfg.Publisher,
		MQTT: publish.MQTTConfig{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		},
		NATS: publish.NATSConfig{URL: cfg.NATS.URL},
		Out:  os.Stdout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close publisher")
		}
	}()

	adapter := publish.NewAdapter(pub, publish.Options{
		TopicPrefix: cfg.MQTT.TopicPrefix,
		SingleTopic: cfg.MQTT.SingleTopic,
		Retain:      cfg.MQTT.Retain,
	})

	proc, err := processor.New(processor.Options{
		Window:     cfg.Window,
		Timeout:    cfg.Timeout,
		Thresholds: window.NewThresholds(cfg.DeltaThresholds),
		Throttle:   processor.DefaultThrottle,
		Idle:       processor.DefaultIdle,
	}, adapter, collector)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return collector.Serve(gctx)
	})
	lines := src.Lines(gctx)
	g.Go(func() error {
		// a timeout ends the run, which also stops the metrics server
		defer cancel()
		return proc.Run(gctx, lines)
	})
	g.Go(func() error {
		// end of input leaves the run to the timeout, a read error stops it
		return src.Wait(gctx)
	})

	if err := g.Wait(); err != nil {
		if errors.CodeOf(err) == errors.ErrInternal {
			return errors.New().Wrap(errors.ErrMainLoop, err)
		}
		return err
	}
	return nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
