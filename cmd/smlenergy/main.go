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
	"time"

	"codeberg.org/mutker/smlmqttprocessor/internal/config"
	"codeberg.org/mutker/smlmqttprocessor/internal/energy"
	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
	"codeberg.org/mutker/smlmqttprocessor/internal/publish"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/pflag"
)

const subscribeWait = 10 * time.Second

func main() {
	// results are retained unless configured otherwise
	cfg, err := config.Load(os.Args[1:], config.WithDefault("mqtt.retain", true))
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel.Level(), logger.IsService())
	logger.Debug().Object("config", cfg).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := loop(ctx, cfg); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("Error in main loop")
		}
		logger.Fatal().Err(err).Msg("Error in main loop")
	}
	logger.Info().Msg("Exiting...")
}

func loop(ctx context.Context, cfg *config.Config) error {
	mqttCfg := publish.MQTTConfig{
		Host:     cfg.MQTT.Host,
		Port:     cfg.MQTT.Port,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}

	var (
		pub     *publish.MQTTPublisher
		monitor *energy.Monitor
	)

	onMessage := func(client mqtt.Client, msg mqtt.Message) {
		retained, err := monitor.Handle(ctx, msg.Topic(), msg.Payload())
		if err != nil {
			logger.Error().Err(err).Str("topic", msg.Topic()).Msg("Failed to handle message")
			return
		}
		if retained {
			// offsets are only needed once
			client.Unsubscribe(msg.Topic())
		}
	}

	opts := publish.NewMQTTClientOptions(mqttCfg).
		SetOrderMatters(false).
		SetOnConnectHandler(func(client mqtt.Client) {
			logger.Info().Str("broker", mqttCfg.Broker()).Msg("MQTT connected")
			for _, topic := range monitor.Subscriptions() {
				token := client.Subscribe(topic, 0, onMessage)
				if token.WaitTimeout(subscribeWait) && token.Error() != nil {
					logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe")
				}
			}
		})

	pub = publish.NewMQTTPublisherWithClient(mqtt.NewClient(opts), mqttCfg)
	monitor = energy.NewMonitor(pub, energy.Options{
		Topics: energy.DefaultTopics(cfg.MQTT.TopicPrefix),
		Retain: cfg.MQTT.Retain,
	})

	if err := pub.Connect(ctx); err != nil {
		return err
	}
	defer pub.Close()

	<-ctx.Done()
	return nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
