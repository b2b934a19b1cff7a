package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/config"
	"github.com/dokzlo13/huestrip/internal/sink"
)

// BuildSinks creates the configured frame sinks, in configuration order.
func BuildSinks(cfg *config.Config) (*sink.Multi, error) {
	var sinks []sink.Sink

	for _, t := range cfg.Sink.Types {
		switch t {
		case config.SinkRGBD:
			c := cfg.Sink.RGBD
			s, err := sink.NewRGBD(sink.RGBDConfig{
				URL:        c.URL,
				EngineIO:   c.EngineIO,
				MinBackoff: c.MinRetryBackoff.Duration(),
				MaxBackoff: c.MaxRetryBackoff.Duration(),
				Multiplier: c.RetryMultiplier,
			})
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)

		case config.SinkMQTT:
			c := cfg.Sink.MQTT
			sinks = append(sinks, sink.NewMQTT(sink.MQTTConfig{
				Broker:   c.Broker,
				Topic:    c.Topic,
				ClientID: c.ClientID,
				User:     c.User,
				Password: c.Password,
				Retained: c.Retained,
			}))

		case config.SinkRedis:
			c := cfg.Sink.Redis
			sinks = append(sinks, sink.NewRedis(sink.RedisConfig{
				Addr:     c.Addr,
				Password: c.Password,
				DB:       c.DB,
				Channel:  c.Channel,
			}))

		case config.SinkSPI:
			s, err := sink.NewSPI(cfg.Sink.SPI.Port, cfg.Strip.Pixels, cfg.Sink.SPI.FreqKHz)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, s)

		case config.SinkConsole:
			sinks = append(sinks, sink.NewConsole(cfg.Strip.Pixels, cfg.Sink.Console.FPS))

		default:
			return nil, fmt.Errorf("unknown sink type %q", t)
		}

		log.Debug().Str("sink", t).Msg("Sink configured")
	}

	if len(sinks) == 0 {
		return nil, fmt.Errorf("no sinks configured")
	}
	return sink.NewMulti(sinks...), nil
}
