package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/npezzotti/ride-relay/internal/api"
	"github.com/npezzotti/ride-relay/internal/config"
	"github.com/npezzotti/ride-relay/internal/server"
	"github.com/npezzotti/ride-relay/internal/stats"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath     string
	addr           string
	allowedOrigins []string
	sendBuffer     int
	maxMessageSize int64
	pongWait       time.Duration
	writeWait      time.Duration
	connIdFormat   string
)

func main() {
	defaults := config.Default()

	flags := pflag.NewFlagSet("ride-relay", pflag.ExitOnError)
	flags.StringVar(&configPath, "config", "", "path to a YAML config file; flags override its values")
	flags.StringVar(&addr, "addr", defaults.ServerAddr, "server address")
	flags.StringSliceVar(&allowedOrigins, "allowed-origins", nil, "comma-separated list of allowed browser origins, * for any")
	flags.IntVar(&sendBuffer, "send-buffer", defaults.SendBufferSize, "outbound messages queued per connection before it is dropped")
	flags.Int64Var(&maxMessageSize, "max-message-size", defaults.MaxMessageSize, "largest inbound frame in bytes")
	flags.DurationVar(&pongWait, "pong-wait", defaults.PongWait, "time allowed between pongs before a peer is considered gone")
	flags.DurationVar(&writeWait, "write-wait", defaults.WriteWait, "time allowed to write a frame to a peer")
	flags.StringVar(&connIdFormat, "conn-id", defaults.ConnIdFormat, "connection id format: short or uuid")
	flags.Parse(os.Args[1:])

	logger := log.New(os.Stderr, "[ride-relay] ", log.LstdFlags)

	cfg, err := loadConfig(flags)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	relay := server.NewRelay(logger, statsUpdater)

	srv, err := api.NewRelayApp(mux, logger, relay, cfg)
	if err != nil {
		logger.Fatal("new relay app: ", err)
	}

	statsUpdater.Run()
	go relay.Run()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalln("server:", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"relay": func(ctx context.Context) error {
				if err := srv.Shutdown(ctx); err != nil {
					return err
				}

				logger.Println("shutting down relay...")
				if err := relay.Shutdown(ctx); err != nil {
					return err
				}

				statsUpdater.Stop()
				return nil
			},
		},
	)

	exitCode := <-wait
	if exitCode != 0 {
		logger.Printf("shutdown completed with exit code %d", exitCode)
		os.Exit(exitCode)
	}

	logger.Println("shutdown complete")
}

func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		if err := config.LoadFile(configPath, cfg); err != nil {
			return nil, err
		}
	}

	if flags.Changed("addr") {
		cfg.ServerAddr = addr
	}
	if flags.Changed("allowed-origins") {
		cfg.AllowedOrigins = allowedOrigins
	}
	if flags.Changed("send-buffer") {
		cfg.SendBufferSize = sendBuffer
	}
	if flags.Changed("max-message-size") {
		cfg.MaxMessageSize = maxMessageSize
	}
	if flags.Changed("pong-wait") {
		cfg.PongWait = pongWait
	}
	if flags.Changed("write-wait") {
		cfg.WriteWait = writeWait
	}
	if flags.Changed("conn-id") {
		cfg.ConnIdFormat = connIdFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
