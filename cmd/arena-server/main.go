// Main package for the authoritative arena game server
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sessamekesh/arena-netcode/internal/config"
	"github.com/sessamekesh/arena-netcode/internal/logging"
	"github.com/sessamekesh/arena-netcode/pkg/game"
	"github.com/sessamekesh/arena-netcode/pkg/server"
	"github.com/sessamekesh/arena-netcode/pkg/spectator"
	"github.com/sessamekesh/arena-netcode/pkg/transport"
	"go.uber.org/zap"
)

func main() {
	cfg, cfgErr := config.Load("arena-server", os.Args[1:])
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", cfgErr)
		os.Exit(2)
	}

	logger, logErr := logging.New(logging.Params{
		Production: cfg.IsProduction(),
		FilePath:   cfg.LogFile,
	})
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", logErr)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The socket outlives ctx so the server can send its final DISCONNECTs.
	socket, socketErr := transport.ListenUdp(context.Background(), transport.UdpSocketParams{
		Host:   cfg.Host,
		Port:   cfg.Port,
		Logger: logger,
	})
	if socketErr != nil {
		logger.Error("Failed to bind game socket", zap.Error(socketErr))
		return
	}
	defer socket.Close()

	var gameServer *server.Server
	var hub *spectator.Hub
	serverParams := server.ServerParams{
		MaxClients:        cfg.MaxClients,
		TickRate:          cfg.TickRate,
		TargetFps:         cfg.TargetFps,
		DisconnectTimeout: cfg.DisconnectTimeout,
		Logger:            logger,
	}
	if cfg.SpectatorAddr != "" {
		hub = spectator.CreateHub(spectator.HubParams{
			ListenAddress: cfg.SpectatorAddr,
			AllowAllHosts: true,
			Metrics: func() map[string]any {
				return gameServer.Metrics().Snapshot()
			},
			Logger: logger,
		})
		serverParams.OnSnapshot = hub.OnSnapshot
	}

	world := game.NewWorld(game.DefaultParams())
	gameServer = server.CreateServer(socket, world, serverParams)

	wg := sync.WaitGroup{}

	if hub != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hub.Start(ctx); err != nil {
				logger.Error("Spectator server stopped", zap.Error(err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Arena server listening", zap.String("addr", socket.LocalAddr().String()), zap.Int("maxClients", cfg.MaxClients))
		if err := gameServer.Run(ctx); err != nil {
			logger.Error("Game server stopped", zap.Error(err))
		}
		stop()
	}()

	wg.Wait()
	logger.Info("Arena server shut down", zap.Any("metrics", gameServer.Metrics().Snapshot()))
}
