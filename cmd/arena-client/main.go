// Headless arena client. Connects, flies around at random and reports round
// trip time, which makes it handy for load and soak testing a server.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sessamekesh/arena-netcode/internal/config"
	"github.com/sessamekesh/arena-netcode/internal/logging"
	"github.com/sessamekesh/arena-netcode/pkg/client"
	"github.com/sessamekesh/arena-netcode/pkg/game"
	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"github.com/sessamekesh/arena-netcode/pkg/session"
	"github.com/sessamekesh/arena-netcode/pkg/transport"
	"go.uber.org/zap"
)

const frameRate = 60

func main() {
	cfg, cfgErr := config.Load("arena-client", os.Args[1:])
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

	serverAddr, resolveErr := net.ResolveUDPAddr("udp", cfg.ServerAddr)
	if resolveErr != nil {
		logger.Error("Failed to resolve server address", zap.String("server", cfg.ServerAddr), zap.Error(resolveErr))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	socket, socketErr := transport.ListenUdp(context.Background(), transport.UdpSocketParams{Logger: logger})
	if socketErr != nil {
		logger.Error("Failed to open client socket", zap.Error(socketErr))
		return
	}
	defer socket.Close()

	bot := client.CreateClient(socket, client.ClientParams{
		ServerAddr:        netip.AddrPortFrom(serverAddr.AddrPort().Addr().Unmap(), serverAddr.AddrPort().Port()),
		TickRate:          cfg.TickRate,
		InputsPerPacket:   cfg.InputsPerPacket,
		PingPeriod:        cfg.PingPeriod,
		DisconnectTimeout: cfg.DisconnectTimeout,
		Handshake: session.RetryPolicy{
			Interval:    cfg.HandshakeTimeout,
			MaxAttempts: cfg.HandshakeAttempts,
		},
		Predictor: game.NewWorld(game.DefaultParams()),
		Logger:    logger,
	})

	if err := connect(ctx, bot, logger); err != nil {
		logger.Error("Failed to connect", zap.Error(err))
		return
	}
	defer func() {
		if err := bot.Disconnect(); err != nil {
			logger.Warn("Failed to send disconnect", zap.Error(err))
		}
	}()

	fly(ctx, bot, logger)
}

func connect(ctx context.Context, bot *client.Client, logger *zap.Logger) error {
	if err := bot.Connect(time.Now()); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second / frameRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			switch result := bot.PollConnect(now); result {
			case client.ConnectResult_Accepted:
				logger.Info("Joined arena", zap.Uint8("clientId", bot.Id()))
				return nil
			case client.ConnectResult_Rejected:
				return bot.Rejection()
			case client.ConnectResult_GaveUp, client.ConnectResult_InvalidSalt:
				return fmt.Errorf("handshake failed: %s", result)
			}
		}
	}
}

func fly(ctx context.Context, bot *client.Client, logger *zap.Logger) {
	gen := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(time.Second / frameRate)
	defer ticker.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	actions := uint32(0)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-report.C:
			fields := []zap.Field{
				zap.Int64("rttMs", bot.RTT().Milliseconds()),
				zap.Stringer("status", bot.GameStatus()),
				zap.Int("remotePlayers", len(bot.RemotePlayers())),
			}
			if me, ok := bot.LocalPlayer(); ok {
				fields = append(fields, zap.Float32("x", me.Pos.X), zap.Float32("y", me.Pos.Y), zap.Float32("hp", me.Hp))
			}
			logger.Info("Bot status", fields...)
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now

			// Change course now and then rather than every frame.
			if gen.Intn(20) == 0 {
				actions = randomActions(gen)
			}
			if err := bot.AddInput(packet.InputRecord{DeltaTime: dt, Actions: actions}); err != nil {
				logger.Warn("Failed to send input", zap.Error(err))
			}
			if err := bot.Update(now, dt); err != nil {
				logger.Warn("Client update failed", zap.Error(err))
			}
			if !bot.Connected() {
				logger.Warn("Lost connection to server")
				return
			}
		}
	}
}

func randomActions(gen *rand.Rand) uint32 {
	var a uint32
	if gen.Intn(3) > 0 {
		a |= game.Action_Forward
	}
	switch gen.Intn(3) {
	case 0:
		a |= game.Action_Left
	case 1:
		a |= game.Action_Right
	}
	if gen.Intn(4) == 0 {
		a |= game.Action_Shoot
	}
	if gen.Intn(10) == 0 {
		a |= game.Action_Shield
	}
	return a
}
