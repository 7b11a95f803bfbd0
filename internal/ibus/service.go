package ibus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// ErrNameTaken is returned when another process owns the engine bus name.
var ErrNameTaken = errors.New("ibus: bus name already taken")

// ServiceConfig configures Start.
type ServiceConfig struct {
	// Address of the IBus bus. Empty means the session bus.
	Address string
	BusName string
	Factory FactoryOptions
	Logger  *slog.Logger
}

// Service owns the bus connection and the exported factory.
type Service struct {
	conn    *dbus.Conn
	factory *Factory
	busName string
	log     *slog.Logger
}

// Start connects to IBus, exports the factory and claims the bus name.
func Start(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	if cfg.BusName == "" {
		cfg.BusName = DefaultBusName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Factory.Logger == nil {
		cfg.Factory.Logger = cfg.Logger
	}

	conn, err := Connect(cfg.Address)
	if err != nil {
		return nil, err
	}

	factory := NewFactory(ctx, conn, cfg.Factory)
	if err := conn.Export(factory, FactoryPath, FactoryInterface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("export factory: %w", err)
	}

	reply, err := conn.RequestName(cfg.BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request bus name %s: %w", cfg.BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, cfg.BusName)
	}

	cfg.Logger.Info("ibus engine service started",
		"bus_name", cfg.BusName,
		"engine", factory.opts.EngineName,
		"address", cfg.Address,
	)
	return &Service{conn: conn, factory: factory, busName: cfg.BusName, log: cfg.Logger}, nil
}

// Factory returns the exported factory.
func (s *Service) Factory() *Factory {
	return s.factory
}

// Ping checks that the bus daemon still answers.
func (s *Service) Ping(ctx context.Context) error {
	if !s.conn.Connected() {
		return errors.New("ibus: bus connection closed")
	}
	return s.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.Peer.Ping", 0).Err
}

// Done is closed when the bus connection is lost, as when ibus-daemon
// exits.
func (s *Service) Done() <-chan struct{} {
	return s.conn.Context().Done()
}

// Close flushes every engine, releases the bus name and disconnects.
func (s *Service) Close() error {
	s.factory.Close()
	if _, err := s.conn.ReleaseName(s.busName); err != nil {
		s.log.Debug("release bus name", "error", err)
	}
	return s.conn.Close()
}
