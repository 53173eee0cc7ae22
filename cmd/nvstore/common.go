package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/nvstore"
	"github.com/outofforest/nvstore/config"
	"github.com/outofforest/nvstore/pagedio"
	"github.com/outofforest/nvstore/pkg/filedev"
	"github.com/outofforest/nvstore/pkg/modbusdev"
)

func newLogger() *zap.Logger {
	var log *zap.Logger
	var err error
	if *verbose {
		log, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		log, err = cfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func openDevice(cfg config.Config) (pagedio.Dev, error) {
	if m := cfg.Device.Modbus; m.Endpoint != "" {
		return modbusdev.Dial(modbusdev.Config{
			Endpoint:     m.Endpoint,
			UnitID:       m.UnitID,
			Timeout:      time.Duration(m.TimeoutMs) * time.Millisecond,
			BaseRegister: m.BaseRegister,
			Size:         m.Size,
			PageSize:     cfg.Device.PageSize,
		})
	}
	if cfg.Device.Image == "" {
		return nil, errors.New("neither image nor modbus endpoint is configured")
	}
	return filedev.Open(cfg.Device.Image, cfg.Device.PageSize)
}

// withEngine opens the engine, runs fn and closes the engine.
func withEngine(fn func(e *nvstore.Engine) error) subcommands.ExitStatus {
	log := newLogger()
	defer func() {
		_ = log.Sync()
	}()

	if err := runEngine(log, fn); err != nil {
		log.Error("Command failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func runEngine(log *zap.Logger, fn func(e *nvstore.Engine) error) (retErr error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dev, err := openDevice(cfg)
	if err != nil {
		return err
	}

	e, err := nvstore.Open(dev, cfg, nvstore.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	return fn(e)
}

// parseValue parses a 6-byte record value written as hex, optionally separated by colons.
func parseValue(s string) ([6]byte, error) {
	var v [6]byte
	raw, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil {
		return v, errors.Wrapf(err, "invalid value %q", s)
	}
	if len(raw) != len(v) {
		return v, errors.Errorf("value %q must have %d bytes", s, len(v))
	}
	copy(v[:], raw)
	return v, nil
}

func formatValue(v [6]byte) string {
	parts := make([]string, 0, len(v))
	for _, b := range v {
		parts = append(parts, fmt.Sprintf("%02X", b))
	}
	return strings.Join(parts, ":")
}
