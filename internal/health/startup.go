// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/cuepoint/internal/config"
	"github.com/ManuGH/cuepoint/internal/log"
)

// PerformStartupChecks validates the environment before anything is opened.
// Problems the daemon can run with are logged as warnings.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Debug().Msg("running pre-flight startup checks")

	if err := checkListenAddr(cfg.Server.ListenAddr); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := checkOutputDirs(logger, cfg); err != nil {
		return fmt.Errorf("output directory check failed: %w", err)
	}
	if err := checkStorePath(cfg.Store); err != nil {
		return fmt.Errorf("store path check failed: %w", err)
	}
	checkEncoderBinary(logger, cfg.FFmpeg.Bin)

	if strings.EqualFold(cfg.Store.Backend, "memory") {
		logger.Warn().
			Str("store_backend", cfg.Store.Backend).
			Msg("in-memory store; ad breaks and sessions are not persistent across restarts")
	}

	logger.Info().Msg("startup checks passed")
	return nil
}

func checkListenAddr(addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	return nil
}

// checkOutputDirs fails on directories that exist but cannot be written.
func checkOutputDirs(logger zerolog.Logger, cfg config.AppConfig) error {
	dirs := []string{cfg.FFmpeg.OutputDir}
	for _, s := range cfg.Streams {
		dirs = append(dirs, s.OutputDir)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		err := checkWritableDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug().Str(log.FieldPath, dir).Msg("output directory will be created on first session")
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func checkStorePath(sc config.StoreConfig) error {
	if !strings.EqualFold(sc.Backend, "sqlite") || sc.Path == "" {
		return nil
	}
	info, err := os.Stat(sc.Path)
	if err == nil && info.IsDir() {
		return fmt.Errorf("database path is a directory: %s", sc.Path)
	}
	dir := filepath.Dir(sc.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}

func checkEncoderBinary(logger zerolog.Logger, bin string) {
	if bin == "" {
		bin = "ffmpeg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		logger.Warn().Err(err).Str("ffmpeg", bin).Msg("encoder binary not found; encoding sessions will fail to start")
		return
	}
	logger.Debug().Str("ffmpeg", path).Msg("encoder binary available")
}
