// Package main runs the motion gateway server: a motion library with
// optional hot-reload, the playback controller, and the HTTP/WebSocket
// gateway in front of them.
package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/motionref/gateway"
	"go.viam.com/motionref/motionclip"
	"go.viam.com/motionref/playback"
)

var logger = golog.NewDevelopmentLogger("motion_server")

func main() {
	utils.ContextualMain(runServer, logger)
}

// Arguments for the command.
type Arguments struct {
	ConfigFile string            `flag:"0,required,usage=server config file"`
	Port       utils.NetPortFlag `flag:"port,usage=override gateway listen port"`
	Debug      bool              `flag:"debug"`
}

// AppConfig is the top level config file layout. The initial clips must
// include a "default" clip or startup aborts.
type AppConfig struct {
	Playback     *playback.Config              `json:"playback"`
	Gateway      *gateway.Config               `json:"gateway"`
	ClipsDir     string                        `json:"clips_dir"`
	InitialClips map[string]motionclip.RawClip `json:"initial_clips"`
}

func readConfig(path string) (*AppConfig, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg AppConfig
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config file %q", path)
	}
	if cfg.Playback == nil {
		cfg.Playback = &playback.Config{}
	}
	if cfg.Gateway == nil {
		cfg.Gateway = &gateway.Config{}
	}
	if err := cfg.Playback.Validate("playback"); err != nil {
		return nil, err
	}
	if err := cfg.Gateway.Validate("gateway"); err != nil {
		return nil, err
	}
	if len(cfg.InitialClips) == 0 && cfg.ClipsDir == "" {
		return nil, errors.New("config needs initial_clips or clips_dir")
	}
	return &cfg, nil
}

// mergeClipsDir folds *.json clip files into the initial clip set.
// Clips named explicitly in the config win over files of the same name.
func mergeClipsDir(dir string, into map[string]motionclip.RawClip, logger golog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "cannot list clip directory %q", dir)
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		buf, err := os.ReadFile(path)
		if err != nil {
			logger.Warnw("cannot read clip file, skipping", "path", path, "error", err)
			continue
		}
		var raw motionclip.RawClip
		if err := json.Unmarshal(buf, &raw); err != nil {
			logger.Warnw("clip file is not valid JSON, skipping", "path", path, "error", err)
			continue
		}
		name := raw.Name
		if name == "" {
			name = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		if _, ok := into[name]; !ok {
			into[name] = raw
		}
	}
	return nil
}

func runServer(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg, err := readConfig(argsParsed.ConfigFile)
	if err != nil {
		return err
	}
	if argsParsed.Port != 0 {
		cfg.Gateway.Port = int(argsParsed.Port)
	}

	initial := make(map[string]motionclip.RawClip, len(cfg.InitialClips))
	for name, rc := range cfg.InitialClips {
		initial[name] = rc
	}
	if cfg.ClipsDir != "" {
		if err := mergeClipsDir(cfg.ClipsDir, initial, logger); err != nil {
			return err
		}
	}

	lib, err := motionclip.NewLibrary(initial, len(cfg.Playback.DatasetJointNames), logger)
	if err != nil {
		return err
	}

	if cfg.ClipsDir != "" {
		watcher, err := motionclip.NewWatcher(ctx, lib, cfg.ClipsDir, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Errorw("error closing clip watcher", "error", err)
			}
		}()
	}

	ctrl, err := playback.NewController(cfg.Playback, lib, logger)
	if err != nil {
		return err
	}

	gen := gateway.NewGenerationClient(cfg.Gateway)
	srv := gateway.NewServer(ctx, cfg.Gateway, gen, lib, ctrl, cfg.Playback, logger)

	errCh := make(chan error, 1)
	utils.PanicCapturingGo(func() {
		errCh <- srv.Start()
	})
	logger.Infow("motion gateway serving",
		"host", cfg.Gateway.Host,
		"port", cfg.Gateway.Port,
		"motions", len(lib.AvailableMotions()),
	)

	select {
	case <-ctx.Done():
		return srv.Shutdown()
	case err := <-errCh:
		return err
	}
}
