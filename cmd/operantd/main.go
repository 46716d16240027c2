// Command operantd is the host process: it loads settings.json, starts
// the Chamber Supervisor, watches for device hot-plug, and serves the
// SupervisorControl RPC surface. It loads config via viper, wires the
// control object, launches the ticker and RPC listener goroutines, then
// blocks on an interrupt signal for graceful shutdown.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/multiverse-labs/operant/internal/config"
	"github.com/multiverse-labs/operant/internal/logging"
	"github.com/multiverse-labs/operant/internal/rpcapi"
	"github.com/multiverse-labs/operant/internal/supervisor"
)

func main() {
	debug := pflag.BoolP("debug", "d", false, "enable verbose logging")
	configPath := pflag.String("config", "settings.json", "path to host settings.json")
	pflag.Parse()

	log := logging.New(*debug, os.Stderr)

	v := viper.New()
	v.SetConfigFile(*configPath)
	if err := v.ReadInConfig(); err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("read host settings")
	}

	settings, err := config.Load(v)
	if err != nil {
		log.Fatal().Err(err).Msg("load host settings")
	}

	snapshots := config.NewSnapshotStore(filepath.Join(filepath.Dir(*configPath), "settings_snapshot.json"))
	sup := supervisor.New(settings, snapshots, log, *configPath)

	if err := sup.Recover(); err != nil {
		log.Error().Err(err).Msg("power-loss recovery")
	}

	control := rpcapi.NewSupervisorControl(sup, log)
	if err := rpcapi.Serve(control, settings.RPCPort, log); err != nil {
		log.Fatal().Err(err).Msg("start rpc server")
	}

	if watcher, err := supervisor.WatchDevices(sup, "/dev", log); err != nil {
		log.Warn().Err(err).Msg("device hot-plug watcher unavailable")
	} else {
		defer watcher.Close()
	}

	// Each chamber gates sleep/wake on its own subject's light schedule,
	// loaded from its ShapingConfig at Start; Supervisor.Tick reads it per-chamber.
	stop := make(chan struct{})
	go sup.Run(stop, true)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	close(stop)

	if err := sup.Shutdown(); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
		os.Exit(1)
	}
}
