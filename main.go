package main

import (
	"os"
	"os/signal"
	"syscall"

	. "github.com/jbialy/tally_controller/util"

	"github.com/jbialy/tally_controller/tally"
)

var manager *tally.Manager

func main() {
	os.Exit(run())
}

func run() int {
	LogInit("trace")
	SetupConfig()
	LogInit(Config.GetString("log_level"))
	RegisterNewConfigListener(func() { LogInit(Config.GetString("log_level")) })

	manager = tally.NewManager()
	essential, err := BuildManager(manager)
	if err != nil {
		Logger.Error().Msgf("Error building devices: %v", err)
		return 1
	}
	RegisterNewConfigListener(func() { RefreshBindings(manager) })

	manager.OnUpdate(func(st tally.State) {
		wsHub.BroadcastUpdate("state", st)
	})

	monitor := NewMonitorServer()
	monitor.AddHandler("/ws", ServeWebSocket)
	monitor.AddHandler("/api/status", APISystemStatus)
	monitor.AddHandler("/api/states", APIStates)
	monitor.AddHandler("/api/bindings", APIBindings)
	if err := monitor.Start(); err != nil {
		Logger.Error().Msgf("Error starting monitor server: %v", err)
	}
	RegisterNewConfigListener(func() { monitor.Restart() })

	if err := manager.Start(); err != nil {
		Logger.Error().Msgf("Error starting devices: %v", err)
	}
	if failed := essentialFailures(essential); len(failed) > 0 {
		Logger.Error().Msgf("Essential outputs failed to open: %v", failed)
		if err := manager.Stop(); err != nil {
			Logger.Error().Msgf("Error stopping devices: %v", err)
		}
		monitor.Shutdown()
		return 1
	}
	Logger.Info().Msg("ready")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	sig := <-signals
	Logger.Info().Msgf("Received %s, shutting down", sig)

	if err := manager.Stop(); err != nil {
		Logger.Error().Msgf("Error stopping devices: %v", err)
	}
	monitor.Shutdown()
	return 0
}

// essentialFailures lists essential outputs that did not come up.
func essentialFailures(essential map[string]bool) []string {
	var failed []string
	for _, item := range manager.Outputs().Items() {
		if essential[item.Name()] && !item.Running() {
			failed = append(failed, item.Name())
		}
	}
	return failed
}
