//go:build !windows

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tanq16/sdm/internal/scheduler"
	"github.com/tanq16/sdm/internal/utils"
)

// watchPauseSignal toggles pause-all / resume-all on SIGUSR1 and re-reads
// the speed limits from the settings file on SIGHUP.
func watchPauseSignal(ctx context.Context, reg *scheduler.Registry) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGHUP)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				if sig == syscall.SIGHUP {
					reloadLimits(reg)
					continue
				}
				paused := reg.TogglePauseAll()
				compLog := utils.GetLogger("cmd")
				compLog.Info().Bool("paused", paused).Msg("pause toggled by signal")
			}
		}
	}()
}

func reloadLimits(reg *scheduler.Registry) {
	fresh, err := utils.LoadSettings(configPath)
	if err != nil {
		compLog := utils.GetLogger("cmd")
		compLog.Warn().Err(err).Msg("settings reload failed")
		return
	}
	reg.SetSpeedLimit(int64(fresh.SpeedLimit))
	reg.SetGlobalLimit(int64(fresh.GlobalLimit))
}
