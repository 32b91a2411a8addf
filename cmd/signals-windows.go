//go:build windows

package cmd

import (
	"context"

	"github.com/tanq16/sdm/internal/scheduler"
	"github.com/tanq16/sdm/internal/utils"
)

// Windows has no user signals; pausing is only available through the API.
func watchPauseSignal(ctx context.Context, reg *scheduler.Registry) {
	compLog := utils.GetLogger("cmd")
	compLog.Debug().Msg("pause signal unavailable on windows")
}
