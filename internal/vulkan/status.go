package vulkan

import (
	"log/slog"
	"time"

	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/vkrender/internal/render"
)

// checkResult folds the swapchain result codes into a render.Status. Any other
// failure is returned unchanged.
func checkResult(res common.VkResult, err error) (render.Status, error) {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return render.StatusOutOfDate, nil
	case khr_swapchain.VKSuboptimal:
		return render.StatusSuboptimal, nil
	}
	if err != nil {
		return render.StatusSuccess, err
	}
	return render.StatusSuccess, nil
}

// waitTimeout converts the loop's convention (zero waits forever) into the
// driver's.
func waitTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return common.NoTimeout
	}
	return timeout
}

func timedOut(res common.VkResult) bool {
	return res == core1_0.VKTimeout
}

// debugLevel maps a validation message severity onto a log level.
func debugLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	case severity&ext_debug_utils.SeverityInfo != 0:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
