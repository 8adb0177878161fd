package tray

import (
	"fmt"
	"log"

	"github.com/getlantern/systray"
	"github.com/vnvoice-dev/govoxsync/src/internal/poller"
	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

// Run blocks on the system tray loop. The tray is the engine's only
// built-in UI surface: a status tooltip plus manual check and quit
// actions. onQuit is called after the tray loop exits.
func Run(sched *poller.Scheduler, onQuit func()) {
	systray.Run(func() { onReady(sched) }, onQuit)
}

// Quit asks the tray loop to exit.
func Quit() {
	systray.Quit()
}

// SetStatus updates the tray tooltip with the latest engine event.
func SetStatus(ev models.Event) {
	switch {
	case ev.Severe:
		systray.SetTooltip(fmt.Sprintf("VoxSync: update failed, manual repair needed (%s)", ev.Kind))
	case ev.Err != nil:
		systray.SetTooltip(fmt.Sprintf("VoxSync: %s check failed, will retry", ev.Kind))
	case ev.Phase == models.PhaseIdle:
		systray.SetTooltip(fmt.Sprintf("VoxSync: %s %s", ev.Kind, ev.Message))
	default:
		systray.SetTooltip(fmt.Sprintf("VoxSync: %s %s", ev.Kind, ev.Phase))
	}
}

func onReady(sched *poller.Scheduler) {
	systray.SetTitle("VoxSync")
	systray.SetTooltip("VoxSync: idle")

	checkApp := systray.AddMenuItem("Check for App Updates", "Check the release feed now")
	checkModels := systray.AddMenuItem("Check for Model Updates", "Check the model manifest now")
	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Stop the update engine")

	go func() {
		for {
			select {
			case <-checkApp.ClickedCh:
				if !sched.CheckNow(models.KindApplication) {
					log.Printf("[Tray] app check skipped, job already running")
				}
			case <-checkModels.ClickedCh:
				if !sched.CheckNow(models.KindModelSet) {
					log.Printf("[Tray] model check skipped, job already running")
				}
			case <-quit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}
