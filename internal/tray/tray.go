// Package tray provides the system tray interface for SecureStudio,
// including the always-visible panic control.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(running bool)
	onPanic    func(engaged bool)
	onSettings func()
	onQuit     func()
	running    bool
	panicked   bool
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuPanic  *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a new Tray instance. The pipeline is shown as running by
// default.
func New() *Tray {
	return &Tray{
		running: true,
	}
}

// OnToggle sets the callback for starting and stopping the pipeline.
func (t *Tray) OnToggle(fn func(running bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnPanic sets the callback for the panic override.
func (t *Tray) OnPanic(fn func(engaged bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPanic = fn
}

// OnSettings sets the callback for the settings menu item.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback for the quit menu item.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("SecureStudio")
	systray.SetTooltip("SecureStudio Privacy Camera")

	t.menuPanic = systray.AddMenuItem("PANIC: black out video", "Immediately replace all output with black frames")
	systray.AddSeparator()

	t.menuToggle = systray.AddMenuItem("● Running", "Start or stop the privacy pipeline")
	t.menuStatus = systray.AddMenuItem("0 regions obscured", "Currently obscured regions")
	t.menuStatus.Disable()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit SecureStudio")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuPanic.ClickedCh:
				t.handlePanic()
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {
}

// handlePanic flips the panic override.
func (t *Tray) handlePanic() {
	t.mu.Lock()
	t.panicked = !t.panicked
	engaged := t.panicked

	if engaged {
		t.menuPanic.SetTitle("PANIC ACTIVE: click to restore video")
	} else {
		t.menuPanic.SetTitle("PANIC: black out video")
	}

	callback := t.onPanic
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(engaged)
	}
}

// handleToggle handles the start/stop menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.running = !t.running
	running := t.running

	if running {
		t.menuToggle.SetTitle("● Running")
	} else {
		t.menuToggle.SetTitle("○ Stopped")
	}

	callback := t.onToggle
	t.mu.Unlock()

	if callback != nil {
		callback(running)
	}
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetRegionCount updates the obscured-region display in the menu.
func (t *Tray) SetRegionCount(n int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuStatus != nil {
		t.menuStatus.SetTitle(fmt.Sprintf("%d regions obscured", n))
	}
}

// SetPanic reflects an externally toggled panic state, for example
// from the HTTP API, in the menu.
func (t *Tray) SetPanic(engaged bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.panicked == engaged {
		return
	}
	t.panicked = engaged
	if t.menuPanic == nil {
		return
	}
	if engaged {
		t.menuPanic.SetTitle("PANIC ACTIVE: click to restore video")
	} else {
		t.menuPanic.SetTitle("PANIC: black out video")
	}
}

// IsPanicked returns the current panic state.
func (t *Tray) IsPanicked() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.panicked
}

// IsRunning returns whether the pipeline is shown as running.
func (t *Tray) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}
