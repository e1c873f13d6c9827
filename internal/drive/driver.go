// Package drive attaches the agent to a remote browser session over the
// debugging protocol and wires download events into the capture recorder.
package drive

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/italolelis/fetchpilot/internal/agent"
	"github.com/italolelis/fetchpilot/internal/browserhub"
	"github.com/italolelis/fetchpilot/internal/capture"
	"github.com/italolelis/fetchpilot/internal/logctx"
)

// Options shape how the driver sets up the remote browser.
type Options struct {
	Stealth           bool
	ViewportWidth     int
	ViewportHeight    int
	RemoteDownloadDir string
}

// Driver holds the state of one attached session. It is single-use: create a
// fresh driver per run.
type Driver struct {
	agent   *agent.Driver
	locator *agent.Locator
	opts    Options

	browser  *rod.Browser
	page     *rod.Page
	recorder *capture.Recorder
}

func NewDriver(agentDriver *agent.Driver, locator *agent.Locator, opts Options) *Driver {
	return &Driver{
		agent:   agentDriver,
		locator: locator,
		opts:    opts,
	}
}

// Attach connects to the session's browser, arms the download recorder and
// opens the working page. The recorder is armed before the page exists, so
// no agent action can race a download past it.
func (d *Driver) Attach(ctx context.Context, sess *browserhub.Session) error {
	logger := logctx.LoggerFromContext(ctx)

	browser := rod.New().ControlURL(sess.ConnectURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to session browser: %w", err)
	}

	d.browser = browser
	d.recorder = capture.NewRecorder()

	go browser.EachEvent(
		func(e *proto.BrowserDownloadWillBegin) {
			d.recorder.HandleWillBegin(e)
		},
		func(e *proto.BrowserDownloadProgress) bool {
			return d.recorder.HandleProgress(e)
		},
	)()

	err := proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath:  d.opts.RemoteDownloadDir,
		EventsEnabled: true,
	}.Call(browser)
	if err != nil {
		return fmt.Errorf("failed to set download behavior: %w", err)
	}

	page, err := d.openPage(browser)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}

	if d.opts.ViewportWidth > 0 && d.opts.ViewportHeight > 0 {
		err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             d.opts.ViewportWidth,
			Height:            d.opts.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	d.page = page

	logger.DebugContext(ctx, "attached to session browser",
		"session_id", sess.ID,
		"stealth", d.opts.Stealth,
	)

	return nil
}

func (d *Driver) openPage(browser *rod.Browser) (*rod.Page, error) {
	if d.opts.Stealth {
		return stealth.Page(browser)
	}

	return browser.Page(proto.TargetCreateTarget{})
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	logger := logctx.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "navigating", "url", url)

	if err := d.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if err := d.page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for page load: %w", err)
	}

	// Best effort: single-page apps keep mutating after load.
	_ = d.page.Timeout(5 * time.Second).WaitStable(time.Second)

	return nil
}

// Act lets the agent work towards the instruction on the attached page.
func (d *Driver) Act(ctx context.Context, instruction string, maxSteps int) (string, error) {
	tools := agent.NewToolset(d.page.Context(ctx), d.locator)

	return d.agent.Execute(ctx, instruction, maxSteps, tools)
}

// AwaitDownload blocks until the recorder settles or the timeout elapses.
func (d *Driver) AwaitDownload(ctx context.Context, timeout time.Duration) (string, error) {
	return d.recorder.Await(ctx, timeout)
}

// Detach closes the browser connection. Safe to call after a partial Attach.
func (d *Driver) Detach(ctx context.Context) error {
	if d.browser == nil {
		return nil
	}

	logger := logctx.LoggerFromContext(ctx)

	if err := d.browser.Close(); err != nil {
		logger.WarnContext(ctx, "failed to close browser connection", "error", err)

		return fmt.Errorf("failed to close browser connection: %w", err)
	}

	return nil
}
