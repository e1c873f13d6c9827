package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/italolelis/fetchpilot/internal/browserhub"
	"github.com/italolelis/fetchpilot/internal/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	createErr    error
	setDirErr    error
	readErr      error
	fileContent  string
	destroyCalls int
	destroyedID  string
	setDirPath   string
	readPath     string
	createdOpts  browserhub.SessionOptions

	// calls, when shared with a fakeDriver, ledgers the cross-seam call
	// order observed during a run.
	calls *[]string
}

func (f *fakeHub) record(op string) {
	if f.calls != nil {
		*f.calls = append(*f.calls, op)
	}
}

func (f *fakeHub) CreateSession(_ context.Context, opts browserhub.SessionOptions) (*browserhub.Session, error) {
	f.record("create_session")

	if f.createErr != nil {
		return nil, f.createErr
	}

	f.createdOpts = opts

	return &browserhub.Session{ID: "sess-1", Status: browserhub.StatusRunning, ConnectURL: "ws://hub/devtools/browser/abc"}, nil
}

func (f *fakeHub) SetDownloadDir(_ context.Context, sessionID, dir string) error {
	f.record("set_download_dir")
	f.setDirPath = dir

	return f.setDirErr
}

func (f *fakeHub) ReadFile(_ context.Context, sessionID, path string) (io.ReadCloser, error) {
	f.record("read_file")
	f.readPath = path

	if f.readErr != nil {
		return nil, f.readErr
	}

	return io.NopCloser(strings.NewReader(f.fileContent)), nil
}

func (f *fakeHub) DestroySession(_ context.Context, sessionID string) error {
	f.record("destroy_session")
	f.destroyCalls++
	f.destroyedID = sessionID

	return nil
}

type fakeDriver struct {
	attachErr    error
	navigateErr  error
	actErr       error
	awaitName    string
	awaitErr     error
	detachCalls  int
	navigatedURL string
	instruction  string
	maxSteps     int

	calls *[]string
}

func (f *fakeDriver) record(op string) {
	if f.calls != nil {
		*f.calls = append(*f.calls, op)
	}
}

func (f *fakeDriver) Attach(_ context.Context, _ *browserhub.Session) error {
	f.record("attach")

	return f.attachErr
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.record("navigate")
	f.navigatedURL = url

	return f.navigateErr
}

func (f *fakeDriver) Act(_ context.Context, instruction string, maxSteps int) (string, error) {
	f.record("act")
	f.instruction = instruction
	f.maxSteps = maxSteps

	if f.actErr != nil {
		return "", f.actErr
	}

	return "clicked the download button", nil
}

func (f *fakeDriver) AwaitDownload(_ context.Context, _ time.Duration) (string, error) {
	f.record("await_download")

	return f.awaitName, f.awaitErr
}

func (f *fakeDriver) Detach(_ context.Context) error {
	f.record("detach")
	f.detachCalls++

	return nil
}

func newTestRunner(t *testing.T, hub *fakeHub, driver *fakeDriver) *Runner {
	t.Helper()

	return NewRunner(hub, func() Driver { return driver }, RunnerOptions{
		DownloadDir:       t.TempDir(),
		RemoteDownloadDir: "/downloads",
		DownloadTimeout:   30 * time.Second,
		DefaultTargetURL:  "https://example.com/files",
		DefaultInstruct:   "Click the download button to download the file.",
		DefaultMaxSteps:   10,
	}, nil)
}

func TestRun_DownloadCaptured(t *testing.T) {
	hub := &fakeHub{fileContent: "pdf-bytes"}
	driver := &fakeDriver{awaitName: "plan.pdf"}

	runner := newTestRunner(t, hub, driver)

	result := runner.Run(context.Background(), Params{CorrelationID: "corr-1"})

	require.True(t, result.Success)
	assert.Contains(t, result.ResultMessage, "plan.pdf")
	require.NotEmpty(t, result.DownloadedFilePath)
	assert.Equal(t, "plan.pdf", filepath.Base(result.DownloadedFilePath))

	raw, err := os.ReadFile(result.DownloadedFilePath)
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(raw))

	assert.Equal(t, "/downloads", hub.setDirPath)
	assert.Equal(t, "/downloads/plan.pdf", hub.readPath)
	assert.Equal(t, "corr-1", hub.createdOpts.CorrelationID)
	assert.Equal(t, "https://example.com/files", driver.navigatedURL)
	assert.Equal(t, 1, hub.destroyCalls)
	assert.Equal(t, 1, driver.detachCalls)
}

// TestRun_ListenerArmedBeforeAgentActs pins the run's call order. The
// download listener is armed during Attach, so Attach preceding Navigate and
// Act is what guarantees an early download cannot slip past the recorder;
// teardown always comes last.
func TestRun_ListenerArmedBeforeAgentActs(t *testing.T) {
	var calls []string

	hub := &fakeHub{fileContent: "x", calls: &calls}
	driver := &fakeDriver{awaitName: "plan.pdf", calls: &calls}

	runner := newTestRunner(t, hub, driver)

	result := runner.Run(context.Background(), Params{})
	require.True(t, result.Success)

	assert.Equal(t, []string{
		"create_session",
		"set_download_dir",
		"attach",
		"navigate",
		"act",
		"await_download",
		"read_file",
		"detach",
		"destroy_session",
	}, calls)
}

// Even when the agent fails, the attach already happened and teardown still
// runs in order.
func TestRun_OrderHeldOnAgentFailure(t *testing.T) {
	var calls []string

	hub := &fakeHub{calls: &calls}
	driver := &fakeDriver{actErr: errors.New("boom"), calls: &calls}

	runner := newTestRunner(t, hub, driver)

	result := runner.Run(context.Background(), Params{})
	require.False(t, result.Success)

	assert.Equal(t, []string{
		"create_session",
		"set_download_dir",
		"attach",
		"navigate",
		"act",
		"detach",
		"destroy_session",
	}, calls)
}

func TestRun_NoDownloadWithinTimeout(t *testing.T) {
	hub := &fakeHub{}
	driver := &fakeDriver{awaitErr: capture.ErrNoDownload}

	runner := newTestRunner(t, hub, driver)

	result := runner.Run(context.Background(), Params{})

	// The run still succeeds; it just has nothing to hand back.
	assert.True(t, result.Success)
	assert.Empty(t, result.DownloadedFilePath)
	assert.Contains(t, result.ResultMessage, "no download was captured")
	assert.Equal(t, 1, hub.destroyCalls)
}

func TestRun_FilenameUndetermined(t *testing.T) {
	hub := &fakeHub{}
	driver := &fakeDriver{awaitErr: capture.ErrFilenameUndetermined}

	runner := newTestRunner(t, hub, driver)

	result := runner.Run(context.Background(), Params{})

	assert.True(t, result.Success)
	assert.Empty(t, result.DownloadedFilePath)
	assert.Contains(t, result.ResultMessage, "filename could not be determined")
}

func TestRun_RetrievalFails(t *testing.T) {
	hub := &fakeHub{readErr: fmt.Errorf("remote file vanished")}
	driver := &fakeDriver{awaitName: "plan.pdf"}

	runner := newTestRunner(t, hub, driver)

	result := runner.Run(context.Background(), Params{})

	assert.False(t, result.Success)
	assert.Empty(t, result.ResultMessage)
	assert.Empty(t, result.DownloadedFilePath)

	// Teardown still ran despite the failure.
	assert.Equal(t, "sess-1", hub.destroyedID)
	assert.Equal(t, 1, hub.destroyCalls)
	assert.Equal(t, 1, driver.detachCalls)
}

func TestRun_SessionCreationFails(t *testing.T) {
	hub := &fakeHub{createErr: errors.New("concurrency limit reached")}
	driver := &fakeDriver{}

	runner := newTestRunner(t, hub, driver)

	result := runner.Run(context.Background(), Params{})

	assert.False(t, result.Success)
	assert.Empty(t, result.ResultMessage)

	// No session to tear down.
	assert.Equal(t, 0, hub.destroyCalls)
	assert.Equal(t, 0, driver.detachCalls)
}

func TestRun_TeardownOncePerFailurePoint(t *testing.T) {
	tests := []struct {
		name   string
		hub    *fakeHub
		driver *fakeDriver
	}{
		{name: "set download dir fails", hub: &fakeHub{setDirErr: errors.New("boom")}, driver: &fakeDriver{}},
		{name: "attach fails", hub: &fakeHub{}, driver: &fakeDriver{attachErr: errors.New("boom")}},
		{name: "navigate fails", hub: &fakeHub{}, driver: &fakeDriver{navigateErr: errors.New("boom")}},
		{name: "agent fails", hub: &fakeHub{}, driver: &fakeDriver{actErr: errors.New("boom")}},
		{name: "await fails hard", hub: &fakeHub{}, driver: &fakeDriver{awaitErr: context.Canceled}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newTestRunner(t, tt.hub, tt.driver)

			result := runner.Run(context.Background(), Params{})

			assert.False(t, result.Success)
			assert.Equal(t, 1, tt.hub.destroyCalls)
			assert.Equal(t, 1, tt.driver.detachCalls)
		})
	}
}

func TestRun_HostileFilenameKeptInDownloadDir(t *testing.T) {
	hub := &fakeHub{fileContent: "x"}
	driver := &fakeDriver{awaitName: "../../etc/passwd"}

	runner := newTestRunner(t, hub, driver)

	result := runner.Run(context.Background(), Params{})

	require.True(t, result.Success)
	assert.Equal(t, "passwd", filepath.Base(result.DownloadedFilePath))
	assert.NotContains(t, result.DownloadedFilePath, "..")
}

func TestRun_ParamDefaultsAndClamp(t *testing.T) {
	hub := &fakeHub{fileContent: "x"}
	driver := &fakeDriver{awaitName: "a.bin"}

	runner := newTestRunner(t, hub, driver)

	runner.Run(context.Background(), Params{
		TargetURL:   "https://example.org/dl",
		Instruction: "Download the report.",
		MaxSteps:    99,
	})

	assert.Equal(t, "https://example.org/dl", driver.navigatedURL)
	assert.Equal(t, "Download the report.", driver.instruction)
	assert.Equal(t, maxStepsCeiling, driver.maxSteps)
}
