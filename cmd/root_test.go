package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-chart-scraper/internal/config"
	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
)

// mockApp mocks the App interface.
type mockApp struct {
	mock.Mock
	cfg     config.Config
	handler http.Handler
}

func (m *mockApp) Close() {
	m.Called()
}

func (m *mockApp) Config() config.Config {
	return m.cfg
}

func (m *mockApp) Logger() *zap.Logger {
	return zap.NewNop()
}

func (m *mockApp) RunOnce(ctx context.Context) (scraper.RunReport, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(scraper.RunReport)
	return report, args.Error(1)
}

func (m *mockApp) RunSchedule(ctx context.Context) error {
	args := m.Called(ctx)
	<-ctx.Done()
	return args.Error(0)
}

func (m *mockApp) Handler() http.Handler {
	if m.handler != nil {
		return m.handler
	}
	return http.NotFoundHandler()
}

// useMockApp swaps the application factory for the duration of the test.
func useMockApp(t *testing.T, m *mockApp) {
	t.Helper()
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config) (App, error) {
		m.cfg = cfg
		return m, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommandPrintsReport(t *testing.T) {
	m := &mockApp{}
	report := scraper.RunReport{RunID: "run-1", Status: scraper.RunStatusSucceeded, Records: 250}
	m.On("RunOnce", mock.Anything).Return(report, nil).Once()
	m.On("Close").Return().Once()
	useMockApp(t, m)

	out, err := executeRoot(t, "run")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "run-1", got["run_id"])
	require.Equal(t, "succeeded", got["status"])
	require.EqualValues(t, 250, got["records"])
	m.AssertExpectations(t)
}

func TestRunCommandFailedRunReturnsError(t *testing.T) {
	m := &mockApp{}
	report := scraper.RunReport{RunID: "run-2", Status: scraper.RunStatusFailed}
	m.On("RunOnce", mock.Anything).Return(report, errors.New("fetch: connection refused")).Once()
	m.On("Close").Return().Once()
	useMockApp(t, m)

	out, err := executeRoot(t, "run")
	require.ErrorContains(t, err, "run failed")
	require.Contains(t, out, "run-2")
	m.AssertExpectations(t)
}

func TestRunCommandPartialRunSucceeds(t *testing.T) {
	m := &mockApp{}
	report := scraper.RunReport{RunID: "run-3", Status: scraper.RunStatusPartial}
	m.On("RunOnce", mock.Anything).Return(report, errors.New("store: disk full")).Once()
	m.On("Close").Return().Once()
	useMockApp(t, m)

	_, err := executeRoot(t, "run")
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestRootRejectsMissingConfigFile(t *testing.T) {
	m := &mockApp{}
	useMockApp(t, m)

	_, err := executeRoot(t, "run", "--config", "/does/not/exist.yaml")
	require.ErrorContains(t, err, "load config")
	m.AssertNotCalled(t, "RunOnce", mock.Anything)
}

func TestServeCommandClosesAppOnListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })
	t.Setenv("SCRAPER_SERVER_PORT", strconv.Itoa(busy.Addr().(*net.TCPAddr).Port))

	m := &mockApp{}
	m.On("Close").Return().Once()
	useMockApp(t, m)

	_, err = executeRoot(t, "serve")
	require.ErrorContains(t, err, "listen on")
	m.AssertExpectations(t)
}

func TestResolveAppMissing(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.ErrorContains(t, err, "not initialized")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	m := &mockApp{handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})}
	m.On("RunSchedule", mock.Anything).Return(nil).Once()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, m, ln, time.Second, zap.NewNop())
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	m.AssertExpectations(t)
}

func TestServeReportsSchedulerError(t *testing.T) {
	m := &mockApp{}
	m.On("RunSchedule", mock.Anything).Return(errors.New("parse schedule.cron")).Once()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = serve(ctx, m, ln, time.Second, zap.NewNop())
	require.ErrorContains(t, err, "schedule.cron")
}
