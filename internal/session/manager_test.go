package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/browser"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/browser/browsertest"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/store"
)

const chatURL = "https://chat.example.test/"

func newManager(t *testing.T) (*Manager, *browsertest.Launcher, *browsertest.Page, *store.Memory) {
	t.Helper()
	page := browsertest.NewPage()
	launcher := browsertest.NewLauncher(page)
	st := store.NewMemory()
	m := NewManager(Options{ChatURL: chatURL, Headless: true}, launcher, st, nil)
	return m, launcher, page, st
}

type failingStore struct{}

func (failingStore) Get(string) ([]byte, error) { return nil, errors.New("disk gone") }
func (failingStore) Set(string, []byte) error   { return errors.New("disk gone") }
func (failingStore) Delete(string) error        { return errors.New("disk gone") }

func TestNotReadyBeforeOpen(t *testing.T) {
	m, _, _, _ := newManager(t)
	assert.False(t, m.IsReady())

	state, err := m.State()
	assert.Equal(t, StateUninitialized, state)
	assert.NoError(t, err)

	_, ok := m.Page()
	assert.False(t, ok)
	assert.Empty(t, m.ControlURL())
}

func TestOpenNavigatesAndBecomesReady(t *testing.T) {
	m, launcher, page, _ := newManager(t)

	require.NoError(t, m.Open(context.Background()))
	assert.True(t, m.IsReady())
	assert.Equal(t, []string{chatURL}, page.Navigated())
	assert.True(t, launcher.LastOptions().Headless)
	assert.NotEmpty(t, m.ControlURL())
}

func TestOpenIsIdempotent(t *testing.T) {
	m, launcher, _, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Open(ctx))
	require.NoError(t, m.Open(ctx))
	assert.Equal(t, 1, launcher.Launches())
}

func TestOpenLaunchFailureLeavesUninitialized(t *testing.T) {
	m, launcher, _, _ := newManager(t)
	launcher.Err = errors.New("no chrome")

	err := m.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitFailed)
	assert.ErrorIs(t, err, launcher.Err)
	assert.False(t, m.IsReady())

	state, lastErr := m.State()
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, launcher.Err, lastErr)
}

func TestOpenNavigationFailureClosesBrowser(t *testing.T) {
	m, launcher, page, _ := newManager(t)
	page.NavigateErr = errors.New("navigation timeout")

	err := m.Open(context.Background())
	assert.ErrorIs(t, err, ErrInitFailed)
	assert.False(t, m.IsReady())
	assert.Equal(t, 1, launcher.FakeBrowser.Closed())

	// The caller decides to retry; the next attempt launches again.
	page.NavigateErr = nil
	require.NoError(t, m.Open(context.Background()))
	assert.Equal(t, 2, launcher.Launches())
	assert.True(t, m.IsReady())
}

func TestCloseWhenUninitializedIsNoop(t *testing.T) {
	m, launcher, _, _ := newManager(t)
	assert.NoError(t, m.Close(context.Background()))
	assert.NoError(t, m.Close(context.Background()))
	assert.Equal(t, 0, launcher.FakeBrowser.Closed())
}

func TestCloseSavesCookiesAndTearsDown(t *testing.T) {
	m, launcher, page, st := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Open(ctx))

	page.SetJar([]browser.Cookie{{Name: "token", Value: "abc", Domain: ".example.test", Path: "/"}})
	require.NoError(t, m.Close(ctx))

	assert.False(t, m.IsReady())
	assert.Equal(t, 1, launcher.FakeBrowser.Closed())

	data, err := st.Get(CookieKey)
	require.NoError(t, err)
	var saved []browser.Cookie
	require.NoError(t, json.Unmarshal(data, &saved))
	require.Len(t, saved, 1)
	assert.Equal(t, "token", saved[0].Name)
	assert.Equal(t, "abc", m.Cookies()[0].Value)
}

func TestCloseErrorStillClearsState(t *testing.T) {
	m, launcher, _, _ := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Open(ctx))

	launcher.FakeBrowser.CloseErr = errors.New("process already gone")
	assert.Error(t, m.Close(ctx))
	assert.False(t, m.IsReady())

	// Repeated close is safe.
	assert.NoError(t, m.Close(ctx))
	assert.Equal(t, 1, launcher.FakeBrowser.Closed())
}

func TestOpenRestoresSavedCookies(t *testing.T) {
	m, _, page, st := newManager(t)
	data, err := json.Marshal([]browser.Cookie{{Name: "session", Value: "xyz"}})
	require.NoError(t, err)
	require.NoError(t, st.Set(CookieKey, data))

	require.NoError(t, m.Open(context.Background()))
	jar := page.Jar()
	require.Len(t, jar, 1)
	assert.Equal(t, "xyz", jar[0].Value)
}

func TestCookieFailuresAreNotFatal(t *testing.T) {
	page := browsertest.NewPage()
	launcher := browsertest.NewLauncher(page)
	m := NewManager(Options{ChatURL: chatURL, Headless: true}, launcher, failingStore{}, nil)
	ctx := context.Background()

	require.NoError(t, m.Open(ctx))
	assert.True(t, m.IsReady())
	assert.NoError(t, m.Close(ctx))
	assert.False(t, m.IsReady())
}

func TestCorruptCookiesAreIgnored(t *testing.T) {
	m, _, page, st := newManager(t)
	require.NoError(t, st.Set(CookieKey, []byte("{not json")))

	require.NoError(t, m.Open(context.Background()))
	assert.Empty(t, page.Jar())
}

func TestReopenForcesVisibleAndActivates(t *testing.T) {
	m, launcher, page, _ := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Open(ctx))

	require.NoError(t, m.Reopen(ctx, true))
	assert.Equal(t, 2, launcher.Launches())
	assert.False(t, launcher.LastOptions().Headless)
	assert.Equal(t, 1, launcher.FakeBrowser.Closed())
	assert.Equal(t, 1, page.Activated())
	assert.True(t, m.IsReady())

	// A plain close and open goes back to the configured headless mode.
	require.NoError(t, m.Close(ctx))
	require.NoError(t, m.Open(ctx))
	assert.True(t, launcher.LastOptions().Headless)
}

func TestReopenFromUninitialized(t *testing.T) {
	m, launcher, _, _ := newManager(t)
	require.NoError(t, m.Reopen(context.Background(), false))
	assert.Equal(t, 1, launcher.Launches())
	assert.True(t, launcher.LastOptions().Headless)
	assert.True(t, m.IsReady())
}

func TestReadinessDoesNotWaitForOpen(t *testing.T) {
	m, launcher, _, _ := newManager(t)
	launcher.Hold = make(chan struct{})

	opened := make(chan error, 1)
	go func() { opened <- m.Open(context.Background()) }()

	require.Eventually(t, func() bool {
		state, _ := m.State()
		return state == StateOpening
	}, time.Second, 5*time.Millisecond)

	checked := make(chan bool, 1)
	go func() { checked <- m.IsReady() }()
	select {
	case ready := <-checked:
		assert.False(t, ready)
	case <-time.After(time.Second):
		t.Fatal("IsReady blocked while the browser was launching")
	}
	_, ok := m.Page()
	assert.False(t, ok)

	close(launcher.Hold)
	require.NoError(t, <-opened)
	assert.True(t, m.IsReady())
}

func TestCloseWaitsForOpenInProgress(t *testing.T) {
	m, launcher, _, _ := newManager(t)
	launcher.Hold = make(chan struct{})
	ctx := context.Background()

	opened := make(chan error, 1)
	go func() { opened <- m.Open(ctx) }()
	require.Eventually(t, func() bool {
		state, _ := m.State()
		return state == StateOpening
	}, time.Second, 5*time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- m.Close(ctx) }()

	select {
	case <-closed:
		t.Fatal("Close returned before the pending Open finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(launcher.Hold)
	require.NoError(t, <-opened)
	require.NoError(t, <-closed)
	assert.False(t, m.IsReady())
	assert.Equal(t, 1, launcher.FakeBrowser.Closed())
}
