package login

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

func newTestService(session *fakeSession, store interfaces.CookieStorage, minInterval time.Duration) (*Service, *fakeEvents) {
	events := &fakeEvents{}
	machine := NewFlowMachine(
		machineTestProfile(),
		&fakeFactory{session: session},
		events,
		&fakeRecorder{},
		testBrowserConfig(),
		arbor.NewLogger(),
	)
	return NewService(machine, store, events, minInterval, arbor.NewLogger()), events
}

// successSession fakes a portal where the plain login form works on the
// first attempt.
func successSession() *fakeSession {
	return &fakeSession{
		visible:    map[string]bool{"#d-user": true, "#d-pass": true, "#d-submit": true},
		currentURL: testLoginURL,
		snapshots: []models.PageSnapshot{
			{URL: testLoginURL, HTML: loginPageHTML},
			{URL: testDashboardURL, HTML: dashboardHTML},
		},
		cookies: completeCookies(),
	}
}

func TestServiceRejectsInvalidCredentials(t *testing.T) {
	svc, _ := newTestService(&fakeSession{}, &fakeStore{}, 0)

	for _, creds := range []models.Credentials{
		{},
		{Username: "alice@example.com"},
		{Password: "hunter2"},
	} {
		_, err := svc.Login(context.Background(), creds)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "username and password are required")
	}
}

func TestServiceSuccessPersistsCookies(t *testing.T) {
	store := &fakeStore{}
	svc, events := newTestService(successSession(), store, 0)

	result, err := svc.Login(context.Background(), testCreds())
	require.NoError(t, err)
	require.Equal(t, models.LoginSucceeded, result.Status)
	assert.Empty(t, result.PersistWarning)

	require.NotNil(t, store.record)
	assert.Equal(t, models.SourceAutomated, store.record.Source)
	assert.Equal(t, "sid-123", store.record.Cookies["MM_SID"].Value)

	types := events.typesSeen()
	assert.Contains(t, types, interfaces.EventLoginStarted)
	assert.Contains(t, types, interfaces.EventCookiesUpdated)
	assert.Contains(t, types, interfaces.EventLoginFinished)
}

func TestServicePersistFailureKeepsResult(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("disk full")}
	svc, events := newTestService(successSession(), store, 0)

	result, err := svc.Login(context.Background(), testCreds())
	require.NoError(t, err)

	assert.Equal(t, models.LoginSucceeded, result.Status,
		"a store failure must not void the harvested cookies")
	assert.Contains(t, result.PersistWarning, "disk full")
	assert.NotContains(t, events.typesSeen(), interfaces.EventCookiesUpdated)
}

func TestServiceRejectsConcurrentLogin(t *testing.T) {
	gate := make(chan struct{})
	session := successSession()
	session.gate = gate
	svc, _ := newTestService(session, &fakeStore{}, 0)

	done := make(chan *models.LoginResult, 1)
	go func() {
		result, err := svc.Login(context.Background(), testCreds())
		if err != nil {
			done <- nil
			return
		}
		done <- result
	}()

	require.Eventually(t, func() bool { return svc.Status().Active },
		2*time.Second, 5*time.Millisecond, "first flow should be in flight")

	_, err := svc.Login(context.Background(), testCreds())
	assert.ErrorIs(t, err, models.ErrBusy)

	close(gate)
	result := <-done
	require.NotNil(t, result)
	assert.Equal(t, models.LoginSucceeded, result.Status)
	assert.False(t, svc.Status().Active)
}

func TestServiceThrottlesRapidTriggers(t *testing.T) {
	// Any portal page that matches no variant rule ends the first flow
	// quickly without variant retries.
	session := &fakeSession{
		currentURL: "https://portal.test/outage",
		snapshots: []models.PageSnapshot{
			{URL: "https://portal.test/outage", HTML: "<html><body>Scheduled maintenance</body></html>"},
		},
	}
	svc, _ := newTestService(session, &fakeStore{}, time.Hour)

	result, err := svc.Login(context.Background(), testCreds())
	require.NoError(t, err, "the first trigger consumes the pacing budget but runs")
	assert.Equal(t, models.LoginFailed, result.Status)

	_, err = svc.Login(context.Background(), testCreds())
	assert.ErrorIs(t, err, models.ErrLoginThrottled)
}

func TestServiceStatus(t *testing.T) {
	session := &fakeSession{
		currentURL: "https://portal.test/outage",
		snapshots: []models.PageSnapshot{
			{URL: "https://portal.test/outage", HTML: "<html><body>Scheduled maintenance</body></html>"},
		},
	}
	svc, _ := newTestService(session, &fakeStore{}, 0)

	before := svc.Status()
	assert.False(t, before.Active)
	assert.Nil(t, before.Session)
	assert.Empty(t, before.LastRunAt)

	_, err := svc.Login(context.Background(), testCreds())
	require.NoError(t, err)

	after := svc.Status()
	assert.False(t, after.Active)
	require.NotNil(t, after.Session)
	assert.Equal(t, models.StateFailed, after.Session.State)

	lastRun, parseErr := time.Parse(time.RFC3339, after.LastRunAt)
	require.NoError(t, parseErr)
	assert.WithinDuration(t, time.Now(), lastRun, time.Minute)
}
