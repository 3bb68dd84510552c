package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/notify"
	"github.com/wolfman30/clinicops/internal/store"
	"github.com/wolfman30/clinicops/pkg/logging"
)

func TestBuildRequiresConfig(t *testing.T) {
	_, err := Build(context.Background(), nil, logging.Discard())
	assert.Error(t, err)
}

func TestBuildWithoutDatabaseUsesUnconfiguredClient(t *testing.T) {
	app, err := Build(context.Background(), &appconfig.Config{}, logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	assert.IsType(t, store.Unconfigured{}, app.DB)
	assert.Nil(t, app.Redis)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := app.Handler(ctx)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestBuildTwiceDoesNotCollideOnMetrics(t *testing.T) {
	for i := 0; i < 2; i++ {
		app, err := Build(context.Background(), &appconfig.Config{}, logging.Discard())
		require.NoError(t, err)
		app.Close()
	}
}

func TestBuildRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, logging.Discard(), true))

	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.Discard(), true)
	require.NotNil(t, client)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.Discard(), true))
}

func TestBuildEmailSender(t *testing.T) {
	ctx := context.Background()

	s, err := BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "stub"}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &notify.StubEmailSender{}, s)

	s, err = BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "sendgrid"}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &notify.StubEmailSender{}, s)

	s, err = BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "sendgrid", SendGridAPIKey: "k", SendGridFromEmail: "a@b.test"}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &notify.SendGridSender{}, s)

	s, err = BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "ses"}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &notify.StubEmailSender{}, s)

	_, err = BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "pigeon"}, logging.Discard())
	assert.Error(t, err)
}

func TestBuildSMSSender(t *testing.T) {
	assert.Nil(t, BuildSMSSender(&appconfig.Config{}, logging.Discard()))
	assert.NotNil(t, BuildSMSSender(&appconfig.Config{TwilioAccountSID: "AC1", TwilioAuthToken: "t"}, logging.Discard()))
}

func TestWorkerBuilds(t *testing.T) {
	app, err := Build(context.Background(), &appconfig.Config{EmailProvider: "stub", ReminderBatchSize: 10}, logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	w, err := app.Worker(context.Background())
	require.NoError(t, err)
	n, err := w.ProcessDue(context.Background())
	assert.Zero(t, n)
	assert.Error(t, err)
}
