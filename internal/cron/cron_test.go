package cron

import (
	"context"
	"testing"
	"time"

	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmirror/mailmirror/internal/logger"
	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/services/sync"
)

type stubAccountRepo struct {
	accounts []*models.Account
}

func (r *stubAccountRepo) Create(ctx context.Context, account *models.Account) error { return nil }
func (r *stubAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return nil, nil
}
func (r *stubAccountRepo) GetByEmailAddress(ctx context.Context, address string) (*models.Account, error) {
	return nil, nil
}
func (r *stubAccountRepo) GetDefault(ctx context.Context) (*models.Account, error) { return nil, nil }
func (r *stubAccountRepo) ListEnabled(ctx context.Context) ([]*models.Account, error) {
	return r.accounts, nil
}
func (r *stubAccountRepo) SetDefault(ctx context.Context, id string) error { return nil }
func (r *stubAccountRepo) Delete(ctx context.Context, id string) error     { return nil }
func (r *stubAccountRepo) UpdateLastSync(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (r *stubAccountRepo) UpdateConnectionStatus(ctx context.Context, id, status, errorMessage string) error {
	return nil
}

type stubSyncer struct {
	runs    chan string
	blockCh chan struct{}
}

func (s *stubSyncer) SyncAccount(ctx context.Context, account *models.Account) *sync.SyncReport {
	if s.runs != nil {
		s.runs <- account.ID
	}
	if s.blockCh != nil {
		<-s.blockCh
	}
	return sync.NewSyncReport(account.ID)
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func TestNewCronManager(t *testing.T) {
	log := getLogger()
	repo := &stubAccountRepo{}
	syncer := &stubSyncer{}

	cm := NewCronManager(log, repo, syncer)

	assert.NotNil(t, cm)
	assert.Equal(t, log, cm.log)
	assert.NotNil(t, cm.jobIDs)
	assert.NotNil(t, cm.accountLocks)
}

func TestCronManager_RegisterJobsPerAccount(t *testing.T) {
	repo := &stubAccountRepo{accounts: []*models.Account{
		{ID: "acct_1", EmailAddress: "one@example.com", SyncInterval: 5},
		{ID: "acct_2", EmailAddress: "two@example.com"},
	}}
	cm := NewCronManager(getLogger(), repo, &stubSyncer{})

	c := cronv3.New(cronv3.WithSeconds())
	cm.registerJobs(c)

	assert.Len(t, cm.jobIDs, 2)
	assert.Contains(t, cm.jobIDs, "acct_1")
	assert.Contains(t, cm.jobIDs, "acct_2")
}

func TestCronManager_OverlappingRunSkipped(t *testing.T) {
	account := &models.Account{ID: "acct_1", EmailAddress: "one@example.com"}
	syncer := &stubSyncer{runs: make(chan string, 2), blockCh: make(chan struct{})}
	cm := NewCronManager(getLogger(), &stubAccountRepo{}, syncer)

	go cm.syncAccount(account)
	require.Equal(t, "acct_1", <-syncer.runs)

	// Second invocation while the first is still running must bail out
	// instead of queuing behind the lock.
	done := make(chan struct{})
	go func() {
		cm.syncAccount(account)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("overlapping run was not skipped")
	}

	close(syncer.blockCh)
	assert.Len(t, syncer.runs, 0)
}

func TestCronManager_Stop(t *testing.T) {
	cm := NewCronManager(getLogger(), &stubAccountRepo{}, &stubSyncer{})

	c := cronv3.New()
	c.Start()
	cm.cron = c

	cm.Stop()

	select {
	case <-cm.stopCh:
	default:
		t.Error("Stop channel was not closed")
	}
}
