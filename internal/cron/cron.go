package cron

import (
	"context"
	"fmt"
	gosync "sync"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/mailmirror/mailmirror/interfaces"
	"github.com/mailmirror/mailmirror/internal/logger"
	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/tracing"
	"github.com/mailmirror/mailmirror/services/sync"
)

const defaultSyncIntervalMinutes = 15

// AccountSyncer runs one full mirror cycle for an account.
type AccountSyncer interface {
	SyncAccount(ctx context.Context, account *models.Account) *sync.SyncReport
}

// CronManager schedules one recurring sync job per enabled account.
// Overlapping runs for the same account are skipped via a per-account
// lock; distinct accounts run concurrently.
type CronManager struct {
	log         logger.Logger
	accountRepo interfaces.AccountRepository
	syncer      AccountSyncer
	cron        *cronv3.Cron
	stopCh      chan struct{}
	jobIDs      map[string]cronv3.EntryID

	locksMutex   gosync.Mutex
	accountLocks map[string]*gosync.Mutex
}

func NewCronManager(log logger.Logger, accountRepo interfaces.AccountRepository, syncer AccountSyncer) *CronManager {
	return &CronManager{
		log:          log,
		accountRepo:  accountRepo,
		syncer:       syncer,
		stopCh:       make(chan struct{}),
		jobIDs:       make(map[string]cronv3.EntryID),
		accountLocks: make(map[string]*gosync.Mutex),
	}
}

// StartCron initializes the scheduler and registers a job per enabled
// account.
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// Stop gracefully stops the cron manager, waiting for running jobs.
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		<-ctx.Done()
	}
	close(cm.stopCh)
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	accounts, err := cm.accountRepo.ListEnabled(context.Background())
	if err != nil {
		cm.log.Errorf("Failed to list accounts for scheduling: %v", err)
		return
	}

	for _, account := range accounts {
		account := account
		interval := account.SyncInterval
		if interval <= 0 {
			interval = defaultSyncIntervalMinutes
		}
		schedule := fmt.Sprintf("@every %dm", interval)

		id, err := c.AddFunc(schedule, func() {
			cm.syncAccount(account)
		})
		if err != nil {
			cm.log.Errorf("Could not schedule sync for account %s: %v", account.ID, err)
			continue
		}
		cm.jobIDs[account.ID] = id
		cm.log.Infof("Registered sync job for %s every %dm", account.EmailAddress, interval)
	}
}

func (cm *CronManager) syncAccount(account *models.Account) {
	lock := cm.lockFor(account.ID)
	if !lock.TryLock() {
		cm.log.Warnf("Sync for account %s still running, skipping this tick", account.ID)
		return
	}
	defer lock.Unlock()

	ctx := context.Background()
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.syncAccount")
	defer span.Finish()
	tracing.TagComponentCronJob(span)
	tracing.TagAccount(span, account.ID)

	report := cm.syncer.SyncAccount(ctx, account)
	if report.HasErrors() {
		cm.log.Warnf("Sync for account %s finished with errors: %+v", account.ID, report.Folders)
		return
	}
	cm.log.Infof("Sync for account %s stored %d new messages", account.ID, report.TotalNew)
}

func (cm *CronManager) lockFor(accountID string) *gosync.Mutex {
	cm.locksMutex.Lock()
	defer cm.locksMutex.Unlock()

	lock, ok := cm.accountLocks[accountID]
	if !ok {
		lock = new(gosync.Mutex)
		cm.accountLocks[accountID] = lock
	}
	return lock
}
