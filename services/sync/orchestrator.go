package sync

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailmirror/mailmirror/interfaces"
	"github.com/mailmirror/mailmirror/internal/enum"
	mmerrors "github.com/mailmirror/mailmirror/internal/errors"
	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/tracing"
	"github.com/mailmirror/mailmirror/internal/utils"
	"github.com/mailmirror/mailmirror/services/attachments"
	"github.com/mailmirror/mailmirror/services/threading"
)

const defaultBatchSize = 100

// Collaborators are optional downstream consumers invoked per new
// message. Any of them may be nil; their failures never fail a sync.
type Collaborators struct {
	SpamClassifier   interfaces.SpamClassifier
	FilterEngine     interfaces.FilterEngine
	ContactCollector interfaces.ContactCollector
	Notifier         interfaces.Notifier
}

// Orchestrator drives one account's mirror: incremental fetch above the
// stored UID watermark, exactly-once persistence, attachment
// materialization, and threading after each run. Folders within an
// account run sequentially over a single connection; distinct accounts
// may run concurrently with no shared state beyond the store.
type Orchestrator struct {
	clientFactory interfaces.MailClientFactory
	parser        interfaces.MessageParser
	emailRepo     interfaces.EmailRepository
	folderRepo    interfaces.FolderRepository
	accountRepo   interfaces.AccountRepository
	materializer  *attachments.Materializer
	collaborators Collaborators
	batchSize     int
}

func NewOrchestrator(
	clientFactory interfaces.MailClientFactory,
	parser interfaces.MessageParser,
	emailRepo interfaces.EmailRepository,
	folderRepo interfaces.FolderRepository,
	accountRepo interfaces.AccountRepository,
	materializer *attachments.Materializer,
	collaborators Collaborators,
	batchSize int,
) *Orchestrator {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Orchestrator{
		clientFactory: clientFactory,
		parser:        parser,
		emailRepo:     emailRepo,
		folderRepo:    folderRepo,
		accountRepo:   accountRepo,
		materializer:  materializer,
		collaborators: collaborators,
		batchSize:     batchSize,
	}
}

// SyncAccount runs a full cycle for one account: refresh the folder
// list, sync each configured folder, rethread, and record the outcome on
// the account row. A connect failure aborts this account only.
func (o *Orchestrator) SyncAccount(ctx context.Context, account *models.Account) *SyncReport {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Orchestrator.SyncAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	report := NewSyncReport(account.ID)

	client, err := o.clientFactory.NewClient(account.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		report.recordFolder("", FolderResult{Error: err.Error()})
		return report
	}

	if err := client.Connect(ctx); err != nil {
		tracing.TraceErr(span, err)
		log.Printf("[%s] connect failed: %v", account.ID, err)
		o.markConnectionFailure(ctx, account, err)
		report.recordFolder("", FolderResult{Error: err.Error()})
		return report
	}
	defer client.Disconnect()

	folders := o.resolveFolders(ctx, client, account)
	o.syncFolders(ctx, client, account, folders, report)

	if err := o.Rethread(ctx, account.ID); err != nil {
		tracing.TraceErr(span, err)
		log.Printf("[%s] threading failed: %v", account.ID, err)
	}

	now := utils.Now()
	if err := o.accountRepo.UpdateLastSync(ctx, account.ID, now); err != nil {
		tracing.TraceErr(span, err)
	}
	if err := o.accountRepo.UpdateConnectionStatus(ctx, account.ID, enum.ConnectionActive.String(), ""); err != nil {
		tracing.TraceErr(span, err)
	}
	return report
}

// SyncFolders mirrors the named folders over an already-resolved client.
// Each folder is isolated: an open/search/store failure is recorded in
// the report and the remaining folders still run.
func (o *Orchestrator) SyncFolders(ctx context.Context, account *models.Account, folders []string) *SyncReport {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Orchestrator.SyncFolders")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	report := NewSyncReport(account.ID)

	client, err := o.clientFactory.NewClient(account.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		report.recordFolder("", FolderResult{Error: err.Error()})
		return report
	}
	if err := client.Connect(ctx); err != nil {
		tracing.TraceErr(span, err)
		o.markConnectionFailure(ctx, account, err)
		report.recordFolder("", FolderResult{Error: err.Error()})
		return report
	}
	defer client.Disconnect()

	o.syncFolders(ctx, client, account, folders, report)
	return report
}

func (o *Orchestrator) syncFolders(ctx context.Context, client interfaces.MailClient, account *models.Account, folders []string, report *SyncReport) {
	for _, folder := range folders {
		select {
		case <-ctx.Done():
			report.recordFolder(folder, FolderResult{Error: ctx.Err().Error()})
			return
		default:
		}

		result := o.syncFolder(ctx, client, account, folder)
		report.recordFolder(folder, result.FolderResult)
		report.SpamFlagged += result.spamFlagged
		report.FilterMatched += result.filterMatched
	}
}

type folderOutcome struct {
	FolderResult
	spamFlagged   int
	filterMatched int
}

func (o *Orchestrator) syncFolder(ctx context.Context, client interfaces.MailClient, account *models.Account, folderName string) folderOutcome {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Orchestrator.syncFolder")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)
	tracing.TagFolder(span, folderName)

	var outcome folderOutcome

	status, err := client.OpenFolder(ctx, folderName, true)
	if err != nil {
		tracing.TraceErr(span, err)
		outcome.Error = fmt.Sprintf("open folder: %v", err)
		return outcome
	}

	watermark, err := o.emailRepo.HighestUID(ctx, account.ID, folderName)
	if err != nil {
		tracing.TraceErr(span, err)
		outcome.Error = fmt.Sprintf("read watermark: %v", err)
		return outcome
	}

	criteria := interfaces.SearchCriteria{All: watermark == 0}
	if watermark > 0 {
		criteria.UIDFrom = watermark + 1
	}

	uids, err := client.Search(ctx, criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		outcome.Error = fmt.Sprintf("search: %v", err)
		return outcome
	}

	log.Printf("[%s][%s] %d new messages above UID %d", account.ID, folderName, len(uids), watermark)

	for start := 0; start < len(uids); start += o.batchSize {
		end := start + o.batchSize
		if end > len(uids) {
			end = len(uids)
		}

		messages, err := client.FetchBatch(ctx, uids[start:end], interfaces.FetchOptions{FetchBody: true})
		if err != nil {
			tracing.TraceErr(span, err)
			outcome.Error = fmt.Sprintf("fetch batch: %v", err)
			return outcome
		}

		for _, raw := range messages {
			email, err := o.processMessage(ctx, account, folderName, raw)
			if err != nil {
				if mmerrors.IsKind(err, mmerrors.KindStorage) {
					tracing.TraceErr(span, err)
					outcome.Error = fmt.Sprintf("store uid %d: %v", raw.UID, err)
					return outcome
				}
				log.Printf("[%s][%s] skipping uid %d: %v", account.ID, folderName, raw.UID, err)
				outcome.FailedMessages++
				continue
			}
			if email == nil {
				outcome.SkippedMessages++
				continue
			}
			outcome.NewMessages++

			spam, matched := o.dispatchCollaborators(ctx, email)
			if spam {
				outcome.spamFlagged++
			}
			if matched {
				outcome.filterMatched++
			}
		}
	}

	// Watermark bookkeeping happens only after a clean pass, so a failed
	// run is re-tried from the same position.
	if err := o.folderRepo.UpdateLastSync(ctx, account.ID, folderName, utils.Now()); err != nil {
		tracing.TraceErr(span, err)
		log.Printf("[%s][%s] failed to record folder sync time: %v", account.ID, folderName, err)
	}
	if err := o.folderRepo.UpdateCounts(ctx, account.ID, folderName, int(status.UnseenMessages), int(status.TotalMessages)); err != nil {
		tracing.TraceErr(span, err)
	}
	return outcome
}

// processMessage persists one fetched message, returning nil when the
// message is already stored. Parse failures skip the message; storage
// failures abort the folder.
func (o *Orchestrator) processMessage(ctx context.Context, account *models.Account, folderName string, raw *interfaces.RawMessage) (*models.Email, error) {
	existing, err := o.emailRepo.GetByUID(ctx, account.ID, folderName, raw.UID)
	if err != nil {
		return nil, mmerrors.Storage(err)
	}
	if existing != nil {
		return nil, nil
	}

	messageBytes := raw.BodyBytes
	if len(messageBytes) == 0 {
		messageBytes = raw.HeaderBytes
	}
	if len(messageBytes) == 0 {
		return nil, mmerrors.Parse(errors.New("empty message"))
	}

	parsed, err := o.parser.Parse(messageBytes)
	if err != nil {
		return nil, err
	}

	email := o.buildEmail(account, folderName, raw, parsed)

	// Cross-folder dedup applies only to genuine header IDs; a synthetic
	// ID is unique by construction.
	if !email.SyntheticID {
		duplicate, err := o.emailRepo.GetByMessageID(ctx, email.MessageID)
		if err != nil {
			return nil, mmerrors.Storage(err)
		}
		if duplicate != nil {
			// A row parked at UID 0 in this folder is a locally moved or
			// sent message waiting for its server identity; claim it
			// here. Rows with a real UID are genuine duplicates and stay
			// where they are.
			if duplicate.UID == 0 && duplicate.Folder == folderName {
				if err := o.emailRepo.SetFolder(ctx, duplicate.ID, folderName, raw.UID); err != nil {
					return nil, mmerrors.Storage(err)
				}
			}
			return nil, nil
		}
	}

	if err := o.emailRepo.Create(ctx, email); err != nil {
		return nil, mmerrors.Storage(err)
	}

	if len(parsed.Attachments) > 0 && o.materializer != nil {
		if _, err := o.materializer.Materialize(ctx, email, parsed.Attachments); err != nil {
			log.Printf("[%s][%s] attachment materialization failed for uid %d: %v", account.ID, folderName, raw.UID, err)
		}
	}
	return email, nil
}

func (o *Orchestrator) buildEmail(account *models.Account, folderName string, raw *interfaces.RawMessage, parsed *interfaces.ParsedMessage) *models.Email {
	email := &models.Email{
		AccountID:      account.ID,
		Folder:         folderName,
		UID:            raw.UID,
		MessageID:      parsed.MessageID,
		InReplyTo:      parsed.InReplyTo,
		References:     parsed.References,
		Subject:        parsed.Subject,
		CleanSubject:   utils.NormalizeEmailSubject(parsed.Subject),
		FromAddress:    parsed.FromAddress,
		FromName:       parsed.FromName,
		ToAddresses:    parsed.ToAddresses,
		CcAddresses:    parsed.CcAddresses,
		SentAt:         parsed.Date,
		BodyText:       parsed.BodyText,
		BodyHTML:       parsed.BodyHTML,
		RawHeaders:     models.JSONMap(parsed.RawHeaders),
		Direction:      enum.EmailInbound,
		Status:         enum.EmailStatusReceived,
		Classification: enum.EmailOK,
	}

	if email.MessageID == "" {
		domain := utils.ExtractDomainFromEmail(account.EmailAddress)
		metadata := fmt.Sprintf("%s/%s/%d", account.ID, folderName, raw.UID)
		email.MessageID = utils.GenerateMessageID(domain, metadata)
		email.SyntheticID = true
	}

	if !raw.InternalDate.IsZero() {
		received := raw.InternalDate.UTC()
		email.ReceivedAt = &received
	}
	if strings.EqualFold(email.FromAddress, account.EmailAddress) {
		email.Direction = enum.EmailOutbound
	}
	email.HasAttachment = len(parsed.Attachments) > 0

	for _, flag := range raw.Flags {
		switch flag {
		case "\\Seen":
			email.IsRead = true
		case "\\Flagged":
			email.IsStarred = true
		case "\\Draft":
			email.IsDraft = true
			email.Status = enum.EmailStatusDraft
		}
	}
	return email
}

// Rethread recomputes conversation assignments for an account from the
// full stored message set and persists changed thread IDs.
func (o *Orchestrator) Rethread(ctx context.Context, accountID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Orchestrator.Rethread")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	emails, err := o.emailRepo.ListForThreading(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	relationships := threading.AnalyzeRelationships(emails)
	roots := threading.BuildThreads(emails, relationships)
	assignments := threading.ThreadAssignments(roots)

	for _, email := range emails {
		threadID, ok := assignments[email.ID]
		if !ok || email.ThreadID == threadID {
			continue
		}
		if err := o.emailRepo.SetThreadID(ctx, email.ID, threadID); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}
	return nil
}

// resolveFolders refreshes the folder rows from the server and returns
// the folders to mirror: the account's configured subset, or every
// listed folder when none are configured. A listing failure falls back
// to the configured set.
func (o *Orchestrator) resolveFolders(ctx context.Context, client interfaces.MailClient, account *models.Account) []string {
	remote, err := client.ListFolders(ctx)
	if err != nil {
		log.Printf("[%s] folder listing failed: %v", account.ID, err)
		return account.SyncFolders
	}

	remoteNames := make(map[string]bool, len(remote))
	var names []string
	for _, info := range remote {
		remoteNames[info.Name] = true
		names = append(names, info.Name)

		folder := &models.Folder{
			AccountID: account.ID,
			Name:      info.Name,
			Delimiter: info.Delimiter,
			Flags:     info.Flags,
		}
		if err := o.folderRepo.Upsert(ctx, folder); err != nil {
			log.Printf("[%s] failed to upsert folder %s: %v", account.ID, info.Name, err)
		}
	}

	if len(account.SyncFolders) == 0 {
		return names
	}
	var configured []string
	for _, name := range account.SyncFolders {
		if remoteNames[name] {
			configured = append(configured, name)
		}
	}
	return configured
}

func (o *Orchestrator) markConnectionFailure(ctx context.Context, account *models.Account, connectErr error) {
	status := enum.ConnectionNotActive.String()
	if err := o.accountRepo.UpdateConnectionStatus(ctx, account.ID, status, connectErr.Error()); err != nil {
		log.Printf("[%s] failed to record connection status: %v", account.ID, err)
	}
}
