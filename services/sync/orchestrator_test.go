package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmirror/mailmirror/interfaces"
	mmerrors "github.com/mailmirror/mailmirror/internal/errors"
	"github.com/mailmirror/mailmirror/internal/models"
)

// fakeMailClient serves canned messages per folder and records the
// search criteria it was asked for.
type fakeMailClient struct {
	folders        map[string][]*interfaces.RawMessage
	failOpenFolder map[string]bool
	lastCriteria   map[string]interfaces.SearchCriteria
	currentFolder  string
}

func newFakeMailClient() *fakeMailClient {
	return &fakeMailClient{
		folders:        make(map[string][]*interfaces.RawMessage),
		failOpenFolder: make(map[string]bool),
		lastCriteria:   make(map[string]interfaces.SearchCriteria),
	}
}

func (c *fakeMailClient) Connect(ctx context.Context) error { return nil }
func (c *fakeMailClient) Disconnect() error                 { return nil }

func (c *fakeMailClient) ListFolders(ctx context.Context) ([]interfaces.FolderInfo, error) {
	var out []interfaces.FolderInfo
	for name := range c.folders {
		out = append(out, interfaces.FolderInfo{Name: name, Delimiter: "/"})
	}
	return out, nil
}

func (c *fakeMailClient) OpenFolder(ctx context.Context, name string, readOnly bool) (*interfaces.FolderStatus, error) {
	if c.failOpenFolder[name] {
		return nil, mmerrors.Connection(errors.New("folder unavailable"))
	}
	c.currentFolder = name
	return &interfaces.FolderStatus{TotalMessages: uint32(len(c.folders[name]))}, nil
}

func (c *fakeMailClient) Search(ctx context.Context, criteria interfaces.SearchCriteria) ([]uint32, error) {
	c.lastCriteria[c.currentFolder] = criteria
	var uids []uint32
	for _, msg := range c.folders[c.currentFolder] {
		if criteria.All || msg.UID >= criteria.UIDFrom {
			uids = append(uids, msg.UID)
		}
	}
	return uids, nil
}

func (c *fakeMailClient) FetchBatch(ctx context.Context, uids []uint32, opts interfaces.FetchOptions) ([]*interfaces.RawMessage, error) {
	var out []*interfaces.RawMessage
	for _, uid := range uids {
		for _, msg := range c.folders[c.currentFolder] {
			if msg.UID == uid {
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func (c *fakeMailClient) Move(ctx context.Context, uids []uint32, target string) error { return nil }
func (c *fakeMailClient) Copy(ctx context.Context, uids []uint32, target string) error { return nil }
func (c *fakeMailClient) Delete(ctx context.Context, uids []uint32) error              { return nil }
func (c *fakeMailClient) Append(ctx context.Context, folder string, raw []byte, flags []string) error {
	return nil
}

type fakeFactory struct {
	client     interfaces.MailClient
	connectErr error
}

type connectFailClient struct {
	*fakeMailClient
	err error
}

func (c *connectFailClient) Connect(ctx context.Context) error { return c.err }

func (f *fakeFactory) NewClient(accountID string) (interfaces.MailClient, error) {
	if f.connectErr != nil {
		return &connectFailClient{fakeMailClient: newFakeMailClient(), err: f.connectErr}, nil
	}
	return f.client, nil
}

// fakeParser maps raw bytes to parsed messages by content.
type fakeParser struct {
	parsed map[string]*interfaces.ParsedMessage
	failOn map[string]bool
}

func (p *fakeParser) Parse(raw []byte) (*interfaces.ParsedMessage, error) {
	key := string(raw)
	if p.failOn[key] {
		return nil, mmerrors.Parse(errors.New("malformed message"))
	}
	if parsed, ok := p.parsed[key]; ok {
		return parsed, nil
	}
	return &interfaces.ParsedMessage{Subject: key}, nil
}

type fakeEmailRepo struct {
	emails []*models.Email
	nextID int
}

func (r *fakeEmailRepo) Create(ctx context.Context, email *models.Email) error {
	if email.ID == "" {
		r.nextID++
		email.ID = fmt.Sprintf("email_%d", r.nextID)
	}
	for _, existing := range r.emails {
		if email.UID > 0 && existing.AccountID == email.AccountID && existing.Folder == email.Folder && existing.UID == email.UID {
			return errors.New("duplicate uid")
		}
		if existing.MessageID == email.MessageID {
			return errors.New("duplicate message id")
		}
	}
	r.emails = append(r.emails, email)
	return nil
}

func (r *fakeEmailRepo) GetByID(ctx context.Context, id string) (*models.Email, error) {
	for _, email := range r.emails {
		if email.ID == id {
			return email, nil
		}
	}
	return nil, nil
}

func (r *fakeEmailRepo) GetByUID(ctx context.Context, accountID, folder string, uid uint32) (*models.Email, error) {
	for _, email := range r.emails {
		if email.AccountID == accountID && email.Folder == folder && email.UID == uid {
			return email, nil
		}
	}
	return nil, nil
}

func (r *fakeEmailRepo) GetByMessageID(ctx context.Context, messageID string) (*models.Email, error) {
	for _, email := range r.emails {
		if email.MessageID == messageID {
			return email, nil
		}
	}
	return nil, nil
}

func (r *fakeEmailRepo) HighestUID(ctx context.Context, accountID, folder string) (uint32, error) {
	var highest uint32
	for _, email := range r.emails {
		if email.AccountID == accountID && email.Folder == folder && email.UID > highest {
			highest = email.UID
		}
	}
	return highest, nil
}

func (r *fakeEmailRepo) ListByFolder(ctx context.Context, accountID, folder string, limit, offset int) ([]*models.Email, int64, error) {
	var out []*models.Email
	for _, email := range r.emails {
		if email.AccountID == accountID && email.Folder == folder && !email.IsDeleted {
			out = append(out, email)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeEmailRepo) ListForThreading(ctx context.Context, accountID string) ([]*models.Email, error) {
	var out []*models.Email
	for _, email := range r.emails {
		if email.AccountID == accountID && !email.IsDeleted {
			out = append(out, email)
		}
	}
	return out, nil
}

func (r *fakeEmailRepo) ListDeleted(ctx context.Context, accountID string) ([]*models.Email, error) {
	return nil, nil
}

func (r *fakeEmailRepo) Update(ctx context.Context, email *models.Email) error { return nil }

func (r *fakeEmailRepo) SetThreadID(ctx context.Context, emailID, threadID string) error {
	for _, email := range r.emails {
		if email.ID == emailID {
			email.ThreadID = threadID
		}
	}
	return nil
}

func (r *fakeEmailRepo) SetFolder(ctx context.Context, emailID, folder string, uid uint32) error {
	for _, email := range r.emails {
		if email.ID == emailID {
			email.Folder = folder
			email.UID = uid
		}
	}
	return nil
}
func (r *fakeEmailRepo) SoftDelete(ctx context.Context, emailID string) error { return nil }
func (r *fakeEmailRepo) Restore(ctx context.Context, emailID string) error    { return nil }
func (r *fakeEmailRepo) HardDelete(ctx context.Context, emailID string) error { return nil }

type fakeFolderRepo struct {
	lastSync map[string]time.Time
}

func (r *fakeFolderRepo) Upsert(ctx context.Context, folder *models.Folder) error { return nil }
func (r *fakeFolderRepo) GetByName(ctx context.Context, accountID, name string) (*models.Folder, error) {
	return nil, nil
}
func (r *fakeFolderRepo) ListByAccount(ctx context.Context, accountID string) ([]*models.Folder, error) {
	return nil, nil
}

func (r *fakeFolderRepo) UpdateLastSync(ctx context.Context, accountID, name string, at time.Time) error {
	if r.lastSync == nil {
		r.lastSync = make(map[string]time.Time)
	}
	r.lastSync[name] = at
	return nil
}

func (r *fakeFolderRepo) UpdateCounts(ctx context.Context, accountID, name string, unread, total int) error {
	return nil
}

type fakeAccountRepo struct {
	connectionStatus string
	connectionError  string
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *models.Account) error { return nil }
func (r *fakeAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return nil, nil
}
func (r *fakeAccountRepo) GetByEmailAddress(ctx context.Context, address string) (*models.Account, error) {
	return nil, nil
}
func (r *fakeAccountRepo) GetDefault(ctx context.Context) (*models.Account, error) { return nil, nil }
func (r *fakeAccountRepo) ListEnabled(ctx context.Context) ([]*models.Account, error) {
	return nil, nil
}
func (r *fakeAccountRepo) SetDefault(ctx context.Context, id string) error { return nil }
func (r *fakeAccountRepo) Delete(ctx context.Context, id string) error     { return nil }
func (r *fakeAccountRepo) UpdateLastSync(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (r *fakeAccountRepo) UpdateConnectionStatus(ctx context.Context, id, status, errorMessage string) error {
	r.connectionStatus = status
	r.connectionError = errorMessage
	return nil
}

type panickyClassifier struct{}

func (panickyClassifier) ClassifySpam(ctx context.Context, email *models.Email) (*interfaces.SpamVerdict, error) {
	panic("classifier exploded")
}

func rawMsg(uid uint32, content string) *interfaces.RawMessage {
	return &interfaces.RawMessage{
		UID:          uid,
		BodyBytes:    []byte(content),
		InternalDate: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Minute),
	}
}

func testAccount() *models.Account {
	return &models.Account{ID: "acct_1", EmailAddress: "me@example.com"}
}

func newTestOrchestrator(client interfaces.MailClient, parser interfaces.MessageParser, collaborators Collaborators) (*Orchestrator, *fakeEmailRepo, *fakeFolderRepo, *fakeAccountRepo) {
	emailRepo := &fakeEmailRepo{}
	folderRepo := &fakeFolderRepo{}
	accountRepo := &fakeAccountRepo{}
	o := NewOrchestrator(&fakeFactory{client: client}, parser, emailRepo, folderRepo, accountRepo, nil, collaborators, 2)
	return o, emailRepo, folderRepo, accountRepo
}

func TestSyncFolders_Idempotent(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient()
	client.folders["INBOX"] = []*interfaces.RawMessage{rawMsg(1, "m1"), rawMsg(2, "m2")}

	parser := &fakeParser{parsed: map[string]*interfaces.ParsedMessage{
		"m1": {MessageID: "m1@example.com", Subject: "one"},
		"m2": {MessageID: "m2@example.com", Subject: "two"},
	}}

	o, emailRepo, folderRepo, _ := newTestOrchestrator(client, parser, Collaborators{})

	first := o.SyncFolders(ctx, testAccount(), []string{"INBOX"})
	assert.Equal(t, 2, first.TotalNew)
	assert.False(t, first.HasErrors())
	firstSync := folderRepo.lastSync["INBOX"]

	second := o.SyncFolders(ctx, testAccount(), []string{"INBOX"})
	assert.Equal(t, 0, second.TotalNew)
	assert.Len(t, emailRepo.emails, 2)
	assert.False(t, folderRepo.lastSync["INBOX"].Before(firstSync))
}

func TestSyncFolders_WatermarkCriteria(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient()
	client.folders["INBOX"] = []*interfaces.RawMessage{rawMsg(5, "m5"), rawMsg(6, "m6"), rawMsg(7, "m7")}

	parser := &fakeParser{parsed: map[string]*interfaces.ParsedMessage{
		"m5": {MessageID: "m5@example.com"},
		"m6": {MessageID: "m6@example.com"},
		"m7": {MessageID: "m7@example.com"},
	}}

	o, _, _, _ := newTestOrchestrator(client, parser, Collaborators{})

	report := o.SyncFolders(ctx, testAccount(), []string{"INBOX"})
	require.Equal(t, 3, report.TotalNew)
	assert.True(t, client.lastCriteria["INBOX"].All)

	o.SyncFolders(ctx, testAccount(), []string{"INBOX"})
	criteria := client.lastCriteria["INBOX"]
	assert.False(t, criteria.All)
	assert.Equal(t, uint32(8), criteria.UIDFrom)
}

func TestSyncFolders_MessageIDDedupAcrossFolders(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient()
	client.folders["INBOX"] = []*interfaces.RawMessage{rawMsg(1, "m1")}
	client.folders["Archive"] = []*interfaces.RawMessage{rawMsg(9, "m1")}

	parser := &fakeParser{parsed: map[string]*interfaces.ParsedMessage{
		"m1": {MessageID: "same@example.com", Subject: "copied"},
	}}

	o, emailRepo, _, _ := newTestOrchestrator(client, parser, Collaborators{})

	report := o.SyncFolders(ctx, testAccount(), []string{"INBOX", "Archive"})
	assert.Equal(t, 1, report.TotalNew)
	assert.Equal(t, 1, report.Folders["Archive"].SkippedMessages)
	assert.Len(t, emailRepo.emails, 1)
}

func TestSyncFolders_MovedRowClaimsServerUID(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient()
	client.folders["Archive"] = []*interfaces.RawMessage{rawMsg(1, "a1"), rawMsg(2, "moved"), rawMsg(3, "a3")}

	parser := &fakeParser{parsed: map[string]*interfaces.ParsedMessage{
		"a1":    {MessageID: "a1@example.com"},
		"moved": {MessageID: "moved@example.com", Subject: "relocated"},
		"a3":    {MessageID: "a3@example.com"},
	}}

	o, emailRepo, _, _ := newTestOrchestrator(client, parser, Collaborators{})

	// State a local move leaves behind: the row is in the target folder
	// but holds no server identity yet.
	emailRepo.emails = append(emailRepo.emails, &models.Email{
		ID:        "email_moved",
		AccountID: "acct_1",
		Folder:    "Archive",
		UID:       0,
		MessageID: "moved@example.com",
	})

	report := o.SyncFolders(ctx, testAccount(), []string{"Archive"})

	// The parked row must not poison the watermark: all three server
	// UIDs are still requested.
	assert.True(t, client.lastCriteria["Archive"].All)
	assert.Equal(t, 2, report.TotalNew)
	assert.Equal(t, 1, report.Folders["Archive"].SkippedMessages)
	require.Len(t, emailRepo.emails, 3)

	moved, err := emailRepo.GetByID(ctx, "email_moved")
	require.NoError(t, err)
	assert.Equal(t, "Archive", moved.Folder)
	assert.Equal(t, uint32(2), moved.UID)
}

func TestSyncFolders_SentRowsAssignedUIDs(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient()
	client.folders["Sent"] = []*interfaces.RawMessage{rawMsg(11, "s1"), rawMsg(12, "s2"), rawMsg(13, "other")}

	parser := &fakeParser{parsed: map[string]*interfaces.ParsedMessage{
		"s1":    {MessageID: "s1@example.com"},
		"s2":    {MessageID: "s2@example.com"},
		"other": {MessageID: "other@example.com"},
	}}

	o, emailRepo, _, _ := newTestOrchestrator(client, parser, Collaborators{})

	// Two stored outbound rows share UID 0 until the folder sync gives
	// each its server identity.
	emailRepo.emails = append(emailRepo.emails,
		&models.Email{ID: "email_s1", AccountID: "acct_1", Folder: "Sent", UID: 0, MessageID: "s1@example.com"},
		&models.Email{ID: "email_s2", AccountID: "acct_1", Folder: "Sent", UID: 0, MessageID: "s2@example.com"},
	)

	report := o.SyncFolders(ctx, testAccount(), []string{"Sent"})
	assert.Equal(t, 1, report.TotalNew)
	assert.Equal(t, 2, report.Folders["Sent"].SkippedMessages)
	require.Len(t, emailRepo.emails, 3)

	s1, _ := emailRepo.GetByID(ctx, "email_s1")
	s2, _ := emailRepo.GetByID(ctx, "email_s2")
	assert.Equal(t, uint32(11), s1.UID)
	assert.Equal(t, uint32(12), s2.UID)
}

func TestSyncFolders_ParkedRowNotClaimedByOtherFolder(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient()
	client.folders["INBOX"] = []*interfaces.RawMessage{rawMsg(4, "copy")}

	parser := &fakeParser{parsed: map[string]*interfaces.ParsedMessage{
		"copy": {MessageID: "dup@example.com"},
	}}

	o, emailRepo, _, _ := newTestOrchestrator(client, parser, Collaborators{})

	emailRepo.emails = append(emailRepo.emails, &models.Email{
		ID:        "email_parked",
		AccountID: "acct_1",
		Folder:    "Archive",
		UID:       0,
		MessageID: "dup@example.com",
	})

	report := o.SyncFolders(ctx, testAccount(), []string{"INBOX"})
	assert.Equal(t, 0, report.TotalNew)
	assert.Equal(t, 1, report.Folders["INBOX"].SkippedMessages)

	parked, _ := emailRepo.GetByID(ctx, "email_parked")
	assert.Equal(t, "Archive", parked.Folder)
	assert.Equal(t, uint32(0), parked.UID)
}

func TestSyncFolders_SyntheticMessageID(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient()
	client.folders["INBOX"] = []*interfaces.RawMessage{rawMsg(1, "blank1"), rawMsg(2, "blank2")}

	parser := &fakeParser{parsed: map[string]*interfaces.ParsedMessage{
		"blank1": {Subject: "no id"},
		"blank2": {Subject: "no id either"},
	}}

	o, emailRepo, _, _ := newTestOrchestrator(client, parser, Collaborators{})

	report := o.SyncFolders(ctx, testAccount(), []string{"INBOX"})
	assert.Equal(t, 2, report.TotalNew)
	require.Len(t, emailRepo.emails, 2)
	for _, email := range emailRepo.emails {
		assert.True(t, email.SyntheticID)
		assert.NotEmpty(t, email.MessageID)
	}
	assert.NotEqual(t, emailRepo.emails[0].MessageID, emailRepo.emails[1].MessageID)
}

func TestSyncFolders_ParseFailureIsolated(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient()
	client.folders["INBOX"] = []*interfaces.RawMessage{
		rawMsg(1, "m1"), rawMsg(2, "m2"), rawMsg(3, "m3"), rawMsg(4, "m4"), rawMsg(5, "m5"),
	}

	parser := &fakeParser{
		parsed: map[string]*interfaces.ParsedMessage{
			"m1": {MessageID: "m1@example.com"},
			"m2": {MessageID: "m2@example.com"},
			"m4": {MessageID: "m4@example.com"},
			"m5": {MessageID: "m5@example.com"},
		},
		failOn: map[string]bool{"m3": true},
	}

	o, emailRepo, _, _ := newTestOrchestrator(client, parser, Collaborators{})

	report := o.SyncFolders(ctx, testAccount(), []string{"INBOX"})
	assert.Equal(t, 4, report.TotalNew)
	assert.Equal(t, 1, report.TotalFailed)
	assert.Empty(t, report.Folders["INBOX"].Error)
	assert.Len(t, emailRepo.emails, 4)
}

func TestSyncFolders_FolderFailureIsolated(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient()
	client.folders["Broken"] = []*interfaces.RawMessage{rawMsg(1, "m1")}
	client.folders["INBOX"] = []*interfaces.RawMessage{rawMsg(1, "m2")}
	client.failOpenFolder["Broken"] = true

	parser := &fakeParser{parsed: map[string]*interfaces.ParsedMessage{
		"m1": {MessageID: "m1@example.com"},
		"m2": {MessageID: "m2@example.com"},
	}}

	o, emailRepo, folderRepo, _ := newTestOrchestrator(client, parser, Collaborators{})

	report := o.SyncFolders(ctx, testAccount(), []string{"Broken", "INBOX"})
	assert.True(t, report.HasErrors())
	assert.NotEmpty(t, report.Folders["Broken"].Error)
	assert.Equal(t, 1, report.Folders["INBOX"].NewMessages)
	assert.Len(t, emailRepo.emails, 1)

	// A failed folder never advances its display watermark.
	_, broken := folderRepo.lastSync["Broken"]
	assert.False(t, broken)
	_, inbox := folderRepo.lastSync["INBOX"]
	assert.True(t, inbox)
}

func TestSyncFolders_CollaboratorPanicIsolated(t *testing.T) {
	ctx := context.Background()
	client := newFakeMailClient()
	client.folders["INBOX"] = []*interfaces.RawMessage{rawMsg(1, "m1")}

	parser := &fakeParser{parsed: map[string]*interfaces.ParsedMessage{
		"m1": {MessageID: "m1@example.com"},
	}}

	o, emailRepo, _, _ := newTestOrchestrator(client, parser, Collaborators{SpamClassifier: panickyClassifier{}})

	report := o.SyncFolders(ctx, testAccount(), []string{"INBOX"})
	assert.Equal(t, 1, report.TotalNew)
	assert.False(t, report.HasErrors())
	assert.Len(t, emailRepo.emails, 1)
}

func TestSyncFolders_ConnectFailureRecorded(t *testing.T) {
	ctx := context.Background()
	factory := &fakeFactory{connectErr: mmerrors.Authentication(errors.New("bad credentials"))}

	emailRepo := &fakeEmailRepo{}
	accountRepo := &fakeAccountRepo{}
	o := NewOrchestrator(factory, &fakeParser{}, emailRepo, &fakeFolderRepo{}, accountRepo, nil, Collaborators{}, 0)

	report := o.SyncFolders(ctx, testAccount(), []string{"INBOX"})
	assert.True(t, report.HasErrors())
	assert.Empty(t, emailRepo.emails)
	assert.Equal(t, "not_active", accountRepo.connectionStatus)
	assert.Contains(t, accountRepo.connectionError, "bad credentials")
}
