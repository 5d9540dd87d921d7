package imap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"

	"github.com/mailmirror/mailmirror/interfaces"
	mmerrors "github.com/mailmirror/mailmirror/internal/errors"
	"github.com/mailmirror/mailmirror/internal/models"
)

const (
	selectTimeout = 30 * time.Second
	searchTimeout = 30 * time.Second
	fetchTimeout  = 60 * time.Second
)

// mailClient implements interfaces.MailClient on top of go-imap. The
// library streams fetched messages over a channel; FetchBatch drains that
// channel into complete RawMessages before returning, so callers get a
// plain synchronous batch.
type mailClient struct {
	account *models.Account
	c       *client.Client
}

func NewMailClient(account *models.Account) interfaces.MailClient {
	return &mailClient{account: account}
}

// Factory opening one fresh session per sync run.
type clientFactory struct {
	accounts map[string]*models.Account
}

func NewClientFactory(accounts []*models.Account) interfaces.MailClientFactory {
	byID := make(map[string]*models.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	return &clientFactory{accounts: byID}
}

func (f *clientFactory) NewClient(accountID string) (interfaces.MailClient, error) {
	account, ok := f.accounts[accountID]
	if !ok {
		return nil, errors.Errorf("unknown account: %s", accountID)
	}
	return NewMailClient(account), nil
}

// Factory resolving accounts through the store, so accounts added after
// startup are picked up without a restart.
type repositoryClientFactory struct {
	accountRepo interfaces.AccountRepository
}

func NewRepositoryClientFactory(accountRepo interfaces.AccountRepository) interfaces.MailClientFactory {
	return &repositoryClientFactory{accountRepo: accountRepo}
}

func (f *repositoryClientFactory) NewClient(accountID string) (interfaces.MailClient, error) {
	account, err := f.accountRepo.GetByID(context.Background(), accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, mmerrors.ErrAccountNotFound
	}
	return NewMailClient(account), nil
}

func (m *mailClient) Connect(ctx context.Context) error {
	c, err := connect(ctx, m.account)
	if err != nil {
		return err
	}
	m.c = c
	return nil
}

func (m *mailClient) Disconnect() error {
	if m.c == nil {
		return nil
	}
	m.c.Timeout = 5 * time.Second
	err := m.c.Logout()
	m.c = nil
	return err
}

func (m *mailClient) ListFolders(ctx context.Context) ([]interfaces.FolderInfo, error) {
	if m.c == nil {
		return nil, mmerrors.ErrNotConnected
	}

	m.c.Timeout = selectTimeout
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- m.c.List("", "*", mailboxes)
	}()

	var folders []interfaces.FolderInfo
	for mb := range mailboxes {
		folders = append(folders, interfaces.FolderInfo{
			Name:      mb.Name,
			Delimiter: mb.Delimiter,
			Flags:     mb.Attributes,
		})
	}

	m.c.Timeout = 0
	if err := <-done; err != nil {
		return nil, mmerrors.Connection(fmt.Errorf("error listing folders: %w", err))
	}
	return folders, nil
}

func (m *mailClient) OpenFolder(ctx context.Context, name string, readOnly bool) (*interfaces.FolderStatus, error) {
	if m.c == nil {
		return nil, mmerrors.ErrNotConnected
	}

	m.c.Timeout = selectTimeout
	mbox, err := m.c.Select(name, readOnly)
	m.c.Timeout = 0
	if err != nil {
		return nil, mmerrors.Connection(fmt.Errorf("error selecting folder %s: %w", name, err))
	}

	return &interfaces.FolderStatus{
		TotalMessages:  mbox.Messages,
		UnseenMessages: mbox.Unseen,
		UIDValidity:    mbox.UidValidity,
	}, nil
}

func (m *mailClient) Search(ctx context.Context, criteria interfaces.SearchCriteria) ([]uint32, error) {
	if m.c == nil {
		return nil, mmerrors.ErrNotConnected
	}

	imapCriteria := imap.NewSearchCriteria()
	if !criteria.All {
		// UIDFrom:* — the watermark boundary itself is never re-requested.
		seqSet := new(imap.SeqSet)
		seqSet.AddRange(criteria.UIDFrom, 0)
		imapCriteria.Uid = seqSet
	}

	m.c.Timeout = searchTimeout
	uids, err := m.c.UidSearch(imapCriteria)
	m.c.Timeout = 0
	if err != nil {
		return nil, mmerrors.Connection(fmt.Errorf("error searching messages: %w", err))
	}
	return uids, nil
}

func (m *mailClient) FetchBatch(ctx context.Context, uids []uint32, opts interfaces.FetchOptions) ([]*interfaces.RawMessage, error) {
	if m.c == nil {
		return nil, mmerrors.ErrNotConnected
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	headerSection := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchInternalDate,
		headerSection.FetchItem(),
	}

	var bodySection *imap.BodySectionName
	if opts.FetchBody {
		bodySection = &imap.BodySectionName{Peek: true}
		items = append(items, bodySection.FetchItem())
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	m.c.Timeout = fetchTimeout
	go func() {
		done <- m.c.UidFetch(seqSet, items, messages)
	}()

	var out []*interfaces.RawMessage
	for msg := range messages {
		raw := &interfaces.RawMessage{
			UID:          msg.Uid,
			Flags:        msg.Flags,
			InternalDate: msg.InternalDate,
		}
		if lit := msg.GetBody(headerSection); lit != nil {
			if data, err := io.ReadAll(lit); err == nil {
				raw.HeaderBytes = data
			}
		}
		if bodySection != nil {
			if lit := msg.GetBody(bodySection); lit != nil {
				if data, err := io.ReadAll(lit); err == nil {
					raw.BodyBytes = data
				}
			}
		}
		out = append(out, raw)
	}

	m.c.Timeout = 0
	if err := <-done; err != nil {
		return nil, mmerrors.Connection(fmt.Errorf("fetch error: %w", err))
	}
	return out, nil
}

func (m *mailClient) Move(ctx context.Context, uids []uint32, targetFolder string) error {
	if m.c == nil {
		return mmerrors.ErrNotConnected
	}
	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}
	if err := m.c.UidMove(seqSet, targetFolder); err != nil {
		return mmerrors.Connection(fmt.Errorf("error moving messages to %s: %w", targetFolder, err))
	}
	return nil
}

func (m *mailClient) Copy(ctx context.Context, uids []uint32, targetFolder string) error {
	if m.c == nil {
		return mmerrors.ErrNotConnected
	}
	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}
	if err := m.c.UidCopy(seqSet, targetFolder); err != nil {
		return mmerrors.Connection(fmt.Errorf("error copying messages to %s: %w", targetFolder, err))
	}
	return nil
}

func (m *mailClient) Delete(ctx context.Context, uids []uint32) error {
	if m.c == nil {
		return mmerrors.ErrNotConnected
	}
	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	storeItem := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := m.c.UidStore(seqSet, storeItem, flags, nil); err != nil {
		return mmerrors.Connection(fmt.Errorf("error flagging messages deleted: %w", err))
	}
	if err := m.c.Expunge(nil); err != nil {
		return mmerrors.Connection(fmt.Errorf("error expunging messages: %w", err))
	}
	return nil
}

func (m *mailClient) Append(ctx context.Context, folder string, raw []byte, flags []string) error {
	if m.c == nil {
		return mmerrors.ErrNotConnected
	}
	if err := m.c.Append(folder, flags, time.Now(), bytes.NewReader(raw)); err != nil {
		return mmerrors.Connection(fmt.Errorf("error appending message to %s: %w", folder, err))
	}
	return nil
}
