package sync

// FolderResult is the outcome of one folder's portion of a sync run. A
// non-empty Error means the folder was aborted partway; other folders
// still ran.
type FolderResult struct {
	NewMessages     int    `json:"newMessages"`
	SkippedMessages int    `json:"skippedMessages"`
	FailedMessages  int    `json:"failedMessages"`
	Error           string `json:"error,omitempty"`
}

// SyncReport is the structured outcome of one account run. Partial
// progress is the expected result of a degraded run; nothing is rolled
// back when some folders fail.
type SyncReport struct {
	AccountID     string                  `json:"accountId"`
	Folders       map[string]FolderResult `json:"folders"`
	TotalNew      int                     `json:"totalNew"`
	TotalFailed   int                     `json:"totalFailed"`
	SpamFlagged   int                     `json:"spamFlagged"`
	FilterMatched int                     `json:"filterMatched"`
}

func NewSyncReport(accountID string) *SyncReport {
	return &SyncReport{
		AccountID: accountID,
		Folders:   make(map[string]FolderResult),
	}
}

func (r *SyncReport) recordFolder(name string, result FolderResult) {
	r.Folders[name] = result
	r.TotalNew += result.NewMessages
	r.TotalFailed += result.FailedMessages
}

// HasErrors reports whether any folder failed.
func (r *SyncReport) HasErrors() bool {
	for _, folder := range r.Folders {
		if folder.Error != "" {
			return true
		}
	}
	return false
}
