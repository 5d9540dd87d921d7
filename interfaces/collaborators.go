package interfaces

import (
	"context"

	"github.com/mailmirror/mailmirror/internal/models"
)

type SpamVerdict struct {
	IsSpam  bool
	Score   float64
	Reasons []string
}

// SpamClassifier scores a newly stored message. Failures are logged and
// swallowed by the caller; a classifier error never unsaves a message.
type SpamClassifier interface {
	ClassifySpam(ctx context.Context, email *models.Email) (*SpamVerdict, error)
}

type FilterResult struct {
	Matched        bool
	AppliedActions []string
}

type FilterEngine interface {
	ApplyFilters(ctx context.Context, email *models.Email) (*FilterResult, error)
}

// ContactCollector and Notifier are fire-and-forget collaborators.
type ContactCollector interface {
	AutoCollect(ctx context.Context, emailAddress string) error
}

type Notifier interface {
	Notify(ctx context.Context, email *models.Email) error
}
