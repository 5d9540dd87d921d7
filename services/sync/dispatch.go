package sync

import (
	"context"
	"log"
	"strings"

	"github.com/mailmirror/mailmirror/internal/enum"
	"github.com/mailmirror/mailmirror/internal/models"
)

// dispatchCollaborators fans a newly stored message out to the optional
// downstream consumers. Every call is guarded: a collaborator panic or
// error is logged and swallowed, never unsaving the message or failing
// the sync.
func (o *Orchestrator) dispatchCollaborators(ctx context.Context, email *models.Email) (spamFlagged, filterMatched bool) {
	if o.collaborators.SpamClassifier != nil {
		safeDispatch(email, "spam classifier", func() error {
			verdict, err := o.collaborators.SpamClassifier.ClassifySpam(ctx, email)
			if err != nil {
				return err
			}
			if verdict != nil && verdict.IsSpam {
				spamFlagged = true
				email.IsSpam = true
				email.Classification = enum.EmailSpam
				email.ClassificationReason = strings.Join(verdict.Reasons, "; ")
				return o.emailRepo.Update(ctx, email)
			}
			return nil
		})
	}

	if o.collaborators.FilterEngine != nil {
		safeDispatch(email, "filter engine", func() error {
			result, err := o.collaborators.FilterEngine.ApplyFilters(ctx, email)
			if err != nil {
				return err
			}
			if result != nil && result.Matched {
				filterMatched = true
			}
			return nil
		})
	}

	if o.collaborators.ContactCollector != nil {
		safeDispatch(email, "contact collector", func() error {
			if email.FromAddress == "" {
				return nil
			}
			return o.collaborators.ContactCollector.AutoCollect(ctx, email.FromAddress)
		})
	}

	if o.collaborators.Notifier != nil {
		safeDispatch(email, "notifier", func() error {
			return o.collaborators.Notifier.Notify(ctx, email)
		})
	}

	return spamFlagged, filterMatched
}

func safeDispatch(email *models.Email, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s][%s] %s panicked on %s: %v", email.AccountID, email.Folder, name, email.ID, r)
		}
	}()
	if err := fn(); err != nil {
		log.Printf("[%s][%s] %s failed on %s: %v", email.AccountID, email.Folder, name, email.ID, err)
	}
}
