package threading

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/utils"
)

func testEmail(id, messageID, subject string, sentAt time.Time) *models.Email {
	return &models.Email{
		ID:           id,
		MessageID:    messageID,
		Subject:      subject,
		CleanSubject: utils.NormalizeEmailSubject(subject),
		SentAt:       &sentAt,
	}
}

func relationshipFor(t *testing.T, relationships []Relationship, emailID string) Relationship {
	t.Helper()
	for _, rel := range relationships {
		if rel.EmailID == emailID {
			return rel
		}
	}
	t.Fatalf("no relationship for %s", emailID)
	return Relationship{}
}

func TestAnalyzeRelationships_InReplyToWinsOverReferences(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	a := testEmail("email_a", "a@example.com", "Planning", base)
	c := testEmail("email_c", "c@example.com", "Planning", base.Add(time.Hour))
	b := testEmail("email_b", "b@example.com", "Re: Planning", base.Add(2*time.Hour))
	b.InReplyTo = "a@example.com"
	b.References = pq.StringArray{"c@example.com"}

	relationships := AnalyzeRelationships([]*models.Email{a, b, c})

	rel := relationshipFor(t, relationships, "email_b")
	assert.Equal(t, "email_a", rel.ParentID)
	assert.Equal(t, MethodInReplyTo, rel.Method)
	assert.Equal(t, 1.0, rel.Confidence)
}

func TestAnalyzeRelationships_ReferencesScannedLastToFirst(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	root := testEmail("email_root", "root@example.com", "Planning", base)
	mid := testEmail("email_mid", "mid@example.com", "Re: Planning", base.Add(time.Hour))
	leaf := testEmail("email_leaf", "leaf@example.com", "Re: Planning", base.Add(2*time.Hour))
	leaf.References = pq.StringArray{"root@example.com", "mid@example.com", "gone@example.com"}

	relationships := AnalyzeRelationships([]*models.Email{root, mid, leaf})

	rel := relationshipFor(t, relationships, "email_leaf")
	assert.Equal(t, "email_mid", rel.ParentID)
	assert.Equal(t, MethodReferences, rel.Method)
	assert.Equal(t, 0.9, rel.Confidence)
}

func TestAnalyzeRelationships_SubjectFallback(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	original := testEmail("email_1", "one@example.com", "Project Update", base)
	reply := testEmail("email_2", "two@example.com", "RE: Project Updates", base.Add(time.Hour))
	unrelated := testEmail("email_3", "three@example.com", "Budget Review", base.Add(2*time.Hour))

	relationships := AnalyzeRelationships([]*models.Email{original, reply, unrelated})

	require.Len(t, relationships, 1)
	rel := relationships[0]
	assert.Equal(t, "email_2", rel.EmailID)
	assert.Equal(t, "email_1", rel.ParentID)
	assert.Equal(t, MethodSubjectSimilarity, rel.Method)
	assert.Less(t, rel.Confidence, 0.71)
	assert.Greater(t, rel.Confidence, 0.55)
}

func TestAnalyzeRelationships_SubjectFallbackOnlyOlderCandidates(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	later := testEmail("email_later", "later@example.com", "Project Update", base.Add(time.Hour))
	earlier := testEmail("email_earlier", "earlier@example.com", "Project Update", base)

	relationships := AnalyzeRelationships([]*models.Email{later, earlier})

	require.Len(t, relationships, 1)
	assert.Equal(t, "email_later", relationships[0].EmailID)
	assert.Equal(t, "email_earlier", relationships[0].ParentID)
}

func TestBuildThreads_ForestShapeAndDepths(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	root := testEmail("email_root", "root@example.com", "Planning", base)
	replyA := testEmail("email_a", "a@example.com", "Re: Planning", base.Add(2*time.Hour))
	replyA.InReplyTo = "root@example.com"
	replyB := testEmail("email_b", "b@example.com", "Re: Planning", base.Add(time.Hour))
	replyB.InReplyTo = "root@example.com"
	nested := testEmail("email_n", "n@example.com", "Re: Planning", base.Add(3*time.Hour))
	nested.InReplyTo = "a@example.com"
	loner := testEmail("email_loner", "loner@example.com", "Totally different", base.Add(4*time.Hour))

	emails := []*models.Email{root, replyA, replyB, nested, loner}
	roots := BuildThreads(emails, AnalyzeRelationships(emails))

	require.Len(t, roots, 2)
	// Most recent activity sorts first: loner (4h) beats the planning
	// thread whose newest message is nested (3h).
	assert.Equal(t, "email_loner", roots[0].Email.ID)
	planning := roots[1]
	assert.Equal(t, "email_root", planning.Email.ID)

	// Children ascend by date.
	require.Len(t, planning.Children, 2)
	assert.Equal(t, "email_b", planning.Children[0].Email.ID)
	assert.Equal(t, "email_a", planning.Children[1].Email.ID)

	require.Len(t, planning.Children[1].Children, 1)
	assert.Equal(t, "email_n", planning.Children[1].Children[0].Email.ID)
	assert.Equal(t, 0, planning.Depth)
	assert.Equal(t, 1, planning.Children[0].Depth)
	assert.Equal(t, 2, planning.Children[1].Children[0].Depth)
}

func TestBuildThreads_OrphanParentBecomesRoot(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	orphan := testEmail("email_orphan", "orphan@example.com", "Hello", base)
	orphan.InReplyTo = "never-stored@example.com"

	emails := []*models.Email{orphan}
	roots := BuildThreads(emails, AnalyzeRelationships(emails))

	require.Len(t, roots, 1)
	assert.Equal(t, "email_orphan", roots[0].Email.ID)
}

func TestBuildThreads_ReferenceCycleTerminates(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	a := testEmail("email_a", "a@example.com", "Loop", base)
	a.InReplyTo = "b@example.com"
	b := testEmail("email_b", "b@example.com", "Loop", base.Add(time.Hour))
	b.InReplyTo = "a@example.com"

	emails := []*models.Email{a, b}
	done := make(chan []*ThreadNode, 1)
	go func() {
		done <- BuildThreads(emails, AnalyzeRelationships(emails))
	}()

	select {
	case roots := <-done:
		require.Len(t, roots, 1)
		require.Len(t, roots[0].Children, 1)
		assert.NotEqual(t, roots[0].Email.ID, roots[0].Children[0].Email.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("thread building did not terminate on a reference cycle")
	}
}

func TestFlattenThread_DepthFirstRootFirst(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	root := testEmail("email_root", "root@example.com", "Planning", base)
	reply := testEmail("email_reply", "reply@example.com", "Re: Planning", base.Add(time.Hour))
	reply.InReplyTo = "root@example.com"
	nested := testEmail("email_nested", "nested@example.com", "Re: Planning", base.Add(2*time.Hour))
	nested.InReplyTo = "reply@example.com"

	emails := []*models.Email{root, reply, nested}
	roots := BuildThreads(emails, AnalyzeRelationships(emails))
	require.Len(t, roots, 1)

	flat := FlattenThread(roots[0])
	require.Len(t, flat, 3)
	assert.Equal(t, "email_root", flat[0].ID)
	assert.Equal(t, "email_reply", flat[1].ID)
	assert.Equal(t, "email_nested", flat[2].ID)
}

func TestGetThreadStats(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	root := testEmail("email_root", "root@example.com", "Planning", base)
	root.FromAddress = "alice@example.com"
	root.ToAddresses = pq.StringArray{"bob@example.com"}
	root.IsRead = true

	reply := testEmail("email_reply", "reply@example.com", "Re: Planning", base.Add(time.Hour))
	reply.InReplyTo = "root@example.com"
	reply.FromAddress = "bob@example.com"
	reply.ToAddresses = pq.StringArray{"alice@example.com"}

	emails := []*models.Email{root, reply}
	roots := BuildThreads(emails, AnalyzeRelationships(emails))
	require.Len(t, roots, 1)

	stats := GetThreadStats(roots[0])
	assert.Equal(t, 2, stats.MessageCount)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, stats.Participants)
	assert.Equal(t, base, stats.FirstDate)
	assert.Equal(t, base.Add(time.Hour), stats.LastDate)
	assert.True(t, stats.HasUnread)
	assert.Equal(t, 1, stats.Depth)
}

func TestThreadAssignments(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	root := testEmail("email_root", "root@example.com", "Planning", base)
	reply := testEmail("email_reply", "reply@example.com", "Re: Planning", base.Add(time.Hour))
	reply.InReplyTo = "root@example.com"
	loner := testEmail("email_loner", "loner@example.com", "Other", base)

	emails := []*models.Email{root, reply, loner}
	roots := BuildThreads(emails, AnalyzeRelationships(emails))

	assignments := ThreadAssignments(roots)
	assert.Equal(t, "email_root", assignments["email_root"])
	assert.Equal(t, "email_root", assignments["email_reply"])
	assert.Equal(t, "email_loner", assignments["email_loner"])
}
