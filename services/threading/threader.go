package threading

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/utils"
)

const (
	MethodInReplyTo         = "in-reply-to"
	MethodReferences        = "references"
	MethodSubjectSimilarity = "subject-similarity"

	// Subject similarity below this never links.
	subjectSimilarityThreshold = 0.80
)

// Relationship is a derived parent link between two stored messages.
// Confidence reflects the linking method, not a combined score.
type Relationship struct {
	EmailID    string
	ParentID   string
	Confidence float64
	Method     string
}

type ThreadNode struct {
	Email    *models.Email
	Children []*ThreadNode
	Depth    int
}

type ThreadStats struct {
	MessageCount int
	Participants []string
	FirstDate    time.Time
	LastDate     time.Time
	HasUnread    bool
	Depth        int
}

// AnalyzeRelationships resolves at most one parent per message. Tiers are
// strict priority: an In-Reply-To match wins outright, then the References
// chain scanned from its last entry backward, then subject similarity over
// strictly older messages. A message matching no tier becomes a root.
func AnalyzeRelationships(emails []*models.Email) []Relationship {
	byMessageID := make(map[string]*models.Email, len(emails))
	for _, email := range emails {
		if email.MessageID != "" {
			byMessageID[email.MessageID] = email
		}
	}

	var relationships []Relationship
	for _, email := range emails {
		if rel, ok := resolveParent(email, emails, byMessageID); ok {
			relationships = append(relationships, rel)
		}
	}
	return relationships
}

func resolveParent(email *models.Email, emails []*models.Email, byMessageID map[string]*models.Email) (Relationship, bool) {
	if email.InReplyTo != "" {
		if parent, ok := byMessageID[email.InReplyTo]; ok && parent.ID != email.ID {
			return Relationship{
				EmailID:    email.ID,
				ParentID:   parent.ID,
				Confidence: 1.0,
				Method:     MethodInReplyTo,
			}, true
		}
	}

	// Most recent ancestor first.
	for i := len(email.References) - 1; i >= 0; i-- {
		if parent, ok := byMessageID[email.References[i]]; ok && parent.ID != email.ID {
			return Relationship{
				EmailID:    email.ID,
				ParentID:   parent.ID,
				Confidence: 0.9,
				Method:     MethodReferences,
			}, true
		}
	}

	return resolveBySubject(email, emails)
}

func resolveBySubject(email *models.Email, emails []*models.Email) (Relationship, bool) {
	subject := normalizedSubject(email)
	if subject == "" {
		return Relationship{}, false
	}

	var best *models.Email
	bestScore := 0.0
	for _, candidate := range emails {
		if candidate.ID == email.ID || !candidate.Date().Before(email.Date()) {
			continue
		}
		score := SubjectSimilarity(subject, normalizedSubject(candidate))
		if score >= subjectSimilarityThreshold && score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	if best == nil {
		return Relationship{}, false
	}
	return Relationship{
		EmailID:    email.ID,
		ParentID:   best.ID,
		Confidence: bestScore * 0.7,
		Method:     MethodSubjectSimilarity,
	}, true
}

func normalizedSubject(email *models.Email) string {
	subject := email.CleanSubject
	if subject == "" {
		subject = utils.NormalizeEmailSubject(email.Subject)
	}
	return strings.ToLower(subject)
}

// SubjectSimilarity scores two normalized subjects in [0,1] as
// 1 - distance/max(len), measured in runes.
func SubjectSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	maxLen := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(maxLen)
}

// BuildThreads assembles the conversation forest. A message whose resolved
// parent is missing from the working set becomes a root. Visited tracking
// stops reference cycles from looping forever.
func BuildThreads(emails []*models.Email, relationships []Relationship) []*ThreadNode {
	nodes := make(map[string]*ThreadNode, len(emails))
	for _, email := range emails {
		nodes[email.ID] = &ThreadNode{Email: email}
	}

	parentOf := make(map[string]string, len(relationships))
	for _, rel := range relationships {
		if _, ok := nodes[rel.ParentID]; ok {
			parentOf[rel.EmailID] = rel.ParentID
		}
	}

	var roots []*ThreadNode
	for _, email := range emails {
		node := nodes[email.ID]
		if createsCycle(email.ID, parentOf) {
			// Break the loop here; the rest of the chain keeps its links.
			delete(parentOf, email.ID)
		}
		parentID, hasParent := parentOf[email.ID]
		if !hasParent {
			roots = append(roots, node)
			continue
		}
		parent := nodes[parentID]
		parent.Children = append(parent.Children, node)
	}

	for _, root := range roots {
		setDepths(root, 0, make(map[string]bool))
	}

	for _, node := range nodes {
		sort.SliceStable(node.Children, func(i, j int) bool {
			return node.Children[i].Email.Date().Before(node.Children[j].Email.Date())
		})
	}

	sort.SliceStable(roots, func(i, j int) bool {
		return latestDate(roots[i], make(map[string]bool)).After(latestDate(roots[j], make(map[string]bool)))
	})
	return roots
}

// createsCycle walks the parent chain from the given node and reports
// whether it revisits a node before reaching a root.
func createsCycle(emailID string, parentOf map[string]string) bool {
	visited := map[string]bool{emailID: true}
	current := emailID
	for {
		parent, ok := parentOf[current]
		if !ok {
			return false
		}
		if visited[parent] {
			return true
		}
		visited[parent] = true
		current = parent
	}
}

func setDepths(node *ThreadNode, depth int, visited map[string]bool) {
	if visited[node.Email.ID] {
		return
	}
	visited[node.Email.ID] = true
	node.Depth = depth
	for _, child := range node.Children {
		setDepths(child, depth+1, visited)
	}
}

func latestDate(node *ThreadNode, visited map[string]bool) time.Time {
	if visited[node.Email.ID] {
		return time.Time{}
	}
	visited[node.Email.ID] = true

	latest := node.Email.Date()
	for _, child := range node.Children {
		if childLatest := latestDate(child, visited); childLatest.After(latest) {
			latest = childLatest
		}
	}
	return latest
}

// FlattenThread returns the subtree in depth-first order, root first.
func FlattenThread(node *ThreadNode) []*models.Email {
	return flatten(node, make(map[string]bool))
}

func flatten(node *ThreadNode, visited map[string]bool) []*models.Email {
	if visited[node.Email.ID] {
		return nil
	}
	visited[node.Email.ID] = true

	out := []*models.Email{node.Email}
	for _, child := range node.Children {
		out = append(out, flatten(child, visited)...)
	}
	return out
}

// GetThreadStats summarizes one conversation subtree.
func GetThreadStats(node *ThreadNode) ThreadStats {
	emails := FlattenThread(node)

	stats := ThreadStats{MessageCount: len(emails)}
	var participants []string
	for _, email := range emails {
		participants = append(participants, email.AllParticipants()...)
		date := email.Date()
		if stats.FirstDate.IsZero() || date.Before(stats.FirstDate) {
			stats.FirstDate = date
		}
		if date.After(stats.LastDate) {
			stats.LastDate = date
		}
		if !email.IsRead {
			stats.HasUnread = true
		}
	}
	stats.Participants = utils.UniqueEmails(participants)
	stats.Depth = maxDepth(node, make(map[string]bool))
	return stats
}

func maxDepth(node *ThreadNode, visited map[string]bool) int {
	if visited[node.Email.ID] {
		return node.Depth
	}
	visited[node.Email.ID] = true

	deepest := node.Depth
	for _, child := range node.Children {
		if d := maxDepth(child, visited); d > deepest {
			deepest = d
		}
	}
	return deepest
}

// ThreadAssignments maps every message in the forest to its root's ID,
// suitable for persisting as thread_id.
func ThreadAssignments(roots []*ThreadNode) map[string]string {
	assignments := make(map[string]string)
	for _, root := range roots {
		for _, email := range FlattenThread(root) {
			assignments[email.ID] = root.Email.ID
		}
	}
	return assignments
}
