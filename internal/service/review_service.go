package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/caseforge/caseforge/internal/domain"
	"github.com/caseforge/caseforge/internal/insights"
	"github.com/caseforge/caseforge/internal/jira"
	"github.com/caseforge/caseforge/internal/notify"
	"github.com/caseforge/caseforge/internal/store"
	"github.com/caseforge/caseforge/internal/workflow"
)

// Tracker is the slice of the Jira client the review workflow needs.
type Tracker interface {
	Me(ctx context.Context) (*jira.User, error)
	WaitForConnection(ctx context.Context) (*jira.User, error)
	Projects(ctx context.Context) ([]domain.JiraProject, error)
	IssueTypes(ctx context.Context, projectID string) ([]domain.JiraIssueType, error)
	BulkCreate(ctx context.Context, issues []jira.IssueInput) (*jira.BulkResult, error)
	Token() *oauth2.Token
}

// TrackerFactory builds a Tracker for one user's token.
type TrackerFactory func(token *oauth2.Token) Tracker

// ReviewSession is one live walk through the review-and-export workflow.
// Its state is discarded when the session is closed or the process exits.
// The machine is mutated by concurrent request goroutines (workflow
// actions, the status poll, the OAuth callback), so every access goes
// through the session lock.
type ReviewSession struct {
	ID     string
	ChatID string
	UserID string

	mu      sync.Mutex
	machine *workflow.Machine
}

// SessionState is the wire representation of a session. The machine is a
// deep copy, so marshaling never races with in-flight workflow actions.
type SessionState struct {
	ID      string            `json:"id"`
	ChatID  string            `json:"chat_id"`
	UserID  string            `json:"user_id"`
	Machine *workflow.Machine `json:"machine"`
}

// State snapshots the session for serialization.
func (s *ReviewSession) State() *SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &SessionState{
		ID:      s.ID,
		ChatID:  s.ChatID,
		UserID:  s.UserID,
		Machine: s.machine.Clone(),
	}
}

// ReviewService owns review sessions and the per-user Jira tokens, and
// drives the workflow machine in response to user actions.
type ReviewService struct {
	store      *store.Store
	oauth      *oauth2.Config
	newTracker TrackerFactory
	notifier   notify.Notifier
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*ReviewSession
	tokens   map[string]*oauth2.Token
}

// NewReviewService creates a new review service
func NewReviewService(
	st *store.Store,
	oauthCfg *oauth2.Config,
	newTracker TrackerFactory,
	notifier notify.Notifier,
	logger *zap.Logger,
) *ReviewService {
	return &ReviewService{
		store:      st,
		oauth:      oauthCfg,
		newTracker: newTracker,
		notifier:   notifier,
		logger:     logger,
		sessions:   make(map[string]*ReviewSession),
		tokens:     make(map[string]*oauth2.Token),
	}
}

// CreateSession opens a review session over one chat's generated
// categories, starting at category selection.
func (s *ReviewService) CreateSession(chatID, userID string) (*ReviewSession, error) {
	if s.store.Chat(chatID) == nil {
		return nil, domain.ErrNotFound
	}

	session := &ReviewSession{
		ID:      uuid.New().String(),
		ChatID:  chatID,
		UserID:  userID,
		machine: workflow.New(),
	}
	session.machine.SetJiraConnected(s.hasToken(userID))

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return session, nil
}

// Session returns a live session by id.
func (s *ReviewService) Session(sessionID string) (*ReviewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return session, nil
}

// CloseSession discards a session's workflow state.
func (s *ReviewService) CloseSession(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// SelectCategory picks a category and advances the machine to review,
// snapshotting the category's current cases.
func (s *ReviewService) SelectCategory(sessionID, categoryID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	cat := s.store.Category(categoryID)
	if cat == nil || cat.ChatID != session.ChatID {
		return domain.ErrNotFound
	}
	cases := s.store.CasesForCategory(categoryID)

	session.mu.Lock()
	session.machine.SelectCategory(cat, cases)
	session.mu.Unlock()
	return nil
}

// Back walks the machine one step backwards.
func (s *ReviewService) Back(sessionID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	session.machine.Back()
	session.mu.Unlock()
	return nil
}

// InitiateExport moves from review to tool selection.
func (s *ReviewService) InitiateExport(sessionID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	s.refreshSnapshotLocked(session)
	session.machine.InitiateExport()
	session.mu.Unlock()
	return nil
}

// ChooseTool selects the export tool. Non-Jira tools keep the machine in
// place; the handler reports them as coming soon.
func (s *ReviewService) ChooseTool(sessionID string, tool domain.ExportTool) (moved bool, err error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return false, err
	}
	connected := s.hasToken(session.UserID)

	session.mu.Lock()
	session.machine.SetJiraConnected(connected)
	moved = session.machine.ChooseTool(tool)
	session.mu.Unlock()
	return moved, nil
}

// AuthURL issues the Jira consent URL for a session. The session id
// rides along as the OAuth state.
func (s *ReviewService) AuthURL(sessionID string) (string, error) {
	if _, err := s.Session(sessionID); err != nil {
		return "", err
	}
	return jira.AuthCodeURL(s.oauth, sessionID), nil
}

// HandleAuthCallback exchanges the authorization code, confirms the fresh
// token actually works against the API (new tokens can take a moment to
// propagate) and stores it for the session's user. The waiting machine
// advances to the project picker.
func (s *ReviewService) HandleAuthCallback(ctx context.Context, state, code string) error {
	session, err := s.Session(state)
	if err != nil {
		return err
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("jira code exchange failed: %w", err)
	}

	tracker := s.newTracker(token)
	user, err := tracker.WaitForConnection(ctx)
	if err != nil {
		return fmt.Errorf("jira connection not confirmed: %w", err)
	}
	s.keepToken(session.UserID, tracker.Token())

	session.mu.Lock()
	session.machine.SetJiraConnected(true)
	session.mu.Unlock()

	msg := "Jira connected."
	if user.DisplayName != "" {
		msg = fmt.Sprintf("Jira connected as %s.", user.DisplayName)
	}
	s.notifier.Success(session.UserID, msg)
	return nil
}

// ConnectionStatus probes the tracker once, the poll target for the
// connect screen. A dead token flips the machine back to disconnected.
func (s *ReviewService) ConnectionStatus(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return false, err
	}
	tracker, err := s.tracker(session.UserID)
	if err != nil {
		return false, nil
	}
	if _, err := tracker.Me(ctx); err != nil {
		s.dropToken(session.UserID)
		session.mu.Lock()
		session.machine.Export.JiraConnected = false
		session.mu.Unlock()
		return false, nil
	}
	s.keepToken(session.UserID, tracker.Token())

	session.mu.Lock()
	session.machine.SetJiraConnected(true)
	session.mu.Unlock()
	return true, nil
}

// Projects lists destination projects for the session's user.
func (s *ReviewService) Projects(ctx context.Context, sessionID string) ([]domain.JiraProject, error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}
	tracker, err := s.tracker(session.UserID)
	if err != nil {
		return nil, err
	}
	projects, err := tracker.Projects(ctx)
	if err != nil {
		return nil, s.mapTrackerErr(session, err)
	}
	s.keepToken(session.UserID, tracker.Token())
	return projects, nil
}

// SelectProject records the destination project, clears any previously
// chosen issue type and loads the project's issue types.
func (s *ReviewService) SelectProject(ctx context.Context, sessionID string, project domain.JiraProject) ([]domain.JiraIssueType, error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	session.machine.SelectProject(&project)
	session.mu.Unlock()

	tracker, err := s.tracker(session.UserID)
	if err != nil {
		return nil, err
	}
	types, err := tracker.IssueTypes(ctx, project.ID)
	if err != nil {
		return nil, s.mapTrackerErr(session, err)
	}
	s.keepToken(session.UserID, tracker.Token())

	session.mu.Lock()
	session.machine.SetIssueTypes(types)
	session.mu.Unlock()
	return types, nil
}

// SelectIssueType records the chosen issue type.
func (s *ReviewService) SelectIssueType(sessionID string, issueType domain.JiraIssueType) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	session.machine.SelectIssueType(&issueType)
	session.mu.Unlock()
	return nil
}

// ContinueToExport advances to the export step once project and issue
// type are both chosen.
func (s *ReviewService) ContinueToExport(sessionID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	ok := session.machine.ContinueToExport()
	if ok {
		s.refreshSnapshotLocked(session)
	}
	session.mu.Unlock()

	if !ok {
		return domain.ErrInvalidRequest
	}
	return nil
}

// Export pushes the approved cases of the selected category to Jira and,
// on success, marks them exported in the store and advances the machine.
// The session lock is not held across the bulk call; the issue inputs are
// built from the refreshed snapshot before release.
func (s *ReviewService) Export(ctx context.Context, sessionID string) (*domain.ExportResult, error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	m := session.machine
	if m.Step != workflow.StepExportCases || m.Export.Project == nil || m.Export.IssueType == nil {
		session.mu.Unlock()
		return nil, domain.ErrInvalidRequest
	}
	s.refreshSnapshotLocked(session)
	eligible := m.ExportableCases()
	if len(eligible) == 0 {
		session.mu.Unlock()
		return nil, domain.ErrEmptyExportSet
	}
	if len(eligible) > jira.MaxBulkIssues {
		session.mu.Unlock()
		return nil, domain.ErrBatchTooLarge
	}
	inputs := make([]jira.IssueInput, 0, len(eligible))
	for _, tc := range eligible {
		inputs = append(inputs, jira.IssueInput{
			CaseID:      tc.ID,
			ProjectID:   m.Export.Project.ID,
			IssueTypeID: m.Export.IssueType.ID,
			Summary:     tc.Title,
			Description: tc.Content,
		})
	}
	session.mu.Unlock()

	tracker, err := s.tracker(session.UserID)
	if err != nil {
		return nil, err
	}

	bulk, err := tracker.BulkCreate(ctx, inputs)
	if err != nil {
		s.notifier.Error(session.UserID, "Export to Jira failed. Please try again.")
		return nil, s.mapTrackerErr(session, err)
	}
	s.keepToken(session.UserID, tracker.Token())

	result := &domain.ExportResult{
		Total:    len(inputs),
		Exported: len(bulk.Created),
		Errors:   append([]string{}, bulk.Errors...),
	}
	for _, created := range bulk.Created {
		s.store.SetTestCaseStatus(created.CaseID, domain.StatusExported)
		result.ExportedTestCases = append(result.ExportedTestCases, domain.ExportedIssue{
			CaseID:  created.CaseID,
			Key:     created.Key,
			IssueID: created.ID,
			Summary: created.Summary,
		})
	}

	session.mu.Lock()
	session.machine.RecordExportResult(result)
	session.mu.Unlock()

	s.notifier.Success(session.UserID,
		fmt.Sprintf("Exported %d of %d test cases to Jira.", result.Exported, result.Total))
	return result, nil
}

// ContinueReviewing returns the machine to category selection.
func (s *ReviewService) ContinueReviewing(sessionID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	session.machine.ContinueReviewing()
	session.mu.Unlock()
	return nil
}

// CategoryInsights computes the derived views for one category.
func (s *ReviewService) CategoryInsights(categoryID string) (*CategoryInsights, error) {
	cat := s.store.Category(categoryID)
	if cat == nil {
		return nil, domain.ErrNotFound
	}
	cases := s.store.CasesForCategory(categoryID)
	counts := insights.CountStatuses(cases)
	return &CategoryInsights{
		Category:     cat,
		Counts:       counts,
		Progress:     insights.ProgressPercentages(counts),
		HealthScore:  insights.HealthScore(cases),
		Traceability: insights.TraceabilityCompleteness(cases),
	}, nil
}

// ChartGeometry lays out the category donut chart for a chat.
func (s *ReviewService) ChartGeometry(chatID string) ([]insights.PieSlice, error) {
	if s.store.Chat(chatID) == nil {
		return nil, domain.ErrNotFound
	}
	cats := s.store.CategoriesForChat(chatID)
	sizes := make([]insights.CategorySize, 0, len(cats))
	for _, cat := range cats {
		sizes = append(sizes, insights.CategorySize{
			Category: cat,
			Count:    len(s.store.CasesForCategory(cat.ID)),
		})
	}
	return insights.PieChartGeometry(sizes), nil
}

// CategoryInsights bundles the derived views for one category.
type CategoryInsights struct {
	Category     *domain.TestCategory  `json:"category"`
	Counts       insights.StatusCounts `json:"counts"`
	Progress     insights.Percentages  `json:"progress"`
	HealthScore  int                   `json:"health_score"`
	Traceability int                   `json:"traceability"`
}

// refreshSnapshotLocked re-reads the selected category's cases so the
// machine sees status changes made since selection. The caller holds the
// session lock.
func (s *ReviewService) refreshSnapshotLocked(session *ReviewSession) {
	if session.machine.Category != nil {
		session.machine.RefreshCases(s.store.CasesForCategory(session.machine.Category.ID))
	}
}

func (s *ReviewService) hasToken(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[userID] != nil
}

func (s *ReviewService) tracker(userID string) (Tracker, error) {
	s.mu.Lock()
	token := s.tokens[userID]
	s.mu.Unlock()
	if token == nil {
		return nil, domain.ErrUnauthorized
	}
	return s.newTracker(token), nil
}

// keepToken stores the (possibly refreshed) token back for the user.
func (s *ReviewService) keepToken(userID string, token *oauth2.Token) {
	if token == nil {
		return
	}
	s.mu.Lock()
	s.tokens[userID] = token
	s.mu.Unlock()
}

func (s *ReviewService) dropToken(userID string) {
	s.mu.Lock()
	delete(s.tokens, userID)
	s.mu.Unlock()
}

// mapTrackerErr turns an expired-auth failure into a disconnected
// machine so the UI prompts re-authentication.
func (s *ReviewService) mapTrackerErr(session *ReviewSession, err error) error {
	if err == domain.ErrAuthExpired {
		s.dropToken(session.UserID)
		session.mu.Lock()
		session.machine.Export.JiraConnected = false
		session.mu.Unlock()
	}
	return err
}
