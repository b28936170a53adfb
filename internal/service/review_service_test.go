package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/caseforge/caseforge/internal/domain"
	"github.com/caseforge/caseforge/internal/jira"
	"github.com/caseforge/caseforge/internal/store"
	"github.com/caseforge/caseforge/internal/workflow"
)

type fakeTracker struct {
	me       *jira.User
	meErr    error
	projects []domain.JiraProject
	projErr  error
	types    []domain.JiraIssueType
	typesErr error
	bulk     *jira.BulkResult
	bulkErr  error
	token    *oauth2.Token

	gotInputs []jira.IssueInput
}

func (f *fakeTracker) Me(ctx context.Context) (*jira.User, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	if f.me != nil {
		return f.me, nil
	}
	return &jira.User{AccountID: "acc-1"}, nil
}

func (f *fakeTracker) WaitForConnection(ctx context.Context) (*jira.User, error) {
	return f.Me(ctx)
}

func (f *fakeTracker) Projects(ctx context.Context) ([]domain.JiraProject, error) {
	return f.projects, f.projErr
}

func (f *fakeTracker) IssueTypes(ctx context.Context, projectID string) ([]domain.JiraIssueType, error) {
	return f.types, f.typesErr
}

func (f *fakeTracker) BulkCreate(ctx context.Context, issues []jira.IssueInput) (*jira.BulkResult, error) {
	f.gotInputs = issues
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	if f.bulk != nil {
		return f.bulk, nil
	}
	result := &jira.BulkResult{}
	for i, in := range issues {
		result.Created = append(result.Created, jira.CreatedIssue{
			CaseID:  in.CaseID,
			ID:      fmt.Sprintf("100%d", i),
			Key:     fmt.Sprintf("CF-%d", i+1),
			Summary: in.Summary,
		})
	}
	return result, nil
}

func (f *fakeTracker) Token() *oauth2.Token { return f.token }

type recordingNotifier struct {
	mu        sync.Mutex
	errors    []string
	successes []string
}

func (n *recordingNotifier) Error(userID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *recordingNotifier) Info(userID, message string) {}

func (n *recordingNotifier) Success(userID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

type reviewFixture struct {
	svc      *ReviewService
	store    *store.Store
	tracker  *fakeTracker
	notifier *recordingNotifier
	chatID   string
	catID    string
	caseIDs  []string
}

// newReviewFixture seeds one chat with a single generated category of five
// pending test cases and a review service whose tracker is faked out.
func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()

	st := store.New()
	chat := st.CreateChat("user-1", "PRD review")
	msg := st.AppendProcessingMessage(chat.ID, "user-1", "working")
	st.ResolveProcessingMessage(msg.ID, "done", &domain.GenerationPayload{
		Categories: []domain.PayloadCategory{
			{Label: "Functional", TestCases: []domain.PayloadTestCase{
				{Title: "t1", Content: "c1"}, {Title: "t2", Content: "c2"},
				{Title: "t3", Content: "c3"}, {Title: "t4", Content: "c4"},
				{Title: "t5", Content: "c5"},
			}},
		},
	})
	cat := st.CategoriesForMessage(msg.ID)[0]

	var caseIDs []string
	for _, tc := range st.CasesForCategory(cat.ID) {
		caseIDs = append(caseIDs, tc.ID)
	}

	tracker := &fakeTracker{
		projects: []domain.JiraProject{{ID: "10000", Key: "CF", Name: "CaseForge"}},
		types:    []domain.JiraIssueType{{ID: "3", Name: "Task"}},
		token:    &oauth2.Token{AccessToken: "tok"},
	}
	notifier := &recordingNotifier{}
	svc := NewReviewService(st, &oauth2.Config{ClientID: "client"},
		func(token *oauth2.Token) Tracker { return tracker }, notifier, zap.NewNop())

	return &reviewFixture{
		svc: svc, store: st, tracker: tracker, notifier: notifier,
		chatID: chat.ID, catID: cat.ID, caseIDs: caseIDs,
	}
}

func (f *reviewFixture) connect(userID string) {
	f.svc.keepToken(userID, &oauth2.Token{AccessToken: "tok"})
}

// walkToExport drives a session up to the export step.
func walkToExport(t *testing.T, f *reviewFixture) *ReviewSession {
	t.Helper()
	ctx := context.Background()

	session, err := f.svc.CreateSession(f.chatID, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.SelectCategory(session.ID, f.catID))
	require.NoError(t, f.svc.InitiateExport(session.ID))

	f.connect("user-1")
	moved, err := f.svc.ChooseTool(session.ID, domain.ToolJira)
	require.NoError(t, err)
	require.True(t, moved)
	require.Equal(t, workflow.StepSelectJiraProject, session.State().Machine.Step)

	types, err := f.svc.SelectProject(ctx, session.ID, domain.JiraProject{ID: "10000", Key: "CF"})
	require.NoError(t, err)
	require.Len(t, types, 1)
	require.NoError(t, f.svc.SelectIssueType(session.ID, types[0]))
	require.NoError(t, f.svc.ContinueToExport(session.ID))
	require.Equal(t, workflow.StepExportCases, session.State().Machine.Step)
	return session
}

func TestExportPushesApprovedCasesOnly(t *testing.T) {
	f := newReviewFixture(t)
	for _, id := range f.caseIDs[:3] {
		f.store.SetTestCaseStatus(id, domain.StatusApproved)
	}
	f.store.SetTestCaseStatus(f.caseIDs[3], domain.StatusRejected)

	session := walkToExport(t, f)

	result, err := f.svc.Export(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 3, result.Exported)
	require.Empty(t, result.Errors)
	require.Len(t, result.ExportedTestCases, 3)

	// Only the approved cases were sent.
	require.Len(t, f.tracker.gotInputs, 3)
	for i, in := range f.tracker.gotInputs {
		require.Equal(t, f.caseIDs[i], in.CaseID)
		require.Equal(t, "10000", in.ProjectID)
		require.Equal(t, "3", in.IssueTypeID)
	}

	// The store reflects the export; untouched cases keep their status.
	for _, id := range f.caseIDs[:3] {
		require.Equal(t, domain.StatusExported, f.store.TestCase(id).Status)
	}
	require.Equal(t, domain.StatusRejected, f.store.TestCase(f.caseIDs[3]).Status)
	require.Equal(t, domain.StatusPending, f.store.TestCase(f.caseIDs[4]).Status)

	require.Equal(t, workflow.StepExportSuccess, session.State().Machine.Step)
	require.Len(t, f.notifier.successes, 1)
}

func TestExportWithNothingApproved(t *testing.T) {
	f := newReviewFixture(t)
	session := walkToExport(t, f)

	// ContinueToExport succeeded, but every case is still pending.
	_, err := f.svc.Export(context.Background(), session.ID)
	require.ErrorIs(t, err, domain.ErrEmptyExportSet)
}

func TestExportPicksUpLateApprovals(t *testing.T) {
	f := newReviewFixture(t)
	session := walkToExport(t, f)

	// Approvals made after the snapshot was taken still count.
	f.store.SetTestCaseStatus(f.caseIDs[0], domain.StatusApproved)

	result, err := f.svc.Export(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Exported)
}

func TestExportAuthExpiredDisconnects(t *testing.T) {
	f := newReviewFixture(t)
	f.store.SetTestCaseStatus(f.caseIDs[0], domain.StatusApproved)
	f.tracker.bulkErr = domain.ErrAuthExpired

	session := walkToExport(t, f)

	_, err := f.svc.Export(context.Background(), session.ID)
	require.ErrorIs(t, err, domain.ErrAuthExpired)
	require.False(t, session.State().Machine.Export.JiraConnected)
	require.Len(t, f.notifier.errors, 1)

	// The dead token is gone, so tracker access now requires reconnecting.
	_, err = f.svc.Projects(context.Background(), session.ID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	// The store was not touched.
	require.Equal(t, domain.StatusApproved, f.store.TestCase(f.caseIDs[0]).Status)
}

func TestChooseToolWithoutTokenRoutesToConnect(t *testing.T) {
	f := newReviewFixture(t)
	session, err := f.svc.CreateSession(f.chatID, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.SelectCategory(session.ID, f.catID))
	require.NoError(t, f.svc.InitiateExport(session.ID))

	moved, err := f.svc.ChooseTool(session.ID, domain.ToolJira)
	require.NoError(t, err)
	require.True(t, moved)
	require.Equal(t, workflow.StepConnectJira, session.State().Machine.Step)
}

func TestChooseToolUnsupportedStaysPut(t *testing.T) {
	f := newReviewFixture(t)
	session, err := f.svc.CreateSession(f.chatID, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.SelectCategory(session.ID, f.catID))
	require.NoError(t, f.svc.InitiateExport(session.ID))

	moved, err := f.svc.ChooseTool(session.ID, domain.ToolAzure)
	require.NoError(t, err)
	require.False(t, moved)
	require.Equal(t, workflow.StepSelectExportTool, session.State().Machine.Step)
}

func TestAuthCallbackConfirmsConnection(t *testing.T) {
	f := newReviewFixture(t)

	// Token endpoint standing in for auth.atlassian.com.
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh","refresh_token":"r1","token_type":"bearer","expires_in":3600}`)
	}))
	defer tokenServer.Close()
	f.svc.oauth = &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{TokenURL: tokenServer.URL + "/oauth/token"},
	}
	f.tracker.me = &jira.User{AccountID: "acc-1", DisplayName: "Dana"}

	session, err := f.svc.CreateSession(f.chatID, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.SelectCategory(session.ID, f.catID))
	require.NoError(t, f.svc.InitiateExport(session.ID))
	moved, err := f.svc.ChooseTool(session.ID, domain.ToolJira)
	require.NoError(t, err)
	require.True(t, moved)
	require.Equal(t, workflow.StepConnectJira, session.State().Machine.Step)

	// The callback exchanges the code, confirms the token works and
	// advances the waiting machine.
	require.NoError(t, f.svc.HandleAuthCallback(context.Background(), session.ID, "code-1"))
	require.Equal(t, workflow.StepSelectJiraProject, session.State().Machine.Step)
	require.True(t, session.State().Machine.Export.JiraConnected)
	require.Equal(t, []string{"Jira connected as Dana."}, f.notifier.successes)

	// The stored token is usable from here on.
	_, err = f.svc.Projects(context.Background(), session.ID)
	require.NoError(t, err)
}

func TestAuthCallbackRejectsUnconfirmedConnection(t *testing.T) {
	f := newReviewFixture(t)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh","token_type":"bearer","expires_in":3600}`)
	}))
	defer tokenServer.Close()
	f.svc.oauth = &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{TokenURL: tokenServer.URL + "/oauth/token"},
	}
	f.tracker.meErr = domain.ErrAuthExpired

	session, err := f.svc.CreateSession(f.chatID, "user-1")
	require.NoError(t, err)

	err = f.svc.HandleAuthCallback(context.Background(), session.ID, "code-1")
	require.Error(t, err)
	require.False(t, session.State().Machine.Export.JiraConnected)
}

func TestConnectionStatus(t *testing.T) {
	f := newReviewFixture(t)
	session, err := f.svc.CreateSession(f.chatID, "user-1")
	require.NoError(t, err)

	// No token yet.
	connected, err := f.svc.ConnectionStatus(context.Background(), session.ID)
	require.NoError(t, err)
	require.False(t, connected)

	f.connect("user-1")
	connected, err = f.svc.ConnectionStatus(context.Background(), session.ID)
	require.NoError(t, err)
	require.True(t, connected)
	require.True(t, session.State().Machine.Export.JiraConnected)

	// A dead token flips the session back to disconnected.
	f.tracker.meErr = domain.ErrAuthExpired
	connected, err = f.svc.ConnectionStatus(context.Background(), session.ID)
	require.NoError(t, err)
	require.False(t, connected)
	require.False(t, session.State().Machine.Export.JiraConnected)
}

func TestSessionSafeUnderConcurrentAccess(t *testing.T) {
	f := newReviewFixture(t)
	session, err := f.svc.CreateSession(f.chatID, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.SelectCategory(session.ID, f.catID))
	f.connect("user-1")

	// Status polls mutate the machine while other requests snapshot and
	// serialize it; run with -race.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ConnectionStatus(context.Background(), session.ID); err != nil {
				t.Errorf("status poll failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := json.Marshal(session.State()); err != nil {
				t.Errorf("snapshot marshal failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := f.svc.InitiateExport(session.ID); err != nil {
				t.Errorf("initiate export failed: %v", err)
			}
		}()
	}
	wg.Wait()

	require.True(t, session.State().Machine.Export.JiraConnected)
}

func TestCreateSessionUnknownChat(t *testing.T) {
	f := newReviewFixture(t)
	_, err := f.svc.CreateSession("missing", "user-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSelectCategoryFromAnotherChat(t *testing.T) {
	f := newReviewFixture(t)
	other := f.store.CreateChat("user-1", "other")
	session, err := f.svc.CreateSession(other.ID, "user-1")
	require.NoError(t, err)

	err = f.svc.SelectCategory(session.ID, f.catID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCloseSessionDiscardsState(t *testing.T) {
	f := newReviewFixture(t)
	session, err := f.svc.CreateSession(f.chatID, "user-1")
	require.NoError(t, err)

	f.svc.CloseSession(session.ID)
	_, err = f.svc.Session(session.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCategoryInsights(t *testing.T) {
	f := newReviewFixture(t)
	f.store.SetTestCaseStatus(f.caseIDs[0], domain.StatusApproved)
	f.store.SetTestCaseStatus(f.caseIDs[1], domain.StatusRejected)

	ci, err := f.svc.CategoryInsights(f.catID)
	require.NoError(t, err)
	require.Equal(t, 5, ci.Counts.Total)
	require.Equal(t, 1, ci.Counts.Approved)
	require.Equal(t, 100, ci.Progress.Approved+ci.Progress.Rejected+ci.Progress.Pending)

	_, err = f.svc.CategoryInsights("missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChartGeometry(t *testing.T) {
	f := newReviewFixture(t)
	slices, err := f.svc.ChartGeometry(f.chatID)
	require.NoError(t, err)
	require.Len(t, slices, 1)
	require.InDelta(t, 360.0, slices[0].EndAngle, 1e-9)

	_, err = f.svc.ChartGeometry("missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
