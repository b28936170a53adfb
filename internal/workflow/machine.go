// Package workflow models the guided review-and-export sequence as an
// explicit value-type state machine, owned by one review session and
// testable without any rendering or transport layer.
package workflow

import (
	"github.com/caseforge/caseforge/internal/domain"
)

// Step is one screen in the review-and-export sequence.
type Step string

const (
	StepSelectCategory    Step = "select_test_category"
	StepReviewCases       Step = "review_test_cases"
	StepSelectExportTool  Step = "select_export_tool"
	StepConnectJira       Step = "connect_jira"
	StepSelectJiraProject Step = "select_jira_project"
	StepExportCases       Step = "export_test_cases"
	StepExportSuccess     Step = "export_success"
)

// ExportState is the sub-state carried unchanged across steps, except
// that selecting a new project resets the chosen issue type and any
// previously loaded issue-type list.
type ExportState struct {
	Tool          domain.ExportTool      `json:"tool,omitempty"`
	JiraConnected bool                   `json:"jira_connected"`
	Project       *domain.JiraProject    `json:"project,omitempty"`
	IssueType     *domain.JiraIssueType  `json:"issue_type,omitempty"`
	IssueTypes    []domain.JiraIssueType `json:"issue_types,omitempty"`
	Result        *domain.ExportResult   `json:"result,omitempty"`
}

// Machine is the review workflow. No step is terminal: the machine is
// re-entered indefinitely within one review session. The selected
// category carries a denormalized snapshot of its test cases, refreshed
// by the owning session whenever the store changes underneath it.
type Machine struct {
	Step         Step                 `json:"step"`
	Category     *domain.TestCategory `json:"category,omitempty"`
	Cases        []*domain.TestCase   `json:"cases,omitempty"`
	SelectedCase *domain.TestCase     `json:"selected_case,omitempty"`
	Export       ExportState          `json:"export"`
}

// New returns a machine at the initial step.
func New() *Machine {
	return &Machine{Step: StepSelectCategory}
}

// Clone deep-copies the machine so a snapshot can be serialized while
// workflow actions keep mutating the original.
func (m *Machine) Clone() *Machine {
	cp := *m
	if m.Category != nil {
		c := *m.Category
		cp.Category = &c
	}
	cp.Cases = cloneCases(m.Cases)
	if m.SelectedCase != nil {
		cp.SelectedCase = cloneCase(m.SelectedCase)
	}
	cp.Export = m.Export.clone()
	return &cp
}

func (e ExportState) clone() ExportState {
	cp := e
	if e.Project != nil {
		p := *e.Project
		cp.Project = &p
	}
	if e.IssueType != nil {
		t := *e.IssueType
		cp.IssueType = &t
	}
	if e.IssueTypes != nil {
		cp.IssueTypes = append([]domain.JiraIssueType(nil), e.IssueTypes...)
	}
	if e.Result != nil {
		r := *e.Result
		r.Errors = append([]string(nil), e.Result.Errors...)
		r.ExportedTestCases = append([]domain.ExportedIssue(nil), e.Result.ExportedTestCases...)
		cp.Result = &r
	}
	return cp
}

func cloneCase(tc *domain.TestCase) *domain.TestCase {
	cp := *tc
	if tc.Traceability != nil {
		t := *tc.Traceability
		cp.Traceability = &t
	}
	return &cp
}

func cloneCases(cases []*domain.TestCase) []*domain.TestCase {
	if cases == nil {
		return nil
	}
	out := make([]*domain.TestCase, len(cases))
	for i, tc := range cases {
		out[i] = cloneCase(tc)
	}
	return out
}

// SelectCategory records the chosen category with a snapshot of its cases
// and advances to review.
func (m *Machine) SelectCategory(cat *domain.TestCategory, cases []*domain.TestCase) {
	m.Category = cat
	m.Cases = cases
	m.SelectedCase = nil
	m.Step = StepReviewCases
}

// RefreshCases replaces the case snapshot, keeping the current step.
func (m *Machine) RefreshCases(cases []*domain.TestCase) {
	m.Cases = cases
}

// SelectCase marks one test case as focused for editing or highlight.
func (m *Machine) SelectCase(tc *domain.TestCase) {
	m.SelectedCase = tc
}

// InitiateExport moves from review to tool selection.
func (m *Machine) InitiateExport() {
	if m.Step == StepReviewCases {
		m.Step = StepSelectExportTool
	}
}

// ChooseTool handles tool selection. Jira routes to the project picker or
// the connect screen depending on the connection flag; any other tool is
// a no-op (the UI shows "coming soon" and the step does not change).
// Returns whether the step changed.
func (m *Machine) ChooseTool(tool domain.ExportTool) bool {
	if m.Step != StepSelectExportTool {
		return false
	}
	if tool != domain.ToolJira {
		return false
	}
	m.Export.Tool = tool
	if m.Export.JiraConnected {
		m.Step = StepSelectJiraProject
	} else {
		m.Step = StepConnectJira
	}
	return true
}

// SetJiraConnected records the connection flag. When the machine is
// waiting on the connect screen and auth succeeds, it advances to the
// project picker.
func (m *Machine) SetJiraConnected(connected bool) {
	m.Export.JiraConnected = connected
	if connected && m.Step == StepConnectJira {
		m.Step = StepSelectJiraProject
	}
}

// SelectProject records the destination project and clears any previously
// chosen issue type and issue-type list.
func (m *Machine) SelectProject(p *domain.JiraProject) {
	m.Export.Project = p
	m.Export.IssueType = nil
	m.Export.IssueTypes = nil
}

// SetIssueTypes stores the loaded issue-type list for the current project.
func (m *Machine) SetIssueTypes(types []domain.JiraIssueType) {
	m.Export.IssueTypes = types
}

// SelectIssueType records the chosen issue type.
func (m *Machine) SelectIssueType(t *domain.JiraIssueType) {
	m.Export.IssueType = t
}

// ContinueToExport advances from the project picker once both a project
// and an issue type are chosen. Returns whether the step changed.
func (m *Machine) ContinueToExport() bool {
	if m.Step != StepSelectJiraProject || m.Export.Project == nil || m.Export.IssueType == nil {
		return false
	}
	m.Step = StepExportCases
	return true
}

// RecordExportResult stores the outcome of a successful export, marks the
// exported cases in the snapshot and advances to the success step.
func (m *Machine) RecordExportResult(result *domain.ExportResult) {
	m.Export.Result = result
	exported := make(map[string]bool, len(result.ExportedTestCases))
	for _, e := range result.ExportedTestCases {
		exported[e.CaseID] = true
	}
	for _, tc := range m.Cases {
		if tc.Status == domain.StatusApproved && exported[tc.ID] {
			tc.Status = domain.StatusExported
		}
	}
	m.Step = StepExportSuccess
}

// ContinueReviewing returns to category selection from the export step,
// keeping the export sub-state for the next round.
func (m *Machine) ContinueReviewing() {
	m.Category = nil
	m.Cases = nil
	m.SelectedCase = nil
	m.Step = StepSelectCategory
}

// Close dismisses the success screen back to category selection.
func (m *Machine) Close() {
	m.ContinueReviewing()
}

// Back walks one step backwards. The project picker returns to the tool
// picker when Jira is connected and to the connect screen otherwise.
func (m *Machine) Back() {
	switch m.Step {
	case StepReviewCases:
		m.Category = nil
		m.Cases = nil
		m.SelectedCase = nil
		m.Step = StepSelectCategory
	case StepSelectExportTool:
		m.Step = StepSelectCategory
	case StepConnectJira:
		m.Step = StepSelectExportTool
	case StepSelectJiraProject:
		if m.Export.JiraConnected {
			m.Step = StepSelectExportTool
		} else {
			m.Step = StepConnectJira
		}
	case StepExportCases:
		m.Step = StepSelectJiraProject
	}
}

// ExportableCases returns the approved subset of the snapshot, the only
// cases included in an export request.
func (m *Machine) ExportableCases() []*domain.TestCase {
	var out []*domain.TestCase
	for _, tc := range m.Cases {
		if tc.Status == domain.StatusApproved {
			out = append(out, tc)
		}
	}
	return out
}

// ExportedCases returns cases already pushed to the tracker, displayed
// separately and excluded from the exportable set.
func (m *Machine) ExportedCases() []*domain.TestCase {
	var out []*domain.TestCase
	for _, tc := range m.Cases {
		if tc.Status == domain.StatusExported {
			out = append(out, tc)
		}
	}
	return out
}

// PendingCount reports how many cases would be left behind by an export,
// so the UI can warn before the call.
func (m *Machine) PendingCount() int {
	n := 0
	for _, tc := range m.Cases {
		if tc.Status == domain.StatusPending {
			n++
		}
	}
	return n
}
