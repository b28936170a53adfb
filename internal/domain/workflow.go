package domain

// ExportTool names an external issue tracker a category can be exported
// to. Only Jira is functional; other tools are presented as coming soon.
type ExportTool string

const (
	ToolJira   ExportTool = "jira"
	ToolAzure  ExportTool = "azure"
	ToolLinear ExportTool = "linear"
)

// ExportedIssue is one issue created in the external tracker, correlated
// back to the test case it was created from.
type ExportedIssue struct {
	CaseID  string `json:"case_id"`
	Key     string `json:"key"`
	IssueID string `json:"issue_id"`
	Summary string `json:"summary"`
}

// ExportResult summarizes one bulk export call.
type ExportResult struct {
	Total             int             `json:"total"`
	Exported          int             `json:"exported"`
	Errors            []string        `json:"errors"`
	ExportedTestCases []ExportedIssue `json:"exported_test_cases"`
}

// JiraProject is a destination project in the connected Jira site.
type JiraProject struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// JiraIssueType is an issue type available in a Jira project.
type JiraIssueType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}
