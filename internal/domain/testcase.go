package domain

// TestCaseStatus is the review status of a generated test case.
type TestCaseStatus string

const (
	StatusPending  TestCaseStatus = "pending"
	StatusApproved TestCaseStatus = "approved"
	StatusRejected TestCaseStatus = "rejected"
	StatusExported TestCaseStatus = "exported"
)

// Priority tags a test case for health scoring.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// TestCategory groups generated test cases under one assistant message.
// Categories are created in bulk when an AI payload is ingested and are
// immutable afterwards.
type TestCategory struct {
	ID          string `json:"id"`
	MessageID   string `json:"message_id"`
	ChatID      string `json:"chat_id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// SourceLocation points back into the uploaded document.
type SourceLocation struct {
	Page        int         `json:"page"`
	BoundingBox BoundingBox `json:"bounding_box"`
	ChunkID     string      `json:"chunk_id,omitempty"`
}

// BoundingBox is a normalized rectangle on a document page, all
// coordinates in [0,1].
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Traceability links a test case back to the requirement it was derived
// from and where that requirement appears in the source document.
type Traceability struct {
	RequirementID   string           `json:"requirement_id"`
	RequirementText string           `json:"requirement_text,omitempty"`
	Confidence      float64          `json:"confidence"`
	Locations       []SourceLocation `json:"locations,omitempty"`
	ComplianceRefs  []string         `json:"compliance_refs,omitempty"`
}

// TestCase is a single generated test scenario. It belongs to exactly one
// category, which belongs to exactly one originating message.
type TestCase struct {
	ID           string         `json:"id"`
	CategoryID   string         `json:"category_id"`
	MessageID    string         `json:"message_id"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Status       TestCaseStatus `json:"status"`
	Priority     Priority       `json:"priority,omitempty"`
	Traceability *Traceability  `json:"traceability,omitempty"`
}

// GenerationPayload is what the test-case generator returns for one
// document. Missing labels/titles are filled with placeholders at
// ingestion time.
type GenerationPayload struct {
	Summary    string            `json:"summary,omitempty"`
	Categories []PayloadCategory `json:"categories"`
}

// PayloadCategory is one raw category from the generator.
type PayloadCategory struct {
	ID          string            `json:"id,omitempty"`
	Label       string            `json:"label,omitempty"`
	Description string            `json:"description,omitempty"`
	TestCases   []PayloadTestCase `json:"test_cases"`
}

// PayloadTestCase is one raw test case from the generator.
type PayloadTestCase struct {
	ID           string        `json:"id,omitempty"`
	Title        string        `json:"title,omitempty"`
	Content      string        `json:"content,omitempty"`
	Priority     Priority      `json:"priority,omitempty"`
	Traceability *Traceability `json:"traceability,omitempty"`
}

// ParsedDocument is the document parser's view of an uploaded file.
type ParsedDocument struct {
	FullText  string  `json:"full_text"`
	Tables    []Table `json:"tables"`
	PageCount int     `json:"page_count"`
}

// Table is a flat representation of a table found in the document.
type Table struct {
	Page int        `json:"page"`
	Rows [][]string `json:"rows"`
}
