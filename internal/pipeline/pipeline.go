// Package pipeline orchestrates the request/response cycle around message
// submission: it appends the user message, walks a processing placeholder
// through the named phases, and resolves it with generated test cases or
// a failure message. Parsing and generation are delegated to injected
// collaborators.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/caseforge/caseforge/internal/domain"
	"github.com/caseforge/caseforge/internal/llm"
	"github.com/caseforge/caseforge/internal/notify"
	"github.com/caseforge/caseforge/internal/store"
)

// Processing phase status strings, shown in order on the placeholder.
const (
	PhaseScanning      = "Scanning your document..."
	PhaseReading       = "Reading the requirements..."
	PhaseUnderstanding = "Understanding the requirements..."
	PhaseGenerating    = "Generating test cases..."
)

// Fixed replies.
const (
	textOnlyReply = "I can only generate test cases from an uploaded requirements document. " +
		"Attach a PRD and I'll take it from there."
	failureReply = "Something went wrong while processing your document. Please try uploading it again."
)

// DocumentParser extracts text from an uploaded file.
type DocumentParser interface {
	Parse(filename string, r io.Reader) (*domain.ParsedDocument, error)
}

// TestCaseGenerator produces categorized test cases from parsed text.
type TestCaseGenerator interface {
	Generate(ctx context.Context, req *llm.GenerateRequest) (*domain.GenerationPayload, error)
}

// Upload is the attached file for one submission.
type Upload struct {
	Name string
	Type string
	Size int64
	Data []byte
}

// Result reports what Submit appended. Done is closed when the async
// processing leg finishes; for text-only submissions it is already
// closed on return.
type Result struct {
	UserMessage *domain.Message
	Reply       *domain.Message
	Done        <-chan struct{}
}

// Pipeline wires the store to the parsing and generation collaborators.
type Pipeline struct {
	store     *store.Store
	parser    DocumentParser
	generator TestCaseGenerator
	notifier  notify.Notifier
	logger    *zap.Logger
}

// New creates a pipeline.
func New(st *store.Store, parser DocumentParser, generator TestCaseGenerator, notifier notify.Notifier, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:     st,
		parser:    parser,
		generator: generator,
		notifier:  notifier,
		logger:    logger,
	}
}

// Submit appends the user message synchronously and, when a file is
// attached, kicks off the asynchronous processing leg. A second Submit
// for the same chat while one is in flight is allowed and simply produces
// a second processing placeholder.
//
// Failures in the async leg never escape: the placeholder is resolved to
// an assistant message carrying a failure text and the notifier is told.
func (p *Pipeline) Submit(chatID string, author domain.Identity, text string, file *Upload) *Result {
	var desc *domain.FileDescriptor
	if file != nil {
		desc = &domain.FileDescriptor{Name: file.Name, Type: file.Type, Size: file.Size}
	}
	userMsg := p.store.AppendUserMessage(chatID, author.UserID, text, desc, author)

	if file == nil {
		reply := p.store.AppendAssistantReply(chatID, textOnlyReply)
		done := make(chan struct{})
		close(done)
		return &Result{UserMessage: userMsg, Reply: reply, Done: done}
	}

	processing := p.store.AppendProcessingMessage(chatID, author.UserID, PhaseScanning)
	done := make(chan struct{})
	// The async leg detaches from the request context: closing the chat
	// view does not abort a pending parse or generation.
	go func() {
		defer close(done)
		p.process(context.Background(), author.UserID, processing.ID, text, file)
	}()

	return &Result{UserMessage: userMsg, Reply: processing, Done: done}
}

// process walks the placeholder through the phases in strict order. Each
// phase is awaited before the next status is shown.
func (p *Pipeline) process(ctx context.Context, userID, messageID, text string, file *Upload) {
	doc, err := p.parser.Parse(file.Name, bytes.NewReader(file.Data))
	if err != nil {
		p.fail(userID, messageID, "document parsing failed", err)
		return
	}

	p.store.UpdateProcessingStatus(messageID, PhaseReading)
	p.store.UpdateProcessingStatus(messageID, PhaseUnderstanding)
	p.store.UpdateProcessingStatus(messageID, PhaseGenerating)

	payload, err := p.generator.Generate(ctx, &llm.GenerateRequest{
		DocumentText: doc.FullText,
		Tables:       doc.Tables,
		UserQuery:    text,
		FileName:     file.Name,
	})
	if err != nil {
		p.fail(userID, messageID, "test case generation failed", err)
		return
	}

	p.store.ResolveProcessingMessage(messageID, p.summaryText(file.Name, payload), payload)
}

// fail resolves the placeholder with a user-facing failure text so the
// transcript never shows a stuck spinner, and notifies as a side channel.
func (p *Pipeline) fail(userID, messageID, stage string, err error) {
	p.logger.Warn("pipeline failure", zap.String("stage", stage), zap.Error(err))
	p.store.ResolveProcessingMessage(messageID, failureReply, nil)
	p.notifier.Error(userID, "Test case generation failed. Please try again.")
}

func (p *Pipeline) summaryText(filename string, payload *domain.GenerationPayload) string {
	if payload.Summary != "" {
		return payload.Summary
	}
	cases := 0
	for _, c := range payload.Categories {
		cases += len(c.TestCases)
	}
	return fmt.Sprintf("I analyzed %s and generated %d test cases across %d categories. "+
		"Review them below and approve the ones you want to export.",
		filename, cases, len(payload.Categories))
}
