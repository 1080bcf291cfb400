// Package gemini grades rubric criteria and refines comments with the
// Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/okian/rubric/internal/domain/scoring"
	"github.com/okian/rubric/pkg/logger"
)

// Defaults for the engine.
const (
	DefaultModel          = "gemini-2.5-flash"
	defaultTimeout        = 2 * time.Minute
	defaultMinInterval    = time.Second
	defaultPollInterval   = 2 * time.Second
	defaultUploadWait     = 2 * time.Minute
	refineTemperature     = 0.3
	refineMaxOutputTokens = 1000
)

const gradeInstruction = `You are an expert academic assessor. Grade only the rubric component you are asked about,
using only the evidence provided. Video frames may be sampled, so do not penalize transitions.
Respond with a single JSON object: {"score": <number>, "comment": "<feedback>"}. Any text outside JSON is an error.`

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("gemini api key is empty")

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds a single API call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMinInterval spaces consecutive API calls.
func WithMinInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.minInterval = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine implements scoring.Grader and scoring.Refiner.
type Engine struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	minInterval time.Duration
	log         logger.Logger

	mu       sync.Mutex
	lastCall time.Time
}

var (
	_ scoring.Grader  = (*Engine)(nil)
	_ scoring.Refiner = (*Engine)(nil)
)

// New creates an engine with its own API client. Close releases it.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Engine, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	e := &Engine{
		client:      cl,
		model:       strings.TrimSpace(model),
		timeout:     defaultTimeout,
		minInterval: defaultMinInterval,
		log:         logger.Nop(),
	}
	if e.model == "" {
		e.model = DefaultModel
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close closes the API client.
func (e *Engine) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}

// Model returns the model name.
func (e *Engine) Model() string { return e.model }

// Assess grades one criterion. Failures are classified so a retrying
// wrapper can tell quota and transient errors from bad output.
func (e *Engine) Assess(ctx context.Context, req scoring.Request) (scoring.Result, error) {
	if err := e.pace(ctx); err != nil {
		return scoring.Result{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	m := e.client.GenerativeModel(e.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(gradeInstruction)}}

	parts, cleanup := e.parts(ctx, req)
	defer cleanup()

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return scoring.Result{}, classify(err)
	}
	txt := firstText(resp)
	if txt == "" {
		return scoring.Result{}, fmt.Errorf("gemini assess %q: %w: empty response", req.Criterion.Name, scoring.ErrInvalidResponse)
	}
	res, err := ParseResult(txt)
	if err != nil {
		e.log.Warn(ctx, "unreadable model output",
			logger.String("criterion", req.Criterion.Name),
			logger.String("submission", req.SubmissionID),
			logger.Int("length", len(txt)),
		)
		return scoring.Result{}, err
	}
	return res, nil
}

// Refine rewrites a comment's tone. An empty comment is returned as is.
func (e *Engine) Refine(ctx context.Context, req scoring.RefineRequest) (string, error) {
	if strings.TrimSpace(req.Comment) == "" {
		return req.Comment, nil
	}
	if err := e.pace(ctx); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	m := e.client.GenerativeModel(e.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:     ptrFloat32(refineTemperature),
		MaxOutputTokens: ptrInt32(refineMaxOutputTokens),
	}
	resp, err := m.GenerateContent(ctx, genai.Text(scoring.RefinePrompt(req)))
	if err != nil {
		return "", classify(err)
	}
	refined := CleanRefined(firstText(resp))
	if refined == "" {
		return "", fmt.Errorf("gemini refine %q: %w: empty response", req.Component, scoring.ErrInvalidResponse)
	}
	return refined, nil
}

// parts turns evidence into request parts. Videos go through the File API;
// the returned cleanup deletes them.
func (e *Engine) parts(ctx context.Context, req scoring.Request) ([]genai.Part, func()) {
	parts := []genai.Part{genai.Text(req.Prompt)}
	var uploaded []string
	var skipped []string

	for _, ev := range req.Evidence {
		switch {
		case ev.Kind == scoring.EvidenceVideo:
			f, err := e.upload(ctx, ev)
			if err != nil {
				e.log.Warn(ctx, "video upload failed", logger.String("file", ev.Name), logger.Error(err))
				skipped = append(skipped, ev.Name)
				continue
			}
			uploaded = append(uploaded, f.Name)
			parts = append(parts, genai.FileData{MIMEType: f.MIMEType, URI: f.URI})
		case len(ev.Data) > 0:
			parts = append(parts, &genai.Blob{MIMEType: ev.MIMEType, Data: ev.Data})
		case ev.Text != "":
			parts = append(parts, genai.Text(fmt.Sprintf("--- %s (%s) ---\n%s", ev.Name, ev.Kind, ev.Text)))
		default:
			skipped = append(skipped, ev.Name)
		}
	}
	if len(parts) == 1 && len(skipped) > 0 {
		parts = append(parts, genai.Text("Note: the following files were submitted but could not be processed directly: "+
			strings.Join(skipped, ", ")))
	}

	cleanup := func() {
		for _, name := range uploaded {
			// use a fresh context so cleanup runs after a timeout
			dctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := e.client.DeleteFile(dctx, name); err != nil {
				e.log.Debug(dctx, "delete uploaded file failed", logger.String("file", name), logger.Error(err))
			}
			cancel()
		}
	}
	return parts, cleanup
}

func (e *Engine) upload(ctx context.Context, ev scoring.Evidence) (*genai.File, error) {
	r, err := os.Open(ev.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	f, err := e.client.UploadFile(ctx, "", r, &genai.UploadFileOptions{DisplayName: ev.Name, MIMEType: ev.MIMEType})
	if err != nil {
		return nil, classify(err)
	}
	deadline := time.Now().Add(defaultUploadWait)
	for f.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("gemini: %s still processing: %w", ev.Name, scoring.ErrTransient)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(defaultPollInterval):
		}
		if f, err = e.client.GetFile(ctx, f.Name); err != nil {
			return nil, classify(err)
		}
	}
	if f.State != genai.FileStateActive {
		return nil, fmt.Errorf("gemini: upload of %s ended in state %v", ev.Name, f.State)
	}
	return f, nil
}

// pace spaces calls by minInterval.
func (e *Engine) pace(ctx context.Context) error {
	e.mu.Lock()
	wait := time.Until(e.lastCall.Add(e.minInterval))
	if wait < 0 {
		wait = 0
	}
	e.lastCall = time.Now().Add(wait)
	e.mu.Unlock()
	if wait == 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// classify marks quota errors as rate limited and server side failures as
// transient.
func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("gemini: %w: %w", scoring.ErrRateLimited, err)
		case gerr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("gemini: %w: %w", scoring.ErrTransient, err)
		}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("gemini: %w: %w", scoring.ErrRateLimited, err)
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(msg, "UNAVAILABLE"),
		strings.Contains(msg, "DEADLINE_EXCEEDED"),
		strings.Contains(msg, "INTERNAL"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "500"):
		return fmt.Errorf("gemini: %w: %w", scoring.ErrTransient, err)
	}
	return fmt.Errorf("gemini: %w", err)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
