// Package stage invokes the four external processing services. The client
// only reports success or failure; stage outputs travel between services
// through their own subject-keyed store, never through the executor.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"claimease/internal/models"
)

// ErrUnknownStage means the resolver has no address for the requested stage.
// This is a configuration problem, not a remote failure, and is never retried.
var ErrUnknownStage = errors.New("unknown stage")

// Error is a normalized remote stage failure: timeout, connection refusal,
// and non-2xx responses all surface as one of these with a readable message.
type Error struct {
	Stage   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Resolver maps a stage name to the base address of its service.
type Resolver interface {
	Resolve(stage string) (string, error)
}

// StaticResolver is a fixed name-to-address table, the production resolver.
type StaticResolver map[string]string

func (r StaticResolver) Resolve(stage string) (string, error) {
	addr, ok := r[stage]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	return addr, nil
}

// stageRoutes maps each stage to the operation path its service exposes.
var stageRoutes = map[string]string{
	models.StageDocument: "/analyze/",
	models.StageOCR:      "/extract/",
	models.StageNLP:      "/analyze/",
	models.StageForm:     "/fill/",
}

// Invoker is the invocation contract the pipeline executor depends on.
type Invoker interface {
	Invoke(ctx context.Context, stage, subjectID string) error
}

// Client performs synchronous HTTP calls to stage services.
type Client struct {
	resolver Resolver
	http     *http.Client
}

// NewClient builds a stage client. Each invocation is bounded by timeout;
// a hung stage is the only thing that can stall a pipeline run.
func NewClient(resolver Resolver, timeout time.Duration) *Client {
	return &Client{
		resolver: resolver,
		http:     &http.Client{Timeout: timeout},
	}
}

// Invoke calls the named stage for one subject and normalizes the outcome.
// It never touches job state; the caller decides what a failure means.
func (c *Client) Invoke(ctx context.Context, stage, subjectID string) error {
	addr, err := c.resolver.Resolve(stage)
	if err != nil {
		return err
	}
	route, ok := stageRoutes[stage]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}

	endpoint := addr + route + url.PathEscape(subjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return &Error{Stage: stage, Message: fmt.Sprintf("%s stage: build request: %v", stage, err)}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Stage: stage, Message: fmt.Sprintf("%s stage: %v", stage, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("%s stage returned %d", stage, resp.StatusCode)
		if len(body) > 0 {
			msg = fmt.Sprintf("%s: %s", msg, body)
		}
		return &Error{Stage: stage, Message: msg}
	}

	// The response body is the stage's own business; success is all we need.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return nil
}
