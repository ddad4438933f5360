package docling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/models"
	"github.com/modulearn/modulearn-api/pkg/config"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
)

// Options mirror the processor's CLI flags.
type Options struct {
	EnableOCR         bool
	EnableVLM         bool
	VLMModel          string
	CodeEnrichment    bool
	FormulaEnrichment bool
}

// Section is one extracted chunk in document order.
type Section struct {
	Title            string `json:"title"`
	Content          string `json:"content"`
	OrderIndex       int    `json:"order_index"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

// Result is the structured output of a successful conversion.
type Result struct {
	Markdown string
	Sections []Section
	Metadata models.DocumentMetadata
}

type envelope struct {
	Success bool     `json:"success"`
	Content *payload `json:"content"`
	Error   string   `json:"error"`
}

type payload struct {
	Markdown string                  `json:"markdown"`
	Sections []Section               `json:"sections"`
	Metadata models.DocumentMetadata `json:"metadata"`
}

// Client wraps the external Docling processor behind a subprocess boundary.
// The processor does the actual document understanding; this client only
// manages temp files, flags, timeouts and JSON decoding. It never panics or
// leaks raw exec errors past its boundary: every failure becomes a typed
// ProcessingError with a retryable classification.
type Client struct {
	cfg    config.DoclingConfig
	logger *zap.Logger

	// run executes the processor and returns its stdout. Swapped in tests.
	run func(ctx context.Context, bin string, args ...string) ([]byte, error)
}

// NewClient constructs a client from config.
func NewClient(cfg config.DoclingConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	c := &Client{cfg: cfg, logger: logger}
	c.run = c.runSubprocess
	return c
}

// Probe verifies the interpreter and processor script are reachable without
// converting anything. Used by startup checks and the health service.
func (c *Client) Probe(ctx context.Context) error {
	if _, err := exec.LookPath(c.cfg.PythonBin); err != nil {
		return fmt.Errorf("python interpreter %q not found: %w", c.cfg.PythonBin, err)
	}
	if _, err := os.Stat(c.cfg.ScriptPath); err != nil {
		return fmt.Errorf("processor script missing at %s: %w", c.cfg.ScriptPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := c.run(ctx, c.cfg.PythonBin, c.cfg.ScriptPath, "--help"); err != nil {
		return fmt.Errorf("processor probe failed: %w", err)
	}
	return nil
}

// Process writes the PDF bytes to a uniquely named temp file, invokes the
// processor and decodes its JSON output. The temp file is removed on every
// exit path.
func (c *Client) Process(ctx context.Context, data []byte, filename string, opts Options) (*Result, error) {
	if len(data) == 0 {
		return nil, newProcessingError("empty document", false, nil)
	}

	if err := os.MkdirAll(c.cfg.WorkDir, 0o755); err != nil {
		return nil, newProcessingError("prepare work directory", true, err)
	}

	tmpPath := filepath.Join(c.cfg.WorkDir, fmt.Sprintf("%s.pdf", uuid.NewString()))
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return nil, newProcessingError("write temp file", true, err)
	}
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			c.logger.Sugar().Warnw("failed to remove temp file", "path", tmpPath, "error", err)
		}
	}()

	args := append([]string{c.cfg.ScriptPath, tmpPath}, c.buildFlags(opts)...)

	runCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	stdout, runErr := c.run(runCtx, c.cfg.PythonBin, args...)
	elapsed := time.Since(start)

	if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, newProcessingError(
			fmt.Sprintf("processing timed out after %s for %s", c.cfg.Timeout, filename), true, runCtx.Err())
	}

	// The processor reports failures as {"success": false} on stdout while
	// exiting non-zero, so decode before inspecting the exec error.
	var env envelope
	if decodeErr := json.Unmarshal(firstJSON(stdout), &env); decodeErr != nil {
		if runErr != nil {
			return nil, newProcessingError("processor crashed", true, runErr)
		}
		return nil, newProcessingError("malformed processor output", false, decodeErr)
	}

	if !env.Success {
		retryable := isTransientMessage(env.Error)
		return nil, newProcessingError(env.Error, retryable, runErr)
	}
	if env.Content == nil {
		return nil, newProcessingError("processor returned no content", false, nil)
	}

	c.logger.Sugar().Infow("document processed",
		"file", filename,
		"sections", len(env.Content.Sections),
		"pages", env.Content.Metadata.PageCount,
		"duration", elapsed)

	return &Result{
		Markdown: env.Content.Markdown,
		Sections: env.Content.Sections,
		Metadata: env.Content.Metadata,
	}, nil
}

func (c *Client) buildFlags(opts Options) []string {
	flags := make([]string, 0, 6)
	if !opts.EnableOCR {
		flags = append(flags, "--no-ocr")
	}
	if !opts.EnableVLM {
		flags = append(flags, "--no-vlm")
	} else if opts.VLMModel != "" {
		flags = append(flags, "--vlm-model", opts.VLMModel)
	}
	if opts.CodeEnrichment {
		flags = append(flags, "--enable-code-enrichment")
	}
	if opts.FormulaEnrichment {
		flags = append(flags, "--enable-formula-enrichment")
	}
	return flags
}

func (c *Client) runSubprocess(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	stdout, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// stdout may still carry the JSON failure envelope
			return stdout, fmt.Errorf("processor exited %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return stdout, nil
}

// firstJSON trims any log noise the interpreter prints before the JSON body.
func firstJSON(out []byte) []byte {
	idx := -1
	for i, b := range out {
		if b == '{' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return out
	}
	return out[idx:]
}

func newProcessingError(message string, retryable bool, err error) error {
	return appErrors.NewProcessingError(message, retryable, err)
}

func isTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "not installed") || strings.Contains(lower, "missing components") {
		return false
	}
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "temporarily") ||
		strings.Contains(lower, "resource")
}
