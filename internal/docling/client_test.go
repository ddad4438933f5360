package docling

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/pkg/config"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
)

const successJSON = `{
	"success": true,
	"content": {
		"markdown": "# Intro\nHello",
		"sections": [
			{"title": "Intro", "content": "Hello", "order_index": 0, "estimated_minutes": 1}
		],
		"metadata": {"title": "Intro", "page_count": 3, "has_images": true}
	}
}`

func testClient(t *testing.T, run func(ctx context.Context, bin string, args ...string) ([]byte, error)) *Client {
	t.Helper()
	c := NewClient(config.DoclingConfig{
		PythonBin:  "python3",
		ScriptPath: "./docling_processor.py",
		WorkDir:    t.TempDir(),
		Timeout:    time.Minute,
	}, zap.NewNop())
	c.run = run
	return c
}

func TestProcessSuccess(t *testing.T) {
	var gotArgs []string
	c := testClient(t, func(_ context.Context, _ string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(successJSON), nil
	})

	res, err := c.Process(context.Background(), []byte("%PDF-1.4 fake"), "test.pdf", Options{
		EnableOCR: true,
		EnableVLM: true,
		VLMModel:  "SmolDocling",
	})
	require.NoError(t, err)
	assert.Equal(t, "# Intro\nHello", res.Markdown)
	require.Len(t, res.Sections, 1)
	assert.Equal(t, "Intro", res.Sections[0].Title)
	assert.Equal(t, 3, res.Metadata.PageCount)

	require.GreaterOrEqual(t, len(gotArgs), 2)
	assert.Equal(t, "./docling_processor.py", gotArgs[0])
	assert.Contains(t, gotArgs, "--vlm-model")
	assert.NotContains(t, gotArgs, "--no-ocr")
}

func TestProcessFlagMapping(t *testing.T) {
	var gotArgs []string
	c := testClient(t, func(_ context.Context, _ string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(successJSON), nil
	})

	_, err := c.Process(context.Background(), []byte("pdf"), "x.pdf", Options{
		EnableOCR:         false,
		EnableVLM:         false,
		CodeEnrichment:    true,
		FormulaEnrichment: true,
	})
	require.NoError(t, err)
	assert.Contains(t, gotArgs, "--no-ocr")
	assert.Contains(t, gotArgs, "--no-vlm")
	assert.Contains(t, gotArgs, "--enable-code-enrichment")
	assert.Contains(t, gotArgs, "--enable-formula-enrichment")
	assert.NotContains(t, gotArgs, "--vlm-model")
}

func TestProcessReportedFailure(t *testing.T) {
	c := testClient(t, func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`{"success": false, "error": "Processing failed: bad xref table"}`), fmt.Errorf("exit 1")
	})

	_, err := c.Process(context.Background(), []byte("pdf"), "broken.pdf", Options{})
	require.Error(t, err)

	var procErr *appErrors.ProcessingError
	require.True(t, errors.As(err, &procErr))
	assert.False(t, procErr.Retryable)
	assert.Contains(t, procErr.Message, "bad xref table")
}

func TestProcessMissingDependencyNotRetryable(t *testing.T) {
	c := testClient(t, func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`{"success": false, "error": "Docling not installed or missing components: no module named docling"}`), fmt.Errorf("exit 1")
	})

	_, err := c.Process(context.Background(), []byte("pdf"), "doc.pdf", Options{})
	var procErr *appErrors.ProcessingError
	require.True(t, errors.As(err, &procErr))
	assert.False(t, procErr.Retryable)
}

func TestProcessCrashIsRetryable(t *testing.T) {
	c := testClient(t, func(context.Context, string, ...string) ([]byte, error) {
		return nil, fmt.Errorf("signal: killed")
	})

	_, err := c.Process(context.Background(), []byte("pdf"), "doc.pdf", Options{})
	var procErr *appErrors.ProcessingError
	require.True(t, errors.As(err, &procErr))
	assert.True(t, procErr.Retryable)
}

func TestProcessMalformedOutputNotRetryable(t *testing.T) {
	c := testClient(t, func(context.Context, string, ...string) ([]byte, error) {
		return []byte("not json at all"), nil
	})

	_, err := c.Process(context.Background(), []byte("pdf"), "doc.pdf", Options{})
	var procErr *appErrors.ProcessingError
	require.True(t, errors.As(err, &procErr))
	assert.False(t, procErr.Retryable)
}

func TestProcessSkipsInterpreterNoise(t *testing.T) {
	c := testClient(t, func(context.Context, string, ...string) ([]byte, error) {
		return []byte("VLM components not available\n" + successJSON), nil
	})

	res, err := c.Process(context.Background(), []byte("pdf"), "doc.pdf", Options{EnableOCR: true})
	require.NoError(t, err)
	assert.Len(t, res.Sections, 1)
}

func TestProcessEmptyInputRejected(t *testing.T) {
	c := testClient(t, func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("subprocess must not run for empty input")
		return nil, nil
	})

	_, err := c.Process(context.Background(), nil, "doc.pdf", Options{})
	require.Error(t, err)
}

func TestProcessCleansUpTempFile(t *testing.T) {
	workDir := t.TempDir()
	c := NewClient(config.DoclingConfig{
		PythonBin:  "python3",
		ScriptPath: "./docling_processor.py",
		WorkDir:    workDir,
		Timeout:    time.Minute,
	}, zap.NewNop())

	var sawTemp bool
	c.run = func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if _, err := os.Stat(args[1]); err == nil {
			sawTemp = true
		}
		return []byte(`{"success": false, "error": "Processing failed: x"}`), fmt.Errorf("exit 1")
	}

	_, err := c.Process(context.Background(), []byte("pdf"), "doc.pdf", Options{})
	require.Error(t, err)
	require.True(t, sawTemp)

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".pdf", filepath.Ext(e.Name()), "temp pdf left behind")
	}
}
