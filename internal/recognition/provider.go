package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ProviderResult is the structured response of the external recognizer.
type ProviderResult struct {
	Success      bool    `json:"success"`
	LicensePlate string  `json:"licensePlate"`
	Confidence   float64 `json:"confidence"`
	Message      string  `json:"message"`
	RawText      string  `json:"raw_text"`
}

// Provider turns an image file into a plate guess. The production
// implementation shells out to the Python recognizer; tests plug in a
// fake so the orchestrator's cache and gating can be exercised alone.
type Provider interface {
	Recognize(ctx context.Context, imagePath string) (*ProviderResult, error)
}

// ScriptProvider invokes `<python> <script> <imagePath>` and parses the
// single JSON object the script prints on stdout. Any non-zero exit,
// timeout, or unparsable output is an error; the orchestrator maps
// those to RecognitionFailed.
type ScriptProvider struct {
	pythonBin  string
	scriptPath string
	timeout    time.Duration
}

// NewScriptProvider creates the subprocess-backed provider
func NewScriptProvider(pythonBin, scriptPath string, timeout time.Duration) *ScriptProvider {
	return &ScriptProvider{
		pythonBin:  pythonBin,
		scriptPath: scriptPath,
		timeout:    timeout,
	}
}

func (p *ScriptProvider) Recognize(ctx context.Context, imagePath string) (*ProviderResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.pythonBin, p.scriptPath, imagePath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("recognizer timed out after %s", p.timeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("recognizer failed: %w (%s)", err, detail)
		}
		return nil, fmt.Errorf("recognizer failed: %w", err)
	}

	var result ProviderResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("unparsable recognizer output: %w", err)
	}
	return &result, nil
}
