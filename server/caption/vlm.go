package caption

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/pkg/requests"
	"github.com/cyclopcam/threatwatch/server/camera"
)

const EmptyCaption = "Security monitoring detected potential threat."

type captionRequest struct {
	Prompt       string `json:"prompt"`
	Image        string `json:"image"` // base64 encoded JPEG
	MaxNewTokens int    `json:"max_new_tokens"`
}

type captionResponse struct {
	Caption string `json:"caption"`
}

// VLMProvider talks to a vision-language model sidecar over HTTP
type VLMProvider struct {
	Log          logs.Log
	BaseURL      string // eg http://127.0.0.1:8600
	MaxNewTokens int
	Fallback     *FallbackProvider
	client       *http.Client
	lastErrAt    time.Time
}

func NewVLMProvider(log logs.Log, baseURL string, maxNewTokens int) *VLMProvider {
	if maxNewTokens <= 0 {
		maxNewTokens = 50
	}
	return &VLMProvider{
		Log:          logs.NewPrefixLogger(log, "VLM"),
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		MaxNewTokens: maxNewTokens,
		Fallback:     NewFallbackProvider(),
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

func (v *VLMProvider) Generate(ctx context.Context, frame *camera.Frame, prompt string) string {
	caption, err := v.generate(ctx, frame, prompt)
	if err != nil {
		// Captions are generated a handful at a time, so we don't need to rate limit as aggressively as the frame loop
		if time.Since(v.lastErrAt) > 5*time.Second {
			v.Log.Errorf("Error generating caption: %v", err)
			v.lastErrAt = time.Now()
		}
		return v.Fallback.Describe()
	}
	return caption
}

func (v *VLMProvider) generate(ctx context.Context, frame *camera.Frame, prompt string) (string, error) {
	jpg, err := frame.JPEG(90)
	if err != nil {
		return "", err
	}
	req := captionRequest{
		Prompt:       prompt,
		Image:        base64.StdEncoding.EncodeToString(jpg),
		MaxNewTokens: v.MaxNewTokens,
	}
	resp, err := requests.RequestJSON[captionResponse](ctx, v.client, "POST", v.BaseURL+"/caption", &req)
	if err != nil {
		return "", err
	}
	return CleanCaption(resp.Caption, prompt), nil
}

// CleanCaption removes an echo of the prompt from the model output.
// Some models return the prompt followed by the answer.
func CleanCaption(generated, prompt string) string {
	caption := generated
	if idx := strings.LastIndex(generated, prompt); idx >= 0 && prompt != "" {
		caption = generated[idx+len(prompt):]
	}
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return EmptyCaption
	}
	return caption
}

// ClearCache asks the sidecar to release GPU memory. Failure is not important.
func (v *VLMProvider) ClearCache() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "POST", v.BaseURL+"/clear_cache", nil)
	if err != nil {
		return
	}
	resp, err := v.client.Do(req)
	if err != nil {
		v.Log.Debugf("clear_cache failed: %v", err)
		return
	}
	resp.Body.Close()
}
