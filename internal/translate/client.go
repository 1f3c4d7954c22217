package translate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	apperrors "github.com/speechtrack/platform/internal/errors"
	"github.com/speechtrack/platform/internal/resilience"
)

const clientTimeout = 60 * time.Second

// Client talks to the translation text service over HTTP. Streaming
// responses arrive as newline-delimited JSON chunks. A circuit breaker
// keeps a failing service from being hammered by every trigger.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	breaker *resilience.Breaker
}

// NewClient creates a translation service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: clientTimeout},
		breaker: resilience.New(resilience.DefaultConfig()),
	}
}

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
	Stream         bool   `json:"stream"`
}

type translateChunk struct {
	Chunk string `json:"chunk"`
	Done  bool   `json:"done"`
}

// TranslateStream implements Streamer.
func (c *Client) TranslateStream(ctx context.Context, text, targetLanguage string, onChunk func(string)) error {
	return c.breaker.Execute(func() error {
		body, err := json.Marshal(translateRequest{Text: text, TargetLanguage: targetLanguage, Stream: true})
		if err != nil {
			return apperrors.Wrap(err, apperrors.Internal, "encode translate request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/translate", bytes.NewReader(body))
		if err != nil {
			return apperrors.Wrap(err, apperrors.Internal, "build translate request")
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperrors.Wrap(err, apperrors.Network, "translate call failed")
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return apperrors.Newf(apperrors.Network, "translate http %d: %s", resp.StatusCode, string(b))
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk translateChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				return apperrors.Wrap(err, apperrors.Parse, "malformed translate chunk")
			}
			if chunk.Chunk != "" {
				onChunk(chunk.Chunk)
			}
			if chunk.Done {
				return nil
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperrors.Wrap(err, apperrors.Network, "translate stream interrupted")
		}
		return nil
	})
}

type speechRequest struct {
	Text     string `json:"text"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language"`
}

type speechResponse struct {
	Audio      string `json:"audio"` // base64 PCM16
	SampleRate int    `json:"sampleRate"`
}

// Synthesize implements Synthesizer.
func (c *Client) Synthesize(ctx context.Context, text string, voice Voice) (Audio, error) {
	return resilience.ExecuteWithResult(c.breaker, func() (Audio, error) {
		body, err := json.Marshal(speechRequest{Text: text, Voice: voice.Name, Language: voice.Language})
		if err != nil {
			return Audio{}, apperrors.Wrap(err, apperrors.Internal, "encode speech request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech", bytes.NewReader(body))
		if err != nil {
			return Audio{}, apperrors.Wrap(err, apperrors.Internal, "build speech request")
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return Audio{}, ctx.Err()
			}
			return Audio{}, apperrors.Wrap(err, apperrors.Network, "speech call failed")
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return Audio{}, apperrors.Newf(apperrors.Network, "speech http %d: %s", resp.StatusCode, string(b))
		}

		var sr speechResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return Audio{}, apperrors.Wrap(err, apperrors.Parse, "malformed speech response")
		}
		pcm, err := base64.StdEncoding.DecodeString(sr.Audio)
		if err != nil {
			return Audio{}, apperrors.Wrap(err, apperrors.Parse, "malformed speech audio")
		}
		return Audio{PCM: pcm, SampleRate: sr.SampleRate}, nil
	})
}
