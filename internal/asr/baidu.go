package asr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/voxrelay/voxrelay/internal/config"
)

const (
	baiduTokenURL = "https://aip.baidubce.com/oauth/2.0/token"
	baiduASRURL   = "https://vop.baidu.com/server_api"
)

// errNoCredentials marks an adapter that was configured without keys.
// It is surfaced at call time so startup never fails on missing secrets.
var errNoCredentials = errors.New("baidu asr credentials not configured")

type baiduRecognizer struct {
	cfg      config.ASRConfig
	client   *http.Client
	tokenURL string
	asrURL   string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewBaiduRecognizer builds the Baidu short-speech recognizer. The OAuth
// access token is fetched lazily on first use and refreshed on expiry;
// the fetch is safe to race across sessions sharing this adapter.
func NewBaiduRecognizer(cfg config.ASRConfig) Recognizer {
	return &baiduRecognizer{
		cfg:      cfg,
		client:   &http.Client{Timeout: 30 * time.Second},
		tokenURL: baiduTokenURL,
		asrURL:   baiduASRURL,
	}
}

func (b *baiduRecognizer) Stream(ctx context.Context, audio []byte) (<-chan Transcript, <-chan error) {
	transcripts := make(chan Transcript, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(transcripts)
		defer close(errs)
		text, err := b.transcribe(ctx, audio)
		if err != nil {
			errs <- err
			return
		}
		transcripts <- Transcript{Text: text, Confidence: 0.95}
	}()
	return transcripts, errs
}

func (b *baiduRecognizer) transcribe(ctx context.Context, audio []byte) (string, error) {
	token, err := b.token(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"format":  b.cfg.Format,
		"rate":    b.cfg.SampleRate,
		"channel": 1,
		"cuid":    "voxrelay",
		"token":   token,
		"speech":  base64.StdEncoding.EncodeToString(audio),
		"len":     len(audio),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.asrURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("baidu asr request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("baidu asr returned status %s", resp.Status)
	}

	var result struct {
		ErrNo  int      `json:"err_no"`
		ErrMsg string   `json:"err_msg"`
		Result []string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode baidu asr response: %w", err)
	}
	if result.ErrNo != 0 {
		return "", fmt.Errorf("baidu asr failed: %s (err_no=%d)", result.ErrMsg, result.ErrNo)
	}
	return strings.Join(result.Result, ""), nil
}

// token returns a cached access token, fetching a fresh one when absent
// or expired. The whole check-and-fetch runs under the lock so concurrent
// callers observe a single fetch.
func (b *baiduRecognizer) token(ctx context.Context) (string, error) {
	if b.cfg.BaiduAPIKey == "" || b.cfg.BaiduSecretKey == "" {
		return "", errNoCredentials
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.accessToken != "" && time.Now().Before(b.tokenExpiry) {
		return b.accessToken, nil
	}

	params := url.Values{}
	params.Set("grant_type", "client_credentials")
	params.Set("client_id", b.cfg.BaiduAPIKey)
	params.Set("client_secret", b.cfg.BaiduSecretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.tokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("baidu token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("baidu token returned status %s", resp.Status)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode baidu token response: %w", err)
	}
	if result.AccessToken == "" {
		return "", errors.New("baidu token response missing access_token")
	}

	b.accessToken = result.AccessToken
	expiry := time.Duration(result.ExpiresIn) * time.Second
	if expiry <= 0 {
		expiry = time.Hour
	}
	// Renew a minute early to avoid using a token at the edge of expiry.
	b.tokenExpiry = time.Now().Add(expiry - time.Minute)
	return b.accessToken, nil
}
