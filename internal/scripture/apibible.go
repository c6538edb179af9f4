package scripture

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
	"github.com/FocuswithJustin/SacredPsalms/core/markup"
	"github.com/FocuswithJustin/SacredPsalms/core/reference"
	"github.com/FocuswithJustin/SacredPsalms/internal/logging"
)

const (
	// DefaultAPIBibleURL is the API.Bible v1 root.
	DefaultAPIBibleURL = "https://api.scripture.api.bible/v1"
	// KJVBibleID identifies the King James Version on API.Bible.
	KJVBibleID = "de4e12af7f28f599-02"
)

type apiBibleChapter struct {
	Data struct {
		ID         string `json:"id"`
		Reference  string `json:"reference"`
		Content    string `json:"content"`
		VerseCount int    `json:"verseCount"`
	} `json:"data"`
}

// APIBibleClient fetches psalms from API.Bible and converts the chapter HTML
// to plain text with paragraph breaks.
type APIBibleClient struct {
	baseURL    string
	apiKey     string
	bibleID    string
	httpClient *http.Client
}

// NewAPIBibleClient creates a client for the KJV. An empty baseURL uses
// DefaultAPIBibleURL.
func NewAPIBibleClient(baseURL, apiKey string) *APIBibleClient {
	if baseURL == "" {
		baseURL = DefaultAPIBibleURL
	}
	return &APIBibleClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		bibleID: KJVBibleID,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// FetchByNumber fetches Psalm n.
func (c *APIBibleClient) FetchByNumber(ctx context.Context, n int, t Translation) (Scripture, error) {
	if err := reference.ValidateChapter(n); err != nil {
		return Scripture{}, err
	}
	start := time.Now()
	s, err := c.fetch(ctx, n)
	logging.ScriptureFetch(ctx, "api.bible", string(KJV), n, time.Since(start), err)
	return s, err
}

// FetchRandom fetches a uniformly chosen psalm.
func (c *APIBibleClient) FetchRandom(ctx context.Context, t Translation) (Scripture, error) {
	return c.FetchByNumber(ctx, RandomPsalm(), t)
}

func (c *APIBibleClient) fetch(ctx context.Context, n int) (Scripture, error) {
	ref := reference.Ref{Chapter: n}
	params := url.Values{}
	params.Set("content-type", "html")
	params.Set("include-notes", "false")
	params.Set("include-titles", "false")
	params.Set("include-chapter-numbers", "false")
	params.Set("include-verse-numbers", "false")
	params.Set("include-verse-spans", "false")

	endpoint := fmt.Sprintf("%s/bibles/%s/chapters/%s?%s", c.baseURL, c.bibleID, ref.ChapterID(), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Scripture{}, fmt.Errorf("build api.bible request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Scripture{}, errors.NewUpstream("api.bible", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Scripture{}, errors.NewUpstream("api.bible", resp.StatusCode, upstreamBody(resp.Body))
	}

	var chapter apiBibleChapter
	if err := json.NewDecoder(resp.Body).Decode(&chapter); err != nil {
		return Scripture{}, errors.NewUpstream("api.bible", resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	text, err := markup.ExtractText(chapter.Data.Content)
	if err != nil {
		return Scripture{}, errors.NewUpstream("api.bible", resp.StatusCode, err)
	}
	if text == "" {
		return Scripture{}, errors.NewUpstream("api.bible", resp.StatusCode, fmt.Errorf("empty chapter %s", ref.ChapterID()))
	}

	return Scripture{
		Reference:   reference.WholeChapter(n, chapter.Data.VerseCount).String(),
		Text:        text,
		Translation: KJV,
		Psalm:       n,
	}, nil
}
