package scripture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
	"github.com/FocuswithJustin/SacredPsalms/core/reference"
	"github.com/FocuswithJustin/SacredPsalms/internal/logging"
)

// DefaultESVURL is the ESV passage text endpoint.
const DefaultESVURL = "https://api.esv.org/v3/passage/text/"

// DefaultTimeout bounds every upstream request.
const DefaultTimeout = 15 * time.Second

type esvResponse struct {
	Passages    []string `json:"passages"`
	PassageMeta []struct {
		VerseCount int `json:"verse_count"`
	} `json:"passage_meta"`
}

// ESVClient fetches plain text psalms from api.esv.org.
type ESVClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewESVClient creates a client. An empty baseURL uses DefaultESVURL.
func NewESVClient(baseURL, apiKey string) *ESVClient {
	if baseURL == "" {
		baseURL = DefaultESVURL
	}
	return &ESVClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// FetchByNumber fetches Psalm n.
func (c *ESVClient) FetchByNumber(ctx context.Context, n int, t Translation) (Scripture, error) {
	if err := reference.ValidateChapter(n); err != nil {
		return Scripture{}, err
	}
	start := time.Now()
	s, err := c.fetch(ctx, n)
	logging.ScriptureFetch(ctx, "esv", string(ESV), n, time.Since(start), err)
	return s, err
}

// FetchRandom fetches a uniformly chosen psalm.
func (c *ESVClient) FetchRandom(ctx context.Context, t Translation) (Scripture, error) {
	return c.FetchByNumber(ctx, RandomPsalm(), t)
}

func (c *ESVClient) fetch(ctx context.Context, n int) (Scripture, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("Psalm %d", n))
	params.Set("include-headings", "false")
	params.Set("include-footnotes", "false")
	params.Set("include-verse-numbers", "false")
	params.Set("include-short-copyright", "false")
	params.Set("include-passage-references", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Scripture{}, fmt.Errorf("build esv request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Scripture{}, errors.NewUpstream("esv", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Scripture{}, errors.NewUpstream("esv", resp.StatusCode, upstreamBody(resp.Body))
	}

	var data esvResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Scripture{}, errors.NewUpstream("esv", resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if len(data.Passages) == 0 || strings.TrimSpace(data.Passages[0]) == "" {
		return Scripture{}, errors.NewUpstream("esv", resp.StatusCode, fmt.Errorf("no passage returned for psalm %d", n))
	}

	verses := 0
	if len(data.PassageMeta) > 0 {
		verses = data.PassageMeta[0].VerseCount
	}
	return Scripture{
		Reference:   reference.WholeChapter(n, verses).String(),
		Text:        strings.TrimSpace(data.Passages[0]),
		Translation: ESV,
		Psalm:       n,
	}, nil
}

// upstreamBody summarizes an error response body.
func upstreamBody(r io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return nil
	}
	return fmt.Errorf("%s", msg)
}
