package opentdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"open-trivia-rounds/internal/domain"
)

const DefaultBaseURL = "https://opentdb.com"

// Response codes returned in the body of api.php.
const (
	CodeSuccess          = 0
	CodeNoResults        = 1
	CodeInvalidParameter = 2
	CodeTokenNotFound    = 3
	CodeTokenEmpty       = 4
	CodeRateLimit        = 5
)

// Client talks to the Open Trivia DB. It serves both the category catalog and
// the questions of a round.
type Client struct {
	BaseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

type categoriesResponse struct {
	TriviaCategories []domain.Category `json:"trivia_categories"`
}

type questionsResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []rawQuestion `json:"results"`
}

type rawQuestion struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// LoadCategories lists every category the trivia source offers.
func (c *Client) LoadCategories(ctx context.Context) ([]domain.Category, error) {
	var out categoriesResponse
	if err := c.get(ctx, "categories", "/api_category.php", nil, &out); err != nil {
		return nil, err
	}
	if len(out.TriviaCategories) == 0 {
		return nil, &domain.FetchError{Op: "categories", Err: domain.ErrNoCategoriesAvailable}
	}
	return out.TriviaCategories, nil
}

// FetchQuestions pulls amount questions of one category at the given level.
// The source may return fewer than requested.
func (c *Client) FetchQuestions(ctx context.Context, amount, categoryID int, level domain.Difficulty) ([]domain.Question, error) {
	if amount <= 0 {
		return nil, domain.NewValidationError("amount", "must be positive")
	}
	q := url.Values{}
	q.Set("amount", strconv.Itoa(amount))
	q.Set("category", strconv.Itoa(categoryID))
	if level != "" {
		q.Set("difficulty", string(level))
	}

	var out questionsResponse
	if err := c.get(ctx, "questions", "/api.php", q, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != CodeSuccess {
		return nil, &domain.FetchError{Op: "questions", Code: out.ResponseCode, Err: codeError(out.ResponseCode)}
	}
	return lo.Map(out.Results, func(r rawQuestion, _ int) domain.Question {
		return r.decode()
	}), nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, into any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &domain.FetchError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &domain.FetchError{Op: op, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return &domain.FetchError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (r rawQuestion) decode() domain.Question {
	return domain.Question{
		Category:      html.UnescapeString(r.Category),
		Type:          r.Type,
		Difficulty:    domain.Difficulty(r.Difficulty),
		Text:          html.UnescapeString(r.Question),
		CorrectAnswer: html.UnescapeString(r.CorrectAnswer),
		IncorrectAnswers: lo.Map(r.IncorrectAnswers, func(a string, _ int) string {
			return html.UnescapeString(a)
		}),
	}
}

func codeError(code int) error {
	switch code {
	case CodeNoResults:
		return errors.New("not enough questions for the query")
	case CodeInvalidParameter:
		return errors.New("invalid parameter")
	case CodeTokenNotFound, CodeTokenEmpty:
		return errors.New("session token rejected")
	case CodeRateLimit:
		return errors.New("rate limited")
	}
	return errors.New("unknown response code")
}
