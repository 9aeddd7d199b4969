package forum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/models"
)

const (
	DefaultAPIURL  = "https://oauth.reddit.com"
	DefaultAuthURL = "https://www.reddit.com/api/v1/access_token"

	defaultPollInterval = 5 * time.Second
	maxPollBackoff      = 16
	streamPageSize      = 100
	seenCapacity        = 1000
)

type RedditConfig struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	APIURL       string
	AuthURL      string
	Timeout      time.Duration
}

// Reddit implements Client against the Reddit OAuth API using the password grant.
type Reddit struct {
	api    *resty.Client
	auth   *resty.Client
	cfg    RedditConfig
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewReddit(cfg RedditConfig, logger *zap.Logger) *Reddit {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	api := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetQueryParam("raw_json", "1")

	auth := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetBasicAuth(cfg.ClientID, cfg.ClientSecret)

	return &Reddit{
		api:    api,
		auth:   auth,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

func (r *Reddit) accessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && r.now().Before(r.expiry) {
		return r.token, nil
	}

	var out tokenResponse
	resp, err := r.auth.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type": "password",
			"username":   r.cfg.Username,
			"password":   r.cfg.Password,
		}).
		SetResult(&out).
		Post(r.cfg.AuthURL)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Op: "auth", Err: err}
	}
	if err := classify("auth", resp); err != nil {
		return "", err
	}
	if out.Error != "" || out.AccessToken == "" {
		return "", &Error{Kind: KindAuth, Op: "auth", StatusCode: resp.StatusCode(), Err: errors.New(out.Error)}
	}

	r.token = out.AccessToken
	// Refresh a minute early so requests in flight do not race expiry.
	r.expiry = r.now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return r.token, nil
}

func (r *Reddit) dropToken() {
	r.mu.Lock()
	r.token = ""
	r.mu.Unlock()
}

func (r *Reddit) request(ctx context.Context) (*resty.Request, error) {
	token, err := r.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return r.api.R().SetContext(ctx).SetAuthToken(token), nil
}

func (r *Reddit) do(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	if err := classify(op, resp); err != nil {
		if KindOf(err) == KindAuth {
			r.dropToken()
		}
		return err
	}
	return nil
}

func classify(op string, resp *resty.Response) error {
	status := resp.StatusCode()
	switch {
	case status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuth, Op: op, StatusCode: status}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Op: op, StatusCode: status}
	case status >= 500:
		return &Error{Kind: KindNetwork, Op: op, StatusCode: status}
	default:
		return &Error{Kind: KindRejected, Op: op, StatusCode: status, Err: errors.New(strings.TrimSpace(resp.String()))}
	}
}

type listing struct {
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

type thingData struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Body       string  `json:"body"`
	Author     string  `json:"author"`
	Permalink  string  `json:"permalink"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}

func (t thing) item() models.Item {
	item := models.Item{
		ID:        t.Data.ID,
		Author:    t.Data.Author,
		Score:     t.Data.Score,
		Permalink: t.Data.Permalink,
		CreatedAt: time.Unix(int64(t.Data.CreatedUTC), 0).UTC(),
	}
	switch t.Kind {
	case "t3":
		item.Kind = models.KindPost
		item.Title = t.Data.Title
		item.Text = t.Data.Selftext
	case "t1":
		item.Kind = models.KindComment
		item.Text = t.Data.Body
	default:
		item.Kind = models.KindMore
	}
	return item
}

func (l listing) items(limit int) []models.Item {
	out := make([]models.Item, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, child.item())
	}
	return out
}

func (r *Reddit) listing(ctx context.Context, op, path string, params map[string]string) (listing, error) {
	var out listing
	req, err := r.request(ctx)
	if err != nil {
		return out, err
	}
	resp, err := req.SetQueryParams(params).SetResult(&out).Get(path)
	return out, r.do(op, resp, err)
}

func (r *Reddit) FetchRecent(ctx context.Context, subreddit string, limit int) ([]models.Item, error) {
	l, err := r.listing(ctx, "fetch_recent", "/r/"+subreddit+"/new", map[string]string{
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		return nil, err
	}
	return l.items(limit), nil
}

func (r *Reddit) FetchTop(ctx context.Context, subreddit string, limit int, timeframe string) ([]models.Item, error) {
	if timeframe == "" {
		timeframe = "all"
	}
	l, err := r.listing(ctx, "fetch_top", "/r/"+subreddit+"/top", map[string]string{
		"limit": strconv.Itoa(limit),
		"t":     timeframe,
	})
	if err != nil {
		return nil, err
	}
	return l.items(limit), nil
}

func (r *Reddit) ListComments(ctx context.Context, postID string, limit int) ([]models.Item, error) {
	const op = "list_comments"
	req, err := r.request(ctx)
	if err != nil {
		return nil, err
	}

	// The endpoint answers [post listing, comment listing].
	var out []listing
	resp, err := req.
		SetQueryParams(map[string]string{
			"limit": strconv.Itoa(limit),
			"depth": "1",
			"sort":  "top",
		}).
		SetResult(&out).
		Get("/comments/" + postID)
	if err := r.do(op, resp, err); err != nil {
		return nil, err
	}
	if len(out) < 2 {
		return nil, &Error{Kind: KindRejected, Op: op, Err: fmt.Errorf("unexpected response shape for post %s", postID)}
	}
	return out[1].items(limit), nil
}

type commentResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
	} `json:"json"`
}

func (r *Reddit) Reply(ctx context.Context, fullname, text string) error {
	const op = "reply"
	req, err := r.request(ctx)
	if err != nil {
		return err
	}

	var out commentResponse
	resp, err := req.
		SetFormData(map[string]string{
			"api_type": "json",
			"thing_id": fullname,
			"text":     text,
		}).
		SetResult(&out).
		Post("/api/comment")
	if err := r.do(op, resp, err); err != nil {
		return err
	}

	if len(out.JSON.Errors) > 0 {
		first := out.JSON.Errors[0]
		kind := KindRejected
		if len(first) > 0 && fmt.Sprint(first[0]) == "RATELIMIT" {
			kind = KindRateLimited
		}
		return &Error{Kind: kind, Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("%v", first)}
	}
	return nil
}

func (r *Reddit) StreamNew(ctx context.Context, subreddit string, opts StreamOptions) (<-chan models.Item, <-chan error) {
	items := make(chan models.Item)
	errs := make(chan error, 1)

	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	go func() {
		defer close(items)
		defer close(errs)

		start := r.now()
		seen := newSeenSet(seenCapacity)
		first := true
		backoff := 1

		for {
			batch, err := r.FetchRecent(ctx, subreddit, streamPageSize)
			switch {
			case ctx.Err() != nil:
				return
			case IsAuth(err):
				errs <- err
				return
			case err != nil:
				r.logger.Warn("Stream poll failed", zap.Error(err), zap.String("subreddit", subreddit))
				if backoff < maxPollBackoff {
					backoff *= 2
				}
			default:
				backoff = 1
				// Listings are newest first; deliver oldest first.
				for i := len(batch) - 1; i >= 0; i-- {
					item := batch[i]
					if !seen.add(item.ID) {
						continue
					}
					if opts.SkipExisting && (first || item.CreatedAt.Before(start.Truncate(time.Second))) {
						continue
					}
					select {
					case items <- item:
					case <-ctx.Done():
						return
					}
				}
				first = false
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(interval * time.Duration(backoff)):
			}
		}
	}()

	return items, errs
}

// seenSet remembers the most recent ids, evicting the oldest beyond capacity.
type seenSet struct {
	ids   map[string]struct{}
	order []string
	limit int
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{ids: make(map[string]struct{}, limit), limit: limit}
}

// add reports whether id was not seen before.
func (s *seenSet) add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.limit {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
	return true
}
