// Package github stores the registry as a JSON file in a GitHub repository,
// using the repository contents API.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vortunix/noderegistry/internal/model"
	"github.com/vortunix/noderegistry/internal/store"
)

const (
	DefaultAPIURL = "https://api.github.com"
	DefaultPath   = "setting/database.json"
)

type Options struct {
	APIURL  string
	Token   string
	Owner   string
	Repo    string
	Path    string
	Branch  string
	Tag     string
	Timeout time.Duration
}

type Store struct {
	client *resty.Client
	opts   Options
	log    *logrus.Entry
}

type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

type updateRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

func New(opts Options) (*Store, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, errors.New("github store: owner and repo are required")
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.APIURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28").
		SetHeader("User-Agent", "vortunix-noderegistry")
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}

	return &Store{
		client: client,
		opts:   opts,
		log: logrus.WithFields(logrus.Fields{
			"component": "github-store",
			"repo":      opts.Owner + "/" + opts.Repo,
			"path":      opts.Path,
		}),
	}, nil
}

func (s *Store) Load(ctx context.Context) (model.Registry, error) {
	content, err := s.getContent(ctx)
	if err != nil {
		return nil, &store.RetrievalError{Err: err}
	}
	raw, err := decodeContent(content)
	if err != nil {
		return nil, &store.RetrievalError{Err: err}
	}
	var reg model.Registry
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, &store.RetrievalError{Err: errors.Wrap(err, "parse registry")}
	}
	if reg == nil {
		reg = model.Registry{}
	}
	return reg, nil
}

// Save writes reg over the current file. The current sha is looked up first;
// when that lookup fails the write is attempted as a file creation.
func (s *Store) Save(ctx context.Context, reg model.Registry, message string) error {
	var sha string
	if content, err := s.getContent(ctx); err == nil {
		sha = content.SHA
	} else {
		s.log.WithError(err).Debug("no current revision, creating file")
	}

	if reg == nil {
		reg = model.Registry{}
	}
	doc, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return &store.PersistError{Err: errors.Wrap(err, "encode registry")}
	}

	body := updateRequest{
		Message: store.TaggedMessage(s.opts.Tag, message),
		Content: base64.StdEncoding.EncodeToString(doc),
		SHA:     sha,
		Branch:  s.opts.Branch,
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Put(s.contentsPath())
	if err != nil {
		return &store.PersistError{Err: errors.Wrap(err, "put contents")}
	}
	if resp.IsError() {
		return &store.PersistError{Err: apiError(resp)}
	}
	return nil
}

func (s *Store) getContent(ctx context.Context) (*contentResponse, error) {
	req := s.client.R().
		SetContext(ctx).
		SetResult(&contentResponse{})
	if s.opts.Branch != "" {
		req.SetQueryParam("ref", s.opts.Branch)
	}
	resp, err := req.Get(s.contentsPath())
	if err != nil {
		return nil, errors.Wrap(err, "get contents")
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	content, ok := resp.Result().(*contentResponse)
	if !ok || content == nil {
		return nil, errors.New("empty contents response")
	}
	return content, nil
}

func (s *Store) contentsPath() string {
	segments := strings.Split(strings.Trim(s.opts.Path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("/repos/%s/%s/contents/%s",
		url.PathEscape(s.opts.Owner), url.PathEscape(s.opts.Repo), strings.Join(segments, "/"))
}

func decodeContent(c *contentResponse) ([]byte, error) {
	if c.Encoding != "" && c.Encoding != "base64" {
		return nil, errors.Errorf("unsupported content encoding %q", c.Encoding)
	}
	clean := strings.NewReplacer("\n", "", "\r", "").Replace(c.Content)
	raw, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, errors.Wrap(err, "decode content")
	}
	return raw, nil
}

func apiError(resp *resty.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body(), &body)
	if body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode())
	}
	return errors.Errorf("github api %d: %s", resp.StatusCode(), body.Message)
}
