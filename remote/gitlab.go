package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// DefaultConcurrency bounds parallel snapshot content fetches.
const DefaultConcurrency = 4

const defaultGitLabHost = "https://gitlab.com"

// gitlabTreePageSize is the per_page used when walking the repository tree.
const gitlabTreePageSize = 100

// GitLabConfig configures a GitLab adapter.
type GitLabConfig struct {
	// Project is the path-with-namespace (e.g. "group/project") or the
	// numeric project id. It is URL-encoded into request paths.
	Project string
	// Token is sent as PRIVATE-TOKEN. Empty means unauthenticated.
	Token string
	// Host is the instance base URL. Defaults to https://gitlab.com.
	Host string
	// HTTPClient is used for all requests. Nil uses http.DefaultClient.
	HTTPClient *http.Client
	// Logger is used for structured logging. Nil uses slog.Default().
	Logger *slog.Logger
	// Concurrency bounds parallel content fetches. Zero uses the default.
	Concurrency int
}

// GitLab talks to the GitLab REST API (v4). Commits are applied through the
// commits API, which takes the change actions directly — there is no
// explicit blob or tree construction.
type GitLab struct {
	baseURL     string
	token       string
	doer        httpDoer
	logger      *slog.Logger
	concurrency int
}

// gitlabTreeMarker is what CreateTree returns: the commits API has no tree
// objects, so there is nothing real to hand back.
const gitlabTreeMarker = "gitlab:virtual-tree"

// NewGitLab creates a GitLab adapter.
func NewGitLab(config GitLabConfig) (*GitLab, error) {
	if config.Project == "" {
		return nil, fmt.Errorf("gitlab: Project is required")
	}
	host := config.Host
	if host == "" {
		host = defaultGitLabHost
	}
	if _, err := url.Parse(host); err != nil {
		return nil, fmt.Errorf("gitlab: invalid host %q: %w", host, err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &GitLab{
		baseURL:     trimSlash(host) + "/api/v4/projects/" + url.PathEscape(config.Project),
		token:       config.Token,
		doer:        newHTTPDoer(config.HTTPClient),
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func (g *GitLab) headers() []header {
	if g.token == "" {
		return nil
	}
	return []header{{"PRIVATE-TOKEN", g.token}}
}

// FetchSnapshot reads the branch head, the recursive tree listing and the
// raw contents of every blob. Contents are fetched concurrently.
func (g *GitLab) FetchSnapshot(ctx context.Context, branch string) (*Snapshot, error) {
	head, err := g.branchHead(ctx, branch)
	if err != nil {
		return nil, err
	}

	paths, err := g.treePaths(ctx, branch)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("fetching snapshot contents", "branch", branch, "files", len(paths))

	var mu sync.Mutex
	files := make(map[string][]byte, len(paths))

	p := pool.New().WithMaxGoroutines(g.concurrency).WithContext(ctx).WithCancelOnError()
	for _, path := range paths {
		path := path
		p.Go(func(ctx context.Context) error {
			content, err := g.rawFile(ctx, branch, path)
			if err != nil {
				return err
			}
			mu.Lock()
			files[path] = content
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	return &Snapshot{Head: head, Files: files}, nil
}

func (g *GitLab) branchHead(ctx context.Context, branch string) (string, error) {
	body, err := g.doer.do(ctx, http.MethodGet,
		g.baseURL+"/repository/branches/"+url.PathEscape(branch), nil, g.headers()...)
	if err != nil {
		return "", fmt.Errorf("gitlab: fetch branch %s: %w", branch, err)
	}

	var response struct {
		Commit struct {
			ID string `json:"id"`
		} `json:"commit"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("gitlab: branch %s: %w", branch, ErrInvalidJSON)
	}
	if response.Commit.ID == "" {
		return "", fmt.Errorf("gitlab: branch %s: %w", branch, ErrUnexpectedResponse)
	}
	return response.Commit.ID, nil
}

func (g *GitLab) treePaths(ctx context.Context, branch string) ([]string, error) {
	var paths []string
	for page := 1; ; page++ {
		query := url.Values{
			"ref":       {branch},
			"recursive": {"true"},
			"per_page":  {strconv.Itoa(gitlabTreePageSize)},
			"page":      {strconv.Itoa(page)},
		}
		body, err := g.doer.do(ctx, http.MethodGet,
			g.baseURL+"/repository/tree?"+query.Encode(), nil, g.headers()...)
		if err != nil {
			return nil, fmt.Errorf("gitlab: list tree: %w", err)
		}

		var entries []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("gitlab: list tree: %w", ErrInvalidJSON)
		}
		for _, entry := range entries {
			if entry.Type == "blob" {
				paths = append(paths, entry.Path)
			}
		}
		if len(entries) < gitlabTreePageSize {
			return paths, nil
		}
	}
}

func (g *GitLab) rawFile(ctx context.Context, branch, path string) ([]byte, error) {
	content, err := g.doer.do(ctx, http.MethodGet,
		g.baseURL+"/repository/files/"+url.PathEscape(path)+"/raw?ref="+url.QueryEscape(branch),
		nil, g.headers()...)
	if err != nil {
		return nil, fmt.Errorf("gitlab: fetch %s: %w", path, err)
	}
	return content, nil
}

type gitlabAction struct {
	Action   string `json:"action"`
	FilePath string `json:"file_path"`
	Content  string `json:"content,omitempty"`
}

type gitlabCommitRequest struct {
	Branch        string         `json:"branch"`
	CommitMessage string         `json:"commit_message"`
	Actions       []gitlabAction `json:"actions"`
}

// CreateCommitWithActions posts the change set to the commits API and
// returns the new commit id.
func (g *GitLab) CreateCommitWithActions(ctx context.Context, branch, message string, changes []Change) (string, error) {
	actions := make([]gitlabAction, 0, len(changes))
	for _, change := range changes {
		action := gitlabAction{
			Action:   string(change.Action),
			FilePath: change.Path,
		}
		if change.Action != ActionDelete {
			action.Content = string(change.Content)
		}
		actions = append(actions, action)
	}

	body, err := g.doer.do(ctx, http.MethodPost, g.baseURL+"/repository/commits",
		gitlabCommitRequest{Branch: branch, CommitMessage: message, Actions: actions},
		g.headers()...)
	if err != nil {
		return "", fmt.Errorf("gitlab: create commit: %w", err)
	}

	var response struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("gitlab: create commit: %w", ErrInvalidJSON)
	}
	if response.ID == "" {
		return "", fmt.Errorf("gitlab: create commit: %w", ErrUnexpectedResponse)
	}

	g.logger.Info("created commit", "branch", branch, "sha", response.ID, "actions", len(actions))
	return response.ID, nil
}

// CreateBlobs is not a GitLab concept: contents travel inside the commit
// actions. The returned shas are placeholders so legacy callers can thread
// them through to CreateTree, which ignores them.
func (g *GitLab) CreateBlobs(ctx context.Context, contents [][]byte) ([]string, error) {
	shas := make([]string, len(contents))
	for i := range contents {
		shas[i] = gitlabTreeMarker
	}
	return shas, nil
}

// CreateTree returns the provider marker; the actual tree is built by the
// commits API inside CreateCommitWithActions.
func (g *GitLab) CreateTree(ctx context.Context, baseTree string, entries []TreeEntry) (string, error) {
	return gitlabTreeMarker, nil
}

// CreateCommit is unsupported: GitLab has no standalone commit-object
// endpoint. Use CreateCommitWithActions.
func (g *GitLab) CreateCommit(ctx context.Context, message, tree string, parents []string) (string, error) {
	return "", fmt.Errorf("gitlab: explicit commit objects are not supported, use CreateCommitWithActions")
}

// UpdateRef is a no-op: the commits API already moves the branch.
func (g *GitLab) UpdateRef(ctx context.Context, branch, sha string) error {
	return nil
}
