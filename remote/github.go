package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

const defaultGitHubAPI = "https://api.github.com"

// fileMode is the tree mode for regular files.
const fileMode = "100644"

// GitHubConfig configures a GitHub adapter.
type GitHubConfig struct {
	Owner string
	Repo  string
	// Token is sent as "Authorization: token …". Empty means
	// unauthenticated (public repos, low rate limits).
	Token string
	// APIBase overrides the API endpoint (GitHub Enterprise, tests).
	// Defaults to https://api.github.com.
	APIBase string
	// HTTPClient is used for all requests. Nil uses http.DefaultClient.
	HTTPClient *http.Client
	// Logger is used for structured logging. Nil uses slog.Default().
	Logger *slog.Logger
	// Concurrency bounds parallel content fetches. Zero uses the default.
	Concurrency int
}

// GitHub talks to the GitHub REST API using the standard blob/tree/commit/ref
// endpoints. CreateCommitWithActions composes them into one logical commit.
type GitHub struct {
	baseURL     string
	token       string
	doer        httpDoer
	logger      *slog.Logger
	concurrency int
}

// NewGitHub creates a GitHub adapter.
func NewGitHub(config GitHubConfig) (*GitHub, error) {
	if config.Owner == "" || config.Repo == "" {
		return nil, fmt.Errorf("github: Owner and Repo are required")
	}
	apiBase := config.APIBase
	if apiBase == "" {
		apiBase = defaultGitHubAPI
	}
	if _, err := url.Parse(apiBase); err != nil {
		return nil, fmt.Errorf("github: invalid API base %q: %w", apiBase, err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &GitHub{
		baseURL:     trimSlash(apiBase) + "/repos/" + config.Owner + "/" + config.Repo,
		token:       config.Token,
		doer:        newHTTPDoer(config.HTTPClient),
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (g *GitHub) headers(extra ...header) []header {
	headers := []header{{"Accept", "application/vnd.github+json"}}
	if g.token != "" {
		headers = append(headers, header{"Authorization", "token " + g.token})
	}
	return append(headers, extra...)
}

// branchInfo is the head commit sha and its root tree sha.
type branchInfo struct {
	head string
	tree string
}

func (g *GitHub) branch(ctx context.Context, branch string) (branchInfo, error) {
	body, err := g.doer.do(ctx, http.MethodGet,
		g.baseURL+"/branches/"+url.PathEscape(branch), nil, g.headers()...)
	if err != nil {
		return branchInfo{}, fmt.Errorf("github: fetch branch %s: %w", branch, err)
	}

	var response struct {
		Commit struct {
			SHA    string `json:"sha"`
			Commit struct {
				Tree struct {
					SHA string `json:"sha"`
				} `json:"tree"`
			} `json:"commit"`
		} `json:"commit"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return branchInfo{}, fmt.Errorf("github: branch %s: %w", branch, ErrInvalidJSON)
	}
	if response.Commit.SHA == "" {
		return branchInfo{}, fmt.Errorf("github: branch %s: %w", branch, ErrUnexpectedResponse)
	}
	return branchInfo{head: response.Commit.SHA, tree: response.Commit.Commit.Tree.SHA}, nil
}

// FetchSnapshot reads the branch head, the recursive tree and the raw
// contents of every blob. Contents are fetched concurrently.
func (g *GitHub) FetchSnapshot(ctx context.Context, branch string) (*Snapshot, error) {
	info, err := g.branch(ctx, branch)
	if err != nil {
		return nil, err
	}

	body, err := g.doer.do(ctx, http.MethodGet,
		g.baseURL+"/git/trees/"+info.tree+"?recursive=1", nil, g.headers()...)
	if err != nil {
		return nil, fmt.Errorf("github: list tree: %w", err)
	}

	var treeResponse struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
	}
	if err := json.Unmarshal(body, &treeResponse); err != nil {
		return nil, fmt.Errorf("github: list tree: %w", ErrInvalidJSON)
	}

	var paths []string
	for _, entry := range treeResponse.Tree {
		if entry.Type == "blob" {
			paths = append(paths, entry.Path)
		}
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

	return &Snapshot{Head: info.head, Files: files}, nil
}

func (g *GitHub) rawFile(ctx context.Context, branch, path string) ([]byte, error) {
	// The raw media type skips the base64 JSON envelope of the contents API.
	content, err := g.doer.do(ctx, http.MethodGet,
		g.baseURL+"/contents/"+escapePath(path)+"?ref="+url.QueryEscape(branch),
		nil, g.headers(header{"Accept", "application/vnd.github.raw+json"})...)
	if err != nil {
		return nil, fmt.Errorf("github: fetch %s: %w", path, err)
	}
	return content, nil
}

// escapePath escapes each path segment but keeps the separators.
func escapePath(path string) string {
	escaped := ""
	for i, segment := range splitSlash(path) {
		if i > 0 {
			escaped += "/"
		}
		escaped += url.PathEscape(segment)
	}
	return escaped
}

func splitSlash(path string) []string {
	var segments []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	return segments
}

// CreateBlobs uploads contents as blob objects and returns their shas.
func (g *GitHub) CreateBlobs(ctx context.Context, contents [][]byte) ([]string, error) {
	shas := make([]string, 0, len(contents))
	for _, content := range contents {
		body, err := g.doer.do(ctx, http.MethodPost, g.baseURL+"/git/blobs",
			map[string]string{"content": string(content), "encoding": "utf-8"},
			g.headers()...)
		if err != nil {
			return nil, fmt.Errorf("github: create blob: %w", err)
		}
		var response struct {
			SHA string `json:"sha"`
		}
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("github: create blob: %w", ErrInvalidJSON)
		}
		if response.SHA == "" {
			return nil, fmt.Errorf("github: create blob: %w", ErrUnexpectedResponse)
		}
		shas = append(shas, response.SHA)
	}
	return shas, nil
}

// githubTreeEntry is the wire form of one tree entry. SHA is a pointer so a
// deletion can serialize as an explicit null.
type githubTreeEntry struct {
	Path string  `json:"path"`
	Mode string  `json:"mode"`
	Type string  `json:"type"`
	SHA  *string `json:"sha"`
}

// CreateTree builds a tree on top of baseTree. An entry with an empty SHA is
// a deletion.
func (g *GitHub) CreateTree(ctx context.Context, baseTree string, entries []TreeEntry) (string, error) {
	wireEntries := make([]githubTreeEntry, 0, len(entries))
	for _, entry := range entries {
		mode := entry.Mode
		if mode == "" {
			mode = fileMode
		}
		wireEntry := githubTreeEntry{Path: entry.Path, Mode: mode, Type: "blob"}
		if entry.SHA != "" {
			sha := entry.SHA
			wireEntry.SHA = &sha
		}
		wireEntries = append(wireEntries, wireEntry)
	}

	request := map[string]any{"tree": wireEntries}
	if baseTree != "" {
		request["base_tree"] = baseTree
	}

	body, err := g.doer.do(ctx, http.MethodPost, g.baseURL+"/git/trees", request, g.headers()...)
	if err != nil {
		return "", fmt.Errorf("github: create tree: %w", err)
	}
	var response struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("github: create tree: %w", ErrInvalidJSON)
	}
	if response.SHA == "" {
		return "", fmt.Errorf("github: create tree: %w", ErrUnexpectedResponse)
	}
	return response.SHA, nil
}

// CreateCommit creates a commit object pointing at tree.
func (g *GitHub) CreateCommit(ctx context.Context, message, tree string, parents []string) (string, error) {
	body, err := g.doer.do(ctx, http.MethodPost, g.baseURL+"/git/commits",
		map[string]any{"message": message, "tree": tree, "parents": parents},
		g.headers()...)
	if err != nil {
		return "", fmt.Errorf("github: create commit: %w", err)
	}
	var response struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("github: create commit: %w", ErrInvalidJSON)
	}
	if response.SHA == "" {
		return "", fmt.Errorf("github: create commit: %w", ErrUnexpectedResponse)
	}
	return response.SHA, nil
}

// UpdateRef points the branch at sha.
func (g *GitHub) UpdateRef(ctx context.Context, branch, sha string) error {
	_, err := g.doer.do(ctx, http.MethodPatch, g.baseURL+"/git/refs/heads/"+url.PathEscape(branch),
		map[string]any{"sha": sha}, g.headers()...)
	if err != nil {
		return fmt.Errorf("github: update ref %s: %w", branch, err)
	}
	return nil
}

// CreateCommitWithActions composes blobs → tree → commit → ref into one
// logical commit on branch.
func (g *GitHub) CreateCommitWithActions(ctx context.Context, branch, message string, changes []Change) (string, error) {
	info, err := g.branch(ctx, branch)
	if err != nil {
		return "", err
	}

	entries := make([]TreeEntry, 0, len(changes))
	for _, change := range changes {
		if change.Action == ActionDelete {
			entries = append(entries, TreeEntry{Path: change.Path})
			continue
		}
		shas, err := g.CreateBlobs(ctx, [][]byte{change.Content})
		if err != nil {
			return "", err
		}
		entries = append(entries, TreeEntry{Path: change.Path, SHA: shas[0], Mode: fileMode})
	}

	tree, err := g.CreateTree(ctx, info.tree, entries)
	if err != nil {
		return "", err
	}

	commit, err := g.CreateCommit(ctx, message, tree, []string{info.head})
	if err != nil {
		return "", err
	}

	if err := g.UpdateRef(ctx, branch, commit); err != nil {
		return "", err
	}

	g.logger.Info("created commit", "branch", branch, "sha", commit, "actions", len(changes))
	return commit, nil
}
