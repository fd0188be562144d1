// Package tracker wraps the GitHub Issues API behind the narrow surface the
// steward needs: listing open issues, reading comments, and the two mutation
// operations (labels, comments). All calls go through a shared rate limiter.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/stewardbot/steward/internal/types"
)

// fallbackBotLogin is used when the authenticated user cannot be resolved.
const fallbackBotLogin = "steward-bot"

// requestsPerSecond keeps the client comfortably inside GitHub's secondary
// rate limits for authenticated REST calls.
const requestsPerSecond = 2

// IssuesService is the subset of the go-github issues API the client uses.
// Narrow on purpose so tests can substitute a fake.
type IssuesService interface {
	ListByRepo(ctx context.Context, owner, repo string, opts *github.IssueListByRepoOptions) ([]*github.Issue, *github.Response, error)
	ListComments(ctx context.Context, owner, repo string, number int, opts *github.IssueListCommentsOptions) ([]*github.IssueComment, *github.Response, error)
	AddLabelsToIssue(ctx context.Context, owner, repo string, number int, labels []string) ([]*github.Label, *github.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
}

// UsersService is the subset of the go-github users API the client uses.
type UsersService interface {
	Get(ctx context.Context, user string) (*github.User, *github.Response, error)
}

// Client talks to a single GitHub repository.
type Client struct {
	issues  IssuesService
	users   UsersService
	limiter *rate.Limiter
	logger  *slog.Logger
	owner   string
	repo    string
}

// NewClient builds a tracker client for the repository slug (owner/repo)
// authenticated with the given token.
func NewClient(token, repoSlug string, logger *slog.Logger) (*Client, error) {
	owner, repo, err := splitRepo(repoSlug)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	gh := github.NewClient(oauth2.NewClient(context.Background(), ts))

	return &Client{
		issues:  gh.Issues,
		users:   gh.Users,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
		owner:   owner,
		repo:    repo,
	}, nil
}

// newClientWithServices is the test seam.
func newClientWithServices(issues IssuesService, users UsersService, owner, repo string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		issues:  issues,
		users:   users,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logger,
		owner:   owner,
		repo:    repo,
	}
}

func splitRepo(slug string) (owner, repo string, err error) {
	parts := strings.Split(strings.TrimSpace(slug), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository slug %q, expected owner/repo", slug)
	}
	return parts[0], parts[1], nil
}

// BotLogin resolves the login the steward comments under. Falls back to a
// fixed name when the authenticated user cannot be fetched.
func (c *Client) BotLogin(ctx context.Context) string {
	if err := c.limiter.Wait(ctx); err != nil {
		return fallbackBotLogin
	}
	user, _, err := c.users.Get(ctx, "")
	if err != nil || user.GetLogin() == "" {
		c.logger.Warn("failed to auto-detect bot username, using fallback", "fallback", fallbackBotLogin, "error", err)
		return fallbackBotLogin
	}
	return user.GetLogin()
}

// ListOpenIssues returns snapshots of open issues updated since the given
// time (zero time means all), capped at max. Pull requests are filtered out;
// GitHub reports them through the issues API.
func (c *Client) ListOpenIssues(ctx context.Context, since time.Time, max int) ([]types.IssueSnapshot, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if !since.IsZero() {
		opts.Since = since
	}
	return c.listIssues(ctx, opts, max)
}

// ListAllIssues returns snapshots of issues in every state, oldest first,
// capped at max. Used by the similarity-index backfill; closed issues stay
// indexed so duplicate detection can point at them.
func (c *Client) ListAllIssues(ctx context.Context, max int) ([]types.IssueSnapshot, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	return c.listIssues(ctx, opts, max)
}

func (c *Client) listIssues(ctx context.Context, opts *github.IssueListByRepoOptions, max int) ([]types.IssueSnapshot, error) {
	var out []types.IssueSnapshot
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		issues, resp, err := c.issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list issues for %s/%s: %w", c.owner, c.repo, err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			out = append(out, snapshotFromIssue(issue))
			if max > 0 && len(out) >= max {
				return out, nil
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return out, nil
}

// ListOpenIssueNumbers returns the authoritative set of currently open issue
// numbers, used by the closed-issue cleanup sweep.
func (c *Client) ListOpenIssueNumbers(ctx context.Context) (map[int]struct{}, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	open := make(map[int]struct{})
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		issues, resp, err := c.issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list open issue numbers: %w", err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			open[issue.GetNumber()] = struct{}{}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return open, nil
}

// ListComments returns all comments on the issue, oldest first.
func (c *Client) ListComments(ctx context.Context, number int) ([]types.IssueComment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []types.IssueComment
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		comments, resp, err := c.issues.ListComments(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list comments for issue #%d: %w", number, err)
		}
		for _, comment := range comments {
			out = append(out, types.IssueComment{
				Author:    comment.GetUser().GetLogin(),
				Body:      comment.GetBody(),
				CreatedAt: comment.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// AddLabels applies labels to the issue.
func (c *Client) AddLabels(ctx context.Context, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, _, err := c.issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, labels); err != nil {
		return fmt.Errorf("add labels to issue #%d: %w", number, err)
	}
	return nil
}

// AddComment posts a comment on the issue.
func (c *Client) AddComment(ctx context.Context, number int, body string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	comment := &github.IssueComment{Body: github.Ptr(body)}
	if _, _, err := c.issues.CreateComment(ctx, c.owner, c.repo, number, comment); err != nil {
		return fmt.Errorf("comment on issue #%d: %w", number, err)
	}
	return nil
}

func snapshotFromIssue(issue *github.Issue) types.IssueSnapshot {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}

	st := types.StateOpen
	if issue.GetState() == "closed" {
		st = types.StateClosed
	}

	return types.IssueSnapshot{
		Number:       issue.GetNumber(),
		Title:        issue.GetTitle(),
		Body:         issue.GetBody(),
		Labels:       labels,
		State:        st,
		CreatedAt:    issue.GetCreatedAt().Time,
		UpdatedAt:    issue.GetUpdatedAt().Time,
		CommentCount: issue.GetComments(),
	}
}
