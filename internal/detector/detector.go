package detector

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmaddaus/cookiewatch/internal/github"
)

// defaultConcurrency bounds parallel comment fetches during a scan.
const defaultConcurrency = 4

// Evidence is one detected claim: an open issue plus the earliest comment
// on it in which a user claimed it, and whether that user has a pull
// request referencing the issue.
type Evidence struct {
	Issue       *github.Issue
	Comment     *github.Comment
	HasLinkedPR bool
}

// Result summarizes a repository scan.
type Result struct {
	Evidence      []Evidence
	IssuesScanned int
	// Skipped counts issues whose comments could not be fetched. A scan
	// with skips is still usable; only a failed issue listing aborts it.
	Skipped int
}

// Scanner produces claim evidence for a repository.
type Scanner interface {
	Scan(ctx context.Context, owner, repo string) (*Result, error)
}

// Classifier reports whether a comment body claims an issue.
type Classifier func(body string) bool

// Detector scans GitHub repositories for claim comments on open issues.
type Detector struct {
	client      github.Client
	log         *slog.Logger
	classify    Classifier
	concurrency int
}

func New(client github.Client, log *slog.Logger) *Detector {
	return &Detector{
		client:      client,
		log:         log,
		classify:    IsClaimComment,
		concurrency: defaultConcurrency,
	}
}

// NewWithClassifier creates a Detector with a custom claim classifier.
func NewWithClassifier(client github.Client, log *slog.Logger, classify Classifier) *Detector {
	d := New(client, log)
	d.classify = classify
	return d
}

// Scan lists open issues and their comments, collecting one Evidence per
// (issue, claimer) pair. Pull requests are fetched once up front so
// linked-PR checks don't hit the API per claim. A failure to list issues
// or pull requests fails the scan; a failure on a single issue's comments
// only skips that issue.
func (d *Detector) Scan(ctx context.Context, owner, repo string) (*Result, error) {
	issues, err := d.client.ListOpenIssues(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	prs, err := d.client.ListPullRequests(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	prIndex := indexPRsByAuthor(prs)

	var (
		mu       sync.Mutex
		evidence []Evidence
		skipped  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, issue := range issues {
		g.Go(func() error {
			comments, err := d.client.ListIssueComments(gctx, owner, repo, issue.Number)
			if err != nil {
				d.log.Warn("skipping issue, comment fetch failed",
					"repo", owner+"/"+repo, "issue", issue.Number, "error", err)
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}

			found := d.claimsForIssue(issue, comments, prIndex)
			if len(found) == 0 {
				return nil
			}
			mu.Lock()
			evidence = append(evidence, found...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(evidence, func(i, j int) bool {
		if evidence[i].Issue.Number != evidence[j].Issue.Number {
			return evidence[i].Issue.Number < evidence[j].Issue.Number
		}
		return evidence[i].Comment.CreatedAt.Before(evidence[j].Comment.CreatedAt)
	})

	return &Result{
		Evidence:      evidence,
		IssuesScanned: len(issues),
		Skipped:       skipped,
	}, nil
}

// claimsForIssue returns one Evidence per distinct claimer on the issue,
// keeping the earliest claim comment for each. GitHub returns comments
// oldest first, so the first claim comment seen per user wins.
func (d *Detector) claimsForIssue(issue *github.Issue, comments []*github.Comment, prIndex map[string][]*github.PullRequest) []Evidence {
	seen := make(map[string]bool)
	var out []Evidence

	for _, comment := range comments {
		if !d.classify(comment.Body) {
			continue
		}
		login := comment.User.Login
		if login == "" || seen[login] {
			continue
		}
		seen[login] = true

		out = append(out, Evidence{
			Issue:       issue,
			Comment:     comment,
			HasLinkedPR: prsReferenceIssue(prIndex[login], issue.Number),
		})
	}
	return out
}

func indexPRsByAuthor(prs []*github.PullRequest) map[string][]*github.PullRequest {
	index := make(map[string][]*github.PullRequest)
	for _, pr := range prs {
		index[pr.User.Login] = append(index[pr.User.Login], pr)
	}
	return index
}

func prsReferenceIssue(prs []*github.PullRequest, issueNumber int) bool {
	for _, pr := range prs {
		if ReferencesIssue(pr.Title, issueNumber) || ReferencesIssue(pr.Body, issueNumber) {
			return true
		}
	}
	return false
}
