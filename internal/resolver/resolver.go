// Package resolver decides which packages need an update.
//
// Resolution runs in two stages. The pre-fetch stage queries the configured
// repositories in priority order for each package's latest stable and latest
// pre-release versions, in parallel with a per-query timeout. The comparison
// stage selects the single latest available candidate, compares it against
// the highest installed version and applies the author-match policy, yielding
// one Decision per package that actually needs work.
package resolver

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/pkgup/internal/logging"
	"github.com/blackwell-systems/pkgup/internal/repo"
	"github.com/blackwell-systems/pkgup/internal/scanner"
	"github.com/blackwell-systems/pkgup/internal/version"
)

// Policy carries the update-decision policy.
type Policy struct {
	// MatchAuthor cancels an update when the remote author does not match
	// the locally recorded author after normalization.
	MatchAuthor bool

	// AllowPrerelease includes pre-release versions among the candidates.
	AllowPrerelease bool

	// Blacklist maps a package name (lowercase) to repository names it must
	// not be queried from; an empty list excludes the package entirely.
	Blacklist map[string][]string

	// QueryTimeout bounds each individual repository query.
	QueryTimeout time.Duration

	// BatchCeiling is the hard wall-clock bound on the whole pre-fetch batch.
	BatchCeiling time.Duration

	// StragglerFraction is the fraction of packages the batch may abandon
	// once the rest have completed.
	StragglerFraction float64
}

// Decision is one package update the pipeline should perform.
type Decision struct {
	Name              string
	Target            version.Version
	Repository        string
	OutdatedLocations []string
}

// candidate is the pre-fetch result for one package.
type candidate struct {
	stable     *version.Version
	stableRepo string
	pre        *version.Version
	preRepo    string
	author     string
	err        error
}

// authorLookup is implemented by repositories that can report a package's
// publishing author.
type authorLookup interface {
	AuthorOf(ctx context.Context, name string) (string, error)
}

// Resolver computes update decisions for an inventory.
type Resolver struct {
	repos  []repo.Repository
	policy Policy
	log    zerolog.Logger
}

// New creates a Resolver over the given repositories (in priority order).
func New(repos []repo.Repository, policy Policy) *Resolver {
	return &Resolver{repos: repos, policy: policy, log: logging.GetLogger("resolver")}
}

// Resolve returns one Decision per package that has a newer version
// available, passes policy, and has at least one outdated location. The
// result is sorted by package name.
func (r *Resolver) Resolve(ctx context.Context, inv *scanner.Inventory) []Decision {
	if len(r.repos) == 0 || inv.Len() == 0 {
		return nil
	}

	candidates := r.prefetch(ctx, inv)
	decisions := r.compare(inv, candidates)

	sort.Slice(decisions, func(i, j int) bool {
		return strings.ToLower(decisions[i].Name) < strings.ToLower(decisions[j].Name)
	})
	return decisions
}

// prefetch runs Stage 1: parallel per-package repository queries. Results
// land in a mutex-guarded map; the batch proceeds when every query finished,
// when only the configured straggler fraction remains, or when the hard
// ceiling is hit. Abandoned stragglers count as fetch errors.
func (r *Resolver) prefetch(ctx context.Context, inv *scanner.Inventory) map[string]candidate {
	results := make(map[string]candidate, inv.Len())
	var mu sync.Mutex

	var queued []string
	for i := range inv.Packages {
		name := inv.Packages[i].Name
		if r.blacklistedEverywhere(name) {
			r.log.Debug().Str("package", name).Msg("package is blacklisted from all repositories")
			continue
		}
		queued = append(queued, name)
	}
	if len(queued) == 0 {
		return results
	}

	workers := 2 * runtime.GOMAXPROCS(0)
	if workers > len(queued) {
		workers = len(queued)
	}

	var completed atomic.Int64
	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range work {
				c := r.fetchOne(ctx, name)
				mu.Lock()
				results[strings.ToLower(name)] = c
				mu.Unlock()
				completed.Add(1)
			}
		}()
	}

	go func() {
		for _, name := range queued {
			select {
			case work <- name:
			case <-ctx.Done():
				close(work)
				return
			}
		}
		close(work)
	}()

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	r.waitBatch(allDone, &completed, len(queued))

	// Snapshot under the lock: abandoned stragglers may still write later,
	// but the comparison stage only ever sees this copy.
	mu.Lock()
	snapshot := make(map[string]candidate, len(results))
	for k, v := range results {
		snapshot[k] = v
	}
	mu.Unlock()

	// Queries abandoned by the early exit are recorded as fetch errors, so the
	// comparison stage can tell them apart from packages never queued.
	for _, name := range queued {
		key := strings.ToLower(name)
		if _, found := snapshot[key]; !found {
			r.log.Debug().Str("package", name).Msg("query abandoned by batch exit")
			snapshot[key] = candidate{err: context.DeadlineExceeded}
		}
	}
	return snapshot
}

// waitBatch blocks until the batch is complete enough to proceed.
func (r *Resolver) waitBatch(allDone <-chan struct{}, completed *atomic.Int64, total int) {
	ceiling := r.policy.BatchCeiling
	if ceiling <= 0 {
		ceiling = 5 * time.Minute
	}
	deadline := time.NewTimer(ceiling)
	defer deadline.Stop()

	allowedStragglers := int64(float64(total) * r.policy.StragglerFraction)

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-allDone:
			return
		case <-deadline.C:
			r.log.Warn().Int("total", total).Int64("completed", completed.Load()).
				Msg("query batch hit wall-clock ceiling, proceeding without stragglers")
			return
		case <-tick.C:
			if allowedStragglers > 0 && int64(total)-completed.Load() <= allowedStragglers {
				r.log.Debug().Int64("remaining", int64(total)-completed.Load()).
					Msg("proceeding with straggler queries outstanding")
				return
			}
		}
	}
}

// fetchOne queries repositories in priority order for the latest stable and
// latest pre-release version of one package, stopping at the first repository
// that yields a hit for each query.
func (r *Resolver) fetchOne(ctx context.Context, name string) candidate {
	var c candidate

	for _, rp := range r.repos {
		if r.blacklisted(name, rp.Name()) {
			continue
		}

		if c.stable == nil {
			v, author, err := r.queryLatest(ctx, rp, name)
			switch {
			case err == nil:
				vv := v
				c.stable = &vv
				c.stableRepo = rp.Name()
				if author != "" {
					c.author = author
				}
			case errors.Is(err, repo.ErrNotFound):
				// Try the next repository.
			default:
				c.err = err
				r.log.Warn().Err(err).Str("package", name).Str("repository", rp.Name()).
					Msg("latest-version query failed")
			}
		}

		if r.policy.AllowPrerelease && c.pre == nil {
			qctx, cancel := r.queryContext(ctx)
			v, err := rp.FindLatestPreRelease(qctx, name)
			cancel()
			switch {
			case err == nil:
				vv := v
				c.pre = &vv
				c.preRepo = rp.Name()
			case errors.Is(err, repo.ErrNotFound):
			default:
				c.err = err
				r.log.Warn().Err(err).Str("package", name).Str("repository", rp.Name()).
					Msg("pre-release query failed")
			}
		}

		done := c.stable != nil && (!r.policy.AllowPrerelease || c.pre != nil)
		if done {
			break
		}
	}

	return c
}

// queryLatest performs one stable-latest query with its own timeout, and
// resolves the author alongside when the repository supports it.
func (r *Resolver) queryLatest(ctx context.Context, rp repo.Repository, name string) (version.Version, string, error) {
	qctx, cancel := r.queryContext(ctx)
	defer cancel()

	v, err := rp.FindLatest(qctx, name)
	if err != nil {
		return version.Version{}, "", err
	}

	author := ""
	if r.policy.MatchAuthor {
		if al, ok := rp.(authorLookup); ok {
			a, err := al.AuthorOf(qctx, name)
			if err == nil {
				author = a
			}
		}
	}
	return v, author, nil
}

func (r *Resolver) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := r.policy.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// compare runs Stage 2: per package, select the latest available candidate,
// compare it against the highest installed version, apply the author policy
// and compute the outdated locations.
func (r *Resolver) compare(inv *scanner.Inventory, candidates map[string]candidate) []Decision {
	var mu sync.Mutex
	var decisions []Decision

	workers := runtime.GOMAXPROCS(0)
	if workers > inv.Len() {
		workers = inv.Len()
	}

	work := make(chan *scanner.Package)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pkg := range work {
				if d, ok := r.compareOne(pkg, candidates); ok {
					mu.Lock()
					decisions = append(decisions, d)
					mu.Unlock()
				}
			}
		}()
	}

	for i := range inv.Packages {
		work <- &inv.Packages[i]
	}
	close(work)
	wg.Wait()

	return decisions
}

// compareOne evaluates a single package against its pre-fetch candidate.
func (r *Resolver) compareOne(pkg *scanner.Package, candidates map[string]candidate) (Decision, bool) {
	c, found := candidates[strings.ToLower(pkg.Name)]
	if !found {
		return Decision{}, false
	}
	if c.stable == nil && c.pre == nil {
		if c.err != nil {
			r.log.Debug().Str("package", pkg.Name).Msg("no decision: repository queries failed")
		}
		return Decision{}, false
	}

	// Select the single latest available candidate. With both a stable and a
	// pre-release in hand, the comparator's same-base rule makes the
	// pre-release win ties.
	target := c.stable
	targetRepo := c.stableRepo
	if target == nil {
		target = c.pre
		targetRepo = c.preRepo
	} else if c.pre != nil && version.IsNewer(*target, *c.pre) {
		target = c.pre
		targetRepo = c.preRepo
	}

	highest, ok := pkg.Highest()
	if !ok {
		r.log.Debug().Str("package", pkg.Name).Msg("no decision: no parsable installed version")
		return Decision{}, false
	}
	// A target older than the highest installed version is never taken. A
	// target equal to it still proceeds: lagging locations converge onto the
	// version the leading location already has.
	targetNewer := version.IsNewer(highest, *target)
	if !targetNewer && version.IsNewer(*target, highest) {
		return Decision{}, false
	}

	if r.policy.MatchAuthor {
		// The gate only fires on a positive mismatch. When either side has no
		// recorded author there is nothing to compare, and the update proceeds.
		local := pkg.Author()
		if local != "" && c.author != "" && !authorsMatch(local, c.author) {
			r.log.Info().Str("package", pkg.Name).Str("local", local).Str("remote", c.author).
				Msg("update cancelled: author mismatch")
			return Decision{}, false
		}
	}

	// Partition installed locations: those already holding the target stay
	// untouched, the rest become the outdated set.
	targetStr := target.String()
	var outdated []string
	for _, base := range pkg.BasePaths() {
		if !pkg.HasVersion(base, targetStr) {
			outdated = append(outdated, base)
		}
	}
	if len(outdated) == 0 {
		return Decision{}, false
	}

	return Decision{
		Name:              pkg.Name,
		Target:            *target,
		Repository:        targetRepo,
		OutdatedLocations: outdated,
	}, true
}

func (r *Resolver) blacklisted(pkg, repoName string) bool {
	repos, found := r.policy.Blacklist[strings.ToLower(pkg)]
	if !found {
		return false
	}
	if len(repos) == 0 {
		return true
	}
	for _, name := range repos {
		if strings.EqualFold(name, repoName) {
			return true
		}
	}
	return false
}

func (r *Resolver) blacklistedEverywhere(pkg string) bool {
	repos, found := r.policy.Blacklist[strings.ToLower(pkg)]
	if !found {
		return false
	}
	if len(repos) == 0 {
		return true
	}
	// Blacklisted from every configured repository is as good as excluded.
	for _, rp := range r.repos {
		if !r.blacklisted(pkg, rp.Name()) {
			return false
		}
	}
	return true
}

// authorsMatch compares two author strings after stripping every
// non-alphanumeric character and case-folding. The normalization is
// deliberately loose and can equate distinct authors with similar names; it
// mirrors the recorded policy rather than fixing it.
func authorsMatch(a, b string) bool {
	na := normalizeAuthor(a)
	nb := normalizeAuthor(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}

func normalizeAuthor(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
