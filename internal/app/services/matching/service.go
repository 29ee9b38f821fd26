// Package matching finds equivalent product offers across merchant
// platforms and scores how well they match.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/match"
	"github.com/wirebustech/wyoiwyget/internal/app/metrics"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// maxCandidatesPerPlatform caps how many scored offers one platform can
// contribute to a result.
const maxCandidatesPerPlatform = 10

// Request describes one matching run. Source may be pre-filled by the
// caller; when its title is empty the product is fetched from SourceURL.
type Request struct {
	SourceURL string
	Source    match.SourceProduct
	Platforms []string
}

// Service runs cross-platform product matching.
type Service struct {
	store    storage.MatchStore
	client   *PlatformClient
	cache    Cache
	cacheTTL time.Duration
	log      *logger.Logger
}

// New constructs a matching service.
func New(store storage.MatchStore, client *PlatformClient, cache Cache, cacheTTL time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("matching")
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Minute
	}
	return &Service{store: store, client: client, cache: cache, cacheTTL: cacheTTL, log: log}
}

// Match resolves the source product and searches the requested platforms for
// equivalent offers, returning them ranked by score.
func (s *Service) Match(ctx context.Context, userID string, req Request) (match.Result, error) {
	start := time.Now()

	if req.SourceURL == "" && req.Source.Title == "" {
		return match.Result{}, fmt.Errorf("source_url or source product is required")
	}

	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = s.client.Sources()
	}

	key := cacheKey(req.SourceURL, req.Source.Title, platforms)
	if cached, ok := s.cache.Get(ctx, key); ok {
		// The cache saves the platform round-trips, not the history write:
		// each requesting user still gets their own persisted result.
		cached.ID = ""
		cached.UserID = userID
		created, err := s.store.CreateMatchResult(ctx, cached)
		if err != nil {
			metrics.RecordMatchRequest("error", time.Since(start))
			return match.Result{}, err
		}
		metrics.RecordMatchRequest("cache_hit", time.Since(start))
		return created, nil
	}

	source := req.Source
	sourcePlatform := ""
	if source.Title == "" {
		fetched, platform, err := s.client.FetchProduct(ctx, req.SourceURL)
		if err != nil {
			metrics.RecordMatchRequest("error", time.Since(start))
			return match.Result{}, err
		}
		source = fetched
		sourcePlatform = platform
	}

	var matches []match.Candidate
	for _, name := range platforms {
		if strings.EqualFold(name, sourcePlatform) {
			continue
		}
		src, ok := s.client.sources.SourceByName(name)
		if !ok {
			s.log.Warnf("unknown platform %s requested", name)
			continue
		}

		candidates, err := s.client.Search(ctx, src, source.Title)
		if err != nil {
			s.log.WithError(err).Warnf("search %s", name)
			continue
		}
		matches = append(matches, scoreAndTrim(source, candidates)...)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	result := match.Result{
		UserID:    userID,
		SourceURL: req.SourceURL,
		Source:    source,
		Platforms: platforms,
		Matches:   matches,
	}

	created, err := s.store.CreateMatchResult(ctx, result)
	if err != nil {
		metrics.RecordMatchRequest("error", time.Since(start))
		return match.Result{}, err
	}

	s.cache.Set(ctx, key, created, s.cacheTTL)
	metrics.RecordMatchRequest("ok", time.Since(start))
	s.log.Infof("matched %q across %d platforms: %d candidates", source.Title, len(platforms), len(matches))
	return created, nil
}

// History returns the user's recent match results.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]match.Result, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListMatchResults(ctx, userID, limit)
}

func scoreAndTrim(source match.SourceProduct, candidates []match.Candidate) []match.Candidate {
	scored := make([]match.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		cand.Score = scoreCandidate(source, cand)
		if cand.Score < minScore {
			continue
		}
		scored = append(scored, cand)
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > maxCandidatesPerPlatform {
		scored = scored[:maxCandidatesPerPlatform]
	}
	return scored
}

func cacheKey(sourceURL, title string, platforms []string) string {
	sorted := append([]string(nil), platforms...)
	sort.Strings(sorted)
	return sourceURL + "|" + title + "|" + strings.Join(sorted, ",")
}
