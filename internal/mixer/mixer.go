package mixer

import (
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
)

// StopReason explains why a mixing run ended. Abnormal conditions never
// surface as errors; they resolve to a reason code plus whatever output
// was accumulated.
type StopReason string

const (
	// StopTargetReached means the song-count or duration target was met.
	StopTargetReached StopReason = "target_reached"

	// StopAllSourcesExhausted means every source ran out of eligible
	// tracks or reached its configured maximum.
	StopAllSourcesExhausted StopReason = "all_sources_exhausted"

	// StopSourceExhausted means one source ran dry and the configuration
	// asked for an all-or-nothing stop to preserve the ratio balance.
	StopSourceExhausted StopReason = "source_exhausted_no_continue"

	// StopAttemptCapReached means the hard safety bound on loop attempts
	// was hit; the partial output is still valid.
	StopAttemptCapReached StopReason = "attempt_cap_reached"

	// StopInvalidConfig means validation failed and nothing was mixed.
	StopInvalidConfig StopReason = "invalid_config"
)

// Result is the outcome of a mixing run.
type Result struct {
	Tracks    []MixedTrack
	Reason    StopReason
	IsPreview bool

	// Errors holds the validation messages when Reason is StopInvalidConfig.
	Errors []string
}

// runConfig carries the injectable collaborators for one run. Every call
// owns its own RNG so concurrent runs never share a random stream.
type runConfig struct {
	logger *log.Logger
	rng    *rand.Rand
	now    time.Time
}

// Option configures a single mixing run.
type Option func(*runConfig)

// WithLogger routes the run's diagnostics to the given logger. The
// default discards everything.
func WithLogger(l *log.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// WithRand injects the random source. Runs with the same inputs and the
// same seed produce identical output.
func WithRand(r *rand.Rand) Option {
	return func(c *runConfig) { c.rng = r }
}

// WithNow pins the clock used for recency bonuses.
func WithNow(now time.Time) Option {
	return func(c *runConfig) { c.now = now }
}

func newRunConfig(opts []Option) runConfig {
	cfg := runConfig{
		logger: log.New(io.Discard),
		now:    time.Now(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return cfg
}

// Mix interleaves the source track lists into a single playlist according
// to the ratio configuration and options. It never panics and never
// returns an error: an invalid configuration yields an empty result with
// the validation messages attached, and every abnormal run condition
// resolves to a StopReason with a partial output.
func Mix(sources map[string][]Track, ratios map[string]SourceRatio, opts Options, runOpts ...Option) Result {
	cfg := newRunConfig(runOpts)

	if v := ValidateConfig(sources, ratios, opts); !v.IsValid {
		for _, msg := range v.Errors {
			cfg.logger.Error("invalid mix configuration", "problem", msg)
		}
		return Result{Reason: StopInvalidConfig, Errors: v.Errors}
	}

	ctx := newMixingContext(sources, ratios, opts, cfg)
	return ctx.run(cfg)
}

// PreviewSize is the output cap used by Preview.
const PreviewSize = 10

// Preview runs the same algorithm over a small count target for fast UI
// feedback. The result is flagged IsPreview.
func Preview(sources map[string][]Track, ratios map[string]SourceRatio, opts Options, runOpts ...Option) Result {
	opts.UseAllSongs = false
	opts.UseTimeLimit = false
	if opts.TotalSongs <= 0 || opts.TotalSongs > PreviewSize {
		opts.TotalSongs = PreviewSize
	}

	res := Mix(sources, ratios, opts, runOpts...)
	res.IsPreview = true
	return res
}

// mixingContext is the read-only input of one run: cleaned sources,
// quadrant pools, quotas and the resolved strategy. Built once, never
// mutated by the loop.
type mixingContext struct {
	sources  map[string][]Track
	pools    map[string]Quadrants
	order    []string // canonical source order, used for tie-breaking
	ratios   map[string]SourceRatio
	opts     Options
	strategy Strategy
	quotas   quotas
	targetMs int
}

// mixingState is the only mutable value of a run, owned by the loop and
// discarded on return.
type mixingState struct {
	output     []MixedTrack
	used       map[string]bool // track ids already in the output
	counts     map[string]int
	durationMs map[string]int
	totalMs    int
	exhausted  map[string]bool
	attempts   int
}

func newMixingContext(sources map[string][]Track, ratios map[string]SourceRatio, opts Options, cfg runConfig) *mixingContext {
	cleaned := cleanSources(sources)
	pools := BuildPools(cleaned, PoolConfig{
		RecencyBoost:        opts.RecencyBoost,
		ShuffleWithinGroups: opts.ShuffleWithinGroups,
		Rand:                cfg.rng,
		Now:                 cfg.now,
	})

	return &mixingContext{
		sources:  cleaned,
		pools:    pools,
		order:    sortedIDs(ratios),
		ratios:   ratios,
		opts:     opts,
		strategy: StrategyFor(opts.PopularityStrategy, cfg.logger),
		quotas:   computeTargets(cleaned, ratios, opts),
		targetMs: opts.TargetDurationMinutes * 60_000,
	}
}

func (c *mixingContext) run(cfg runConfig) Result {
	st := &mixingState{
		used:       make(map[string]bool),
		counts:     make(map[string]int),
		durationMs: make(map[string]int),
		exhausted:  make(map[string]bool),
	}

	// A configured source with no usable pool is exhausted from the start.
	for _, id := range c.order {
		if c.pools[id].Len() == 0 {
			st.exhausted[id] = true
		}
	}

	maxAttempts := c.attemptCap()
	for {
		if c.targetReached(st) {
			return c.finish(st, StopTargetReached, cfg)
		}
		if c.allExhausted(st) {
			return c.finish(st, StopAllSourcesExhausted, cfg)
		}
		if !c.opts.ContinueWhenPlaylistEmpty && c.anyExhausted(st) {
			return c.finish(st, StopSourceExhausted, cfg)
		}
		if st.attempts >= maxAttempts {
			cfg.logger.Warn("mixing attempt cap reached", "attempts", st.attempts, "tracks", len(st.output))
			return c.finish(st, StopAttemptCapReached, cfg)
		}
		st.attempts++

		id := c.selectSource(st)
		track, ok := c.pickTrack(st, id, cfg.rng)
		if !ok {
			st.exhausted[id] = true
			cfg.logger.Debug("source exhausted", "source", id, "position", len(st.output))
			continue
		}

		st.output = append(st.output, MixedTrack{Track: track.Track, SourcePlaylistID: id})
		st.used[track.ID] = true
		st.counts[id]++
		st.durationMs[id] += track.DurationMs
		st.totalMs += track.DurationMs
	}
}

func (c *mixingContext) finish(st *mixingState, reason StopReason, cfg runConfig) Result {
	cfg.logger.Debug("mix finished",
		"reason", string(reason),
		"tracks", len(st.output),
		"minutes", st.totalMs/60_000,
		"attempts", st.attempts)
	return Result{Tracks: st.output, Reason: reason}
}

// attemptCap bounds total loop attempts so the run terminates even under
// pathological configurations.
func (c *mixingContext) attemptCap() int {
	return max(c.quotas.estimatedTotal*2, c.opts.TotalSongs*10)
}

func (c *mixingContext) targetReached(st *mixingState) bool {
	switch {
	case c.opts.UseAllSongs:
		return len(st.output) >= c.quotas.estimatedTotal
	case c.opts.UseTimeLimit:
		return st.totalMs >= c.targetMs
	default:
		return len(st.output) >= c.opts.TotalSongs
	}
}

// capped reports whether a source has drawn its configured maximum.
func (c *mixingContext) capped(st *mixingState, id string) bool {
	return st.counts[id] >= c.ratios[id].Max
}

// allExhausted reports whether no source can contribute another track,
// either because it ran dry or because it hit its configured maximum.
func (c *mixingContext) allExhausted(st *mixingState) bool {
	for _, id := range c.order {
		if !st.exhausted[id] && !c.capped(st, id) {
			return false
		}
	}
	return len(c.order) > 0
}

func (c *mixingContext) anyExhausted(st *mixingState) bool {
	for _, id := range c.order {
		if st.exhausted[id] {
			return true
		}
	}
	return false
}

// selectSource picks the next source to draw from. Exhausted sources and
// sources at their configured maximum are skipped. Sources whose
// strategy-preferred tiers still hold an unused track at the current
// position are considered first, then sources with any unused track, then
// the rest. Within a group the highest weight-scaled deficit wins, ties
// broken by absolute deficit and finally canonical order, so selection is
// fully deterministic.
func (c *mixingContext) selectSource(st *mixingState) string {
	var withPreferred, withAny, remaining []string
	for _, id := range c.order {
		if st.exhausted[id] || c.capped(st, id) {
			continue
		}
		preferred, fallback := eligibleTracks(c.pools[id], c.strategy, len(st.output), c.quotas.estimatedTotal)
		switch {
		case countUnused(preferred, st.used) > 0:
			withPreferred = append(withPreferred, id)
		case countUnused(fallback, st.used) > 0:
			withAny = append(withAny, id)
		default:
			remaining = append(remaining, id)
		}
	}

	candidates := withPreferred
	if len(candidates) == 0 {
		candidates = withAny
	}
	if len(candidates) == 0 {
		candidates = remaining
	}

	best := candidates[0]
	bestScore, bestDeficit := c.score(st, best)
	for _, id := range candidates[1:] {
		score, deficit := c.score(st, id)
		if score > bestScore || (score == bestScore && math.Abs(deficit) > math.Abs(bestDeficit)) {
			best, bestScore, bestDeficit = id, score, deficit
		}
	}
	return best
}

// score returns the weight-scaled remaining quota for a source. Sources
// configured with WeightTime measure their deficit in duration terms,
// normalized to track units through the source's average track length.
func (c *mixingContext) score(st *mixingState, id string) (score, deficit float64) {
	target := c.quotas.perSource[id]
	ratio := c.ratios[id]

	if ratio.WeightType == WeightTime && target.avgMs > 0 {
		deficit = float64(target.durationMs-st.durationMs[id]) / float64(target.avgMs)
	} else {
		deficit = float64(target.count - st.counts[id])
	}
	return ratio.Weight * math.Max(deficit, 0), deficit
}

// pickTrack draws one unused track from the source at the current
// position: at random among the strategy-preferred tracks when any
// remain, otherwise among the fallback. Returns false when the source has
// nothing left to give.
func (c *mixingContext) pickTrack(st *mixingState, id string, rng *rand.Rand) (AnnotatedTrack, bool) {
	preferred, fallback := eligibleTracks(c.pools[id], c.strategy, len(st.output), c.quotas.estimatedTotal)

	if picked := SampleTracks(rng, preferred, 1, st.used); len(picked) > 0 {
		return picked[0], true
	}
	if picked := SampleTracks(rng, fallback, 1, st.used); len(picked) > 0 {
		return picked[0], true
	}
	return AnnotatedTrack{}, false
}

func countUnused(tracks []AnnotatedTrack, used map[string]bool) int {
	n := 0
	for _, t := range tracks {
		if !used[t.ID] {
			n++
		}
	}
	return n
}
