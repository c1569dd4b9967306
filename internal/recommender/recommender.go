// Package recommender orchestrates one recommendation request end to end:
// mode resolution, retrieval, context building, prompt rendering, guarded
// generation, citation validation and interaction recording.
//
// Answer is safe for concurrent use. All collaborators are injected through
// Config so tests can swap the language model, retriever and sinks.
package recommender

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BiancaGL2104/rag-book-recommender/internal/budget"
	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
	"github.com/BiancaGL2104/rag-book-recommender/internal/mode"
	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// noMatchesAnswer is returned verbatim when retrieval finds nothing.
const noMatchesAnswer = "I couldn't find any books in the catalog that match that request. Try describing a genre, theme or a book you enjoyed."

// defaultRecordTimeout bounds the detached interaction write.
const defaultRecordTimeout = 5 * time.Second

// PriorLookup resolves the books cited by an earlier response. The SQLite
// interaction store implements it.
type PriorLookup interface {
	CitedBookIDs(ctx context.Context, responseID string) ([]string, error)
}

// kBounded is implemented by retrievers that reject k above a ceiling,
// such as rag.DefaultRetriever.
type kBounded interface {
	MaxK() int
}

// Recorder persists interaction records. Implementations must tolerate
// duplicate IDs.
type Recorder interface {
	Record(ctx context.Context, rec rag.InteractionRecord) error
}

// Config holds the dependencies and tunables for a Recommender.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel
	// Retriever ranks catalog candidates for the query.
	Retriever rag.Retriever
	// Builder renders candidates into grounding context. Defaults to
	// rag.NewContextBuilder(0).
	Builder *rag.ContextBuilder
	// Controller resolves the generation mode. The zero value disables
	// mood detection.
	Controller mode.Controller
	// Detector optionally infers the reader's mood from the query.
	Detector mode.Detector
	// Prior optionally resolves earlier citations for second opinions.
	Prior PriorLookup
	// Recorder optionally persists interaction records.
	Recorder Recorder

	// TopK is the retrieval size when the query does not set one.
	// Defaults to rag.DefaultTopK.
	TopK int
	// ContextTokens is the grounding-context budget in estimated tokens.
	// Defaults to budget.DefaultContextTokens.
	ContextTokens int

	// Generation bounds the model call. Zero fields take defaults.
	Generation GenerationConfig

	// RecordTimeout bounds the interaction write. Defaults to 5s.
	RecordTimeout time.Duration
	// Registerer receives the recommender metrics. A private registry is
	// used when nil.
	Registerer prometheus.Registerer
	// Now returns the record timestamp. Defaults to time.Now.
	Now func() time.Time
	// NewID returns a fresh response ID. Defaults to a UUIDv7.
	NewID func() (string, error)
}

// Recommender answers recommendation queries.
type Recommender struct {
	retriever     rag.Retriever
	builder       *rag.ContextBuilder
	controller    mode.Controller
	detector      mode.Detector
	prior         PriorLookup
	recorder      Recorder
	generator     *generator
	metrics       *metrics
	topK          int
	contextTokens int
	recordTimeout time.Duration
	now           func() time.Time
	newID         func() (string, error)
}

// New constructs a Recommender from cfg.
func New(cfg *Config) (*Recommender, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("recommender: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("recommender: Retriever must not be nil")
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := newMetrics(reg)

	r := &Recommender{
		retriever:     cfg.Retriever,
		builder:       cfg.Builder,
		controller:    cfg.Controller,
		detector:      cfg.Detector,
		prior:         cfg.Prior,
		recorder:      cfg.Recorder,
		metrics:       m,
		topK:          cfg.TopK,
		contextTokens: cfg.ContextTokens,
		recordTimeout: cfg.RecordTimeout,
		now:           cfg.Now,
		newID:         cfg.NewID,
	}
	if r.builder == nil {
		r.builder = rag.NewContextBuilder(0)
	}
	if r.topK <= 0 {
		r.topK = rag.DefaultTopK
	}
	if maxK := r.maxK(); maxK > 0 && r.topK > maxK {
		r.topK = maxK
	}
	if r.contextTokens <= 0 {
		r.contextTokens = budget.DefaultContextTokens
	}
	if r.recordTimeout <= 0 {
		r.recordTimeout = defaultRecordTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = newUUIDv7
	}
	r.generator = newGenerator(cfg.ChatModel, cfg.Generation, m)
	return r, nil
}

// maxK returns the retriever's k ceiling, or 0 when it declares none.
func (r *Recommender) maxK() int {
	if b, ok := r.retriever.(kBounded); ok {
		return b.MaxK()
	}
	return 0
}

// newUUIDv7 returns a time-ordered response ID.
func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Answer runs the full pipeline for q. Errors wrap the rag sentinels so
// callers classify them with rag.Classify; a canceled context is returned
// as context.Canceled and no record is written.
func (r *Recommender) Answer(ctx context.Context, q rag.Query) (*rag.Response, error) {
	start := time.Now()
	resp, err := r.answer(ctx, q)

	var outcome string
	if err != nil {
		outcome = string(rag.Classify(err).Kind)
	} else {
		outcome = string(resp.Status)
	}
	r.metrics.requestsTotal.WithLabelValues(outcome).Inc()
	r.metrics.durationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return resp, err
}

func (r *Recommender) answer(ctx context.Context, q rag.Query) (*rag.Response, error) {
	log := logging.FromContext(ctx)

	// 1. Mode.
	gm, err := r.controller.Resolve(mode.Request{
		Style:           q.Style,
		Mood:            q.Mood,
		ExplainWhy:      q.ExplainWhy,
		WantAlternative: q.WantAlternative,
	}, r.detectMood(ctx, q))
	if err != nil {
		return nil, fmt.Errorf("recommender: resolve mode: %w", err)
	}
	excluded := r.exclusions(ctx, q, gm)

	// 2. Retrieval. A second opinion over-fetches by the number of
	// exclusions so the next-best books can take their place.
	k := q.K
	if k == 0 {
		k = r.topK
	}
	fetchK := k
	if len(excluded) > 0 && k > 0 {
		fetchK = k + len(excluded)
		if maxK := r.maxK(); maxK > 0 && fetchK > maxK {
			fetchK = max(maxK, k)
		}
	}
	retrievalStart := time.Now()
	result, err := r.retriever.Retrieve(ctx, q.Text, fetchK)
	r.metrics.retrievalSeconds.Observe(time.Since(retrievalStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("recommender: retrieve: %w", err)
	}

	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("recommender: new response id: %w", err)
	}
	resp := &rag.Response{
		ID:        id,
		Mode:      gm,
		Citations: []rag.Citation{},
	}
	if gm.WantAlternative {
		resp.AlternativeOf = q.AlternativeOf
	}

	// 3. No matches: canned answer, no model call.
	if result.Empty() {
		resp.Status = rag.StatusNoMatches
		resp.Answer = noMatchesAnswer
		log.Info("recommender: no candidates retrieved", slog.String("response_id", id))
		r.record(ctx, q, result, resp)
		return resp, nil
	}

	allowed := result.Without(toSet(excluded)).Head(k)
	if allowed.Empty() {
		log.Info("recommender: every candidate was already recommended, reusing full retrieval",
			slog.Int("excluded", len(excluded)))
		allowed = result.Head(k)
	}
	grounding := r.builder.Build(allowed, r.contextTokens)
	if grounding.Truncated {
		log.Debug("recommender: grounding context truncated",
			slog.Int("kept", len(grounding.Excerpts)),
			slog.Int("dropped", grounding.Dropped),
			slog.Int("used_tokens", grounding.Used),
			slog.Int("budget_tokens", grounding.Budget),
		)
	}

	// 4. Prompt.
	variant := gm.Variant()
	msgs, err := variant.Render(ctx, mode.PromptInput{
		Query:    q.Text,
		Context:  grounding.Text(),
		Excluded: excluded,
		Mood:     gm.Mood,
	})
	if err != nil {
		return nil, fmt.Errorf("recommender: render prompt: %w", err)
	}

	// 5. Generation.
	out, err := r.generator.generate(ctx, msgs, variant.Params())
	if err != nil {
		return nil, err
	}

	// 6. Parse and validate citations.
	reply := parseOutput(out.Content, grounding.BookIDs())
	resp.Status = rag.StatusOK
	resp.Answer = reply.Answer
	resp.Truncated = grounding.Truncated
	resp.Citations, resp.Fallback = r.validate(ctx, reply.Picks, grounding, allowed, gm.ExplainWhy)
	if resp.Answer == "" {
		resp.Answer = fallbackAnswer(resp.Citations)
	}

	log.Info("recommender: answered",
		slog.String("response_id", id),
		slog.String("variant", variant.Tag()),
		slog.String("mood", gm.Mood.Label),
		slog.Int("candidates", len(result.Items)),
		slog.Int("citations", len(resp.Citations)),
		slog.Bool("fallback", resp.Fallback),
	)

	// 7. Record.
	r.record(ctx, q, result, resp)
	return resp, nil
}

// detectMood runs the optional detector when no explicit mood was given.
// Detector failures are logged and treated as no signal.
func (r *Recommender) detectMood(ctx context.Context, q rag.Query) *mode.Signal {
	if r.detector == nil || q.Mood != "" || !r.controller.DetectionEnabled {
		return nil
	}
	sig, err := r.detector.Detect(ctx, q.Text)
	if err != nil {
		logging.FromContext(ctx).Warn("recommender: mood detection failed", slog.Any("error", err))
		return nil
	}
	return sig
}

// exclusions collects the book IDs a second opinion must avoid: the
// caller-supplied list plus the citations of the prior response. An unknown
// prior response contributes nothing.
func (r *Recommender) exclusions(ctx context.Context, q rag.Query, gm mode.GenerationMode) []string {
	if !gm.WantAlternative {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	add(q.ExcludeBookIDs)

	if q.AlternativeOf != "" && r.prior != nil {
		ids, err := r.prior.CitedBookIDs(ctx, q.AlternativeOf)
		if err != nil {
			logging.FromContext(ctx).Warn("recommender: prior response not found, applying no exclusions from it",
				slog.String("alternative_of", q.AlternativeOf),
				slog.Any("error", err),
			)
		} else {
			add(ids)
		}
	}
	return out
}

// validate keeps the model's picks that are present in the grounding
// context, in model order and without duplicates. When nothing valid
// remains the top grounded candidate is cited and the second result is true.
func (r *Recommender) validate(ctx context.Context, picks []pick, grounding rag.Context, allowed rag.RetrievalResult, explain bool) ([]rag.Citation, bool) {
	inContext := toSet(grounding.BookIDs())
	seen := make(map[string]bool)
	citations := []rag.Citation{}
	var dropped []string

	for _, p := range picks {
		if !inContext[p.BookID] {
			dropped = append(dropped, p.BookID)
			continue
		}
		if seen[p.BookID] {
			continue
		}
		seen[p.BookID] = true
		cand, _ := allowed.Lookup(p.BookID)
		citations = append(citations, citation(cand, p.Explanation, explain))
	}

	if len(dropped) > 0 {
		r.metrics.droppedCitations.Add(float64(len(dropped)))
		logging.FromContext(ctx).Warn("recommender: dropped citations outside retrieved set",
			slog.Any("book_ids", dropped))
	}
	if len(citations) > 0 {
		return citations, false
	}

	r.metrics.fallbackTotal.Inc()
	top, _ := allowed.Lookup(grounding.Excerpts[0].BookID)
	return []rag.Citation{citation(top, "", explain)}, true
}

// citation builds a Citation. Explanations exist only in explain mode and
// are synthesised from retrieval evidence when the model gave none.
func citation(c rag.Candidate, explanation string, explain bool) rag.Citation {
	out := rag.Citation{BookID: c.Book.ID, Title: c.Book.Title}
	if !explain {
		return out
	}
	out.Explanation = strings.TrimSpace(explanation)
	if out.Explanation == "" {
		out.Explanation = evidence(c)
	}
	return out
}

// evidence describes why retrieval surfaced c.
func evidence(c rag.Candidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ranked #%d for your request (similarity %.2f)", c.Rank, c.Similarity)
	if len(c.Book.Genres) > 0 {
		fmt.Fprintf(&sb, "; genres: %s", strings.Join(c.Book.Genres, ", "))
	}
	if c.Book.Rating > 0 {
		fmt.Fprintf(&sb, "; rated %.1f", c.Book.Rating)
	}
	sb.WriteString(".")
	return sb.String()
}

// fallbackAnswer is used when the model produced citations but no prose.
func fallbackAnswer(citations []rag.Citation) string {
	titles := make([]string, len(citations))
	for i, c := range citations {
		titles[i] = c.Title
	}
	return "You might enjoy: " + strings.Join(titles, "; ") + "."
}

// record writes the interaction best-effort. It is skipped once the caller
// has gone away; otherwise it runs detached from the caller's deadline so a
// slow sink cannot fail an answered request.
func (r *Recommender) record(ctx context.Context, q rag.Query, result rag.RetrievalResult, resp *rag.Response) {
	if r.recorder == nil || ctx.Err() != nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.recordTimeout)
	defer cancel()

	rec := rag.InteractionRecord{
		ID:        resp.ID,
		CreatedAt: r.now().UTC(),
		Query:     q,
		Retrieval: result,
		Mode:      resp.Mode,
		Response:  *resp,
	}
	if err := r.recorder.Record(rctx, rec); err != nil {
		r.metrics.recordFailures.Inc()
		logging.FromContext(ctx).Warn("recommender: failed to record interaction",
			slog.String("response_id", resp.ID),
			slog.Any("error", err),
		)
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
