package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/aria/internal/brain"
	"github.com/antoniostano/aria/internal/embed"
	"github.com/antoniostano/aria/internal/facts"
	"github.com/antoniostano/aria/internal/memory"
	"github.com/antoniostano/aria/internal/narrative"
	"github.com/antoniostano/aria/internal/observability"
	"github.com/antoniostano/aria/internal/persona"
	"github.com/antoniostano/aria/internal/policy"
	"github.com/antoniostano/aria/internal/prompt"
	"github.com/antoniostano/aria/internal/session"
)

// ErrTransient is returned to callers when the model backend fails. The
// underlying cause is logged, never surfaced to users.
var ErrTransient = errors.New("assistant temporarily unavailable")

// ErrInternal is returned when prompt assembly produced a structurally
// invalid sequence. Such a sequence is a defect and is never dispatched to
// the model.
var ErrInternal = errors.New("internal assembly error")

const maxPersonaSections = 6

// fallbackSystemPreamble keeps the turn usable when the persona store is
// unreachable and the lazy binding cannot resolve yet.
const fallbackSystemPreamble = "You are a warm, attentive conversational companion."

// Options carries per-turn budgets and timeouts.
type Options struct {
	RetrievalTopK       int
	RetrievalMinScore   float64
	RetrievalTimeout    time.Duration
	PersonaFetchTimeout time.Duration
	BrainTimeout        time.Duration
	PromptMaxChars      int
	ContextMinChars     int
	Narrative           narrative.Config
}

// Reply is the outcome of one successful turn.
type Reply struct {
	TurnID    string
	Text      string
	Disclosed bool
	Retrieved int
}

// Engine runs the context assembly pipeline: retrieve and derive context,
// tier it into a narrative, select persona knowledge, assemble and validate
// the prompt, invoke the model, and persist the exchange only after the model
// reply succeeded.
type Engine struct {
	embedder  embed.Embedder
	memories  memory.Store
	factStore facts.Store
	personas  *persona.LazyBinding[persona.Store]
	invoker   brain.Invoker
	sessions  *session.Manager
	builder   *narrative.Builder
	metrics   *observability.Metrics
	opts      Options
}

func New(
	embedder embed.Embedder,
	memories memory.Store,
	factStore facts.Store,
	personas *persona.LazyBinding[persona.Store],
	invoker brain.Invoker,
	sessions *session.Manager,
	metrics *observability.Metrics,
	opts Options,
) *Engine {
	if opts.RetrievalTopK <= 0 {
		opts.RetrievalTopK = 12
	}
	if opts.RetrievalTimeout <= 0 {
		opts.RetrievalTimeout = 3 * time.Second
	}
	if opts.PersonaFetchTimeout <= 0 {
		opts.PersonaFetchTimeout = 3 * time.Second
	}
	if opts.BrainTimeout <= 0 {
		opts.BrainTimeout = 60 * time.Second
	}
	return &Engine{
		embedder:  embedder,
		memories:  memories,
		factStore: factStore,
		personas:  personas,
		invoker:   invoker,
		sessions:  sessions,
		builder:   narrative.NewBuilder(opts.Narrative),
		metrics:   metrics,
		opts:      opts,
	}
}

// Respond runs one assistant turn for the given conversation. Nothing is
// persisted unless the model reply completes; a cancellation or backend
// failure leaves the memory store and the conversation log untouched.
func (e *Engine) Respond(ctx context.Context, conversationID, utterance string, onDelta brain.DeltaHandler) (Reply, error) {
	turnStart := time.Now()

	conv, err := e.sessions.Get(conversationID)
	if err != nil {
		return Reply{}, err
	}
	turnID := uuid.NewString()

	// Query embedding. A slow or failing embedder degrades the turn to an
	// empty retrieval, it never fails it.
	embedStart := time.Now()
	queryVec := e.embedQuery(ctx, utterance)
	e.observeStage(observability.StageEmbed, time.Since(embedStart))

	// Vector search, stored-fact lookup and fact extraction are independent;
	// fan out and join.
	var (
		retrieved   []memory.Record
		storedFacts []facts.Record
		newFacts    []facts.Record
	)
	retrieveStart := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		retrieved = e.searchMemories(gctx, conv.UserID, conv.PersonaID, queryVec)
		return nil
	})
	g.Go(func() error {
		storedFacts = e.listFacts(gctx, conv.UserID, conv.PersonaID)
		return nil
	})
	g.Go(func() error {
		newFacts = facts.Extract(utterance, conv.UserID, turnID)
		for i := range newFacts {
			newFacts[i].PersonaID = conv.PersonaID
		}
		return nil
	})
	_ = g.Wait()
	e.observeStage(observability.StageRetrieve, time.Since(retrieveStart))
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	if e.metrics != nil {
		e.metrics.RetrievedRecords.Observe(float64(len(retrieved)))
	}

	narrativeStart := time.Now()
	nar := e.builder.Build(retrieved, mergeFacts(storedFacts, newFacts), time.Now().UTC())
	rendered := nar.Render()
	e.observeStage(observability.StageNarrative, time.Since(narrativeStart))
	if e.metrics != nil {
		e.metrics.ContextChars.WithLabelValues("narrative").Observe(float64(nar.RenderedLen()))
	}

	personaStart := time.Now()
	desc, sections := e.personaContext(ctx, conv.PersonaID, utterance)
	e.observeStage(observability.StagePersona, time.Since(personaStart))

	disclosure := prompt.MaybeDisclosure(nar, e.opts.ContextMinChars)
	if disclosure != "" && e.metrics != nil {
		e.metrics.DisclosuresTotal.Inc()
		e.metrics.Stages.ObserveIndicator("disclosure")
	}

	assembleStart := time.Now()
	messages, err := e.assemble(desc, rendered, sections, disclosure, conv.Turns, utterance)
	e.observeStage(observability.StageAssemble, time.Since(assembleStart))
	if err != nil {
		// A structural violation is a defect in this service, not a user
		// condition. Log it, count it, and hide the detail.
		log.Printf("engine: conversation %s turn %s: %v", conversationID, turnID, err)
		if e.metrics != nil {
			e.metrics.PromptViolations.Inc()
			e.metrics.TurnsTotal.WithLabelValues("internal_error").Inc()
		}
		return Reply{}, ErrInternal
	}

	completeStart := time.Now()
	brainCtx, cancel := context.WithTimeout(ctx, e.opts.BrainTimeout)
	reply, err := e.invoker.Complete(brainCtx, messages, onDelta)
	cancel()
	e.observeStage(observability.StageComplete, time.Since(completeStart))
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		log.Printf("engine: conversation %s turn %s: brain: %v", conversationID, turnID, err)
		if e.metrics != nil {
			e.metrics.BrainErrors.WithLabelValues(errorCode(err)).Inc()
			e.metrics.TurnsTotal.WithLabelValues("transient_error").Inc()
		}
		return Reply{}, ErrTransient
	}

	persistStart := time.Now()
	e.persistExchange(conv, turnID, utterance, reply, queryVec, newFacts)
	e.observeStage(observability.StagePersist, time.Since(persistStart))

	total := time.Since(turnStart)
	e.observeStage(observability.StageTurnTotal, total)
	if e.metrics != nil {
		e.metrics.TurnsTotal.WithLabelValues("ok").Inc()
		e.metrics.ObserveTurnLatency(total)
	}

	return Reply{
		TurnID:    turnID,
		Text:      reply,
		Disclosed: disclosure != "",
		Retrieved: len(retrieved),
	}, nil
}

func (e *Engine) embedQuery(ctx context.Context, utterance string) []float32 {
	if e.embedder == nil {
		return nil
	}
	embedCtx, cancel := context.WithTimeout(ctx, e.opts.RetrievalTimeout)
	defer cancel()
	vec, err := e.embedder.Embed(embedCtx, utterance)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("engine: query embedding failed, retrieval skipped: %v", err)
			if e.metrics != nil {
				e.metrics.StoreErrors.WithLabelValues("embed", "embed").Inc()
			}
		}
		return nil
	}
	return vec
}

func (e *Engine) searchMemories(ctx context.Context, userID, personaID string, queryVec []float32) []memory.Record {
	if e.memories == nil || len(queryVec) == 0 {
		return nil
	}
	searchCtx, cancel := context.WithTimeout(ctx, e.opts.RetrievalTimeout)
	defer cancel()
	records, err := e.memories.Search(searchCtx, memory.SearchQuery{
		Embedding:   queryVec,
		OwnerUserID: userID,
		PersonaID:   personaID,
		TopK:        e.opts.RetrievalTopK,
		MinScore:    e.opts.RetrievalMinScore,
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("engine: memory search failed, degrading to empty context: %v", err)
			if e.metrics != nil {
				e.metrics.StoreErrors.WithLabelValues("memory", "search").Inc()
			}
		}
		return nil
	}
	return records
}

func (e *Engine) listFacts(ctx context.Context, userID, personaID string) []facts.Record {
	if e.factStore == nil {
		return nil
	}
	listCtx, cancel := context.WithTimeout(ctx, e.opts.RetrievalTimeout)
	defer cancel()
	records, err := e.factStore.List(listCtx, userID, personaID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("engine: fact lookup failed, continuing without stored facts: %v", err)
			if e.metrics != nil {
				e.metrics.StoreErrors.WithLabelValues("facts", "list").Inc()
			}
		}
		return nil
	}
	return records
}

// mergeFacts overlays facts extracted from the current utterance on top of the
// stored set. A fresh statement about the same (subject, predicate) replaces
// the stored one in place, so the narrative reflects what the user just said.
func mergeFacts(stored, fresh []facts.Record) []facts.Record {
	if len(fresh) == 0 {
		return stored
	}
	type key struct{ subject, predicate string }
	replacements := make(map[key]facts.Record, len(fresh))
	for _, r := range fresh {
		replacements[key{r.Subject, r.Predicate}] = r
	}
	merged := make([]facts.Record, 0, len(stored)+len(fresh))
	for _, r := range stored {
		k := key{r.Subject, r.Predicate}
		if repl, ok := replacements[k]; ok {
			merged = append(merged, repl)
			delete(replacements, k)
			continue
		}
		merged = append(merged, r)
	}
	for _, r := range fresh {
		if _, ok := replacements[key{r.Subject, r.Predicate}]; ok {
			merged = append(merged, r)
		}
	}
	return merged
}

// personaContext resolves the persona store through the lazy binding and
// fetches the descriptor plus the keyword-selected knowledge sections. Any
// failure degrades to a fallback preamble with no sections.
func (e *Engine) personaContext(ctx context.Context, personaID, utterance string) (persona.Descriptor, []persona.RenderedSection) {
	fallback := persona.Descriptor{ID: personaID, Description: fallbackSystemPreamble}
	if e.personas == nil {
		return fallback, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.PersonaFetchTimeout)
	defer cancel()

	store, err := e.personas.Resolve(fetchCtx)
	if err != nil {
		log.Printf("engine: persona store unavailable, using fallback preamble: %v", err)
		if e.metrics != nil {
			e.metrics.StoreErrors.WithLabelValues("persona", "resolve").Inc()
		}
		return fallback, nil
	}

	desc, err := store.GetPersona(fetchCtx, personaID)
	if err != nil {
		log.Printf("engine: persona %s fetch failed, using fallback preamble: %v", personaID, err)
		if e.metrics != nil {
			e.metrics.StoreErrors.WithLabelValues("persona", "get").Inc()
		}
		return fallback, nil
	}

	sections, err := store.GetKnowledgeSections(fetchCtx, personaID, "")
	if err != nil {
		log.Printf("engine: persona %s sections fetch failed, continuing without: %v", personaID, err)
		if e.metrics != nil {
			e.metrics.StoreErrors.WithLabelValues("persona", "sections").Inc()
		}
		return desc, nil
	}
	return desc, persona.SelectSections(sections, utterance, maxPersonaSections)
}

func (e *Engine) assemble(
	desc persona.Descriptor,
	renderedNarrative string,
	sections []persona.RenderedSection,
	disclosure string,
	turns []prompt.Turn,
	utterance string,
) ([]prompt.Message, error) {
	parts := make([]string, 0, len(sections)+3)
	parts = append(parts, personaPreamble(desc))
	parts = append(parts, renderedNarrative)
	for _, s := range sections {
		parts = append(parts, s.Text)
	}
	parts = append(parts, disclosure)

	asm := prompt.NewAssembler(e.opts.PromptMaxChars)
	if err := asm.ConsolidateSystem(parts...); err != nil {
		return nil, err
	}
	if err := asm.AppendTurns(turns); err != nil {
		return nil, err
	}
	return asm.Finalize(utterance)
}

func personaPreamble(desc persona.Descriptor) string {
	if desc.Description == "" {
		return fallbackSystemPreamble
	}
	if desc.Name == "" {
		return desc.Description
	}
	return fmt.Sprintf("You are %s. %s", desc.Name, desc.Description)
}

// persistExchange appends the user and agent records to the memory store,
// upserts the facts extracted from the utterance, and appends both turns to
// the conversation log. Reached only after a successful model reply; store
// errors are logged, never returned, so a flaky store cannot fail a turn the
// user already received.
func (e *Engine) persistExchange(conv *session.Conversation, turnID, utterance, reply string, queryVec []float32, newFacts []facts.Record) {
	now := time.Now().UTC()

	redactedUser, userClasses := policy.RedactPII(utterance)
	redactedReply, replyClasses := policy.RedactPII(reply)
	if e.metrics != nil {
		for _, class := range userClasses {
			e.metrics.Redactions.WithLabelValues(class).Inc()
		}
		for _, class := range replyClasses {
			e.metrics.Redactions.WithLabelValues(class).Inc()
		}
	}

	if e.memories != nil {
		persistCtx, cancel := context.WithTimeout(context.Background(), e.opts.RetrievalTimeout)
		defer cancel()

		replyVec := e.embedQuery(persistCtx, redactedReply)

		e.upsertBestEffort(persistCtx, memory.Record{
			ID:          turnID,
			OwnerUserID: conv.UserID,
			PersonaID:   conv.PersonaID,
			Role:        memory.RoleUser,
			Content:     redactedUser,
			PIIRedacted: len(userClasses) > 0,
			Embedding:   queryVec,
			Timestamp:   now,
		})
		e.upsertBestEffort(persistCtx, memory.Record{
			ID:          uuid.NewString(),
			OwnerUserID: conv.UserID,
			PersonaID:   conv.PersonaID,
			Role:        memory.RoleAgent,
			Content:     redactedReply,
			PIIRedacted: len(replyClasses) > 0,
			Embedding:   replyVec,
			Timestamp:   now.Add(time.Millisecond),
		})
	}

	if e.factStore != nil && len(newFacts) > 0 {
		factCtx, cancel := context.WithTimeout(context.Background(), e.opts.RetrievalTimeout)
		defer cancel()
		if err := e.factStore.Upsert(factCtx, newFacts...); err != nil {
			log.Printf("engine: fact upsert failed: %v", err)
			if e.metrics != nil {
				e.metrics.StoreErrors.WithLabelValues("facts", "upsert").Inc()
			}
		}
	}

	if err := e.sessions.AppendTurns(conv.ID,
		prompt.Turn{Role: prompt.RoleUser, Content: utterance, Timestamp: now},
		prompt.Turn{Role: prompt.RoleAssistant, Content: reply, Timestamp: now.Add(time.Millisecond)},
	); err != nil {
		log.Printf("engine: conversation %s: turn log append failed: %v", conv.ID, err)
	}
}

func (e *Engine) upsertBestEffort(ctx context.Context, record memory.Record) {
	if err := e.memories.Upsert(ctx, record); err != nil {
		log.Printf("engine: memory upsert %s failed: %v", record.ID, err)
		if e.metrics != nil {
			e.metrics.StoreErrors.WithLabelValues("memory", "upsert").Inc()
		}
	}
}

func (e *Engine) observeStage(stage string, d time.Duration) {
	if e.metrics == nil || e.metrics.Stages == nil {
		return
	}
	e.metrics.Stages.Observe(stage, d)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "backend"
	}
}
