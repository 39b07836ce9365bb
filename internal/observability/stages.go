package observability

// Pipeline stage names used for latency tracking.
const (
	StageEmbed     = "embed"
	StageRetrieve  = "retrieve"
	StageNarrative = "narrative"
	StagePersona   = "persona"
	StageAssemble  = "assemble"
	StageComplete  = "complete"
	StagePersist   = "persist"
	StageTurnTotal = "turn_total"
)
