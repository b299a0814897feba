package telemetry

// Instrumentation scope and span names.
const (
	TracerName = "github.com/samirrijal/proxima"

	SpanAcquire       = "geolocation.acquire"
	SpanCatalogLoad   = "catalog.load"
	SpanRank          = "proximity.rank"
	SpanViewportApply = "viewport.apply"
)

// Span attribute keys.
const (
	AttrProfile      = "proxima.profile"
	AttrHighAccuracy = "proxima.high_accuracy"
	AttrOutcome      = "proxima.outcome"
	AttrEntities     = "proxima.entities"
	AttrHasConsumer  = "proxima.has_consumer"
	AttrUpdateID     = "proxima.viewport.update_id"
)
