// Package diagnostics declares the archiver contract used to persist raw
// upstream response bodies for operator inspection. Its only
// implementation is NopArchiver, which discards everything; concrete
// backends live in internal/storage/{gcs,local,memory}, and the pluggable
// event sinks
// that publish request-completion summaries live in
// internal/diagnostics/{pubsub,memory}.
package diagnostics
