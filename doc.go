// Package certflow runs a two-phase batch pipeline — render one artifact
// per input record, then dispatch each artifact to a per-record
// destination — as a cancellable, resumable background job.
//
// A run is submitted once, executes on a single worker goroutine, and is
// observed from outside through a polled progress state. Completed render
// phases persist an artifact manifest into a durable checkpoint so that
// the dispatch phase can be re-run on its own, including after a process
// restart.
//
// # Quick Start
//
//	store, _ := checkpoint.NewStore(dataDir, logger)
//	runner := pipeline.NewRunner(store, transport, logger)
//
//	id, err := runner.Submit(pipeline.Submission{
//	    Config:       cfg,     // mode, mapping, templates, output dir
//	    Records:      records, // ordered input rows
//	    TemplatePath: tmplPath,
//	})
//
// # Architecture
//
// Each subsystem lives in its own package: progress (shared run state),
// checkpoint (durable per-job record with manifest and retention),
// artifact (claim-tracked lookup of previously rendered files), backoff
// (retry policy for rendering and delivery), render and mail (the two
// external collaborator boundaries), hook (lifecycle extensions), and
// pipeline (the orchestrator that drives the phase state machine).
package certflow
