// Package couchpotato is the composition root of the couch-potato library.
//
// It connects the persistence coordinator in pkg/core with the storage
// adapters (CouchDB over HTTP, a directory of JSON/YAML files, memory)
// using functional options.
//
// Features:
//
//   - **Validation pipeline**: validators plus before/after hooks, merged into
//     a per-document error collection.
//   - **Mutation pipeline**: save, create and update stages with abortable hooks.
//   - **Optimistic concurrency**: revision-checked writes, with SaveWithRetry
//     reloading and reapplying a mutation up to five times.
//   - **Bulk saves**: one round-trip, per-document outcomes.
//   - **Typed models**: generic wrapper (`NewRepository[T]`) with
//     expression-based validation rules.
//
// Usage:
//
//	db, err := couchpotato.New(ctx, "http://localhost:5984/potatoes",
//		couchpotato.WithAdapter("couchdb"),
//		couchpotato.WithCredentials("admin", "secret"),
//	)
//
//	doc := core.NewGeneric()
//	doc.Set("variety", "russet")
//	err = db.SaveOrFail(ctx, doc)
package couchpotato
