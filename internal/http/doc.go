// Package httpapp provides the HTTP server for the node registry.
//
//	@title			Vortunix Node Registry API
//	@version		1.0
//	@description	Status registry for remote bot nodes. Records live in a JSON
//	@description	document in a GitHub repository (or a local SQLite file).
//	@description
//	@description	## Check-in flow
//	@description
//	@description	A node calls `GET /api/verifikasi/{token}` periodically. The
//	@description	registry answers with the node's record, including a fresh log
//	@description	entry, and commits the updated document in the background.
//	@description	Only the ten latest check-ins per node are kept.
//	@description
//	@description	## Dashboard
//	@description
//	@description	The dashboard reads `/api/stats`, `/api/logs` and `/api/list`,
//	@description	writes the whole registry back with `POST /api/sync` and signs
//	@description	users in with `POST /api/login`.
//
//	@BasePath	/
//
//	@tag.name			Nodes
//	@tag.description	Check-ins from remote nodes.
//
//	@tag.name			Dashboard
//	@tag.description	Aggregates, log feed, registry listing and replacement.
//
//	@tag.name			Authentication
//	@tag.description	Dashboard login against the external user list.
package httpapp
