// Package session provides configured persistence sessions over Bun
// transactions. A Factory holds a database handle together with fixed
// session options; every session it opens is a single unit of work that
// buffers pending operations until Commit and rolls back on Close.
package session
