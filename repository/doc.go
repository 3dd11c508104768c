// Package repository provides a generic entity repository built on Bun for
// CRUD operations, querying, pagination and upsert support. Every operation
// comes in two forms: one that manages a session internally and commits per
// call, and a WithSession variant that runs against a caller-supplied session
// so several operations can share one unit of work.
package repository
