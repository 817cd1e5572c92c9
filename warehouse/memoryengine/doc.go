// Package memoryengine provides in-memory implementations of the snapshot
// and fact store contracts. They hold everything under a mutex, hand out
// detached copies, and enforce the same history invariants as the Postgres
// engine, so engine behavior can be tested and demonstrated without a
// database. Nothing survives process exit.
package memoryengine
