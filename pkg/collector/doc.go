// Package collector runs one collection method for one worker.
//
// An Executor owns a single credential and API client. RunMethod repeatedly
// asks the store which identifiers of its scope still need the method, lays
// them out in checkpoint-sized rounds, sends each round's batches paced by a
// ratelimit.Pacer, classifies every response and commits the round's results
// in one transaction before querying again. It stops when nothing remains,
// when its credential is exhausted for the method, or when a sweep makes no
// progress.
//
// Outcomes per batch:
//
//	stored   a usable payload was persisted
//	limited  the provider exhausted the credential; entries it did return are
//	         kept, missing ones stay remaining
//	failed   transport error, timeout, HTTP error, hard or undecodable response
//
// Anything other than a clean store sets the shared retry signal so the next
// pass picks the identifiers up again.
package collector
