// Package suppression tracks addresses that must not receive mail.
//
// The list is read-mostly: every batch submission consults it, while
// writes arrive only from event ingestion and support tooling. The
// merge rule is most-severe-reason-wins: a spam complaint is sticky
// and is never downgraded by a later delivery failure.
package suppression
