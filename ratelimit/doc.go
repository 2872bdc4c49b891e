// Package ratelimit provides token-bucket throttling for outbound calls
// to external data sources, one bucket per endpoint class.
//
// Unlike a purely local limiter, a [Bucket] can adopt the authoritative
// remaining-quota count reported by the external service: when a response
// carries a rate-limit header, [Bucket.UpdateFromServer] overwrites the
// locally estimated token count. Server state always wins.
//
// [Bucket.HandleRateLimitError] turns an explicit throttle response into
// a bounded inline wait-and-retry decision, so call sites do not invent
// their own backoff for 429-style errors.
package ratelimit
