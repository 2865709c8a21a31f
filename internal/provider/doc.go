// Package provider talks to the external messaging provider over HTTP.
//
// The Gateway covers session listing, chat listing, sending text and image
// messages, and downloading media. Every call:
//
//   - reads the provider settings through a short-lived cache, failing with
//     chaterr.NotConfigured or chaterr.Disabled when the integration is unusable
//   - waits on a shared rate limiter
//   - runs up to provider.max_attempts attempts, each under provider.timeout,
//     retrying 429, 5xx and timeouts with a doubling backoff
//
// A timeout on the final attempt surfaces as a chaterr.ProviderError with
// Timeout set. Non-retryable statuses surface immediately with their status.
package provider
