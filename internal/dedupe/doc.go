// Package dedupe provides a time-based cache of recently processed webhook
// message keys so provider redeliveries inside a short window skip the store.
package dedupe
