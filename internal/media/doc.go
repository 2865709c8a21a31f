// Package media stores attachment and avatar bytes.
//
// Store is a put/get-by-key contract with two implementations: FSStore for
// single-node deployments, served by the gateway under media.public_url, and
// S3Store for any S3-compatible object storage. The "none" driver disables
// mirroring entirely and provider URLs are kept as they arrive.
//
// Keys are built with Key, which keeps them to a safe character set:
//
//	conversations/<conversation>/<message>/<name>
//	avatars/<conversation>.jpg
package media
