// Package config handles configuration loading for chat-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Any .env file beside the config file, or in the working directory,
// is loaded into the environment first. Unset values fall back to Default().
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHAT_GATEWAY_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/chat-gateway/config.yaml
//
// # Environment Variable Expansion
//
//	provider:
//	  api_key: "${PROVIDER_API_KEY}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  shutdown_timeout: "10s"
//
//	database:
//	  driver: "sqlite"                 # sqlite or postgres
//	  path: "./chat-gateway.db"
//	  dsn: "postgres://..."
//
//	provider:
//	  base_url: "https://waha.example.com"
//	  api_key: "${PROVIDER_API_KEY}"
//	  webhook_secret: "${PROVIDER_WEBHOOK_SECRET}"
//	  active: true
//	  timeout: "15s"
//	  max_attempts: 3
//	  backoff: "500ms"
//
//	realtime:
//	  heartbeat_interval: "25s"
//	  typing_timeout: "6s"
//
//	media:
//	  driver: "s3"                     # none, fs or s3
//	  mirror_inbound: true
//	  s3:
//	    bucket: "chat-media"
//
//	webhook:
//	  path: "/webhooks/provider"
//	  dedupe_ttl: "10m"
//	  candidates:
//	    conversationId: ["payload.chat.jid"]
//
// # Validation
//
// Load() validates required addresses, driver names and duration syntax and
// reports the first failure.
package config
