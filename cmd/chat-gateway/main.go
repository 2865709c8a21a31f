// ABOUTME: Entry point for the chat-gateway server and its operator CLI
// ABOUTME: Subcommands serve, init, health, token and responsible share one config lookup

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/lexdesk/chat-gateway/internal/auth"
	"github.com/lexdesk/chat-gateway/internal/config"
	"github.com/lexdesk/chat-gateway/internal/gateway"
	"github.com/lexdesk/chat-gateway/internal/logging"
	"github.com/lexdesk/chat-gateway/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
       _           _                        _
   ___| |__   __ _| |_      __ _  __ _| |_ _____      ____ _ _   _
  / __| '_ \ / _' | __|___ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | (__| | | | (_| | ||___| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \___|_| |_|\__,_|\__|   \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                          |___/                             |___/
`

// getConfigPath returns the path to the config file.
// Priority: CHAT_GATEWAY_CONFIG env var > ./config.yaml > XDG_CONFIG_HOME/chat-gateway/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHAT_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "chat-gateway", "config.yaml")
}

func usage() {
	fmt.Println("Usage: chat-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                          Start the gateway server")
	fmt.Println("  init                           Create a config file and .env interactively")
	fmt.Println("  health                         Check gateway readiness")
	fmt.Println("  token --sub ID [--name NAME]   Issue an operator token")
	fmt.Println("  responsible --id N --name NAME Add or update an assignable responsible")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin)
	case "health":
		err = runHealth(ctx)
	case "token":
		err = runToken(os.Args[2:])
	case "responsible":
		err = runResponsible(ctx, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := logging.Setup(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Webhook:   %s\n", cfg.Webhook.Path)
	green.Print("    ▶ ")
	fmt.Printf("Media:     %s\n", cfg.Media.Driver)
	if cfg.Provider.BaseURL == "" {
		yellow.Println("    ! provider not configured; only local conversations are available")
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! auth disabled; every request acts as the anonymous operator")
	}
	fmt.Println()

	logger.Info().
		Str("config", configPath).
		Str("http_addr", cfg.Server.HTTPAddr).
		Str("version", version).
		Msg("starting chat-gateway")

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "localhost:" + strings.TrimPrefix(addr, "0.0.0.0:")
	}
	url := fmt.Sprintf("http://%s/health/ready", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	color.Green("healthy")
	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "", "operator user id (required)")
	name := fs.String("name", "", "operator display name")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*sub) == "" {
		return errors.New("--sub is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured; tokens are not needed in anonymous mode")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(*sub, *name, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Println(token)
	return nil
}

// runResponsible upserts a row in the responsible directory that
// conversation assignments snapshot from.
func runResponsible(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("responsible", flag.ContinueOnError)
	id := fs.Int64("id", 0, "responsible id (required, positive)")
	name := fs.String("name", "", "display name (required)")
	role := fs.String("role", "", "role shown next to the name")
	avatar := fs.String("avatar", "", "avatar URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	s, err := store.Open(cfg.Database, logging.Setup(cfg.Logging))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	r := &store.Responsible{ID: *id, Name: *name, Role: *role, Avatar: *avatar}
	if err := s.UpsertResponsible(ctx, r); err != nil {
		return err
	}
	color.Green("responsible %d saved", r.ID)
	return nil
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("chat-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Provider ---")
	baseURL := prompt(reader, "Provider base URL (leave empty for local only)", "")
	apiKey := ""
	if baseURL != "" {
		apiKey = prompt(reader, "Provider API key", "")
	}

	jwtSecret, err := randomSecret(32)
	if err != nil {
		return err
	}
	webhookSecret, err := randomSecret(24)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(config.Starter()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	envFile := filepath.Join(configDir, ".env")
	env := map[string]string{
		"CHAT_GATEWAY_JWT_SECRET": jwtSecret,
		"PROVIDER_BASE_URL":       baseURL,
		"PROVIDER_API_KEY":        apiKey,
		"PROVIDER_WEBHOOK_SECRET": webhookSecret,
	}
	if err := godotenv.Write(env, envFile); err != nil {
		return fmt.Errorf("writing .env: %w", err)
	}
	if err := os.Chmod(envFile, 0600); err != nil {
		return fmt.Errorf("restricting .env permissions: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Secrets written to %s\n", envFile)
	fmt.Println("\nConfigure the provider to send webhooks with the header:")
	fmt.Printf("  %s: %s\n", gateway.WebhookSecretHeader, webhookSecret)
	fmt.Println("\nTo start the server:")
	fmt.Println("  chat-gateway serve")
	return nil
}

// randomSecret returns n random bytes, URL-safe base64 encoded.
func randomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
