// Command tokad is a reference embedder for Toka OS: it wires a kernel, an
// event store, and a Raft node together behind a small cobra CLI, with
// persistent flags, a cobra.OnInitialize logging hook, and one subcommand
// group per concern.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/scrappyAI/toka/pkg/bus"
	"github.com/scrappyAI/toka/pkg/cluster"
	"github.com/scrappyAI/toka/pkg/config"
	"github.com/scrappyAI/toka/pkg/eventstore"
	"github.com/scrappyAI/toka/pkg/kernel"
	"github.com/scrappyAI/toka/pkg/log"
	"github.com/scrappyAI/toka/pkg/metrics"
	"github.com/scrappyAI/toka/pkg/registry"
	"github.com/scrappyAI/toka/pkg/token"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	metrics.SetVersion(Version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "tokad",
	Short:   "tokad runs a Toka OS kernel node",
	Long:    `tokad is a reference embedder: it stands up a capability-gated kernel behind a Raft-replicated log and a content-addressed event store.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("tokad version %s\nCommit: %s\n", Version, Commit))
	config.BindPersistentFlags(rootCmd)
	cobra.OnInitialize(func() {
		cfg, err := config.FromFlags(rootCmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return
		}
		config.InitLogging(cfg)
	})

	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(tokenCmd)
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage a tokad kernel node's Raft membership",
}

var clusterBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Bootstrap a new single-node Toka cluster",
	Long: `Bootstrap starts a kernel node, its event store, and a Raft instance
with this node as the sole voter. Additional nodes join a running cluster's
leader via the embedder's own transport (Raft RPC wiring is out of core
scope); this command only stands up the first node.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromFlags(cmd)
		if err != nil {
			return err
		}

		secretHex, _ := cmd.Flags().GetString("secret")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		secret, err := resolveSecret(secretHex)
		if err != nil {
			return err
		}
		pool := token.NewSecretPoolFromSecret(secret, config.DefaultSecretRotationTTL)
		log.EnableRedaction(pool)

		logger := log.WithNodeID(cfg.NodeID)
		logger.Info().Str("bind_addr", cfg.BindAddr).Str("data_dir", cfg.DataDir).Msg("bootstrapping cluster")

		node, shutdown, err := buildNode(cfg, pool)
		if err != nil {
			return fmt.Errorf("tokad: build node: %w", err)
		}
		defer shutdown()

		if err := node.Bootstrap(); err != nil {
			return fmt.Errorf("tokad: bootstrap: %w", err)
		}
		logger.Info().Msg("cluster bootstrapped")

		serveMetrics(metricsAddr, logger)

		fmt.Println("Cluster bootstrapped.")
		fmt.Println()
		fmt.Println("Signing secret (pass to other nodes and `tokad token mint`):")
		fmt.Printf("  %s\n", hex.EncodeToString(secret))
		fmt.Println()
		fmt.Println("Root capability token:")
		fmt.Printf("  %s\n", mustMintRootToken(secret))
		fmt.Println()
		fmt.Println("tokad is running. Press Ctrl+C to stop.")

		waitForShutdown()
		return nil
	},
}

var clusterJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Start this node's Raft instance so it can be added as a voter",
	Long: `Join starts this node's Raft instance without contacting any leader.
Core Toka has no network RPC surface: an embedder must call AddVoter on
the leader's in-process Node once this node's Raft transport is
reachable. This command exists to stand up that local instance.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromFlags(cmd)
		if err != nil {
			return err
		}
		secretHex, _ := cmd.Flags().GetString("secret")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		secret, err := resolveSecret(secretHex)
		if err != nil {
			return err
		}
		pool := token.NewSecretPoolFromSecret(secret, config.DefaultSecretRotationTTL)
		log.EnableRedaction(pool)

		logger := log.WithNodeID(cfg.NodeID)
		node, shutdown, err := buildNode(cfg, pool)
		if err != nil {
			return fmt.Errorf("tokad: build node: %w", err)
		}
		defer shutdown()

		if err := node.Join(); err != nil {
			return fmt.Errorf("tokad: join: %w", err)
		}
		logger.Info().Msg("raft instance started, awaiting AddVoter from leader")

		serveMetrics(metricsAddr, logger)
		fmt.Printf("Node %q listening on %s. Ask the cluster leader to add it as a voter.\n", cfg.NodeID, cfg.BindAddr)

		waitForShutdown()
		return nil
	},
}

func init() {
	clusterCmd.AddCommand(clusterBootstrapCmd)
	clusterCmd.AddCommand(clusterJoinCmd)

	for _, cmd := range []*cobra.Command{clusterBootstrapCmd, clusterJoinCmd} {
		config.BindNodeFlags(cmd)
		cmd.Flags().String("secret", "", "Hex-encoded HS256 signing secret (generated if omitted)")
		cmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus /metrics endpoint")
	}
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint capability tokens",
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a capability token for a subject",
	RunE: func(cmd *cobra.Command, args []string) error {
		secretHex, _ := cmd.Flags().GetString("secret")
		subject, _ := cmd.Flags().GetString("subject")
		permissions, _ := cmd.Flags().GetStringSlice("permission")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if secretHex == "" {
			return fmt.Errorf("tokad: --secret is required")
		}
		if subject == "" {
			return fmt.Errorf("tokad: --subject is required")
		}

		secret, err := decodeSecret(secretHex)
		if err != nil {
			return err
		}

		now := time.Now()
		claims := token.Claims{
			Subject:     subject,
			Permissions: permissions,
			IssuedAt:    now.Unix(),
			Expiry:      now.Add(ttl).Unix(),
			ID:          fmt.Sprintf("%x", mustRandomBytes(8)),
		}

		signed, err := token.Mint(claims, secret)
		if err != nil {
			return fmt.Errorf("tokad: mint: %w", err)
		}

		fmt.Println(signed)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenMintCmd)

	tokenMintCmd.Flags().String("secret", "", "Hex-encoded HS256 signing secret (required)")
	tokenMintCmd.Flags().String("subject", "", "Entity ID this token authenticates (required)")
	tokenMintCmd.Flags().StringSlice("permission", []string{"*"}, "Permissions granted by this token")
	tokenMintCmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	tokenMintCmd.MarkFlagRequired("secret")
	tokenMintCmd.MarkFlagRequired("subject")
}

// buildNode wires a kernel, event store, and cluster FSM/Node together,
// returning a shutdown func that closes every owned resource in reverse
// order.
func buildNode(cfg config.Config, pool *token.SecretPool) (*cluster.Node, func(), error) {
	store, err := eventstore.NewDurable(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open event store: %w", err)
	}

	validator := token.NewMultiValidator(pool)
	reg := registry.New()
	eventBus := bus.New()
	state := kernel.NewMemoryWorldState()
	k := kernel.New(validator, reg, eventBus, state)

	fsm, err := cluster.NewFSM(store, k, cluster.DefaultIdempotencyTableSize)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("build fsm: %w", err)
	}

	node, err := cluster.NewNode(cfg.NodeID, cfg.BindAddr, cfg.DataDir, fsm)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("build node: %w", err)
	}

	shutdown := func() {
		if err := node.Shutdown(); err != nil {
			log.Errorf("raft shutdown: %v", err)
		}
		if err := store.Close(); err != nil {
			log.Errorf("event store close: %v", err)
		}
	}
	return node, shutdown, nil
}

// serveMetrics starts the Prometheus /metrics endpoint in the background.
func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
}

func resolveSecret(hexSecret string) ([]byte, error) {
	if hexSecret == "" {
		return mustRandomBytes(32), nil
	}
	return decodeSecret(hexSecret)
}

func decodeSecret(hexSecret string) ([]byte, error) {
	secret, err := hex.DecodeString(hexSecret)
	if err != nil {
		return nil, fmt.Errorf("tokad: decode --secret: %w", err)
	}
	return secret, nil
}

func mustRandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("tokad: reading random bytes: %v", err))
	}
	return b
}

func mustMintRootToken(secret []byte) string {
	now := time.Now()
	claims := token.Claims{
		Subject:     "root",
		Permissions: []string{"*"},
		IssuedAt:    now.Unix(),
		Expiry:      now.Add(24 * time.Hour).Unix(),
		ID:          fmt.Sprintf("%x", mustRandomBytes(8)),
	}
	signed, err := token.Mint(claims, secret)
	if err != nil {
		panic(fmt.Sprintf("tokad: mint root token: %v", err))
	}
	return signed
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")
}
