package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guided-traffic/envelope-keyring/internal/config"
	"github.com/guided-traffic/envelope-keyring/internal/monitoring"
	"github.com/guided-traffic/envelope-keyring/internal/server"
	"github.com/guided-traffic/envelope-keyring/pkg/envelope"
	"github.com/guided-traffic/envelope-keyring/pkg/manager"
)

var (
	// Build information injected at build time
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "envelope-keyring",
		Short: "Envelope encryption keyring for wrapping data keys",
		Long: `envelope-keyring wraps per-message data keys under longer-lived keys and
seals payloads with the wrapped material.

Keyring types:
- raw-rsa: asymmetric wrap with PKCS#1 v1.5 or OAEP padding (self-hosted)
- raw-aes: symmetric AES-GCM wrap with a pre-shared 256-bit key
- tink: AEAD wrap through a Tink keyset

Configure keyrings in YAML; the first entry generates the data key and the
rest wrap additional copies, so any single configured key can later unwrap.
Use --config to point at a configuration file, or place .envelope-keyring.yaml
in the working directory.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (YAML format)")
	rootCmd.AddCommand(newServeCmd(), newWrapCmd(), newUnwrapCmd(), newKeygenCmd())
}

func initConfig() {
	config.InitConfig(cfgFile)
}

// loadConfig loads the configuration and applies the logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	return cfg, nil
}

// buildManager assembles the materials manager tree from the configuration:
// default manager over the configured keyrings, optionally caching, always
// instrumented.
func buildManager(cfg *config.Config) (manager.MaterialsManager, error) {
	kr, err := config.BuildMultiKeyring(cfg)
	if err != nil {
		return nil, err
	}

	var mgr manager.MaterialsManager
	mgr, err = manager.NewDefault(kr)
	if err != nil {
		return nil, err
	}

	if cfg.Caching.Enabled {
		mgr, err = manager.NewCaching(mgr, manager.CachingConfig{
			MaxEntries: cfg.Caching.MaxEntries,
			MaxAge:     cfg.Caching.MaxAge,
			MaxUses:    cfg.Caching.MaxUses,
		})
		if err != nil {
			return nil, err
		}
	}

	return monitoring.InstrumentManager(mgr), nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the wrap/unwrap HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			logrus.WithFields(logrus.Fields{
				"version":   version,
				"commit":    commit,
				"buildTime": buildTime,
			}).Info("envelope-keyring build information")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			mgr, err := buildManager(cfg)
			if err != nil {
				return err
			}
			alg, err := cfg.AlgorithmID()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				logrus.Info("Received shutdown signal, gracefully shutting down...")
				cancel()
			}()

			if cfg.Monitoring.Enabled {
				monitoringServer := monitoring.NewServer(&monitoring.Config{
					BindAddress: cfg.Monitoring.BindAddress,
					MetricsPath: cfg.Monitoring.MetricsPath,
				})
				go func() {
					if err := monitoringServer.Start(ctx); err != nil {
						logrus.WithError(err).Error("Monitoring server failed")
					}
				}()
			}

			srv := server.New(&server.Config{
				BindAddress:  cfg.Server.BindAddress,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}, mgr, alg)
			return srv.Start(ctx)
		},
	}
}

func newWrapCmd() *cobra.Command {
	var inFile, outFile, aad string

	cmd := &cobra.Command{
		Use:   "wrap",
		Short: "Seal a payload and print the message as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, err := buildManager(cfg)
			if err != nil {
				return err
			}
			alg, err := cfg.AlgorithmID()
			if err != nil {
				return err
			}

			plaintext, err := readInput(inFile)
			if err != nil {
				return err
			}

			msg, err := envelope.Seal(cmd.Context(), mgr, alg, plaintext, []byte(aad))
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(msg, "", "  ")
			if err != nil {
				return err
			}
			return writeOutput(outFile, append(data, '\n'))
		},
	}

	cmd.Flags().StringVar(&inFile, "in", "", "plaintext input file (default: stdin)")
	cmd.Flags().StringVar(&outFile, "out", "", "message output file (default: stdout)")
	cmd.Flags().StringVar(&aad, "aad", "", "additional authenticated data bound to the message")
	return cmd
}

func newUnwrapCmd() *cobra.Command {
	var inFile, outFile, aad string

	cmd := &cobra.Command{
		Use:   "unwrap",
		Short: "Open a sealed message and print the payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, err := buildManager(cfg)
			if err != nil {
				return err
			}

			data, err := readInput(inFile)
			if err != nil {
				return err
			}

			var msg envelope.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				return fmt.Errorf("failed to parse message: %w", err)
			}

			plaintext, err := envelope.Open(cmd.Context(), mgr, &msg, []byte(aad))
			if err != nil {
				return err
			}
			return writeOutput(outFile, plaintext)
		},
	}

	cmd.Flags().StringVar(&inFile, "in", "", "message input file (default: stdin)")
	cmd.Flags().StringVar(&outFile, "out", "", "plaintext output file (default: stdout)")
	cmd.Flags().StringVar(&aad, "aad", "", "additional authenticated data the message was sealed with")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate key material for the configured keyrings",
	}
	keygenCmd.AddCommand(newKeygenAESCmd(), newKeygenRSACmd())
	return keygenCmd
}

func newKeygenAESCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aes",
		Short: "Generate a random AES-256 key-encryption key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := make([]byte, 32)
			if _, err := rand.Read(key); err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			keyBase64 := base64.StdEncoding.EncodeToString(key)

			fmt.Printf("Generated AES-256 key (base64 encoded):\n%s\n", keyBase64)
			fmt.Printf("\nYou can use this key in your configuration:\n")
			fmt.Printf("kek: \"%s\"\n", keyBase64)
			return nil
		},
	}
}

func newKeygenRSACmd() *cobra.Command {
	var bits int
	var publicOut, privateOut string

	cmd := &cobra.Command{
		Use:   "rsa",
		Short: "Generate an RSA key pair as PEM files",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := rsa.GenerateKey(rand.Reader, bits)
			if err != nil {
				return fmt.Errorf("failed to generate RSA key: %w", err)
			}

			privatePEM := pem.EncodeToMemory(&pem.Block{
				Type:  "RSA PRIVATE KEY",
				Bytes: x509.MarshalPKCS1PrivateKey(key),
			})
			publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
			if err != nil {
				return fmt.Errorf("failed to marshal public key: %w", err)
			}
			publicPEM := pem.EncodeToMemory(&pem.Block{
				Type:  "PUBLIC KEY",
				Bytes: publicDER,
			})

			if err := os.WriteFile(privateOut, privatePEM, 0600); err != nil {
				return fmt.Errorf("failed to write private key: %w", err)
			}
			if err := os.WriteFile(publicOut, publicPEM, 0644); err != nil {
				return fmt.Errorf("failed to write public key: %w", err)
			}

			fmt.Printf("Wrote %d-bit RSA key pair:\n  private: %s\n  public:  %s\n", bits, privateOut, publicOut)
			return nil
		},
	}

	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size in bits")
	cmd.Flags().StringVar(&publicOut, "public-out", "public.pem", "public key output file")
	cmd.Flags().StringVar(&privateOut, "private-out", "private.pem", "private key output file")
	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
