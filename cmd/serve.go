package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"tgrelay/pkg/bot"
	"tgrelay/pkg/config"
	"tgrelay/pkg/logger"
	"tgrelay/pkg/secrets"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay bot",
	Long:  "Runs the Telegram relay in webhook or polling mode with health endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		logOpts := config.LoggingFromEnv()
		appLogger, err := logger.New(logger.Options{
			Format:    logOpts.Format,
			Level:     logOpts.Level,
			AddSource: logOpts.AddSource,
		})
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(runCtx, secretStore(runCtx, log))
		if err != nil {
			log.Error("Failed to load configuration", "error", err)
			return
		}

		log.Info("Configuration loaded",
			"region", cfg.Region,
			"service_name", cfg.ServiceName,
			"agent_api_url_configured", cfg.AgentAPIURL != "",
			"webhook_mode", cfg.WebhookMode(),
		)

		svc, err := bot.NewService(cfg, appLogger)
		if err != nil {
			log.Error("Failed to initialize relay service", "error", err)
			return
		}

		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Relay runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// secretStore builds the SSM-backed secret store. Deployments without AWS
// credentials fall back to env-only configuration.
func secretStore(ctx context.Context, log *slog.Logger) secrets.Getter {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Warn("AWS config unavailable, secret store disabled", "error", err)
		return nil
	}

	store, err := secrets.NewStore(ssm.NewFromConfig(awsCfg), log)
	if err != nil {
		log.Warn("Secret store unavailable", "error", err)
		return nil
	}

	return store
}
