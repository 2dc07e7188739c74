package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"

	"whatsapp-proxybot/internal/command"
	"whatsapp-proxybot/internal/config"
	"whatsapp-proxybot/internal/imagecheck"
	"whatsapp-proxybot/internal/logging"
	"whatsapp-proxybot/internal/member"
	"whatsapp-proxybot/internal/proxy"
	"whatsapp-proxybot/internal/store"
	"whatsapp-proxybot/internal/substitute"
	"whatsapp-proxybot/internal/whatsapp"
)

var (
	envFile  string
	database string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "proxybot",
	Short: "Persona proxy bot for WhatsApp groups",
	Long: `proxybot lets group members register personas ("members") and post as them.

A message wrapped in one of your proxy tags, for example "[hello]" for the tag
"[text]", is deleted and re-sent under the member's name. Members are managed
with "pf;member" commands; send "pf;help" in any chat for the list.

On first start a QR code is printed; scan it from WhatsApp > Linked devices.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "path to a .env file (default \".env\" if present)")
	rootCmd.Flags().StringVar(&database, "db", "", "member database DSN, overrides PROXYBOT_DB")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "trace, debug, info, warn or error, overrides PROXYBOT_LOG_LEVEL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("db") {
		cfg.Database = database
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	members, err := store.OpenSQLite(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer members.Close()

	images := imagecheck.New(
		imagecheck.WithMaxBytes(cfg.ImageMaxBytes),
		imagecheck.WithTimeout(cfg.ImageTimeout),
		imagecheck.WithLogger(log.With().Str("component", "imagecheck").Logger()),
	)
	registry := member.NewRegistry(members, images, member.WithLogger(log.With().Str("component", "registry").Logger()))

	container, err := sqlstore.New(ctx, "sqlite3", cfg.SessionDB, logging.WhatsApp(log, "Database"))
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device: %w", err)
	}
	client := whatsmeow.NewClient(device, logging.WhatsApp(log, "Client"))

	bot := whatsapp.NewBot(whatsapp.BotConfig{
		Client: client,
		LIDs:   device.LIDs,
		Router: command.NewRouter(registry,
			command.WithPrefix(cfg.Prefix),
			command.WithLogger(log.With().Str("component", "command").Logger()),
		),
		Matcher: proxy.NewMatcher(members, log.With().Str("component", "proxy").Logger()),
		Coordinator: substitute.NewCoordinator(
			substitute.WithLimit(cfg.MessageLimit),
			substitute.WithLogger(log.With().Str("component", "substitute").Logger()),
		),
		Timeout: cfg.HandlerTimeout,
		Log:     log.With().Str("component", "bot").Logger(),
	})
	client.AddEventHandler(bot.HandleEvent)

	if err := connect(ctx, client, log); err != nil {
		return err
	}
	log.Info().Str("prefix", cfg.Prefix).Msg("proxybot is online")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	client.Disconnect()
	bot.Wait()
	return nil
}

// connect logs in with the stored session, or pairs a new one by QR code.
func connect(ctx context.Context, client *whatsmeow.Client, log zerolog.Logger) error {
	if client.Store.ID != nil {
		if err := client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			fmt.Println("Scan this code with WhatsApp > Linked devices:")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
		case "success":
			log.Info().Msg("Paired with WhatsApp")
			return nil
		default:
			if evt.Error != nil {
				return fmt.Errorf("pairing failed: %w", evt.Error)
			}
			return fmt.Errorf("pairing failed: %s", evt.Event)
		}
	}
	return ctx.Err()
}
