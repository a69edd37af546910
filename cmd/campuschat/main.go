package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"campuschat/internal/autoreply"
	"campuschat/internal/bus"
	"campuschat/internal/config"
	"campuschat/internal/directory"
	"campuschat/internal/domain"
	"campuschat/internal/metrics"
	"campuschat/internal/session"
	"campuschat/internal/transport"
	"campuschat/internal/upload"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "campuschat",
		Short: "campuschat: the school dashboard's messaging client",
		Long:  "campuschat syncs the school dashboard's chat from the terminal: polling sync, optimistic sends, and the campus assistant auto-reply.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.campuschat/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(inboxCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults(), nil
	}
	return cfg, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat session",
		RunE:  runChat,
	}
}

// buildSession assembles the collaborators from config and opens a session.
func buildSession(cfg *config.Config) (*session.Session, func(), error) {
	api := transport.NewClient(transport.Config{
		Endpoint: cfg.Backend.Endpoint,
		Timeout:  time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		Logger:   logger,
	})

	var uploader domain.Uploader
	var cleanup = func() {}
	if cfg.Attachments.DBPath != "" {
		store, err := upload.NewSQLiteStore(cfg.Attachments.DBPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open attachment store: %w", err)
		}
		uploader = store
		cleanup = func() { store.Close() }
	}

	var dir domain.Directory
	if cfg.Directory.Path != "" {
		d, err := directory.Load(cfg.Directory.Path, logger)
		if err != nil {
			logger.Warn("directory unavailable, names fall back to snapshots", "err", err)
		} else {
			dir = d
		}
	}

	var generator domain.ReplyGenerator
	phrase := ""
	if cfg.AutoReply.Enabled {
		generator = autoreply.NewHTTPGenerator(autoreply.GeneratorConfig{
			APIBase: cfg.AutoReply.GeneratorURL,
			Timeout: time.Duration(cfg.AutoReply.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})
		phrase = cfg.AutoReply.Phrase
	}

	s := session.Open(api, uploader, dir, generator, session.Config{
		ViewerID:      cfg.Viewer.ID,
		ViewerName:    cfg.Viewer.Name,
		ViewerRole:    cfg.Viewer.Role,
		PollInterval:  time.Duration(cfg.Backend.PollIntervalSeconds) * time.Second,
		ReplyPhrase:   phrase,
		AssistantName: cfg.AutoReply.AssistantName,
		ReplyTimeout:  time.Duration(cfg.AutoReply.TimeoutSeconds) * time.Second,
		PushURL:       cfg.Backend.PushURL,
		Logger:        logger,
	})
	return s, cleanup, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port)
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/metrics", metrics.Collector.Handler())
			logger.Info("metrics listening", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	s, cleanup, err := buildSession(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()

	s.Events().On(bus.EventStoreChanged, func(e bus.Event) {
		if added, ok := e.Payload["added"].(int); ok && added > 0 {
			fmt.Printf("-- %d new message(s), /inbox to review\n", added)
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		s.Close()
		os.Exit(0)
	}()

	fmt.Println("campuschat — /inbox, /to <id>, /all, /edit <id> <text>, /del <id>, /quit")
	receiver := domain.BroadcastID
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if done, err := handleCommand(s, line, &receiver); err != nil {
			fmt.Printf("!! %v\n", err)
		} else if done {
			return nil
		}
	}
}

// handleCommand runs one REPL line. Returns true when the user quits.
func handleCommand(s *session.Session, line string, receiver *int64) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		_, err := s.Send(context.Background(), line, *receiver, nil)
		return false, err
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true, nil
	case "/inbox":
		printInbox(s)
		return false, nil
	case "/all":
		*receiver = domain.BroadcastID
		fmt.Println("-- sending to everyone")
		return false, nil
	case "/to":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /to <counterpart-id>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || id <= 0 {
			return false, fmt.Errorf("invalid counterpart id %q", fields[1])
		}
		*receiver = id
		printThread(s, id)
		return false, nil
	case "/edit":
		if len(fields) < 3 {
			return false, fmt.Errorf("usage: /edit <message-id> <new text>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid message id %q", fields[1])
		}
		_, err = s.Edit(context.Background(), id, strings.Join(fields[2:], " "))
		return false, err
	case "/del":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /del <message-id>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid message id %q", fields[1])
		}
		return false, s.Delete(context.Background(), id)
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

func printInbox(s *session.Session) {
	convs := s.Conversations()
	if len(convs) == 0 {
		fmt.Println("-- inbox empty")
		return
	}
	fmt.Printf("-- inbox (%d unread)\n", s.Unread())
	for _, c := range convs {
		marker := " "
		if c.Unread > 0 {
			marker = "*"
		}
		fmt.Printf("%s [%d] %-20s %s  %s\n", marker, c.CounterpartID, c.CounterpartName,
			c.Latest.Timestamp.Local().Format("15:04"), c.Latest.Text)
	}
}

func printThread(s *session.Session, counterpartID int64) {
	for _, m := range s.Thread(counterpartID) {
		edited := ""
		if m.IsEdited {
			edited = " (edited)"
		}
		fmt.Printf("[%d] %s %s: %s%s\n", m.ID,
			m.Timestamp.Local().Format("15:04"), m.SenderName, m.Text, edited)
	}
}

func inboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "Print the conversation list once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Auto-reply is irrelevant for a read-only snapshot.
			cfg.AutoReply.Enabled = false

			s, cleanup, err := buildSession(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			defer s.Close()

			// Give the initial full fetch a moment to land.
			deadline := time.Now().Add(time.Duration(cfg.Backend.TimeoutSeconds) * time.Second)
			for len(s.Conversations()) == 0 && time.Now().Before(deadline) {
				time.Sleep(100 * time.Millisecond)
			}
			printInbox(s)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check backend and generator reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			api := transport.NewClient(transport.Config{
				Endpoint: cfg.Backend.Endpoint,
				Timeout:  time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
				Logger:   logger,
			})
			// A probe fetch from "now" is cheap: it returns at most the
			// messages of the last instant.
			_, err = api.FetchSince(ctx, cfg.Viewer.ID, cfg.Viewer.Role, time.Now())
			logger.Info("backend", "endpoint", cfg.Backend.Endpoint, "reachable", err == nil)
			if err != nil {
				logger.Warn("backend probe failed", "err", err)
			}

			if cfg.AutoReply.Enabled {
				gen := autoreply.NewHTTPGenerator(autoreply.GeneratorConfig{
					APIBase: cfg.AutoReply.GeneratorURL,
					Timeout: time.Duration(cfg.AutoReply.TimeoutSeconds) * time.Second,
					Logger:  logger,
				})
				_, err := gen.Generate(ctx, "ping", "status probe")
				logger.Info("generator", "url", cfg.AutoReply.GeneratorURL, "reachable", err == nil)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get and set configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. backend.endpoint)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. backend.pollIntervalSeconds 10)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("config updated", "path", args[0], "value", args[1])
			return nil
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("campuschat", version)
		},
	}
}
