package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Menzorg/rugpt/agent"
	"github.com/Menzorg/rugpt/calendar"
	"github.com/Menzorg/rugpt/internal/logutil"
	"github.com/Menzorg/rugpt/internal/metrics"
	"github.com/Menzorg/rugpt/notify"
	"github.com/Menzorg/rugpt/notify/email"
	"github.com/Menzorg/rugpt/notify/telegram"
	"github.com/Menzorg/rugpt/providers/ollama"
	"github.com/Menzorg/rugpt/roles"
	"github.com/Menzorg/rugpt/scheduler"
	"github.com/Menzorg/rugpt/store/rolefile"
	"github.com/Menzorg/rugpt/store/sqlite"
	"github.com/Menzorg/rugpt/tools"
	"github.com/Menzorg/rugpt/tools/builtin"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the role engine: scheduler, notifier, and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			store, err := sqlite.Open(viper.GetString("data_dir"))
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer store.Close()

			roleStore := store.Roles()
			if rolesFile := strings.TrimSpace(viper.GetString("roles_file")); rolesFile != "" {
				seed, err := rolefile.Load(rolesFile)
				if err != nil {
					return fmt.Errorf("loading roles file: %w", err)
				}
				if err := rolefile.Seed(cmd.Context(), roleStore, seed); err != nil {
					return err
				}
				logger.Info("roles_seeded", "file", rolesFile, "count", len(seed))
			}

			client := ollama.New(viper.GetString("llm.endpoint"), viper.GetDuration("llm.request_timeout"))
			prompts := roles.NewPromptCache(viper.GetString("prompts_dir"), logger)
			events := calendar.NewService(store.Events(), logger)

			registry := tools.NewRegistry()
			if viper.GetBool("tools.web_search.enabled") {
				registry.Register(builtin.NewWebSearchTool(
					viper.GetString("tools.web_search.base_url"),
					viper.GetDuration("tools.web_search.timeout"),
					viper.GetInt("tools.web_search.max_results"),
				))
			}
			registry.Register(builtin.NewRagSearchTool())
			registry.Register(builtin.NewCalendarCreateTool(events))
			registry.Register(builtin.NewCalendarQueryTool(events))

			executor := agent.NewExecutor(client, prompts, registry, viper.GetString("llm.model"),
				agent.WithLogger(logger))
			registry.Register(builtin.NewRoleCallTool(roleStore, executor))
			logger.Info("tools_registered", "tools", registry.ToolNames())

			notifier := notify.NewService(store.Channels(), store.Logs(), logger)
			if token := strings.TrimSpace(viper.GetString("telegram.bot_token")); token != "" {
				notifier.RegisterSender(telegram.NewSender(token,
					viper.GetString("telegram.base_url"),
					viper.GetDuration("telegram.timeout"), logger))
			}
			if host := strings.TrimSpace(viper.GetString("smtp.host")); host != "" {
				notifier.RegisterSender(email.NewSender(host,
					viper.GetInt("smtp.port"),
					viper.GetString("smtp.username"),
					viper.GetString("smtp.password"),
					viper.GetString("smtp.from")))
			}

			sched := scheduler.New(events, roleStore, executor, notifier,
				scheduler.WithInterval(viper.GetDuration("scheduler.interval")),
				scheduler.WithConcurrency(viper.GetInt("scheduler.concurrency")),
				scheduler.WithLogger(logger))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if viper.GetBool("scheduler.enabled") {
				if err := sched.Start(ctx); err != nil {
					return err
				}
			} else {
				logger.Info("scheduler_disabled")
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintf(w, "ok scheduler=%s prompts_cached=%d\n", sched.State(), prompts.CachedCount())
			})
			mux.HandleFunc("/admin/tools", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
				fmt.Fprint(w, registry.FormatToolDescriptions())
			})
			mux.HandleFunc("/admin/prompts", func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodDelete {
					prompts.Invalidate(r.URL.Query().Get("file"))
					w.WriteHeader(http.StatusNoContent)
					return
				}
				for _, f := range prompts.CachedFiles() {
					fmt.Fprintln(w, f)
				}
			})
			addr := net.JoinHostPort(viper.GetString("server.bind"), fmt.Sprintf("%d", viper.GetInt("server.port")))
			srv := &http.Server{Addr: addr, Handler: mux}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http_listen", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutdown_signal")
			case err := <-errCh:
				stop()
				logger.Error("http_server_error", "error", err.Error())
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := sched.Stop(shutdownCtx); err != nil {
				logger.Error("scheduler_stop_error", "error", err.Error())
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http_shutdown_error", "error", err.Error())
			}
			return nil
		},
	}

	cmd.Flags().String("data-dir", "", "Directory for the SQLite database (defaults to ./data).")
	cmd.Flags().String("roles-file", "", "YAML role seed file applied at startup.")
	_ = viper.BindPFlag("data_dir", cmd.Flags().Lookup("data-dir"))
	_ = viper.BindPFlag("roles_file", cmd.Flags().Lookup("roles-file"))

	return cmd
}
