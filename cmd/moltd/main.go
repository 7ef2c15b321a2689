// Command moltd is the Moltbook agent daemon: a cycle-based engagement
// engine plus the operator commands to inspect and steer it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/autonet-code/molt/internal/config"
	"github.com/autonet-code/molt/internal/dashboard"
	"github.com/autonet-code/molt/internal/engine"
	"github.com/autonet-code/molt/internal/generator"
	"github.com/autonet-code/molt/internal/health"
	"github.com/autonet-code/molt/internal/kpi"
	"github.com/autonet-code/molt/internal/moltbook"
	"github.com/autonet-code/molt/internal/persona"
	"github.com/autonet-code/molt/internal/queue"
	"github.com/autonet-code/molt/internal/reputation"
	"github.com/autonet-code/molt/internal/scheduler"
	"github.com/autonet-code/molt/internal/store"
)

const (
	interactionRetention = 90 * 24 * time.Hour
	activityRetention    = 30 * 24 * time.Hour
)

func main() {
	// Missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "moltd",
		Short:         "Moltbook agent daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		runCmd(),
		onceCmd(),
		statusCmd(),
		resetAPICmd(),
		markDownCmd(),
		queueCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Fatalf("[moltd] %v", err)
	}
}

// daemon bundles everything the run and once commands need.
type daemon struct {
	cfg     *config.Config
	client  *moltbook.Client
	store   *store.Store
	tracker *reputation.Tracker
	queue   *queue.Queue
	engine  *engine.Engine
	dataDir string
}

func buildDaemon() (*daemon, error) {
	cfg, err := config.LoadOrDefault()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}

	client, err := moltbook.NewClient()
	if err != nil {
		return nil, err
	}
	gen, err := generator.New(cfg.Generator.Model, cfg.Generator.MaxTokens)
	if err != nil {
		return nil, err
	}

	st, err := store.New(filepath.Join(dataDir, "molt.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tracker := reputation.NewTracker(st)
	interactions, err := st.InteractionsSince(time.Now().Add(-interactionRetention))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load interactions: %w", err)
	}
	tracker.Load(interactions)

	q := queue.New(filepath.Join(dataDir, "post_queue.json"))

	return &daemon{
		cfg:     cfg,
		client:  client,
		store:   st,
		tracker: tracker,
		queue:   q,
		engine:  engine.New(cfg, client, st, tracker, gen, q, dataDir),
		dataDir: dataDir,
	}, nil
}

func (d *daemon) close() {
	if err := d.store.Close(); err != nil {
		log.Printf("[moltd] close store: %v", err)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the service loop with dashboard, persona watcher, and maintenance jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDaemon()
			if err != nil {
				return err
			}
			defer d.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if d.cfg.Dashboard.Enabled {
				srv := dashboard.New(d.cfg.Dashboard.Port, d.queue, func() (any, error) {
					state, err := engine.LoadState(d.engine.StatePath())
					if err != nil {
						return nil, err
					}
					return state.Summary(), nil
				})
				if err := srv.Start(ctx); err != nil {
					return err
				}
				defer srv.Shutdown(context.Background())
			}

			watcher, err := persona.NewWatcher(d.cfg.Agent.PersonaDir, func(file string) {
				log.Printf("[moltd] persona file changed: %s", file)
				if err := d.store.LogActivity("persona_change", file); err != nil {
					log.Printf("[moltd] activity log: %v", err)
				}
			})
			if err != nil {
				return err
			}
			if err := watcher.Start(ctx); err != nil {
				log.Printf("[moltd] persona watcher: %v", err)
			} else {
				defer watcher.Stop()
			}

			sched, err := scheduler.New("Local")
			if err != nil {
				return err
			}
			if err := sched.AddDailyJob("kpi_snapshot", "00:10", func(ctx context.Context) error {
				_, err := kpi.Capture(ctx, d.client, d.store, d.tracker)
				return err
			}); err != nil {
				return err
			}
			if err := sched.AddDailyJob("prune", "00:20", func(ctx context.Context) error {
				if _, err := d.store.PruneInteractions(time.Now().Add(-interactionRetention)); err != nil {
					return err
				}
				_, err := d.store.PruneActivity(time.Now().Add(-activityRetention))
				return err
			}); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			log.Printf("[moltd] agent %q up, cycle interval %s", d.cfg.Agent.Name, d.cfg.Interval())
			err = d.engine.Serve(ctx)
			if err == context.Canceled {
				log.Printf("[moltd] shutting down")
				return nil
			}
			return err
		},
	}
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDaemon()
			if err != nil {
				return err
			}
			defer d.close()
			return d.engine.RunCycle(cmd.Context())
		},
	}
}

// statePath resolves the state document without building API clients, so
// operator commands work with no credentials in the environment.
func statePath() (string, error) {
	dataDir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "cycle_state.json"), nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the cycle state summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := statePath()
			if err != nil {
				return err
			}
			state, err := engine.LoadState(path)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(state.Summary(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func resetAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-api",
		Short: "Reset API health to unknown and clear failure history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutateHealth(func(m *health.Monitor, s *health.APIState) {
				m.Reset(s)
			}, "API health reset to unknown")
		},
	}
}

func markDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-down",
		Short: "Force API health to down (known outage)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutateHealth(func(m *health.Monitor, s *health.APIState) {
				m.ForceDown(s)
			}, "API health forced to down")
		},
	}
}

func mutateHealth(mutate func(*health.Monitor, *health.APIState), done string) error {
	cfg, err := config.LoadOrDefault()
	if err != nil {
		return err
	}
	path, err := statePath()
	if err != nil {
		return err
	}
	state, err := engine.LoadState(path)
	if err != nil {
		return err
	}
	monitor := health.NewMonitor(cfg.Health.FailureThreshold, cfg.ProbeInterval())
	mutate(monitor, &state.API)
	if err := state.Save(path); err != nil {
		return err
	}
	fmt.Println(done)
	return nil
}

func queueCmd() *cobra.Command {
	openQueue := func() (*queue.Queue, error) {
		dataDir, err := config.DataDir()
		if err != nil {
			return nil, err
		}
		return queue.New(filepath.Join(dataDir, "post_queue.json")), nil
	}

	root := &cobra.Command{
		Use:   "queue",
		Short: "Manage the operator post queue",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List queued posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue()
			if err != nil {
				return err
			}
			posts, err := q.List()
			if err != nil {
				return err
			}
			if len(posts) == 0 {
				fmt.Println("queue is empty")
				return nil
			}
			for i, p := range posts {
				fmt.Printf("%d: [%s] %s\n", i, p.Submolt, p.Title)
			}
			return nil
		},
	}

	var submolt string
	add := &cobra.Command{
		Use:   "add <title> <content>",
		Short: "Queue a post for the next open post slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue()
			if err != nil {
				return err
			}
			n, err := q.Add(queue.Post{Title: args[0], Content: args[1], Submolt: submolt})
			if err != nil {
				return err
			}
			fmt.Printf("queued (%d pending)\n", n)
			return nil
		},
	}
	add.Flags().StringVar(&submolt, "submolt", "", "target submolt (defaults to the agent's home)")

	remove := &cobra.Command{
		Use:   "remove <index>",
		Short: "Remove a queued post by index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			q, err := openQueue()
			if err != nil {
				return err
			}
			if err := q.Remove(index); err != nil {
				return err
			}
			fmt.Println("removed")
			return nil
		},
	}

	root.AddCommand(list, add, remove)
	return root
}
