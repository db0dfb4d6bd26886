// Command raftd is a demo host that drives the raft engine over a TCP
// transport with a bbolt-backed store and an in-memory key/value state
// machine.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/daos-stack/raft"
	"github.com/daos-stack/raft/internal/metrics"
	"github.com/daos-stack/raft/internal/store"
	"github.com/daos-stack/raft/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "raftd",
		Short: "demo host for the daos-stack/raft consensus engine",
	}
	root.AddCommand(newServeCmd(), newStatusCmd(), newProposeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run a node, loading its configuration from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "raftd.yaml", "path to node config")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
		With().Timestamp().Uint64("node", cfg.NodeID).Logger()

	st, err := store.Open(filepath.Join(cfg.DataDir, "raft.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	trans := transport.New(cfg.NodeID, cfg.Peers)

	host := newHost(st, trans, log, cfg.SnapshotThreshold, cfg.TrailingLogs)

	raftCfg := raft.Config{
		ElectionTimeout:       cfg.ElectionTimeoutMS,
		RequestTimeout:        cfg.RequestTimeoutMS,
		LeaseMaintenanceGrace: cfg.LeaseMaintenanceGraceMS,
	}

	term, err := st.LoadTerm()
	if err != nil {
		return err
	}
	firstStart := term == 0
	server := raft.NewServer(cfg.NodeID, host, raftCfg, firstStart)
	host.server = server

	if voteID, voted, err := st.LoadVote(); err != nil {
		return err
	} else if voted {
		if err := server.RestoreVote(voteID); err != nil {
			return err
		}
	}
	if term > 0 {
		if err := server.RestoreTerm(term); err != nil {
			return err
		}
	}

	entries, err := st.LoadEntries()
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		if _, err := server.Log().Append(entries); err != nil {
			return errors.Wrap(err, "replay persisted log")
		}
	}

	for id := range cfg.Peers {
		if id != cfg.NodeID {
			server.AddNode(id, false)
		}
	}

	metr := metrics.New(prometheus.DefaultRegisterer, cfg.NodeID)

	go func() {
		if err := trans.Serve(cfg.Bind, host); err != nil {
			log.Error().Err(err).Msg("transport serve exited")
		}
	}()
	go host.tickLoop(time.Duration(cfg.TickIntervalMS)*time.Millisecond, metr)

	mux := host.newMux()
	httpSrv := &http.Server{Addr: cfg.HTTP, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server exited")
		}
	}()

	log.Info().Str("bind", cfg.Bind).Str("http", cfg.HTTP).Msg("raftd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	trans.Close()
	return httpSrv.Close()
}

func newStatusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "fetch a running node's status over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(addr + "/status")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var out bytes.Buffer
			if _, err := out.ReadFrom(resp.Body); err != nil {
				return err
			}
			fmt.Println(out.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "node's HTTP base address")
	return cmd
}

func newProposeCmd() *cobra.Command {
	var addr, key, value string
	var del bool
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "submit a key/value command to a running leader",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(proposeRequest{Key: key, Value: value, Delete: del})
			if err != nil {
				return err
			}
			resp, err := http.Post(addr+"/propose", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var out bytes.Buffer
			if _, err := out.ReadFrom(resp.Body); err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return errors.Errorf("propose failed (%s): %s", resp.Status, out.String())
			}
			fmt.Println(out.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "leader's HTTP base address")
	cmd.Flags().StringVar(&key, "key", "", "key to set or delete")
	cmd.Flags().StringVar(&value, "value", "", "value to set")
	cmd.Flags().BoolVar(&del, "delete", false, "delete key instead of setting it")
	return cmd
}
