package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cuemby/meridian/pkg/config"
	"github.com/cuemby/meridian/pkg/handler"
	"github.com/cuemby/meridian/pkg/metrics"
	"github.com/cuemby/meridian/pkg/policy"
	"github.com/cuemby/meridian/pkg/pool"
	"github.com/cuemby/meridian/pkg/processor"
	"github.com/cuemby/meridian/pkg/profile"
	"github.com/cuemby/meridian/pkg/queue"
	"github.com/cuemby/meridian/pkg/types"
	"github.com/spf13/cobra"

	"github.com/cuemby/meridian/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a processor against an in-memory cluster and drive load through it",
	RunE:  runBench,
}

func init() {
	runCmd.Flags().Int("hosts", 3, "Number of hosts in the simulated cluster")
	runCmd.Flags().Int("clients", 8, "Number of concurrent request producers")
	runCmd.Flags().Duration("duration", 30*time.Second, "How long to generate load before stopping")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics on")
	runCmd.Flags().Int("queue-capacity", 8192, "Processor request queue capacity")
}

func runBench(cmd *cobra.Command, args []string) error {
	hostCount, _ := cmd.Flags().GetInt("hosts")
	clients, _ := cmd.Flags().GetInt("clients")
	duration, _ := cmd.Flags().GetDuration("duration")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	queueCapacity, _ := cmd.Flags().GetInt("queue-capacity")

	logger := log.WithComponent("meridianbench")

	hosts := make([]*types.Host, 0, hostCount)
	hostMap := types.HostMap{}
	for i := 0; i < hostCount; i++ {
		h := &types.Host{
			Address:    types.Address{Host: fmt.Sprintf("10.0.0.%d", i+1), Port: 9042},
			State:      types.HostUp,
			Datacenter: "dc1",
			Rack:       fmt.Sprintf("rack%d", i%2),
		}
		hosts = append(hosts, h)
		hostMap[h.Address] = h
	}

	fake := pool.NewFake()
	for _, h := range hosts {
		if err := fake.Connect(cmd.Context(), h); err != nil {
			return fmt.Errorf("connect %s: %w", h.Address, err)
		}
	}

	settings := config.DefaultSettings()
	settings.QueueCapacity = queueCapacity

	defaultProfile := profile.New(settings.DefaultProfile, func() policy.LoadBalancingPolicy {
		return policy.NewRoundRobinPolicy()
	})

	proc := processor.New(processor.Params{
		PoolManager:    fake,
		Hosts:          hostMap,
		Settings:       settings,
		Rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
		Queue:          queue.New[*handler.RequestHandler](settings.QueueCapacity),
		DefaultProfile: defaultProfile,
		Profiles:       profile.Map{},
	})
	proc.Start()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

	var dispatched, failed atomic.Int64
	stopCh := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()
			for {
				select {
				case <-stopCh:
					return
				default:
				}

				done := make(chan struct{})
				h := handler.New("benchks", "select * from bench.table", "", func(err *handler.Error) {
					if err != nil {
						failed.Add(1)
					} else {
						dispatched.Add(1)
					}
					close(done)
				})
				// A rejected Enqueue completes h with ErrorQueueFull,
				// so the callback above has already counted the
				// failure and closed done.
				_ = proc.Enqueue(h)
				<-done
			}
		}(i)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	deadline := time.After(duration)

loop:
	for {
		select {
		case <-ticker.C:
			logger.Info().
				Int64("dispatched", dispatched.Load()).
				Int64("failed", failed.Load()).
				Interface("hosts_by_state", proc.HostCounts()).
				Msg("bench progress")
		case <-deadline:
			break loop
		case <-sigCh:
			break loop
		}
	}

	close(stopCh)
	wg.Wait()

	proc.Close()
	select {
	case <-proc.Closed():
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("processor did not close in time")
	}

	if err := srv.Close(); err != nil {
		logger.Warn().Err(err).Msg("metrics server close error")
	}

	fmt.Printf("dispatched=%d failed=%d\n", dispatched.Load(), failed.Load())
	return nil
}
