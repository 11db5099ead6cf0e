package sweeper

import (
	"context"
	"os"
	"syscall"

	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
	"parkease-api-go/internal/api/middleware"
)

// Run sweeps until ctx is cancelled. With leader election enabled it first
// campaigns for the Lease and sweeps only while holding it.
// This method blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.config.LeaderElectionEnabled || s.k8sClient == nil {
		s.logger.Info("Leader election disabled, sweeping as leader directly")
		s.setLeader(true)
		defer s.setLeader(false)
		return s.runLeaderWorkload(ctx)
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      s.config.LeaderElectionLockName,
			Namespace: s.config.LeaderElectionNamespace,
		},
		Client: s.k8sClient.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: s.config.PodName,
		},
	}

	s.logger.Info("Starting leader election",
		zap.String("lock_name", s.config.LeaderElectionLockName),
		zap.String("namespace", s.config.LeaderElectionNamespace),
		zap.String("pod_name", s.config.PodName),
	)

	leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
		Lock:            lock,
		ReleaseOnCancel: true,
		LeaseDuration:   s.config.LeaderElectionDuration,
		RenewDeadline:   s.config.LeaderElectionRenewDeadline,
		RetryPeriod:     s.config.LeaderElectionRetryPeriod,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				s.logger.Info("Acquired leadership, starting expiry sweeper")
				s.setLeader(true)
				if err := s.runLeaderWorkload(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error("Leader workload failed", zap.Error(err))
				}
			},
			OnStoppedLeading: func() {
				s.setLeader(false)
				if ctx.Err() != nil {
					s.logger.Info("Released leadership on shutdown")
					return
				}
				s.logger.Warn("Lost leadership, stopping expiry sweeper")
				s.onLostLeadership()
			},
			OnNewLeader: func(identity string) {
				if identity == s.config.PodName {
					return
				}
				s.logger.Info("Leader elected", zap.String("leader", identity))
			},
		},
	})

	return ctx.Err()
}

func (s *Sweeper) setLeader(v bool) {
	s.isLeader.Store(v)
	if v {
		middleware.LeaderStatus.Set(1)
	} else {
		middleware.LeaderStatus.Set(0)
	}
}

// signalShutdown asks the process to exit so the replica restarts and
// rejoins the election cleanly.
func signalShutdown() {
	process, _ := os.FindProcess(os.Getpid())
	if process != nil {
		_ = process.Signal(syscall.SIGTERM)
	}
}
