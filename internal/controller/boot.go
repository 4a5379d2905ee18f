package controller

import (
	"context"

	"go.uber.org/zap"

	"rightblock/internal/models"
	"rightblock/internal/queue"
	"rightblock/internal/site"
)

// Version is written to the store; a different stored value resets the
// transient queues once
const Version = "2.1.0"

const disclaimer = "This tool blocks accounts on your behalf through the host's own UI. " +
	"Bulk blocking may trigger the host's rate limits or restrictions on your account. Continue?"

// Role is what a page becomes after boot
type Role int

// Role constants
const (
	RoleController Role = iota
	RoleWorker
)

func (r Role) String() string {
	if r == RoleWorker {
		return "worker"
	}
	return "controller"
}

// BootResult tells the caller how to set up the page
type BootResult struct {
	Role Role
	// ScannerEnabled is false until the disclaimer is accepted
	ScannerEnabled bool
	// Upgraded is set when the version reset ran
	Upgraded bool
}

// Boot checks the version marker and the host, then decides the page's role.
// Controllers must have the disclaimer accepted before scanning starts.
func Boot(ctx context.Context, st *queue.State, n Notifier, pageURL string, log *zap.Logger) (BootResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var res BootResult

	if err := site.CheckHost(pageURL); err != nil {
		return res, err
	}

	s := st.Store()
	if s.Get(ctx, models.KeyVersion, "") != Version {
		if err := st.ClearSelection(ctx); err != nil {
			return res, err
		}
		if err := s.Set(ctx, models.KeyVersion, Version); err != nil {
			return res, err
		}
		res.Upgraded = true
		log.Info("version changed, transient queues cleared", zap.String("version", Version))
	}

	if site.IsWorkerURL(pageURL) {
		res.Role = RoleWorker
		return res, nil
	}

	res.Role = RoleController
	if s.Get(ctx, models.KeyDisclaimer, "") == "true" {
		res.ScannerEnabled = true
		return res, nil
	}
	if n.Confirm(ctx, disclaimer) {
		if err := s.Set(ctx, models.KeyDisclaimer, "true"); err != nil {
			return res, err
		}
		res.ScannerEnabled = true
	}
	return res, nil
}
