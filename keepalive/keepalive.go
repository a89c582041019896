// Package keepalive implements the Keep-Alive component (C8): a
// long-lived task that periodically touches every configured share mount
// root so the OS doesn't drop idle SMB/NFS handles.
package keepalive

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/eleven-am/compilation-orchestrator/config"
	"github.com/eleven-am/compilation-orchestrator/log"
)

// Run blocks, listing every root in roots every config.KeepAliveInterval
// until ctx is cancelled. Listing failures are swallowed — the purpose
// is to refresh handles, not to report.
func Run(ctx context.Context, roots []string) {
	ticker := time.NewTicker(config.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			touchAll(roots)
		}
	}
}

func touchAll(roots []string) {
	var wg sync.WaitGroup
	for _, root := range roots {
		root := root
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := os.ReadDir(root); err != nil {
				log.LogNoRequestID("keep-alive list failed", "root", root, "err", err)
			}
		}()
	}
	wg.Wait()
}
