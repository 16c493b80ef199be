package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Snapshot writes the page html and a screenshot into dir for offline
// debugging. Failures are logged, never returned.
func Snapshot(ctx context.Context, p Page, dir, name string, log *zap.Logger) {
	if p == nil || dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		log.Warn("create debug dir", zap.String("dir", dir), zap.Error(err))
		return
	}

	base := filepath.Join(dir, fmt.Sprintf("%s-%s", name, time.Now().Format("20060102-150405")))

	if html, err := p.HTML(ctx); err == nil {
		if err := os.WriteFile(base+".html", []byte(html), 0600); err != nil {
			log.Warn("write html snapshot", zap.Error(err))
		}
	}
	if png, err := p.Screenshot(ctx); err == nil && len(png) > 0 {
		if err := os.WriteFile(base+".png", png, 0600); err != nil {
			log.Warn("write screenshot", zap.Error(err))
		}
	}
	log.Info("📸 Saved debug snapshot", zap.String("path", base))
}
