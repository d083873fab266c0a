package app

import (
	"context"
	"time"

	"mirror-go/internal/mirror"
)

// Watch polls the data directory every interval and schedules a backup
// after delay whenever it changed. Bursts of changes collapse into one
// backup. It returns when ctx is done, after any running backup finished.
func (a *MirrorApp) Watch(ctx context.Context, delay, interval time.Duration) error {
	last, err := a.service.Mirror().Fingerprint(a.cfg.DataDir)
	if err != nil {
		return err
	}
	a.logger.Info("watching", "path", a.cfg.DataDir, "delay", delay, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.service.CancelScheduledBackup()
			a.service.WaitScheduled()
			return nil
		case <-ticker.C:
			last = a.poll(last, delay)
		}
	}
}

// poll compares the data directory against last and schedules a backup if
// it changed. It returns the fingerprint to compare against next time.
func (a *MirrorApp) poll(last mirror.Fingerprint, delay time.Duration) mirror.Fingerprint {
	fp, err := a.service.Mirror().Fingerprint(a.cfg.DataDir)
	if err != nil {
		a.logger.Warn("fingerprinting data failed", "error", err)
		return last
	}
	if fp == last {
		return last
	}
	a.logger.Debug("data changed", "entries", fp.Entries, "bytes", fp.Bytes)
	a.service.ScheduleBackup(delay)
	return fp
}
