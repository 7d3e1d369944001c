// Package registry implements the node registry operations on top of a
// store.Store: check-ins, aggregate stats, recent logs, listing and full
// replacement of the registry document.
package registry

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vortunix/noderegistry/internal/model"
	"github.com/vortunix/noderegistry/internal/store"
)

var ErrNodeNotFound = errors.New("node not found")

// RecentLogsLimit caps the flattened log feed.
const RecentLogsLimit = 20

// TimeFormat is the layout of LogEntry.Time.
const TimeFormat = "15:04:05"

// Zone is the civil zone check-in times are recorded in (UTC+7).
var Zone = time.FixedZone("WIB", 7*60*60)

type CommitMode string

const (
	// CommitAsync answers a check-in before its commit is written.
	CommitAsync CommitMode = "async"
	// CommitSync waits for the commit and reports whether it was persisted.
	CommitSync CommitMode = "sync"
)

type Options struct {
	Mode          CommitMode
	QueueSize     int
	CommitTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store     store.Store
	committer *Committer
	mode      CommitMode
	timeout   time.Duration
	now       func() time.Time
	log       *logrus.Entry
}

type CheckInResult struct {
	Bot model.Bot
	// Persisted is nil when the commit was handed to the background
	// committer.
	Persisted *bool
}

func NewService(st store.Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = 30 * time.Second
	}
	if opts.Mode != CommitSync {
		opts.Mode = CommitAsync
	}
	s := &Service{
		store:   st,
		mode:    opts.Mode,
		timeout: opts.CommitTimeout,
		now:     opts.Now,
		log:     logrus.WithField("component", "registry"),
	}
	if s.mode == CommitAsync {
		s.committer = NewCommitter(st, opts.QueueSize, opts.CommitTimeout)
	}
	return s
}

// Close drains pending background commits.
func (s *Service) Close(ctx context.Context) error {
	if s.committer == nil {
		return nil
	}
	return s.committer.Close(ctx)
}

// CheckIn records a ping from the node holding token. The first bot with a
// matching token gets a new log entry at the head of its log; the whole
// registry is then committed with the message "Ping <owner>".
func (s *Service) CheckIn(ctx context.Context, token, ip string) (CheckInResult, error) {
	reg, err := s.store.Load(ctx)
	if err != nil {
		return CheckInResult{}, err
	}
	idx := reg.Find(token)
	if idx < 0 {
		return CheckInResult{}, ErrNodeNotFound
	}

	bot := &reg[idx]
	bot.PrependLog(model.LogEntry{
		Time:   s.now().In(Zone).Format(TimeFormat),
		Status: bot.Status,
		IP:     ip,
	})
	message := "Ping " + bot.OwnerName
	result := CheckInResult{Bot: *bot}

	if s.mode == CommitSync {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		persisted := true
		if err := s.store.Save(ctx, reg, message); err != nil {
			s.log.WithError(err).WithField("owner", bot.OwnerName).Warn("check-in commit failed")
			persisted = false
		}
		result.Persisted = &persisted
		return result, nil
	}

	s.committer.Submit(reg, message)
	return result, nil
}

// Stats counts bots per recognised status. Bots with any other status are
// counted in Total and Other.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	reg, err := s.store.Load(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	stats := model.Stats{Total: len(reg)}
	for _, b := range reg {
		switch b.Status {
		case model.StatusActive:
			stats.Active++
		case model.StatusBanned:
			stats.Banned++
		case model.StatusNonactive:
			stats.Nonactive++
		default:
			stats.Other++
		}
	}
	return stats, nil
}

// RecentLogs flattens every bot's log, newest time string first, capped at
// RecentLogsLimit. Times are compared as plain strings so entries from
// different days interleave by clock time only.
func (s *Service) RecentLogs(ctx context.Context) ([]model.AnnotatedLog, error) {
	reg, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	var logs []model.AnnotatedLog
	for _, b := range reg {
		for _, l := range b.Logs {
			logs = append(logs, model.AnnotatedLog{
				Time:   l.Time,
				Status: l.Status,
				IP:     l.IP,
				Name:   b.OwnerName,
				Number: b.Number,
			})
		}
	}
	slices.SortStableFunc(logs, func(a, b model.AnnotatedLog) int {
		return strings.Compare(b.Time, a.Time)
	})
	if len(logs) > RecentLogsLimit {
		logs = logs[:RecentLogsLimit]
	}
	return logs, nil
}

func (s *Service) List(ctx context.Context) (model.Registry, error) {
	return s.store.Load(ctx)
}

// Sync replaces the stored registry with reg as given.
func (s *Service) Sync(ctx context.Context, reg model.Registry, action string) error {
	if err := s.store.Save(ctx, reg, action); err != nil {
		s.log.WithError(err).WithField("action", action).Warn("sync commit failed")
		return err
	}
	s.log.WithFields(logrus.Fields{"action": action, "bots": len(reg)}).Info("registry synced")
	return nil
}
