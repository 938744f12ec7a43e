package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"photobackup/pkg/cache"
	"photobackup/pkg/config"
	"photobackup/pkg/fileinfo"
	"photobackup/pkg/logger"
	"photobackup/pkg/reconcile"
	"photobackup/pkg/remote"
	"photobackup/pkg/shared"
	"photobackup/pkg/store"
	"photobackup/pkg/task"
	"photobackup/pkg/transfer"
)

// UI is what a front end supplies so the service can talk to the user.
type UI interface {
	Println(msg string)
	Errorln(msg string)
	Progress(msg string)
	Confirm(question string) (bool, error)
	// AskConfig returns the values to merge over current.
	AskConfig(current shared.Config) (shared.Config, error)
}

// Service wires the stores, the reconciliation engine and the executor
// behind a small command interface.
type Service struct {
	settings  *config.Settings
	fs        afero.Fs
	tool      remote.Tool
	cache     *cache.RemoteListingCache
	store     *store.ConfigStore
	engine    *reconcile.Engine
	executor  *transfer.Executor
	stop      *transfer.StopFlag
	logger    *logger.Logger
	dryRun    bool
	assumeYes bool

	engineOpts []reconcile.Option
}

type Option func(*Service)

func WithFs(fs afero.Fs) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

func WithTool(tool remote.Tool) Option {
	return func(s *Service) {
		s.tool = tool
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Service) {
		s.logger = log
	}
}

// WithDryRun computes and reports pending transfers without executing them.
func WithDryRun(dryRun bool) Option {
	return func(s *Service) {
		s.dryRun = dryRun
	}
}

// WithAssumeYes skips the upload confirmation.
func WithAssumeYes(yes bool) Option {
	return func(s *Service) {
		s.assumeYes = yes
	}
}

func WithEngineOptions(opts ...reconcile.Option) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

func NewService(settings *config.Settings, opts ...Option) (*Service, error) {
	s := &Service{
		settings: settings,
		fs:       afero.NewOsFs(),
		stop:     &transfer.StopFlag{},
		logger:   logger.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tool == nil {
		tool, err := remote.NewToolFactory().CreateRcloneBackend(&settings.Remote, s.logger)
		if err != nil {
			return nil, fmt.Errorf("create remote tool: %w", err)
		}
		s.tool = tool
	}

	fields := map[string]any{"tool_type": s.tool.GetToolType()}
	if desc, ok := s.tool.(fmt.Stringer); ok {
		fields["tool"] = desc.String()
	}
	s.logger.Debug("remote tool ready", fields)

	dateSource, err := fileinfo.ParseDateSource(settings.Scan.DateSource)
	if err != nil {
		return nil, err
	}

	s.cache = cache.NewRemoteListingCache(s.fs, settings.Paths.CacheFile, s.tool, s.logger)
	s.store = store.NewConfigStore(s.fs, settings.Paths.ConfigFile)

	engineOpts := append([]reconcile.Option{
		reconcile.WithDateSource(dateSource),
		reconcile.WithIncludeHidden(settings.Scan.IncludeHidden),
		reconcile.WithLogger(s.logger),
	}, s.engineOpts...)
	s.engine = reconcile.NewEngine(s.fs, s.cache, engineOpts...)

	s.executor = transfer.NewExecutor(s.fs, s.tool, s.cache,
		transfer.WithAppendOnError(settings.Remote.AppendOnError),
		transfer.WithLogger(s.logger),
	)

	return s, nil
}

// StopFlag is raised by the front end to stop a running transfer after the
// current item.
func (s *Service) StopFlag() *transfer.StopFlag {
	return s.stop
}

func (s *Service) HasCache() bool {
	return s.cache.IsPresent()
}

func (s *Service) HasConfig() bool {
	return s.store.IsPresent()
}

func (s *Service) ListCommands() []task.Command {
	return append([]task.Command(nil), task.Commands...)
}

// RunCommand runs the command named by its ID or its menu key.
func (s *Service) RunCommand(ctx context.Context, id task.CommandID, ui UI) (*task.Result, error) {
	cmd, ok := task.Lookup(string(id))
	if !ok {
		return nil, fmt.Errorf("unknown command %q", id)
	}
	id = cmd.ID

	startTime := time.Now()
	result := &task.Result{Command: id, DryRun: s.dryRun, Warnings: []string{}}

	var err error
	switch id {
	case task.CommandRefresh:
		err = s.refresh(ctx, ui, result)
	case task.CommandConfigure:
		err = s.configure(ui)
	case task.CommandSync:
		err = s.sync(ctx, ui, result, s.pendingPrimary)
	case task.CommandCopyDirs:
		err = s.sync(ctx, ui, result, s.pendingCopyDirs)
	case task.CommandAll:
		err = s.sync(ctx, ui, result, s.pendingAll)
	case task.CommandStatus:
		err = s.status(ctx, ui, result)
	default:
		return nil, fmt.Errorf("unknown command %q", id)
	}

	result.Duration = time.Since(startTime).String()
	return result, err
}

func (s *Service) refresh(ctx context.Context, ui UI, result *task.Result) error {
	ui.Println("Loading remote files...")
	entries, err := s.cache.Refresh(ctx)
	if err != nil {
		return err
	}
	result.CacheEntries = len(entries)
	ui.Println(fmt.Sprintf("Done! %d remote files cached.", len(entries)))
	return nil
}

func (s *Service) configure(ui UI) error {
	current := shared.Config{}
	loaded, err := s.store.Load()
	switch {
	case err == nil:
		current = *loaded
	case errors.Is(err, store.ErrConfigAbsent):
	default:
		return err
	}

	update, err := ui.AskConfig(current)
	if err != nil {
		return err
	}

	if err := s.store.Save(update); err != nil {
		return err
	}
	ui.Println("Configuration saved to " + s.store.Path())
	return nil
}

type pendingFunc func(ctx context.Context, cfg *shared.Config) ([]shared.PendingTransferItem, error)

func (s *Service) pendingPrimary(ctx context.Context, cfg *shared.Config) ([]shared.PendingTransferItem, error) {
	return s.engine.ComputePendingTransfers(ctx, cfg.Primary(), cfg.FileTypeFilter())
}

func (s *Service) pendingCopyDirs(ctx context.Context, cfg *shared.Config) ([]shared.PendingTransferItem, error) {
	return s.engine.ComputeCopyDirTransfers(ctx, cfg.CopyDirs)
}

// pendingAll plans both before anything runs; either failing aborts both.
func (s *Service) pendingAll(ctx context.Context, cfg *shared.Config) ([]shared.PendingTransferItem, error) {
	primary, err := s.pendingPrimary(ctx, cfg)
	if err != nil {
		return nil, err
	}
	copyDirs, err := s.pendingCopyDirs(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return append(primary, copyDirs...), nil
}

func (s *Service) sync(ctx context.Context, ui UI, result *task.Result, pending pendingFunc) error {
	cfg, err := s.engine.Validate(s.store)
	if err != nil {
		var verr *reconcile.ValidationError
		if errors.As(err, &verr) {
			for _, problem := range verr.Problems {
				ui.Errorln("Error: " + problem)
			}
		}
		return err
	}

	items, err := pending(ctx, cfg)
	if err != nil {
		if errors.Is(err, cache.ErrCacheAbsent) {
			ui.Errorln("Error: remote file cache not loaded, update it first")
		}
		return err
	}
	result.Pending = len(items)

	if len(items) == 0 {
		ui.Println("Everything is up to date.")
		return nil
	}

	if s.dryRun {
		for _, item := range items {
			ui.Println(describe(item))
		}
		ui.Println(fmt.Sprintf("Dry run: %d files would be transferred.", len(items)))
		return nil
	}

	if !s.assumeYes {
		ok, err := ui.Confirm(fmt.Sprintf("Do you want to upload %d files?", len(items)))
		if err != nil {
			return err
		}
		if !ok {
			result.Skipped = true
			return nil
		}
	}

	s.stop.Reset()
	report, err := s.executor.Execute(ctx, items, ui.Progress, s.stop.ShouldContinue)
	if report != nil {
		result.Processed = report.Processed
		result.RemoteCopied = report.RemoteCopied
		result.TargetCopied = report.TargetCopied
		result.Cancelled = report.Cancelled
		for _, w := range report.Warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", w.Source, w.Error))
			ui.Errorln(fmt.Sprintf("Warning: %s -> %s: %s", w.Source, w.Remote, w.Error))
		}
	}
	if errors.Is(err, context.Canceled) {
		ui.Errorln(fmt.Sprintf("Aborted after %d of %d files.", result.Processed, len(items)))
	}
	if err != nil {
		return err
	}

	if result.Cancelled {
		ui.Println(fmt.Sprintf("Stopped after %d of %d files.", result.Processed, len(items)))
	} else {
		ui.Println(fmt.Sprintf("Done! %d files processed.", result.Processed))
	}
	return nil
}

func (s *Service) status(ctx context.Context, ui UI, result *task.Result) error {
	ui.Println("Settings: state dir " + s.settings.Paths.StateDir)

	cfg, cfgErr := s.store.Load()
	switch {
	case cfgErr == nil:
		ui.Println(fmt.Sprintf("Source: %s", cfg.Source))
		ui.Println(fmt.Sprintf("Target: %s", cfg.Target))
		ui.Println(fmt.Sprintf("Remote dir: %s", cfg.RemoteDir))
		ui.Println(fmt.Sprintf("File types: %s", cfg.FileTypes))
		for _, d := range cfg.CopyDirs {
			ui.Println(fmt.Sprintf("Copy dir: %s -> %s, %s", d.Source, d.Target, d.RemoteDir))
		}
	case errors.Is(cfgErr, store.ErrConfigAbsent):
		ui.Println("No config found!")
	default:
		return cfgErr
	}

	entries, err := s.cache.Load()
	switch {
	case err == nil:
		result.CacheEntries = len(entries)
		ui.Println(fmt.Sprintf("Remote cache: %d files", len(entries)))
	case errors.Is(err, cache.ErrCacheAbsent):
		ui.Println("Remote cache: not loaded")
		return nil
	default:
		return err
	}

	if cfgErr != nil {
		return nil
	}
	if _, err := s.engine.Validate(s.store); err != nil {
		var verr *reconcile.ValidationError
		if errors.As(err, &verr) {
			for _, problem := range verr.Problems {
				ui.Errorln("Error: " + problem)
			}
			return nil
		}
		return err
	}

	primary, err := s.pendingPrimary(ctx, cfg)
	if err != nil {
		return err
	}
	copyDirs, err := s.pendingCopyDirs(ctx, cfg)
	if err != nil {
		return err
	}
	result.Pending = len(primary) + len(copyDirs)
	ui.Println(fmt.Sprintf("Pending: %d from source, %d from copy dirs", len(primary), len(copyDirs)))
	return nil
}

func describe(item shared.PendingTransferItem) string {
	msg := item.Source
	if item.NeedsRemote() {
		msg += " -> remote:" + item.RemoteDestination
	}
	if item.NeedsTarget() {
		msg += " -> " + item.TargetDestination
	}
	return msg
}
