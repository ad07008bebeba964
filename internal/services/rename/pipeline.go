package rename

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"renamebot/internal/domain/preferences"
	"renamebot/internal/domain/rename"
	"renamebot/internal/metrics"
	"renamebot/pkg/errors"
	"renamebot/pkg/progress"
)

// milestones trigger a congratulation message when the rename counter hits them
var milestones = map[int64]bool{10: true, 50: true, 100: true, 500: true, 1000: true}

// WorkspacePrefix starts the name of every transfer directory under the temp root
const WorkspacePrefix = "rename-"

// workspace is the scoped temporary directory of one transfer
type workspace struct {
	dir string
}

func newWorkspace(parent string, s *Session) (*workspace, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return nil, errors.Wrap(err, "create temp root")
		}
	}
	dir, err := os.MkdirTemp(parent, WorkspacePrefix+s.ID.String()[:8]+"-")
	if err != nil {
		return nil, errors.Wrap(err, "create workspace")
	}
	return &workspace{dir: dir}, nil
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

func (w *workspace) release() error {
	return os.RemoveAll(w.dir)
}

// transfer carries per-run state through the pipeline steps
type transfer struct {
	session   *Session
	snap      Snapshot
	prefs     *preferences.Preferences
	ws        *workspace
	source    string
	thumb     string
	caption   string
	bold      bool
	outcome   rename.Outcome
	startedAt time.Time
}

// runPipeline downloads, transforms and uploads the file. The workspace is
// removed and the session released whatever the outcome.
func (o *Orchestrator) runPipeline(ctx context.Context, s *Session) (*Result, error) {
	defer o.registry.Release(s)

	snap := s.Snapshot()
	t := &transfer{
		session:   s,
		snap:      snap,
		prefs:     o.loadPreferences(ctx, snap.Key.UserID),
		startedAt: o.now(),
		outcome: rename.Outcome{
			SessionID:    s.ID,
			ChatID:       snap.Key.ChatID,
			UserID:       snap.Key.UserID,
			Kind:         snap.File.Kind(),
			Format:       snap.Format,
			OriginalName: snap.File.Name,
			FinalName:    snap.ChosenFilename,
			Size:         snap.File.Size,
		},
	}

	log := o.log.With("session_id", s.ID, "chat_id", snap.Key.ChatID, "user_id", snap.Key.UserID)
	log.Infow("Transfer started", "format", snap.Format, "file_name", snap.ChosenFilename)

	err := o.execute(ctx, t)

	state := s.finish(err)
	final := s.Snapshot()
	t.outcome.Duration = o.now().Sub(t.startedAt)
	t.outcome.FinishedAt = o.now().UTC()

	// notifications and bookkeeping must not be cut short by a cancelled transfer
	nctx := context.WithoutCancel(ctx)

	switch {
	case state == rename.StateCancelled || state == rename.StateExpired:
		t.outcome.Status = rename.OutcomeCancelled
		err = rename.ErrTransferCancelled
		log.Infow("Transfer cancelled", "state", state)
		if notifyErr := o.notifier.SendCancelled(nctx, final); notifyErr != nil {
			log.Warnw("Failed to report cancellation", "error", notifyErr)
		}

	case err != nil:
		t.outcome.Status = rename.OutcomeFailed
		t.outcome.Error = err.Error()
		var failed *rename.TransferFailed
		if errors.As(err, &failed) {
			t.outcome.FailedStage = failed.Stage
		}
		log.Errorw("Transfer failed", "error", err)
		if notifyErr := o.notifier.SendFailure(nctx, final, err); notifyErr != nil {
			log.Warnw("Failed to report failure", "error", notifyErr)
		}

	default:
		t.outcome.Status = rename.OutcomeSucceeded
		log.Infow("Transfer completed", "duration", t.outcome.Duration)
		if notifyErr := o.notifier.SendResult(nctx, final); notifyErr != nil {
			log.Warnw("Failed to report result", "error", notifyErr)
		}
		o.countRename(nctx, snap.Key)
	}

	metrics.RenameOutcomes.WithLabelValues(string(t.outcome.Status), string(snap.Format)).Inc()
	o.record(nctx, t.outcome)

	return &Result{Session: final, Outcome: t.outcome}, err
}

// execute runs the steps. Only download and upload failures are fatal.
func (o *Orchestrator) execute(ctx context.Context, t *transfer) error {
	ws, err := newWorkspace(o.cfg.TempDir, t.session)
	if err != nil {
		return rename.NewTransferFailed(rename.StageDownload, err)
	}
	t.ws = ws
	defer func() {
		if err := ws.release(); err != nil {
			o.log.Warnw("Failed to remove workspace", "dir", ws.dir, "error", err)
		}
	}()

	if err := o.download(ctx, t); err != nil {
		return err
	}
	if err := o.checkpoint(ctx, t.session); err != nil {
		return err
	}

	o.applyMetadata(ctx, t)
	if err := o.checkpoint(ctx, t.session); err != nil {
		return err
	}

	o.resolveCaption(t)
	o.resolveThumbnail(ctx, t)
	if err := o.checkpoint(ctx, t.session); err != nil {
		return err
	}

	return o.upload(ctx, t)
}

func (o *Orchestrator) download(ctx context.Context, t *transfer) error {
	_, ext := rename.SplitExtension(rename.SanitizeFilename(t.snap.File.Name))
	if ext == "" {
		ext = rename.DefaultExtension(t.snap.File.Kind())
	}
	t.source = t.ws.path("download" + ext)

	sctx, cancel := o.stepContext(ctx)
	defer cancel()

	tracker := o.newTracker(sctx, t, rename.StageDownload)
	start := o.now()
	err := o.transport.Download(sctx, t.snap.File, t.source, tracker)
	if err == nil {
		tracker.Complete()
	}
	metrics.RecordStage(string(rename.StageDownload), o.now().Sub(start), tracker.State().Done, err)

	if err != nil {
		return o.stepError(t.session, rename.StageDownload, err)
	}
	return nil
}

// applyMetadata embeds author and title when enabled. Any failure keeps the
// untouched download.
func (o *Orchestrator) applyMetadata(ctx context.Context, t *transfer) {
	meta := t.prefs.Metadata
	if !meta.Active() {
		return
	}
	if o.transform == nil || !o.transform.IsAvailable() {
		metrics.MetadataTransforms.WithLabelValues("unavailable").Inc()
		o.log.Infow("Metadata transform unavailable, skipping", "session_id", t.session.ID)
		return
	}

	_, ext := rename.SplitExtension(t.source)
	tmp := t.ws.path("transformed" + ext)

	sctx, cancel := o.stepContext(ctx)
	defer cancel()

	start := o.now()
	err := o.transform.ApplyMetadata(sctx, t.source, tmp, meta)
	if err == nil {
		err = os.Rename(tmp, t.source)
	}
	metrics.RecordStage(string(rename.StageTransform), o.now().Sub(start), 0, err)
	t.session.Touch(o.now())

	if err != nil {
		_ = os.Remove(tmp)
		metrics.MetadataTransforms.WithLabelValues("failed").Inc()
		o.log.Warnw("Metadata transform failed, uploading original download",
			"session_id", t.session.ID,
			"error", rename.NewTransferFailed(rename.StageTransform, err),
		)
		return
	}

	metrics.MetadataTransforms.WithLabelValues("applied").Inc()
	t.outcome.MetadataApplied = true
}

func (o *Orchestrator) resolveCaption(t *transfer) {
	attrs := t.snap.File.Attributes()
	if info, err := os.Stat(t.source); err == nil {
		attrs.FileSize = info.Size()
	}

	if !t.prefs.HasCaption() {
		t.caption = t.snap.ChosenFilename
		t.bold = true
		return
	}

	caption, err := rename.FormatCaption(t.prefs.CaptionTemplate, rename.CaptionValues(t.snap.ChosenFilename, attrs))
	if err != nil {
		o.log.Warnw("Caption template not fully resolved, using it verbatim",
			"session_id", t.session.ID,
			"error", err,
		)
	}
	t.caption = caption
}

// resolveThumbnail fetches the stored thumbnail; failures only drop it
func (o *Orchestrator) resolveThumbnail(ctx context.Context, t *transfer) {
	if !t.prefs.HasThumbnail() {
		return
	}

	path := t.ws.path("thumb.jpg")

	sctx, cancel := o.stepContext(ctx)
	defer cancel()

	if err := o.transport.DownloadThumbnail(sctx, t.prefs.ThumbnailRef, path); err != nil {
		_ = os.Remove(path)
		o.log.Warnw("Thumbnail unavailable, uploading without it",
			"session_id", t.session.ID,
			"error", err,
		)
		return
	}

	t.thumb = path
	t.outcome.ThumbnailUsed = true
}

func (o *Orchestrator) upload(ctx context.Context, t *transfer) error {
	attrs := t.snap.File.Attributes()
	attrs.FileName = t.snap.ChosenFilename
	if info, err := os.Stat(t.source); err == nil {
		attrs.FileSize = info.Size()
	}

	sctx, cancel := o.stepContext(ctx)
	defer cancel()

	tracker := o.newTracker(sctx, t, rename.StageUpload)
	start := o.now()
	err := o.transport.Upload(sctx, UploadRequest{
		ChatID:           t.snap.Key.ChatID,
		ReplyToMessageID: t.snap.MessageID,
		Path:             t.source,
		Filename:         t.snap.ChosenFilename,
		Caption:          t.caption,
		BoldCaption:      t.bold,
		ThumbnailPath:    t.thumb,
		Format:           t.snap.Format,
		Attributes:       attrs,
	}, tracker)
	if err == nil {
		tracker.Complete()
	}
	metrics.RecordStage(string(rename.StageUpload), o.now().Sub(start), tracker.State().Done, err)

	if err != nil {
		return o.stepError(t.session, rename.StageUpload, err)
	}
	return nil
}

// newTracker reports progress to the notifier and runs the cooperative
// cancellation check before every report
func (o *Orchestrator) newTracker(ctx context.Context, t *transfer, stage rename.Stage) *progress.Tracker {
	emit := func(ev progress.Event) {
		if err := o.notifier.ReportProgress(ctx, t.session.Snapshot(), ev); err != nil {
			o.log.Debugw("Progress update failed", "session_id", t.session.ID, "stage", stage, "error", err)
		}
	}
	check := func() error {
		if err := t.session.checkActive(o.now()); err != nil {
			return err
		}
		return ctx.Err()
	}
	return progress.NewTracker(string(stage), emit,
		progress.WithInterval(o.cfg.ProgressInterval),
		progress.WithCheck(check),
		progress.WithClock(o.now),
	)
}

// checkpoint is the cancellation check between steps
func (o *Orchestrator) checkpoint(ctx context.Context, s *Session) error {
	if err := s.checkActive(o.now()); err != nil {
		return err
	}
	return ctx.Err()
}

// stepError keeps cancellation distinguishable from a failed step
func (o *Orchestrator) stepError(s *Session, stage rename.Stage, err error) error {
	if s.State() != rename.StateTransferring {
		return rename.ErrTransferCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = errors.Wrapf(errors.ErrTimeout, "%s exceeded %s", stage, o.cfg.StepTimeout)
	}
	return rename.NewTransferFailed(stage, err)
}

func (o *Orchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.StepTimeout)
}

// countRename increments the usage counter and congratulates on milestones
func (o *Orchestrator) countRename(ctx context.Context, key rename.Key) {
	if o.preferences == nil {
		return
	}

	count, err := o.preferences.IncrementRenameCount(ctx, key.UserID)
	if err != nil {
		o.log.Warnw("Failed to increment rename count", "user_id", key.UserID, "error", err)
		return
	}

	if milestones[count] {
		if err := o.notifier.SendMilestone(ctx, key.ChatID, count); err != nil {
			o.log.Debugw("Failed to send milestone", "user_id", key.UserID, "error", err)
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, outcome rename.Outcome) {
	for _, sink := range o.sinks {
		if err := sink.Record(ctx, outcome); err != nil {
			o.log.Warnw("Failed to record rename outcome", "session_id", outcome.SessionID, "error", err)
		}
	}
}
