// Package install downloads, verifies and installs packages.
//
// PluginInstaller runs the single-file plugin transaction: the payload is
// downloaded to a temp directory, checked against its declared sha256 and
// signature, and only then copied over the previous installation, which is
// kept aside until the copy succeeds. SceneInstaller fetches a manifest and
// its resources into a versioned directory and validates them afterwards.
package install

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniquestream/packagekit/pkg/integrity"
	"github.com/uniquestream/packagekit/pkg/ledger"
	"github.com/uniquestream/packagekit/pkg/logging"
	packagetypes "github.com/uniquestream/packagekit/pkg/package"
	"github.com/uniquestream/packagekit/pkg/storage"
)

// backupTimeLayout is the UTC yyyyMMddHHmmss suffix of backup directories.
const backupTimeLayout = "20060102150405"

// Fetcher downloads a URL. A non-empty bearerToken is sent as an
// Authorization header.
type Fetcher interface {
	Fetch(ctx context.Context, url, bearerToken string) ([]byte, error)
}

// Transaction is the record of one plugin install.
type Transaction struct {
	ID      string
	Request packagetypes.InstallRequest

	TempDir  string
	TempPath string

	// Hash is the verified sha256 of the payload
	Hash string

	Destination string

	// BackupPath is empty when there was no previous installation
	BackupPath string

	// InstalledPath is the payload file inside Destination
	InstalledPath string

	Phase Phase
}

// PluginInstaller installs plugin packages under a plugins root.
type PluginInstaller struct {
	fetcher     Fetcher
	pluginsRoot string
	tempRoot    string

	fs     FS
	now    func() time.Time
	ledger *ledger.Ledger
	stats  *Statistics
	logger *zap.Logger
}

// PluginOption configures a PluginInstaller.
type PluginOption func(*PluginInstaller)

// WithFS replaces the filesystem used for backup, staging and rollback.
func WithFS(fs FS) PluginOption {
	return func(p *PluginInstaller) {
		p.fs = fs
	}
}

// WithClock sets the time source for backup directory names.
func WithClock(now func() time.Time) PluginOption {
	return func(p *PluginInstaller) {
		p.now = now
	}
}

// WithLedger records committed installs.
func WithLedger(l *ledger.Ledger) PluginOption {
	return func(p *PluginInstaller) {
		p.ledger = l
	}
}

// WithStatistics shares a statistics collector.
func WithStatistics(s *Statistics) PluginOption {
	return func(p *PluginInstaller) {
		p.stats = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) PluginOption {
	return func(p *PluginInstaller) {
		p.logger = logging.OrNop(l)
	}
}

// NewPluginInstaller creates an installer writing to pluginsRoot and using
// tempRoot for downloads.
func NewPluginInstaller(fetcher Fetcher, pluginsRoot, tempRoot string, opts ...PluginOption) *PluginInstaller {
	p := &PluginInstaller{
		fetcher:     fetcher,
		pluginsRoot: pluginsRoot,
		tempRoot:    tempRoot,
		fs:          OSFS{},
		now:         time.Now,
		stats:       NewStatistics(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Statistics returns the collector this installer reports to.
func (p *PluginInstaller) Statistics() *Statistics {
	return p.stats
}

// Install downloads, verifies and installs req. The returned Transaction is
// never nil and reports the phase the install ended in.
//
// Failures before staging leave <pluginsRoot>/<id> untouched. A staging
// failure returns a *TransactionError after moving the previous installation
// back; if that restore fails too the error is fatal (see IsFatal). The
// context is consulted up to the start of staging, after which the
// transaction runs to completion.
func (p *PluginInstaller) Install(ctx context.Context, req packagetypes.InstallRequest, bearerToken string) (*Transaction, error) {
	txn := &Transaction{
		ID:      uuid.NewString(),
		Request: req,
		Phase:   PhaseIdle,
	}
	log := p.logger.With(
		zap.String("txn", txn.ID),
		zap.String("package_id", req.ID),
		zap.String("version", req.Version),
	)
	p.stats.addAttempt()

	fail := func(err error) (*Transaction, error) {
		txn.Phase = PhaseFailed
		log.Warn("Install failed before staging", zap.Stringer("phase", txn.Phase), zap.Error(err))
		return txn, err
	}

	if err := req.Validate(); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	log.Info("Downloading package", zap.String("url", req.PackageURL))
	data, err := p.fetcher.Fetch(ctx, req.PackageURL, bearerToken)
	if err != nil {
		return fail(err)
	}
	if len(data) == 0 {
		return fail(ErrEmptyPackage)
	}
	p.stats.addBytes(len(data))

	txn.TempDir = filepath.Join(p.tempRoot, req.ID+"-"+req.Version)
	txn.TempPath = filepath.Join(txn.TempDir, req.PackageFileName())
	defer func() {
		if err := storage.SafeRemoveAll(txn.TempDir); err != nil {
			log.Warn("Failed to remove temp directory", zap.String("path", txn.TempDir), zap.Error(err))
		}
	}()

	if err := storage.AtomicWriteFile(txn.TempPath, data, 0644); err != nil {
		return fail(fmt.Errorf("failed to write package to temp file: %w", err))
	}
	txn.Phase = PhaseDownloaded

	hash, err := integrity.VerifyPackageHash(txn.TempPath, req.SHA256)
	if err != nil {
		p.stats.addIntegrityFailure()
		return fail(err)
	}
	// the signature binds the declared hash, which the check above matched
	if err := integrity.VerifySignature(req.SHA256, req.Signature); err != nil {
		p.stats.addIntegrityFailure()
		return fail(err)
	}
	txn.Hash = hash
	txn.Phase = PhaseVerified
	log.Debug("Package verified", zap.String("sha256", hash))

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	txn.Destination = filepath.Join(p.pluginsRoot, req.ID)
	txn.InstalledPath = filepath.Join(txn.Destination, req.PackageFileName())

	if err := p.fs.MkdirAll(p.pluginsRoot, 0755); err != nil {
		return fail(fmt.Errorf("failed to create plugins directory: %w", err))
	}

	if p.fs.Exists(txn.Destination) {
		backup := p.backupPath(txn.Destination)
		if err := p.fs.Rename(txn.Destination, backup); err != nil {
			return fail(fmt.Errorf("failed to back up %s: %w", txn.Destination, err))
		}
		txn.BackupPath = backup
		log.Debug("Previous installation moved aside", zap.String("backup", backup))
	}

	txn.Phase = PhaseStaged
	if stageErr := p.stage(txn); stageErr != nil {
		err := p.rollback(txn, stageErr, log)
		p.stats.addOutcome(txn.Phase)
		return txn, err
	}

	txn.Phase = PhaseCommitted
	p.stats.addOutcome(txn.Phase)
	log.Info("Package installed", zap.String("path", txn.InstalledPath), zap.Stringer("phase", txn.Phase))

	if txn.BackupPath != "" {
		if err := p.fs.RemoveAll(txn.BackupPath); err != nil {
			log.Warn("Failed to remove backup", zap.String("backup", txn.BackupPath), zap.Error(err))
		}
	}

	p.record(txn, int64(len(data)), log)
	return txn, nil
}

func (p *PluginInstaller) stage(txn *Transaction) error {
	if err := p.fs.MkdirAll(txn.Destination, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", txn.Destination, err)
	}
	if err := p.fs.CopyFile(txn.TempPath, txn.InstalledPath); err != nil {
		return fmt.Errorf("failed to copy package into %s: %w", txn.Destination, err)
	}
	return nil
}

// rollback puts the destination back the way it was before staging.
func (p *PluginInstaller) rollback(txn *Transaction, stageErr error, log *zap.Logger) error {
	txErr := &TransactionError{
		Package:     txn.Request.ID + "@" + txn.Request.Version,
		Destination: txn.Destination,
		BackupPath:  txn.BackupPath,
		StageErr:    stageErr,
	}

	restoreErr := p.fs.RemoveAll(txn.Destination)
	if restoreErr == nil && txn.BackupPath != "" {
		restoreErr = p.fs.Rename(txn.BackupPath, txn.Destination)
	}

	if restoreErr != nil {
		txErr.RestoreErr = restoreErr
		txErr.RestoreFailed = true
		txn.Phase = PhaseFatal
		log.Error("Rollback failed, plugins directory needs manual cleanup",
			zap.Stringer("phase", txn.Phase),
			zap.String("destination", txn.Destination),
			zap.String("backup", txn.BackupPath),
			zap.NamedError("stage_error", stageErr),
			zap.Error(restoreErr))
		return txErr
	}

	txn.Phase = PhaseRolledBack
	log.Warn("Staging failed, previous installation restored",
		zap.Stringer("phase", txn.Phase), zap.Error(stageErr))
	return txErr
}

// backupPath picks <dest>.backup-<UTC timestamp>, adding a counter if a
// backup from the same second is still around.
func (p *PluginInstaller) backupPath(dest string) string {
	base := dest + ".backup-" + p.now().UTC().Format(backupTimeLayout)
	candidate := base
	for i := 1; p.fs.Exists(candidate); i++ {
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return candidate
}

func (p *PluginInstaller) record(txn *Transaction, size int64, log *zap.Logger) {
	if p.ledger == nil {
		return
	}
	path, err := filepath.Abs(txn.InstalledPath)
	if err != nil {
		log.Warn("Failed to record install", zap.Error(err))
		return
	}
	entry := ledger.Entry{
		Kind:        ledger.KindPlugin,
		ID:          txn.Request.ID,
		Name:        txn.Request.Name,
		Version:     txn.Request.Version,
		Path:        path,
		SHA256:      txn.Hash,
		Size:        size,
		InstalledAt: p.now().UTC(),
		Transaction: txn.ID,
	}
	if err := p.ledger.Record(entry); err != nil {
		log.Warn("Failed to record install", zap.Error(err))
	}
}
