package overdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/jaegermaster/overdrive-tools/internal/chapters"
	"github.com/jaegermaster/overdrive-tools/internal/config"
	"github.com/jaegermaster/overdrive-tools/internal/database"
	"github.com/jaegermaster/overdrive-tools/internal/logger"
	"github.com/jaegermaster/overdrive-tools/internal/naming"
	"github.com/jaegermaster/overdrive-tools/internal/odm"
)

// LockFileName guards a book directory against concurrent runs.
const LockFileName = ".overdrive-tools.lock"

// ProtocolClient is the OverDrive protocol surface the service drives.
type ProtocolClient interface {
	AcquireLicense(ctx context.Context, media *odm.Media) (*odm.License, error)
	DownloadPart(ctx context.Context, license *odm.License, baseURL string, part odm.Part, destPath string, progress io.Writer) error
	EarlyReturn(ctx context.Context, media *odm.Media) error
}

// Store records loan state. Implemented by the database package.
type Store interface {
	UpsertLoan(loan *database.Loan) error
	RecordPart(mediaID string, number int, fileName string, size int64) error
	MarkDownloaded(mediaID string) error
	MarkReturned(mediaID string) error
}

// Service orchestrates downloads and returns for .odm descriptors.
type Service struct {
	client ProtocolClient
	store  Store
	cfg    *config.Config
	logger *logger.Logger

	// progress builds a per-part progress sink; nil disables progress output
	progress func(part odm.Part) io.Writer
}

// NewService creates a Service. store may be nil to skip loan tracking.
func NewService(client ProtocolClient, store Store, cfg *config.Config, log *logger.Logger) *Service {
	return &Service{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: log,
	}
}

// SetProgress installs a factory for per-part progress sinks.
func (s *Service) SetProgress(f func(part odm.Part) io.Writer) {
	s.progress = f
}

// DownloadResult summarizes a completed download.
type DownloadResult struct {
	Media      *odm.Media
	Title      string
	Author     string
	Directory  string
	Downloaded int
	Skipped    int
}

// Download acquires the license for a descriptor (reusing a previously saved
// one) and downloads every part into the book directory. Parts that already
// exist on disk are skipped, so an interrupted run picks up where it left off.
func (s *Service) Download(ctx context.Context, odmPath string) (*DownloadResult, error) {
	media, err := odm.ParseFile(odmPath)
	if err != nil {
		return nil, err
	}
	if len(media.Parts) == 0 {
		return nil, fmt.Errorf("descriptor lists no downloadable parts")
	}

	meta, err := resolveMetadata(media, odmPath)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.cfg.Paths.OutputRoot, naming.Directory(s.cfg.Paths.DirFormat, meta.Author, meta.Title))
	result := &DownloadResult{
		Media:     media,
		Title:     meta.Title,
		Author:    meta.Author,
		Directory: dir,
	}

	if s.cfg.App.DryRun {
		s.logger.Info("Dry run: skipping download", map[string]interface{}{
			"media_id": media.ID,
			"title":    meta.Title,
			"parts":    len(media.Parts),
			"dir":      dir,
		})
		result.Skipped = len(media.Parts)
		return result, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create book directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock book directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another run is already working on %s", dir)
	}
	defer lock.Unlock()

	license, err := s.ensureLicense(ctx, media, odm.LicensePath(odmPath))
	if err != nil {
		return nil, err
	}

	s.recordLoan(media, meta, odmPath, dir)

	for _, part := range media.Parts {
		destPath := filepath.Join(dir, part.LocalName())

		if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
			s.logger.Debug("Part already downloaded", map[string]interface{}{
				"part": part.Number,
				"file": part.LocalName(),
			})
			result.Skipped++
			s.recordPart(media.ID, part, info.Size())
			continue
		}

		var progress io.Writer
		if s.progress != nil {
			progress = s.progress(part)
		}

		if err := s.client.DownloadPart(ctx, license, media.BaseURL, part, destPath, progress); err != nil {
			return nil, fmt.Errorf("part %d of %d: %w", part.Number, len(media.Parts), err)
		}
		result.Downloaded++

		if info, err := os.Stat(destPath); err == nil {
			s.recordPart(media.ID, part, info.Size())
		}
	}

	if err := s.seedChapters(media, dir); err != nil {
		s.logger.Warn("Could not seed chapter file from part boundaries", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if s.store != nil {
		if err := s.store.MarkDownloaded(media.ID); err != nil {
			s.logger.Warn("Failed to update loan state", map[string]interface{}{
				"media_id": media.ID,
				"error":    err.Error(),
			})
		}
	}

	return result, nil
}

// Return performs the early return for a descriptor.
func (s *Service) Return(ctx context.Context, odmPath string) (*odm.Media, error) {
	media, err := odm.ParseFile(odmPath)
	if err != nil {
		return nil, err
	}

	if s.cfg.App.DryRun {
		s.logger.Info("Dry run: skipping early return", map[string]interface{}{
			"media_id": media.ID,
		})
		return media, nil
	}

	if err := s.client.EarlyReturn(ctx, media); err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.MarkReturned(media.ID); err != nil && !errors.Is(err, database.ErrLoanNotFound) {
			s.logger.Warn("Failed to update loan state", map[string]interface{}{
				"media_id": media.ID,
				"error":    err.Error(),
			})
		}
	}
	return media, nil
}

// ensureLicense loads a previously acquired license or performs the
// handshake and saves the result next to the descriptor.
func (s *Service) ensureLicense(ctx context.Context, media *odm.Media, licensePath string) (*odm.License, error) {
	if info, err := os.Stat(licensePath); err == nil && info.Size() > 0 {
		license, err := odm.LoadLicense(licensePath)
		if err == nil {
			s.logger.Debug("Reusing saved license", map[string]interface{}{
				"path": licensePath,
			})
			return license, nil
		}
		s.logger.Warn("Saved license is invalid, re-acquiring", map[string]interface{}{
			"path":  licensePath,
			"error": err.Error(),
		})
	}

	license, err := s.client.AcquireLicense(ctx, media)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(licensePath, []byte(license.Raw), 0644); err != nil {
		return nil, fmt.Errorf("failed to save license: %w", err)
	}

	s.logger.Info("License acquired", map[string]interface{}{
		"media_id": media.ID,
		"path":     licensePath,
	})
	return license, nil
}

// seedChapters writes a chapter file from part boundaries unless one exists.
func (s *Service) seedChapters(media *odm.Media, dir string) error {
	path := filepath.Join(dir, chapters.FileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	chs, err := chapters.FromParts(media.Parts)
	if err != nil {
		return err
	}
	return chapters.Write(path, chs)
}

func (s *Service) recordLoan(media *odm.Media, meta *odm.Metadata, odmPath, dir string) {
	if s.store == nil {
		return
	}
	err := s.store.UpsertLoan(&database.Loan{
		MediaID:   media.ID,
		Title:     meta.Title,
		Author:    meta.Author,
		ODMPath:   odmPath,
		Directory: dir,
		Status:    database.StatusActive,
	})
	if err != nil {
		s.logger.Warn("Failed to record loan", map[string]interface{}{
			"media_id": media.ID,
			"error":    err.Error(),
		})
	}
}

func (s *Service) recordPart(mediaID string, part odm.Part, size int64) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordPart(mediaID, part.Number, part.LocalName(), size); err != nil {
		s.logger.Warn("Failed to record part download", map[string]interface{}{
			"media_id": mediaID,
			"part":     part.Number,
			"error":    err.Error(),
		})
	}
}

// resolveMetadata prefers the descriptor's embedded metadata and falls back
// to the .metadata sidecar.
func resolveMetadata(media *odm.Media, odmPath string) (*odm.Metadata, error) {
	if media.Metadata != nil && media.Metadata.Title != "" && media.Metadata.Author != "" {
		return media.Metadata, nil
	}

	meta, err := odm.ReadSidecar(odm.SidecarPath(odmPath))
	if err == nil && meta.Title != "" && meta.Author != "" {
		return meta, nil
	}

	if media.Metadata != nil && media.Metadata.Title != "" {
		return media.Metadata, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot determine title and author for %s: %w", filepath.Base(odmPath), err)
	}
	return nil, fmt.Errorf("cannot determine title and author for %s", filepath.Base(odmPath))
}
