package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vantigo/csfiles/internal/config"
	"github.com/vantigo/csfiles/internal/logger"
	"github.com/vantigo/csfiles/internal/utils"
	"github.com/vantigo/csfiles/pkg/steam"
	"github.com/vantigo/csfiles/pkg/vpk"
)

// CDN is the manifest collaborator the fetcher drives. Implemented by
// steam.CDNClient; faked in tests.
type CDN interface {
	LatestManifestID(ctx context.Context) (string, error)
	Manifest(ctx context.Context, manifestID string) ([]steam.ManifestFile, error)
}

// Fetcher runs one incremental fetch cycle: check the published manifest id
// against the stored marker, and when it changed, pull the configured
// target files either directly from the manifest or through the VPK archive
// path, then persist the new id.
type Fetcher struct {
	cdn    CDN
	cfg    *config.Config
	logger zerolog.Logger
}

func New(cdn CDN, cfg *config.Config) *Fetcher {
	return &Fetcher{
		cdn:    cdn,
		cfg:    cfg,
		logger: logger.New("fetch").With().Str("run_id", uuid.New().String()).Logger(),
	}
}

// Run executes the cycle. The returned error is fatal (metadata, manifest
// or directory failures); per-target and per-part problems are logged and
// the run continues, ending with a summary of what was and was not
// retrieved.
func (f *Fetcher) Run(ctx context.Context) error {
	if err := f.cfg.EnsureDirectories(); err != nil {
		return err
	}

	latest, err := f.cdn.LatestManifestID(ctx)
	if err != nil {
		return err
	}

	stored := ReadManifestID(f.cfg.ManifestIDPath())
	if stored == latest {
		f.logger.Info().Str("manifest_id", latest).Msg("latest manifest id matches existing, no update needed")
		return nil
	}
	f.logger.Info().
		Str("stored", stored).
		Str("latest", latest).
		Msg("manifest id differs, downloading game files")

	files, err := f.cdn.Manifest(ctx, latest)
	if err != nil {
		return err
	}

	remaining := f.extractDirect(ctx, files)
	if len(remaining) > 0 {
		f.logger.Info().
			Int("remaining", len(remaining)).
			Msg("not all targets found directly in manifest, using VPK method")
		if err := f.archivePath(ctx, files, remaining); err != nil {
			return err
		}
	}

	// The new manifest id is persisted even when individual targets
	// failed: a target that could not be extracted now will only become
	// retrievable again once upstream publishes a new revision anyway.
	if err := SaveManifestID(f.cfg.ManifestIDPath(), latest); err != nil {
		return fmt.Errorf("save manifest id: %w", err)
	}
	f.logger.Info().Str("manifest_id", latest).Msg("saved manifest id")

	f.PrintSummary()
	return nil
}

// extractDirect saves every target that exists as a standalone manifest
// entry and returns the targets that do not.
func (f *Fetcher) extractDirect(ctx context.Context, files []steam.ManifestFile) []string {
	var remaining []string

	for _, target := range f.cfg.TargetPaths {
		entry := steam.FindExact(files, target)
		if entry == nil {
			remaining = append(remaining, target)
			continue
		}

		f.logger.Info().Str("target", target).Msg("extracting directly from manifest")
		data, err := entry.Read(ctx)
		if err != nil {
			f.logger.Error().Err(err).Str("target", target).Msg("direct read failed")
			remaining = append(remaining, target)
			continue
		}
		if err := f.saveTarget(target, data); err != nil {
			f.logger.Error().Err(err).Str("target", target).Msg("save failed")
			remaining = append(remaining, target)
		}
	}

	return remaining
}

// archivePath recovers the remaining targets out of the multi-part VPK
// archive: fetch and parse the directory part, resolve which numbered parts
// are needed, download them, then extract.
func (f *Fetcher) archivePath(ctx context.Context, files []steam.ManifestFile, targets []string) error {
	raw, err := f.fetchDirBlob(ctx, files)
	if err != nil {
		return err
	}

	dir, err := vpk.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", f.cfg.DirFilename, err)
	}
	f.logger.Info().Int("entries", dir.Len()).Msg("VPK directory loaded")

	resolver := vpk.NewResolver(dir, f.cfg.ArchiveNamePattern, f.localPartOpener(), f.logger)
	required := resolver.RequiredParts(targets)
	f.logger.Info().Uints16("indices", required).Msg("required archive parts")

	f.downloadParts(ctx, files, required)
	f.extractFromArchive(dir, targets)
	return nil
}

// fetchDirBlob downloads the directory part, keeping a copy in the static
// dir. When the fresh fetch fails a previously-downloaded copy is reused
// with a warning; only the absence of both is fatal.
func (f *Fetcher) fetchDirBlob(ctx context.Context, files []steam.ManifestFile) ([]byte, error) {
	cached := filepath.Join(f.cfg.StaticDir, f.cfg.DirFilename)

	raw, err := f.readRemoteDir(ctx, files)
	if err == nil {
		// Binary intermediate: saved verbatim, no BOM handling.
		if _, err := utils.SaveFile(cached, raw, false); err != nil {
			f.logger.Warn().Err(err).Msg("could not cache VPK directory")
		}
		return raw, nil
	}

	local, readErr := os.ReadFile(cached)
	if readErr != nil {
		return nil, fmt.Errorf("download %s: %w (and no local copy)", f.cfg.DirFilename, err)
	}
	f.logger.Warn().Err(err).Msg("directory download failed, using existing local copy")
	return local, nil
}

func (f *Fetcher) readRemoteDir(ctx context.Context, files []steam.ManifestFile) ([]byte, error) {
	entry := steam.FindBySuffix(files, f.cfg.DirFilename)
	if entry == nil {
		return nil, fmt.Errorf("%s not found in manifest", f.cfg.DirFilename)
	}
	f.logger.Info().Str("file", entry.Path()).Msg("downloading VPK directory file")
	return entry.Read(ctx)
}

// downloadParts fetches the required archive parts into the temp dir with
// bounded concurrency. One part's failure never aborts the others; targets
// depending on a failed part simply end up NOT FOUND in the summary.
func (f *Fetcher) downloadParts(ctx context.Context, files []steam.ManifestFile, indices []uint16) {
	if len(indices) == 0 {
		return
	}
	f.logger.Info().Int("count", len(indices)).Msg("downloading VPK archive files")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxPartDownloads)

	for _, index := range indices {
		g.Go(func() error {
			name := fmt.Sprintf(f.cfg.ArchiveNamePattern, index)
			entry := steam.FindBySuffix(files, name)
			if entry == nil {
				f.logger.Warn().Str("part", name).Msg("could not find part in manifest")
				return nil
			}

			dest := filepath.Join(f.cfg.TempDir, name)
			if err := f.downloadPart(ctx, entry, dest); err != nil {
				f.logger.Error().Err(err).Str("part", name).Msg("part download failed")
				return nil
			}
			f.logger.Info().Str("part", name).Str("size", utils.FormatSize(int64(entry.Size()))).Msg("part downloaded")
			return nil
		})
	}
	_ = g.Wait() // workers only log, they never return errors
}

func (f *Fetcher) downloadPart(ctx context.Context, entry steam.ManifestFile, dest string) error {
	if dl, ok := entry.(steam.Downloader); ok {
		return dl.Download(ctx, dest)
	}
	data, err := entry.Read(ctx)
	if err != nil {
		return err
	}
	_, err = utils.SaveFile(dest, data, false)
	return err
}

// extractFromArchive pulls each target out of the directory blob and the
// downloaded parts. Per-target failures are logged and skipped.
func (f *Fetcher) extractFromArchive(dir *vpk.Directory, targets []string) {
	open := f.localPartOpener()

	for _, target := range targets {
		entries := dir.EntriesWithPrefix(target)
		if len(entries) == 0 {
			f.logger.Warn().Str("target", target).Msg("could not find target in VPK")
			continue
		}

		extracted := false
		for _, e := range entries {
			data, err := dir.ReadEntry(e, open)
			if err != nil {
				f.logger.Error().Err(err).Str("path", e.Path).Msg("error extracting entry")
				continue
			}
			if err := f.saveTarget(target, data); err != nil {
				f.logger.Error().Err(err).Str("target", target).Msg("save failed")
				continue
			}
			extracted = true
			break
		}
		if !extracted {
			f.logger.Warn().Str("target", target).Msg("target not extracted")
		}
	}
}

// localPartOpener reads numbered part files from the temp dir.
func (f *Fetcher) localPartOpener() vpk.PartOpener {
	return func(index uint16) ([]byte, error) {
		name := fmt.Sprintf(f.cfg.ArchiveNamePattern, index)
		return os.ReadFile(filepath.Join(f.cfg.TempDir, name))
	}
}

// saveTarget writes one extracted target under its basename, with the
// UTF-8 BOM stripped.
func (f *Fetcher) saveTarget(target string, data []byte) error {
	dest := filepath.Join(f.cfg.StaticDir, filepath.Base(target))
	n, err := utils.SaveFile(dest, data, true)
	if err != nil {
		return err
	}
	f.logger.Info().Str("file", filepath.Base(target)).Int("bytes", n).Msg("saved")
	return nil
}

// PrintSummary reports every configured target with its on-disk size, or
// NOT FOUND for targets that no path managed to retrieve.
func (f *Fetcher) PrintSummary() {
	fmt.Println("\nDownloaded files:")
	sizes := utils.FileSizes(f.cfg.StaticDir, f.cfg.TargetFilenames())
	for _, name := range f.cfg.TargetFilenames() {
		if size := sizes[name]; size > 0 {
			fmt.Printf("  %s: %s\n", name, utils.FormatSize(size))
		} else {
			fmt.Printf("  %s: NOT FOUND\n", name)
		}
	}
}
