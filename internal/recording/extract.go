package recording

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-audio/wav"

	"github.com/kaedehara/minutes-pipeline/internal/logger"
)

// Archive entries are named {track}-{username}.{format}.
var archiveEntryPattern = regexp.MustCompile(`^(\d+)-(.+)\.(aac|flac|ogg|mp3|wav)$`)

// ExtractArchive extracts per-speaker audio tracks from a recording ZIP
// archive into destDir. Entries that do not look like speaker tracks are
// skipped, as are entries that would escape destDir.
func ExtractArchive(ctx context.Context, zipBytes []byte, destDir string, log logger.Logger) ([]SpeakerAudio, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var tracks []SpeakerAudio
	for _, entry := range zr.File {
		match := archiveEntryPattern.FindStringSubmatch(entry.Name)
		if match == nil {
			log.Debug(ctx, "Skipping non-track archive entry: %s", entry.Name)
			continue
		}

		trackNum, _ := strconv.Atoi(match[1])
		username := match[2]

		destFile := filepath.Join(destDir, entry.Name)
		// Zip Slip guard: the extracted path must stay inside destDir.
		if rel, err := filepath.Rel(destDir, destFile); err != nil || strings.HasPrefix(rel, "..") {
			log.Warn(ctx, "Blocked archive entry escaping dest dir: %s", entry.Name)
			continue
		}

		if err := writeEntry(entry, destFile); err != nil {
			return nil, fmt.Errorf("extract %s: %w", entry.Name, err)
		}

		if strings.HasSuffix(entry.Name, ".wav") && !probeWAV(destFile) {
			log.Warn(ctx, "Dropping invalid WAV track: %s", entry.Name)
			_ = os.Remove(destFile)
			continue
		}

		log.Debug(ctx, "Extracted %s -> %s", entry.Name, destFile)
		tracks = append(tracks, SpeakerAudio{
			Speaker:  SpeakerInfo{Track: trackNum, Username: username},
			FilePath: destFile,
		})
	}

	return tracks, nil
}

func writeEntry(entry *zip.File, destFile string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(destFile), 0755); err != nil {
		return err
	}

	out, err := os.Create(destFile)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// probeWAV reports whether the file parses as a WAV container.
func probeWAV(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	return wav.NewDecoder(f).IsValidFile()
}
