package platformcache

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/filelock"
	"bslanalyzer/internal/version"
)

// archiveHeader is the first line of an exported bundle.
type archiveHeader struct {
	Format   int    `json:"format"`
	Version  string `json:"version"`
	Entities int    `json:"entities"`
}

// ExportArchive writes the cached entities for version to w as a
// zstd-compressed bundle: a header line followed by the JSONL records.
func (c *Cache) ExportArchive(ver string, w io.Writer) (int, error) {
	v := NormalizeVersion(ver)
	entities, err := c.Load(v)
	if err != nil {
		return 0, err
	}
	records, err := encodeRecords(entities)
	if err != nil {
		return 0, bslerrors.New(bslerrors.InternalError, "encoding platform entities", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return 0, bslerrors.New(bslerrors.InternalError, "creating zstd encoder", err)
	}

	header, _ := json.Marshal(archiveHeader{
		Format:   version.CacheFormatVersion,
		Version:  v,
		Entities: len(entities),
	})
	if _, err := enc.Write(append(header, '\n')); err != nil {
		_ = enc.Close()
		return 0, bslerrors.New(bslerrors.CacheIO, "writing archive header", err)
	}
	if _, err := enc.Write(records); err != nil {
		_ = enc.Close()
		return 0, bslerrors.New(bslerrors.CacheIO, "writing archive records", err)
	}
	if err := enc.Close(); err != nil {
		return 0, bslerrors.New(bslerrors.CacheIO, "finishing archive", err)
	}

	c.logger.Info("Platform cache exported", "version", v, "entities", len(entities))
	return len(entities), nil
}

// ExportArchiveFile is ExportArchive into a new file at path.
func (c *Cache) ExportArchiveFile(ver, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, bslerrors.New(bslerrors.CacheIO, "creating archive file", err)
	}
	n, err := c.ExportArchive(ver, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = bslerrors.New(bslerrors.CacheIO, "closing archive file", closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return n, err
}

// ImportArchive reads a bundle produced by ExportArchive and stores it as the
// cache for ver. An empty ver takes the version from the bundle header.
// The returned string is the version written.
func (c *Cache) ImportArchive(ctx context.Context, ver string, r io.Reader) (string, int, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return "", 0, bslerrors.New(bslerrors.PlatformCacheCorrupt, "opening archive", err)
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return "", 0, bslerrors.New(bslerrors.PlatformCacheCorrupt, "reading archive header", err)
	}
	var header archiveHeader
	if err := json.Unmarshal(line, &header); err != nil {
		return "", 0, bslerrors.New(bslerrors.PlatformCacheCorrupt, "parsing archive header", err)
	}
	if header.Format != version.CacheFormatVersion {
		return "", 0, bslerrors.New(bslerrors.PlatformCacheCorrupt,
			fmt.Sprintf("archive format %d is not supported (want %d)", header.Format, version.CacheFormatVersion), nil)
	}

	v := NormalizeVersion(ver)
	if v == "" {
		v = NormalizeVersion(header.Version)
	}
	if v == "" {
		return "", 0, bslerrors.New(bslerrors.PlatformCacheCorrupt, "archive carries no platform version", nil)
	}

	entities, err := decodeRecords(br, v)
	if err != nil {
		return "", 0, err
	}
	if len(entities) != header.Entities {
		return "", 0, bslerrors.New(bslerrors.PlatformCacheCorrupt,
			fmt.Sprintf("archive declares %d entities but holds %d", header.Entities, len(entities)), nil)
	}

	lock, err := filelock.Acquire(ctx, c.cacheDir, lockName(v))
	if err != nil {
		return "", 0, err
	}
	defer lock.Release()

	if err := c.saveLocked(v, entities); err != nil {
		return "", 0, err
	}
	return v, len(entities), nil
}
