// Backup (§4.7, "freeze"): a point-in-time copy of a writer's block files
// into a destination directory, optionally zstd-compressed one file at a
// time so a cold backup takes a fraction of the live segment's disk space.
package mabain

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const backupSuffix = ".zst"

// Backup copies the database's current block files into destDir. Only
// valid on a writer handle; destDir must not already contain a header
// file. Files are copied uncompressed; BackupCompressed compresses them.
func (db *DB) Backup(destDir string) error {
	return db.backup(destDir, false)
}

// BackupCompressed is Backup with zstd compression applied to every copied
// file, trading backup time for destination disk usage.
func (db *DB) BackupCompressed(destDir string) error {
	return db.backup(destDir, true)
}

func (db *DB) backup(destDir string, compress bool) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if !db.isWriter {
		return newErr("Backup", KindNotAllowed, ErrNotAllowed)
	}
	if destDir == "" {
		return newErr("Backup", KindInvalidArg, fmt.Errorf("destDir must be set"))
	}

	destHeader := filepath.Join(destDir, headerFileName)
	if _, err := os.Stat(destHeader); err == nil {
		return newErr("Backup", KindOpenFailure, fmt.Errorf("%s already contains a database", destDir))
	}
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return newErr("Backup", KindOpenFailure, err)
	}

	if err := db.header.flush(); err != nil {
		return err
	}
	if err := db.index.flushRange(0, int64(db.header.loadU64(hdrMIndexOffset))); err != nil {
		return err
	}
	if err := db.data.flushRange(0, int64(db.header.loadU64(hdrMDataOffset))); err != nil {
		return err
	}

	numIndexFiles := int(db.header.loadU64(hdrMIndexOffset)/uint64(db.opts.IndexBlockSize)) + 1
	numDataFiles := int(db.header.loadU64(hdrMDataOffset)/uint64(db.opts.DataBlockSize)) + 1

	for i := 0; i < numDataFiles; i++ {
		if err := copyBlockFile(db.opts.Dir, destDir, "_mabain_d", i, compress); err != nil {
			return err
		}
	}
	for i := 0; i < numIndexFiles; i++ {
		if err := copyBlockFile(db.opts.Dir, destDir, "_mabain_i", i, compress); err != nil {
			return err
		}
	}
	return copyPlainFile(filepath.Join(db.opts.Dir, headerFileName), destHeader)
}

func copyBlockFile(srcDir, destDir, prefix string, idx int, compress bool) error {
	src := filepath.Join(srcDir, fmt.Sprintf("%s%d", prefix, idx))
	dest := filepath.Join(destDir, fmt.Sprintf("%s%d", prefix, idx))
	if compress {
		dest += backupSuffix
		return copyFileCompressed(src, dest)
	}
	return copyPlainFile(src, dest)
}

func copyPlainFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return newErr("Backup", KindOpenFailure, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return newErr("Backup", KindOpenFailure, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return newErr("Backup", KindWriteError, err)
	}
	return nil
}

func copyFileCompressed(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return newErr("Backup", KindOpenFailure, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return newErr("Backup", KindOpenFailure, err)
	}
	defer out.Close()

	// A fresh encoder per file, not a shared package-level one: Backup can
	// run concurrently with another Backup call on a different DB handle,
	// and zstd.Encoder is not safe to share across concurrent streams once
	// Reset is in play.
	zw, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return newErr("Backup", KindWriteError, err)
	}
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		return newErr("Backup", KindWriteError, err)
	}
	return zw.Close()
}

// RestoreCompressed reverses BackupCompressed: it decompresses every
// *.zst block file under srcDir into destDir, for a writer to then Open.
func RestoreCompressed(srcDir, destDir string) error {
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return newErr("RestoreCompressed", KindOpenFailure, err)
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return newErr("RestoreCompressed", KindOpenFailure, err)
	}
	for _, ent := range entries {
		name := ent.Name()
		if name == headerFileName {
			if err := copyPlainFile(filepath.Join(srcDir, name), filepath.Join(destDir, name)); err != nil {
				return err
			}
			continue
		}
		if filepath.Ext(name) != backupSuffix {
			continue
		}
		if err := decompressFile(filepath.Join(srcDir, name), filepath.Join(destDir, name[:len(name)-len(backupSuffix)])); err != nil {
			return err
		}
	}
	return nil
}

func decompressFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return newErr("RestoreCompressed", KindOpenFailure, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return newErr("RestoreCompressed", KindOpenFailure, err)
	}
	defer out.Close()

	zr, err := zstd.NewReader(in)
	if err != nil {
		return newErr("RestoreCompressed", KindReadError, err)
	}
	defer zr.Close()

	if _, err := io.Copy(out, zr); err != nil {
		return newErr("RestoreCompressed", KindReadError, err)
	}
	return nil
}
