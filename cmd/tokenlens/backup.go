package tokenlens

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/igorsilveira/tokenlens/pkg/config"
	"github.com/igorsilveira/tokenlens/pkg/store"
)

const archiveRoot = "tokenlens-data"

var backupCmd = &cobra.Command{
	Use:   "backup [output-path]",
	Short: "Snapshot the TokenLens data directory (database and config) to a tarball",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-path>",
	Short: "Restore TokenLens state from a backup tarball",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func runBackup(cmd *cobra.Command, args []string) error {
	dataDir := config.DataDir()
	if _, err := os.Stat(dataDir); err != nil {
		return fmt.Errorf("data directory %s does not exist", dataDir)
	}

	// Fold the WAL into the main file so the archive holds every task.
	if dsn := config.Current().Store.DSN; fileExists(dsn) {
		if st, err := store.New(dsn); err == nil {
			_ = st.Checkpoint(context.Background())
			st.Close()
		}
	}

	outPath := fmt.Sprintf("tokenlens-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	if len(args) > 0 {
		outPath = args[0]
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating backup file: %w", err)
	}
	defer f.Close()

	count, err := writeArchive(f, dataDir)
	if err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}

	fmt.Printf("Backup created: %s (%d files)\n", outPath, count)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	dataDir := config.DataDir()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening backup: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	count, err := extractArchive(f, dataDir)
	if err != nil {
		return err
	}
	fmt.Printf("Restored %d files to %s\n", count, dataDir)
	return nil
}

// writeArchive writes dataDir as a gzipped tarball rooted at archiveRoot.
// SQLite WAL and shared-memory files are skipped.
func writeArchive(w io.Writer, dataDir string) (int, error) {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	count := 0
	err := filepath.Walk(dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, "-wal") || strings.HasSuffix(path, "-shm") {
			return nil
		}

		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(archiveRoot, rel))
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		if _, err := io.Copy(tw, file); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	if err := tw.Close(); err != nil {
		return count, err
	}
	return count, gw.Close()
}

// extractArchive restores a tarball written by writeArchive into dataDir.
// Entries that would land outside dataDir are rejected.
func extractArchive(r io.Reader, dataDir string) (int, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("reading gzip: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	count := 0
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("reading tar: %w", err)
		}

		_, rel, _ := strings.Cut(header.Name, "/")
		if rel == "" || rel == "." {
			continue
		}

		target := filepath.Join(dataDir, filepath.FromSlash(rel))
		if within, err := filepath.Rel(dataDir, target); err != nil || strings.HasPrefix(within, "..") {
			return count, fmt.Errorf("invalid path in backup: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0700); err != nil {
				return count, fmt.Errorf("creating directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
				return count, err
			}
			if err := writeFile(target, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func writeFile(path string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("writing file %s: %w", path, err)
	}
	return out.Close()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
