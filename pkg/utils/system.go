// pkg/utils/system.go

package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alexmullins/zip"
)

// RunningAsRoot checks if the tool is running with root/sudo privileges
func RunningAsRoot() bool {
	return os.Geteuid() == 0
}

// CompressWithPassword stores the given files in one password protected zip
// archive at zipPath
func CompressWithPassword(zipPath string, password string, sourcePaths ...string) (string, error) {
	if len(sourcePaths) == 0 {
		return "", fmt.Errorf("no files to compress")
	}
	for _, sourcePath := range sourcePaths {
		if _, err := os.Stat(sourcePath); os.IsNotExist(err) {
			return "", fmt.Errorf("source file not found: %s", sourcePath)
		}
	}

	zipFile, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to create zip file: %w", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	for _, sourcePath := range sourcePaths {
		if err := addEncrypted(zipWriter, sourcePath, password); err != nil {
			zipWriter.Close()
			return "", err
		}
	}

	if err := zipWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize zip: %w", err)
	}
	return zipPath, nil
}

func addEncrypted(zipWriter *zip.Writer, sourcePath, password string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	writer, err := zipWriter.Encrypt(filepath.Base(sourcePath), password)
	if err != nil {
		return fmt.Errorf("failed to create encrypted entry: %w", err)
	}

	if _, err := io.Copy(writer, sourceFile); err != nil {
		return fmt.Errorf("failed to write to zip: %w", err)
	}
	return nil
}
