/*
Package util includes utility/helper functions that may be useful to other modules.
*/
package util

import (
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ExpandUser expands '~' to user's home directory, if found, otherwise returns original path
func ExpandUser(path string) string {
	usr, _ := user.Current()
	if path == "~" {
		return usr.HomeDir
	} else if strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return filepath.Join(usr.HomeDir, path[2:])
	} else {
		return path
	}
}

// AbsPath returns absolute path after expanding '~' to user's home dir.
// Use everywhere in place of filepath.Abs() when a path may come from config or a flag.
func AbsPath(path string) (string, error) {
	return filepath.Abs(ExpandUser(path))
}

// FileExists checks if a file exists at the given path.
// It returns a boolean indicating whether the file exists, and an error if the
// path refers to a non-regular file, e.g., a directory.
func FileExists(path string) (exists bool, err error) {
	var fileInfo fs.FileInfo
	fileInfo, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			exists = false
			err = nil
			return
		}
		return
	}
	if !fileInfo.Mode().IsRegular() {
		err = fmt.Errorf("%s not a file", path)
		return
	}
	exists = true
	return
}

// DirectoryExists checks if the specified directory exists.
// It returns a boolean indicating whether the directory exists and an error if the
// path refers to anything other than a directory, e.g., a regular file.
func DirectoryExists(path string) (exists bool, err error) {
	var fileInfo fs.FileInfo
	fileInfo, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			exists = false
			err = nil
			return
		}
		return
	}
	if !fileInfo.Mode().IsDir() {
		err = fmt.Errorf("%s not a directory", path)
		return
	}
	exists = true
	return
}

// CopyDirectory copies the contents of a directory from the source path to the destination path.
// It recursively copies all subdirectories and files within the directory. Used to materialize a
// runtime's workspace template before a run.
func CopyDirectory(scrDir, dest string) error {
	entries, err := os.ReadDir(scrDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		sourcePath := filepath.Join(scrDir, entry.Name())
		destPath := filepath.Join(dest, entry.Name())
		fileInfo, err := os.Stat(sourcePath)
		if err != nil {
			return err
		}
		if fileInfo.Mode().IsDir() {
			if err := CreateIfNotExists(destPath, 0755); err != nil {
				return err
			}
			if err := CopyDirectory(sourcePath, destPath); err != nil {
				return err
			}
		} else if fileInfo.Mode().IsRegular() {
			if err := Copy(sourcePath, destPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// Copy copies a file from the source path to the destination path.
// If the destination path is a directory, the file will be copied with the same name to that directory.
// The file permissions of the source file will be preserved in the destination file.
func Copy(srcFile, dstFile string) error {
	srcFileStat, err := os.Stat(srcFile)
	if err != nil {
		return err
	}
	src, err := os.Open(srcFile)
	if err != nil {
		return err
	}
	defer src.Close()
	dstFileStat, err := os.Stat(dstFile)
	if err == nil && dstFileStat.IsDir() {
		dstFile = filepath.Join(dstFile, filepath.Base(srcFile))
	}
	dest, err := os.Create(dstFile)
	if err != nil {
		return err
	}
	_, err = io.Copy(dest, src)
	dest.Close()
	if err != nil {
		return err
	}
	err = os.Chmod(dstFile, srcFileStat.Mode())
	return err
}

// Exists checks if a file or directory exists at the given file path.
func Exists(filePath string) bool {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return false
	}
	return true
}

// CreateIfNotExists creates a directory at the specified path if it does not already exist.
func CreateIfNotExists(dir string, perm os.FileMode) error {
	if Exists(dir) {
		return nil
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("failed to create directory: '%s', error: '%s'", dir, err.Error())
	}
	return nil
}

// StringInList confirms if string is in list of strings
func StringInList(s string, l []string) bool {
	for _, item := range l {
		if item == s {
			return true
		}
	}
	return false
}

// UniqueAppend appends an item to a slice if it is not already present
func UniqueAppend(slice []string, item string) []string {
	for _, s := range slice {
		if s == item {
			return slice
		}
	}
	return append(slice, item)
}

// GeoMean calculates the geometric mean of a slice of floats, used when
// summarizing a run of deviation percentages across many inputs.
func GeoMean(vals []float64) (val float64) {
	m := 0.0
	for i, x := range vals {
		lx := math.Log(x)
		m += (lx - m) / float64(i+1)
	}
	val = math.Exp(m)
	return
}

// GetAppDir returns the directory of the executable.
func GetAppDir() string {
	exePath, _ := os.Executable()
	return filepath.Dir(exePath)
}
