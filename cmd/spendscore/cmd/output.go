package cmd

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"spendscore-service/cmd/spendscore/config"
	"spendscore-service/internal/analysis"
	"spendscore-service/internal/reporter"
	"spendscore-service/pkg/errors"
)

// openOutput returns the output file when one is configured, else the
// command's stdout. The returned close function is always safe to call.
func openOutput(cmd *cobra.Command, v *viper.Viper) (io.Writer, func() error, error) {
	path := v.GetString(config.KeyOutputFile)
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}

	file, err := os.Create(path)
	if err != nil {
		code := errors.CodeDirectoryError
		if os.IsPermission(err) {
			code = errors.CodeFilePermission
		}
		return nil, nil, errors.FileError(code, path, err).
			WithSuggestion("check that the output directory exists and is writable")
	}
	return file, file.Close, nil
}

// validateOutputPath checks that the output file's directory exists
func validateOutputPath(v *viper.Viper) error {
	path := v.GetString(config.KeyOutputFile)
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return errors.FileError(errors.CodeDirectoryError, dir, err).
			WithSuggestion("create the output directory first")
	}
	if !info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, dir, nil).
			WithContext("reason", "not a directory")
	}
	return nil
}

// validateFileExists checks that path names a readable regular file
func validateFileExists(path, description string) error {
	if path == "" {
		return errors.ValidationError(errors.CodeMissingField, description, path, nil)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, path, err).
			WithContext("description", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err).
			WithContext("description", description)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, path, nil).
			WithContext("description", description).
			WithSuggestion("pass a CSV file, not a directory")
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err).
			WithContext("description", description)
	}
	return file.Close()
}

// openStore opens the configured result store; nil means persistence is off
func openStore(v *viper.Viper) (analysis.ResultStore, error) {
	dir := config.StoreDir(v)
	if dir == "" {
		return nil, nil
	}
	store, err := analysis.NewFileStore(afero.NewOsFs(), dir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// writeDocument encodes doc as JSON or YAML. Console output of structured
// documents is YAML.
func writeDocument(w io.Writer, format reporter.OutputFormat, doc interface{}) error {
	switch format {
	case reporter.FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "json_encoding", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "write_output", err)
		}
		return nil
	case reporter.FormatYAML, reporter.FormatConsole:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "yaml_encoding", err)
		}
		if err := enc.Close(); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "yaml_encoding", err)
		}
		return nil
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", string(format), nil).
			WithSuggestion("this command supports console, json and yaml")
	}
}
