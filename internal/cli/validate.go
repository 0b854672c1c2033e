package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/serval-engine/serval/internal/harness"
)

// FileValidation is the outcome for one scenario file.
type FileValidation struct {
	Path      string `json:"path"`
	Scenario  string `json:"scenario,omitempty"`
	Valid     bool   `json:"valid"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// ValidationResult is the data for a validate response.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Check scenario files without running them",
		Long: `Load each scenario, check its fields, and declare its tasks on
standalone schedulers so declaration errors surface without a host.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, out, errOut io.Writer) error {
	f := newFormatter(opts, out, errOut)
	res := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}

	for _, path := range paths {
		fv := validateFile(path)
		if !fv.Valid {
			res.Valid = false
		}
		res.Files = append(res.Files, fv)
		f.VerboseLog("validated %s: %v", path, fv.Valid)
	}

	if f.JSON() {
		if err := f.Success(res); err != nil {
			return err
		}
	} else {
		for _, fv := range res.Files {
			if fv.Valid {
				fmt.Fprintf(out, "✓ %s (%s)\n", fv.Path, fv.Scenario)
			} else {
				fmt.Fprintf(out, "✗ %s: %s\n", fv.Path, fv.Error)
			}
		}
	}

	if !res.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func validateFile(path string) FileValidation {
	fv := FileValidation{Path: path}
	sc, err := harness.LoadScenario(path)
	if err != nil {
		fv.Error, fv.ErrorCode = err.Error(), ErrCodeScenario
		return fv
	}
	fv.Scenario = sc.Name
	if _, err := harness.BuildGraphs(sc); err != nil {
		fv.Error, fv.ErrorCode = err.Error(), ErrCodeRegistration
		if !errors.Is(err, harness.ErrRegistration) {
			fv.ErrorCode = ErrCodeGeneric
		}
		return fv
	}
	fv.Valid = true
	return fv
}
