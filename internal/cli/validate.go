package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the manifest",
	Long:  `Checks the manifest for malformed declarations, duplicate IDs, unknown references, and dependency cycles without touching any state.`,
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	m, err := manifest.Load(manifestFile)
	if err != nil {
		return renderValidationFailure(err)
	}

	if _, err := engine.BuildGraph(m.Resources); err != nil {
		return renderValidationFailure(err)
	}

	fmt.Printf("%sManifest is valid. %d resources declared.%s\n", colorGreen, len(m.Resources), colorReset)
	return nil
}

func renderValidationFailure(err error) error {
	var verr *ir.ValidationError
	if errors.As(err, &verr) {
		fmt.Printf("%sManifest is invalid:%s\n", colorRed, colorReset)
		for _, issue := range verr.Issues {
			fmt.Printf("  - %s\n", issue)
		}
		return fmt.Errorf("%d validation issues", len(verr.Issues))
	}

	var cerr *engine.CycleError
	if errors.As(err, &cerr) {
		fmt.Printf("%sDependency cycle detected:%s\n", colorRed, colorReset)
		fmt.Printf("  %s\n", strings.Join(cerr.Path, " -> "))
		return errors.New("dependency cycle")
	}
	return err
}
