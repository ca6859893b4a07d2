package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the dependency graph in DOT format",
	Long:  `Renders the manifest's dependency graph as Graphviz DOT, suitable for piping into dot -Tsvg.`,
	RunE:  runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	graph, err := loadGraph(manifestFile)
	if err != nil {
		return renderValidationFailure(err)
	}

	fmt.Println("digraph stackform {")
	fmt.Println("  rankdir = \"LR\";")
	for _, id := range graph.IDs() {
		res := graph.Resource(id)
		fmt.Printf("  %q [label=%q];\n", id, fmt.Sprintf("%s\n%s", id, res.Type))
		for _, dep := range graph.Dependencies(id) {
			fmt.Printf("  %q -> %q;\n", id, dep)
		}
	}
	fmt.Println("}")
	return nil
}
