package cmd

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"k8s.io/cli-runtime/pkg/genericclioptions"

	"github.com/eschercloudai/kubernetes-deploy/pkg/clusterclient"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"
)

// newVersionCommand returns a version command that prints this tool's own
// version plus the resolved cluster CLI binary's client version - a deploy's
// behavior depends on both, and the binary is resolved via the same
// KUBERNETES_DEPLOY_BIN override the root command uses.
func newVersionCommand(cf *genericclioptions.ConfigFlags, log logr.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print this command's version.",
		Long:  "Print this command's version, plus the resolved cluster CLI binary's client version.",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Println(constants.VersionString())

			binary := clusterclient.ResolveBinary()

			client := clusterclient.New(cf, "", "", log)

			result, err := client.Run(cmd.Context(), []string{"version", "--client", "--output=yaml"}, clusterclient.RunOptions{LogFailure: false})
			if err != nil || !result.Succeeded() {
				fmt.Printf("%s: client version unavailable\n", binary)
				return
			}

			fmt.Printf("%s:\n  %s", binary, strings.ReplaceAll(strings.TrimSpace(result.Stdout), "\n", "\n  "))
			fmt.Println()
		},
	}
}
