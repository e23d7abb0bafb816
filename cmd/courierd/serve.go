/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"github.com/spf13/cobra"

	"github.com/courierd/courierd/pkg/operator"
	"github.com/courierd/courierd/pkg/operator/options"
)

var serveOpts = options.New()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch, batching, reoptimization and SLA engines until signalled",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().AddGoFlagSet(serveOpts.FlagSet)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Cobra already parsed the flags into serveOpts, so only the config file
	// layering and validation remain.
	if err := serveOpts.Resolve(); err != nil {
		return err
	}
	ctx, op := operator.NewOperator(options.ToContext(cmd.Context(), serveOpts))
	return op.Start(ctx)
}
