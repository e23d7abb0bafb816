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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	v1 "github.com/courierd/courierd/pkg/apis/v1"
	"github.com/courierd/courierd/pkg/operator"
	"github.com/courierd/courierd/pkg/operator/options"
)

var (
	optimizeOpts        = options.New()
	optimizeRequestFile string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run a single optimization pass over a request file and print the plan",
	RunE:  runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVarP(&optimizeRequestFile, "request-file", "f", "", "Path to an optimization request, YAML or JSON")
	optimizeCmd.Flags().AddGoFlagSet(optimizeOpts.FlagSet)
	_ = optimizeCmd.MarkFlagRequired("request-file")
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	if err := optimizeOpts.Resolve(); err != nil {
		return err
	}
	// The plan document owns stdout, so logs move to stderr unless the caller
	// asked for something else.
	if !cmd.Flags().Changed("log-output-paths") {
		optimizeOpts.LogOutputPaths = "stderr"
	}

	raw, err := os.ReadFile(optimizeRequestFile)
	if err != nil {
		return fmt.Errorf("reading request file, %w", err)
	}
	request := &v1.OptimizationRequest{}
	if err := yaml.Unmarshal(raw, request); err != nil {
		return fmt.Errorf("decoding request file %q, %w", optimizeRequestFile, err)
	}

	ctx, op := operator.NewOperator(options.ToContext(cmd.Context(), optimizeOpts))
	result, err := op.Optimizer.Optimize(ctx, request)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result, %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
