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

package options_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/courierd/courierd/pkg/operator/options"
)

func TestOptions(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Options")
}

var _ = Describe("Options", func() {
	It("should apply documented defaults when nothing is passed", func() {
		opts := options.New()
		Expect(opts.Parse(nil)).To(Succeed())
		Expect(opts.Dispatch.Interval).To(Equal(5 * time.Second))
		Expect(opts.Batching.Interval).To(Equal(30 * time.Second))
		Expect(opts.Reoptimization.Interval).To(Equal(60 * time.Second))
		Expect(opts.SLA.Interval).To(Equal(15 * time.Second))
		Expect(opts.OptimizerTimeout).To(Equal(30 * time.Second))
		Expect(opts.WeightsPreset).To(Equal("default"))
		Expect(opts.DistributionStrategy).To(Equal("best_match"))
		Expect(opts.MetricsCacheTTL).To(Equal(5 * time.Minute))
		Expect(opts.MetricsCacheSweepInterval).To(Equal(time.Minute))
		Expect(opts.SLAImminentBand).To(Equal(10 * time.Minute))
		Expect(opts.LocationFreshness).To(Equal(5 * time.Minute))
		Expect(opts.GracefulTimeout).To(Equal(30 * time.Second))
	})
	It("should prefer flags over environment variables", func() {
		GinkgoT().Setenv("DISPATCH_INTERVAL", "9s")
		GinkgoT().Setenv("MAX_BATCH_SIZE", "3")
		opts := options.New()
		Expect(opts.Parse([]string{"--dispatch-interval", "2s"})).To(Succeed())
		Expect(opts.Dispatch.Interval).To(Equal(2 * time.Second))
		Expect(opts.MaxBatchSize).To(Equal(3))
	})
	It("should reject unknown flags", func() {
		opts := options.New()
		opts.SetOutput(GinkgoWriter)
		Expect(opts.Parse([]string{"--definitely-not-a-flag", "1"})).ToNot(Succeed())
	})
	It("should reject invalid enum options", func() {
		opts := options.New()
		Expect(opts.Parse([]string{"--weights-preset", "fastest"})).ToNot(Succeed())
		opts = options.New()
		Expect(opts.Parse([]string{"--distribution-strategy", "spread"})).ToNot(Succeed())
		opts = options.New()
		Expect(opts.Parse([]string{"--log-level", "verbose"})).ToNot(Succeed())
	})
	It("should accumulate multiple violations", func() {
		opts := options.New()
		err := opts.Parse([]string{"--dispatch-concurrency", "0", "--max-batch-size", "0"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("dispatch-concurrency"))
		Expect(err.Error()).To(ContainSubstring("max-batch-size"))
	})
	It("should reject malformed collaborator endpoints", func() {
		opts := options.New()
		Expect(opts.Parse([]string{"--advisor-endpoint", "not a url"})).ToNot(Succeed())
		opts = options.New()
		Expect(opts.Parse([]string{"--store-endpoint", "http://valid.example:9090"})).To(Succeed())
	})
})

var _ = Describe("File", func() {
	It("should layer a tuning file over the defaults", func() {
		path := filepath.Join(GinkgoT().TempDir(), "tuning.toml")
		Expect(os.WriteFile(path, []byte(`
[speed_factors]
CAR = 1.1

[breaker.store]
failure_threshold = 3
timeout_ms = 1500

[presets.default]
vehicle_to_pickup_distance = 0.4
`), 0o600)).To(Succeed())
		opts := options.New()
		Expect(opts.Parse([]string{"--config-file", path})).To(Succeed())
		Expect(opts.File).ToNot(BeNil())
		Expect(opts.File.SpeedFactors).To(HaveKeyWithValue("CAR", 1.1))
		Expect(opts.File.Breakers).To(HaveKey("store"))
		Expect(*opts.File.Breakers["store"].FailureThreshold).To(Equal(3))
		Expect(*opts.File.Presets["default"].VehicleToPickupDistance).To(Equal(0.4))
	})
	It("should reject unknown toml keys", func() {
		_, err := options.ParseFile([]byte("[speed_factors]\nCAR = 1.1\n\n[surprise]\nx = 1\n"))
		Expect(err).To(HaveOccurred())
	})
	It("should reject unknown enum table keys", func() {
		file, err := options.ParseFile([]byte("[speed_factors]\nBICYCLE = 0.5\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(file.Validate()).ToNot(Succeed())
	})
	It("should reject out of range preset weights", func() {
		file, err := options.ParseFile([]byte("[presets.default]\nvehicle_load_balance = 1.5\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(file.Validate()).ToNot(Succeed())
	})
})
