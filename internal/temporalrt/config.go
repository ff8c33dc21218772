// Package temporalrt dials the Temporal client and bootstraps the worker
// processes this system runs: an orchestrator-only worker (spec 4.F's
// durable signal-driven workflow) plus one worker per resource class (spec
// 5's CPU and GPU activity queues). Grounded on the teacher's
// internal/temporalx package: same config-from-env shape, same dial-with-
// retry client constructor, same namespace auto-registration knob.
package temporalrt

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oxbowlabs/vqueryd/internal/workflow"
)

// Config is every environment-derived Temporal setting this system reads at
// startup (spec section 6: "durable runtime endpoint ... worker-thread
// counts per queue").
type Config struct {
	Address   string
	Namespace string

	OrchestratorTaskQueue string
	CPUTaskQueue          string
	GPUTaskQueue          string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	CPUConcurrency int
	GPUConcurrency int

	AutoRegisterNamespace  bool
	NamespaceRetentionDays int
}

// LoadConfig reads TEMPORAL_* variables, defaulting task queue names to the
// constants workflow package already defines so a worker and the code
// scheduling activities against it can never drift apart.
func LoadConfig() Config {
	return Config{
		Address:   strings.TrimSpace(os.Getenv("TEMPORAL_ADDRESS")),
		Namespace: orDefault(os.Getenv("TEMPORAL_NAMESPACE"), "vqueryd"),

		OrchestratorTaskQueue: orDefault(os.Getenv("TEMPORAL_ORCHESTRATOR_TASK_QUEUE"), workflow.OrchestratorTaskQueue),
		CPUTaskQueue:          orDefault(os.Getenv("TEMPORAL_CPU_TASK_QUEUE"), workflow.CPUTaskQueue),
		GPUTaskQueue:          orDefault(os.Getenv("TEMPORAL_GPU_TASK_QUEUE"), workflow.GPUTaskQueue),

		ClientCertPath: strings.TrimSpace(os.Getenv("TEMPORAL_CLIENT_CERT_PATH")),
		ClientKeyPath:  strings.TrimSpace(os.Getenv("TEMPORAL_CLIENT_KEY_PATH")),
		ClientCAPath:   strings.TrimSpace(os.Getenv("TEMPORAL_CLIENT_CA_PATH")),

		CPUConcurrency: envInt("CPU_WORKER_CONCURRENCY", 8),
		GPUConcurrency: envInt("GPU_WORKER_CONCURRENCY", 2),

		AutoRegisterNamespace:  envBool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		NamespaceRetentionDays: envInt("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),
	}
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func durationSecondsFromEnv(key string, defSeconds int) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return time.Duration(defSeconds) * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return time.Duration(defSeconds) * time.Second
	}
	return time.Duration(n) * time.Second
}

func durationMillisFromEnv(key string, defMillis int) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return time.Duration(defMillis) * time.Millisecond
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return time.Duration(defMillis) * time.Millisecond
	}
	return time.Duration(n) * time.Millisecond
}

func clampBackoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if max > 0 && sleep >= max {
			return max
		}
	}
	if max > 0 && sleep > max {
		return max
	}
	return sleep
}
