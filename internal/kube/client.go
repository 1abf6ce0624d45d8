package kube

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// Options selects the kubeconfig and context to connect with.
type Options struct {
	// Kubeconfig is an explicit path; empty falls back to KUBECONFIG, then
	// in-cluster config, then the default loading rules.
	Kubeconfig string
	// Context overrides the kubeconfig's current-context.
	Context string
	// QPS and Burst tune the client-side rate limiter; zero keeps client-go defaults.
	QPS   float32
	Burst int
}

// Connection is the cluster state accessor plus what we learned about it
// while loading.
type Connection struct {
	Client      kubernetes.Interface
	Config      *rest.Config
	ClusterName string
}

// pickKubeconfigPath chooses the kubeconfig file to load.
// Priority:
//  1. explicitPath (flag)
//  2. KUBECONFIG env (first existing entry if multiple)
//  3. empty string (caller decides next steps)
func pickKubeconfigPath(explicitPath string) string {
	if strings.TrimSpace(explicitPath) != "" {
		return explicitPath
	}

	env := strings.TrimSpace(os.Getenv("KUBECONFIG"))
	if env == "" {
		return ""
	}

	for _, p := range filepath.SplitList(env) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	// No existing entry found, return the raw env so errors are descriptive.
	return env
}

// clusterNameFor resolves the cluster entry referenced by the chosen context.
func clusterNameFor(raw *clientcmdapi.Config, contextOverride string) string {
	name := raw.CurrentContext
	if contextOverride != "" {
		name = contextOverride
	}
	if c, ok := raw.Contexts[name]; ok && c.Cluster != "" {
		return c.Cluster
	}
	return name
}

// LoadConfig returns a rest.Config and the cluster name it points at.
// A kubeconfig path (explicit or from KUBECONFIG) is loaded from disk
// directly so failures produce real parse errors instead of
// "no configuration provided".
func LoadConfig(opts Options) (*rest.Config, string, error) {
	chosen := pickKubeconfigPath(opts.Kubeconfig)
	overrides := &clientcmd.ConfigOverrides{CurrentContext: strings.TrimSpace(opts.Context)}

	if strings.TrimSpace(chosen) != "" {
		abs := chosen
		if a, err := filepath.Abs(chosen); err == nil {
			abs = a
		}

		rawCfg, err := clientcmd.LoadFromFile(abs)
		if err != nil {
			return nil, "", fmt.Errorf("load kube config: read kubeconfig file (path=%q): %w", abs, err)
		}

		cfg, err := clientcmd.NewDefaultClientConfig(*rawCfg, overrides).ClientConfig()
		if err != nil {
			return nil, "", fmt.Errorf("load kube config: kubeconfig (path=%q currentContext=%q): %w",
				abs, rawCfg.CurrentContext, err)
		}
		return cfg, clusterNameFor(rawCfg, overrides.CurrentContext), nil
	}

	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, "in-cluster", nil
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	loader := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides)
	cfg, err := loader.ClientConfig()
	if err != nil {
		return nil, "", fmt.Errorf("load kube config: default rules: %w", err)
	}
	name := "default"
	if raw, err := loader.RawConfig(); err == nil {
		name = clusterNameFor(&raw, overrides.CurrentContext)
	}
	return cfg, name, nil
}

// Connect loads the configuration and builds a typed clientset. Any error
// here means there is no cluster to audit.
func Connect(opts Options) (*Connection, error) {
	cfg, name, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	if opts.QPS > 0 {
		cfg.QPS = opts.QPS
	}
	if opts.Burst > 0 {
		cfg.Burst = opts.Burst
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kube client: %w", err)
	}
	if name == "" {
		name = "default"
	}
	return &Connection{Client: cs, Config: cfg, ClusterName: name}, nil
}
