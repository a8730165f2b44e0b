// ARES: Automatic REcord System.
//
// A Kubernetes-native controller that creates and manages DNS records for
// syntixi.io/v1alpha1 Record resources, deriving record values from cluster
// state where requested and tracking ownership of every record it creates.
package main

import (
	goflag "flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"

	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/RyanSquared/k8s-ares/api/v1alpha1"
	"github.com/RyanSquared/k8s-ares/internal/config"
	"github.com/RyanSquared/k8s-ares/internal/controller"
	_ "github.com/RyanSquared/k8s-ares/internal/dns/providers"
	"github.com/RyanSquared/k8s-ares/internal/metrics"
)

var (
	scheme  = runtime.NewScheme()
	Version = "dev"
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))
}

type options struct {
	secret          string
	secretKey       string
	secretNamespace string
	metricsAddr     string
}

// envOrDefault lets every flag default be overridden by an environment
// variable, for container deployments that configure through the pod spec.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	var opts options
	zapOpts := zap.Options{Development: true}

	cmd := &cobra.Command{
		Use:   "ares",
		Short: "Automatic REcord System: manage DNS records from Kubernetes resources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))
			return run(opts)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&opts.secret, "secret", envOrDefault("SECRET", "ares-secret"),
		"Name of the Secret to load configuration from.")
	cmd.Flags().StringVar(&opts.secretKey, "secret-key", envOrDefault("SECRET_KEY", "ares.yaml"),
		"Key of the Secret to load configuration from.")
	cmd.Flags().StringVar(&opts.secretNamespace, "secret-namespace", envOrDefault("SECRET_NAMESPACE", "default"),
		"Namespace where the Secret is stored.")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", envOrDefault("METRICS_ADDR", ":9090"),
		"Address to serve prometheus metrics on; empty disables the endpoint.")

	zapFlags := goflag.NewFlagSet("zap", goflag.ExitOnError)
	zapOpts.BindFlags(zapFlags)
	cmd.Flags().AddGoFlagSet(zapFlags)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	log := ctrl.Log.WithName("setup")
	log.Info("starting ares", "version", Version)

	ctx := ctrl.SetupSignalHandler()
	restConfig := ctrl.GetConfigOrDie()

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("creating kubernetes client: %w", err)
	}

	records, err := client.NewWithWatch(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return fmt.Errorf("creating record client: %w", err)
	}

	log.Info("loading configuration from secret",
		"secret", opts.secret, "key", opts.secretKey, "namespace", opts.secretNamespace)
	configs, err := config.LoadFromSecret(ctx, clientset, opts.secretNamespace, opts.secret, opts.secretKey)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	log.Info("configuration loaded", "entries", len(configs))

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: opts.metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(err, "metrics server exited")
			}
		}()
	}

	dispatcher := &controller.Dispatcher{
		Clientset: clientset,
		Records:   records,
		Log:       ctrl.Log.WithName("dispatcher"),
	}
	return dispatcher.Run(ctx, configs)
}
