package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cruisemlp/pkg"
	"cruisemlp/pkg/config"
	"cruisemlp/pkg/history"
)

func TrainCommand() *cobra.Command {
	var configFile string
	var metricsAddr string
	var historyFile string
	trainingParameters := pkg.DefaultTrainingParameters()
	var noShuffle bool

	var cmd = &cobra.Command{
		Use:   "train TRAIN_FILE VALID_FILE",
		Short: "Trains the cruise model on the training file, validating on the validation file after every epoch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelConfig, err := config.Load(configFile)
			if err != nil {
				return err
			}
			trainingParameters.Shuffle = !noShuffle

			var options []pkg.Option
			if metricsAddr != "" {
				registry := prometheus.NewRegistry()
				metrics, err := pkg.NewMetrics(registry)
				if err != nil {
					return fmt.Errorf("error registering metrics: %w", err)
				}
				serveMetrics(metricsAddr, registry)
				options = append(options, pkg.WithMetrics(metrics))
			}
			if historyFile != "" {
				store, err := history.Open(historyFile)
				if err != nil {
					return err
				}
				defer store.Close()
				options = append(options, pkg.WithRecorder(store))
			}

			pkg.LogHost()
			_, err = pkg.Train(args[0], args[1], modelConfig, trainingParameters, options...)
			return err
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML file with the cruise_mlp model section (optional)")
	cmd.Flags().StringVarP(&trainingParameters.CheckpointFile, "checkpoint", "o", trainingParameters.CheckpointFile, "file the latest checkpoint is written to after every epoch")
	cmd.Flags().StringVarP(&trainingParameters.BestCheckpointFile, "best-checkpoint", "", "", "file the best validation checkpoint is written to (optional)")
	cmd.Flags().IntVarP(&trainingParameters.BatchSize, "batch-size", "b", trainingParameters.BatchSize, "training batch size")
	cmd.Flags().IntVarP(&trainingParameters.ValidationBatchSize, "valid-batch-size", "", trainingParameters.ValidationBatchSize, "validation batch size")
	cmd.Flags().IntVarP(&trainingParameters.NumEpochs, "num-epochs", "n", trainingParameters.NumEpochs, "number of epochs to train")
	cmd.Flags().Float64VarP(&trainingParameters.LearningRate, "learning-rate", "l", trainingParameters.LearningRate, "initial learning rate")
	cmd.Flags().Float64VarP(&trainingParameters.PlateauFactor, "plateau-factor", "", trainingParameters.PlateauFactor, "learning rate multiplier on a plateau")
	cmd.Flags().IntVarP(&trainingParameters.PlateauPatience, "patience", "p", trainingParameters.PlateauPatience, "epochs without improvement before the learning rate is reduced")
	cmd.Flags().Float64VarP(&trainingParameters.PlateauThreshold, "plateau-threshold", "", trainingParameters.PlateauThreshold, "relative improvement of the validation loss that resets the patience")
	cmd.Flags().Float64VarP(&trainingParameters.MinLearningRate, "min-learning-rate", "", trainingParameters.MinLearningRate, "learning rate floor")
	cmd.Flags().IntVarP(&trainingParameters.ReportInterval, "report-interval", "r", trainingParameters.ReportInterval, "loss report interval in steps")
	cmd.Flags().IntVarP(&trainingParameters.ReportWindow, "report-window", "", trainingParameters.ReportWindow, "number of recent steps averaged in a loss report")
	cmd.Flags().Float64VarP(&trainingParameters.ClassWeight, "class-weight", "", trainingParameters.ClassWeight, "weight of the classification loss")
	cmd.Flags().Float64VarP(&trainingParameters.TimeThreshold, "time-threshold", "", trainingParameters.TimeThreshold, "time targets at or above this value add no time loss")
	cmd.Flags().Float64VarP(&trainingParameters.GradientClip, "gradient-clip", "", trainingParameters.GradientClip, "clip gradients by value, 0 disables clipping")
	cmd.Flags().Uint64VarP(&trainingParameters.RndSeed, "random-seed", "x", trainingParameters.RndSeed, "random seed of initialization and dropout")
	cmd.Flags().Int64VarP(&trainingParameters.ShuffleSeed, "shuffle-seed", "", trainingParameters.ShuffleSeed, "seed of the data shuffle")
	cmd.Flags().BoolVarP(&noShuffle, "no-shuffle", "", false, "keep the file order of the data")
	cmd.Flags().StringVarP(&metricsAddr, "metrics-addr", "", "", "address to serve prometheus metrics on, e.g. :9090 (optional)")
	cmd.Flags().StringVarP(&historyFile, "history-db", "", "", "sqlite file the per epoch history is stored in (optional)")

	return cmd
}

func EvalCommand() *cobra.Command {
	var batchSize int
	var classWeight float64
	var timeThreshold float64

	var cmd = &cobra.Command{
		Use:   "eval CHECKPOINT DATA_FILE",
		Short: "Evaluates a checkpoint on a data file and prints loss, accuracy and time R2",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := pkg.Test(args[0], args[1], batchSize, pkg.NewCompositeLoss(classWeight, timeThreshold), cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 1024, "batch size")
	cmd.Flags().Float64VarP(&classWeight, "class-weight", "", pkg.DefaultClassWeight, "weight of the classification loss")
	cmd.Flags().Float64VarP(&timeThreshold, "time-threshold", "", pkg.DefaultTimeThreshold, "time targets at or above this value add no time loss")

	return cmd
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("Serving metrics")
}

var logLevel string
var logFormat string

func main() {

	Main := &cobra.Command{Use: "cruisemlp", PersistentPreRunE: setupLogging, SilenceUsage: true, SilenceErrors: true}

	Main.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Logging level: info error or debug")
	Main.PersistentFlags().StringVarP(&logFormat, "log-format", "", "pretty", "Logging format: pretty or json")

	Main.AddCommand(TrainCommand())
	Main.AddCommand(EvalCommand())

	if err := Main.Execute(); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {

	switch logLevel {
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		return fmt.Errorf("invalid logging level %q", logLevel)
	}

	switch logFormat {
	case "pretty":
		setupPrettyLogging()
	case "json":
	default:
		return fmt.Errorf("invalid log format %q", logFormat)
	}
	return nil
}

func setupPrettyLogging() {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	writer.FormatFieldValue = func(i interface{}) string {
		switch v := i.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return fmt.Sprint(n)
			}
			val, _ := v.Float64()
			return fmt.Sprintf("%.5f", val)
		default:
			return fmt.Sprintf("%s", i)
		}

	}
	log.Logger = log.Output(writer)

}
