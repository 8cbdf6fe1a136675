package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ericogr/htu21d-logger/pkg/api"
	"github.com/ericogr/htu21d-logger/pkg/config"
	"github.com/ericogr/htu21d-logger/pkg/monitor"
	"github.com/ericogr/htu21d-logger/pkg/output"
	"github.com/ericogr/htu21d-logger/pkg/output/console"
	"github.com/ericogr/htu21d-logger/pkg/output/kafka"
	"github.com/ericogr/htu21d-logger/pkg/output/mqtt"
	"github.com/ericogr/htu21d-logger/pkg/sensor"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:          "htu21d-logger",
	Short:        "Read and log HTU21D temperature and humidity",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(viper.New(), cmd.Flags())
		if err != nil {
			return err
		}
		cfg = c
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		log.SetOutput(os.Stderr)
		if cfg.Debug {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.WarnLevel)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read both channels once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRead(cmd.OutOrStdout())
	},
}

func init() {
	config.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(readCmd)
}

// initOutputs builds the configured publishers. On error the ones already
// built are closed.
func initOutputs(cfg config.Config) (output.Multi, error) {
	var outs output.Multi
	for _, oc := range cfg.Outputs {
		var (
			o   output.Output
			err error
		)
		switch strings.ToLower(oc.Type) {
		case config.OutputConsole:
			o = console.NewConsole()
		case config.OutputMQTT:
			mc := config.MQTTConfig{}
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			o, err = mqtt.NewMQTT(mc)
		case config.OutputKafka:
			kc := config.KafkaConfig{}
			if oc.Kafka != nil {
				kc = *oc.Kafka
			}
			o, err = kafka.NewKafka(kc)
		default:
			err = fmt.Errorf("unknown output %q", oc.Type)
		}
		if err != nil {
			outs.Close()
			return nil, fmt.Errorf("init output %s: %w", oc.Type, err)
		}
		outs = append(outs, o)
	}
	return outs, nil
}

func newMonitor(cfg config.Config, sources sensor.Sources, outs output.Multi) (*monitor.Monitor, error) {
	opts := monitor.Options{
		Intervals: sensor.Intervals(cfg),
		Scales:    sensor.Scales(cfg),
	}
	if len(outs) > 0 {
		opts.Publisher = outs
	}
	m, err := monitor.New(sources, opts)
	if err != nil {
		sources.Close()
		outs.Close()
		return nil, err
	}
	return m, nil
}

func runInteractive(in io.Reader, out io.Writer) error {
	sources, err := sensor.Open(cfg)
	if err != nil {
		return err
	}
	outs, err := initOutputs(cfg)
	if err != nil {
		sources.Close()
		return err
	}

	m, err := newMonitor(cfg, sources, outs)
	if err != nil {
		return err
	}

	var srv *api.Server
	if cfg.HTTPAddr != "" {
		srv = api.NewServer(cfg.HTTPAddr, m, log.StandardLogger())
		srv.Start()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	menuDone := make(chan struct{})
	go func() {
		defer close(menuDone)
		newMenu(m, in, out).run(cfg.LogFile)
	}()

	select {
	case <-menuDone:
	case s := <-sigs:
		log.Infof("received %s, shutting down", s)
	}

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("control API shutdown")
		}
	}
	return m.Shutdown()
}

func runRead(out io.Writer) error {
	sources, err := sensor.Open(cfg)
	if err != nil {
		return err
	}
	m, err := newMonitor(cfg, sources, nil)
	if err != nil {
		return err
	}
	defer m.Shutdown()
	for _, ch := range sensor.Channels {
		r, err := m.ReadNow(ch)
		if err != nil {
			return fmt.Errorf("read %s data: %w", ch, err)
		}
		fmt.Fprintf(out, "%s: %f %s\n", ch.Label(), r.Value, ch.Unit())
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
