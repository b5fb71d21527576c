package cmd

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/seisnode/internal/logging"
	"github.com/smazurov/seisnode/internal/nats"
	"github.com/smazurov/seisnode/internal/streamid"
	"github.com/smazurov/seisnode/internal/version"
	"github.com/smazurov/seisnode/internal/waveform"
)

// CreateSimulateCmd creates the simulate command.
func CreateSimulateCmd() *cobra.Command {
	var natsURL string
	var rate float64
	var packetDuration time.Duration
	var runFor time.Duration
	var amplitude float64
	var frequency float64
	var seed uint64

	cmd := &cobra.Command{
		Use:   "simulate <stream-id>...",
		Short: "Publish synthetic tremor packets to NATS",
		Long: `Generates a volcanic-tremor-like signal for each stream and publishes it on the ` +
			`stream's waveform subject in real time. Runs until interrupted or --duration elapses.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("simulate")

			ids := make([]streamid.StreamID, 0, len(args))
			for _, arg := range args {
				id, err := streamid.ParseStrict(arg)
				if err != nil {
					logger.Error("Invalid stream identifier", "error", err)
					os.Exit(1)
				}
				ids = append(ids, id)
			}

			if rate <= 0 || packetDuration <= 0 {
				logger.Error("Rate and packet duration must be positive")
				os.Exit(1)
			}

			publisher := nats.NewPublisher(natsURL, version.ClientName("simulate"), logger)
			if err := publisher.Connect(); err != nil {
				os.Exit(1)
			}
			defer publisher.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if runFor > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, runFor)
				defer cancel()
			}

			sources := make([]*tremorSource, len(ids))
			start := time.Now().UTC().Truncate(time.Second)
			for i, id := range ids {
				sources[i] = newTremorSource(id, start, rate, frequency, amplitude, seed+uint64(i))
			}

			samples := int(math.Round(rate * packetDuration.Seconds()))
			if samples < 1 {
				samples = 1
			}
			logger.Info("Simulating streams", "streams", len(ids), "url", natsURL,
				"sampling_rate", rate, "samples_per_packet", samples)

			published := runSimulation(ctx, sources, samples, packetDuration, publisher.PublishPacket)
			if err := publisher.Flush(5 * time.Second); err != nil {
				logger.Warn("Failed to flush NATS connection", "error", err)
			}
			logger.Info("Simulation finished", "packets", published)
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats-url", fmt.Sprintf("nats://127.0.0.1:%d", nats.DefaultPort), "NATS server URL")
	cmd.Flags().Float64Var(&rate, "rate", 100, "Sampling rate in Hz")
	cmd.Flags().DurationVar(&packetDuration, "packet", time.Second, "Time covered by each packet")
	cmd.Flags().DurationVar(&runFor, "duration", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().Float64Var(&amplitude, "amplitude", 500, "Tremor amplitude in counts")
	cmd.Flags().Float64Var(&frequency, "frequency", 2, "Dominant tremor frequency in Hz")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Noise seed")

	return cmd
}

// runSimulation publishes one packet per source every interval until ctx is
// done. Returns the number of packets published.
func runSimulation(
	ctx context.Context,
	sources []*tremorSource,
	samples int,
	interval time.Duration,
	publish func(waveform.Packet) error,
) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	published := 0
	for {
		for _, src := range sources {
			if err := publish(src.Next(samples)); err == nil {
				published++
			}
		}

		select {
		case <-ctx.Done():
			return published
		case <-ticker.C:
		}
	}
}

// tremorSource produces a continuous synthetic signal: a dominant harmonic
// tremor with one overtone, slowly modulated in amplitude, plus Gaussian noise.
type tremorSource struct {
	id        streamid.StreamID
	origin    time.Time
	rate      float64
	frequency float64
	amplitude float64
	rng       *rand.Rand
	n         int64
}

func newTremorSource(id streamid.StreamID, origin time.Time, rate, frequency, amplitude float64, seed uint64) *tremorSource {
	return &tremorSource{
		id:        id,
		origin:    origin,
		rate:      rate,
		frequency: frequency,
		amplitude: amplitude,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next returns the next packet of count samples, contiguous with the previous one.
func (s *tremorSource) Next(count int) waveform.Packet {
	pkt := waveform.Packet{
		Stream:     s.id,
		StartTime:  s.origin.Add(time.Duration(float64(s.n) / s.rate * float64(time.Second))),
		SampleRate: s.rate,
		Samples:    make([]float64, count),
	}

	for i := range pkt.Samples {
		t := float64(s.n+int64(i)) / s.rate
		envelope := 1 + 0.5*math.Sin(2*math.Pi*t/600)
		wave := math.Sin(2*math.Pi*s.frequency*t) + 0.4*math.Sin(2*math.Pi*2.3*s.frequency*t)
		pkt.Samples[i] = s.amplitude * (envelope*wave + 0.1*s.rng.NormFloat64())
	}

	s.n += int64(count)
	return pkt
}
