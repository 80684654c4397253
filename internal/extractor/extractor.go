package extractor

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/engine/protocol"
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/flow"
	"Go2FlowMeter/internal/flowtable"
	"Go2FlowMeter/internal/metrics"
	"Go2FlowMeter/internal/model"
	"Go2FlowMeter/pkg/pcap"
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const metricsSource = "extractor"

// Profile is a configured output with its compiled schema.
type Profile struct {
	Def    config.ProfileDef
	Schema *features.Schema
}

// Result describes the CSV file produced for one profile.
type Result struct {
	Profile string
	Path    string
	// Rows counts the flows written by the dump; Closed the closed flows appended after it.
	Rows   int
	Closed int
	Stats  pcap.Stats
}

// Extractor turns capture files into feature CSV files, one per profile.
type Extractor struct {
	cfg      config.ExtractorConfig
	parser   *protocol.Parser
	profiles []Profile
}

// New compiles the profile schemas of cfg.
func New(cfg config.ExtractorConfig) (*Extractor, error) {
	e := &Extractor{
		cfg:    cfg,
		parser: protocol.NewParser(cfg.IPv4Enabled(), cfg.IPv6Enabled()),
	}
	for _, def := range cfg.Profiles {
		schema, err := features.NewSchema(def.Name, features.NewKeySet(def.Features...), def.Label)
		if err != nil {
			return nil, fmt.Errorf("profile '%s': %w", def.Name, err)
		}
		e.profiles = append(e.profiles, Profile{Def: def, Schema: schema})
	}
	if len(e.profiles) == 0 {
		return nil, errors.New("no extraction profiles configured")
	}
	return e, nil
}

// Profiles returns the compiled profiles.
func (e *Extractor) Profiles() []Profile { return e.profiles }

// Run reads pcapPath once and feeds every packet to one flow table per
// profile. Each profile writes <output_dir>/<uuid>.csv.
func (e *Extractor) Run(ctx context.Context, pcapPath string) ([]Result, error) {
	reader, err := pcap.NewReader(pcapPath, e.parser)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", pcapPath, err)
	}
	defer reader.Close()

	log.Printf("Extracting flows from %s for %d profile(s)", pcapPath, len(e.profiles))

	g, gctx := errgroup.WithContext(ctx)
	inputs := make([]chan *model.PacketRecord, len(e.profiles))
	results := make([]Result, len(e.profiles))
	for i := range e.profiles {
		inputs[i] = make(chan *model.PacketRecord, 1024)
	}

	records := make(chan *model.PacketRecord, 1024)
	var stats pcap.Stats
	g.Go(func() error {
		stats = reader.ReadPacketsContext(gctx, records)
		return nil
	})
	g.Go(func() error {
		defer func() {
			for _, in := range inputs {
				close(in)
			}
		}()
		for rec := range records {
			for _, in := range inputs {
				// every profile gets its own copy, records are single-owner
				c := *rec
				select {
				case in <- &c:
				case <-gctx.Done():
					for range records {
					}
					return gctx.Err()
				}
			}
		}
		return nil
	})
	for i := range e.profiles {
		g.Go(func() error {
			res, err := e.runProfile(gctx, e.profiles[i], inputs[i])
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extraction of %s interrupted: %w", pcapPath, err)
	}
	for i := range results {
		results[i].Stats = stats
	}
	log.WithFields(log.Fields{
		"file":      filepath.Base(pcapPath),
		"total":     stats.Total,
		"valid":     stats.Valid,
		"discarded": stats.Discarded,
	}).Info("Finished reading capture")
	return results, nil
}

func (e *Extractor) runProfile(ctx context.Context, p Profile, in <-chan *model.PacketRecord) (Result, error) {
	res := Result{Profile: p.Def.Name}
	sep := e.cfg.FieldSeparator

	var closedRows []string
	opts := flowtable.Options{
		Bidirectional:   e.cfg.IsBidirectional(),
		FlowTimeout:     e.cfg.FlowTimeout,
		ActivityTimeout: e.cfg.ActivityTimeout,
		NumShards:       e.cfg.NumShards,
		Separator:       sep,
	}
	if e.cfg.ExportClosedFlows {
		// called from this goroutine only, AddPacket is never concurrent here
		opts.OnClose = func(f *flow.Flow, reason flowtable.CloseReason) {
			metrics.FlowsClosed.WithLabelValues(reason.String()).Inc()
			if f.PacketCount() > 1 {
				closedRows = append(closedRows, strings.Join(f.ToRow(p.Schema), sep))
			}
		}
	}
	table := flowtable.New(opts)

	for rec := range in {
		if err := table.AddPacket(rec); err != nil {
			metrics.PacketsRejected.WithLabelValues(metricsSource).Inc()
			log.Warnf("Profile '%s': dropping packet %d: %v", p.Def.Name, rec.ID, err)
			continue
		}
		metrics.PacketsProcessed.WithLabelValues(metricsSource).Inc()
	}
	// an interrupted read leaves no partial file behind
	if err := ctx.Err(); err != nil {
		return res, err
	}

	outDir := p.Def.OutputDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return res, fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}
	res.Path = filepath.Join(outDir, uuid.New().String()+".csv")

	f, err := os.Create(res.Path)
	if err != nil {
		return res, fmt.Errorf("failed to create %s: %w", res.Path, err)
	}
	defer f.Close()

	res.Rows, err = table.Dump(f, p.Schema.HeaderWith(sep), p.Schema)
	if err != nil {
		return res, fmt.Errorf("failed to write %s: %w", res.Path, err)
	}
	if len(closedRows) > 0 {
		w := bufio.NewWriter(f)
		for _, row := range closedRows {
			w.WriteString(row + flowtable.LineSeparator)
		}
		if err := w.Flush(); err != nil {
			return res, fmt.Errorf("failed to write %s: %w", res.Path, err)
		}
		res.Closed = len(closedRows)
	}
	log.Printf("Profile '%s': wrote %d flows (+%d closed) to %s", p.Def.Name, res.Rows, res.Closed, res.Path)
	return res, nil
}
