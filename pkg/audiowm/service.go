package audiowm

import (
	"context"
	"fmt"
	"sort"

	"github.com/himanishpuri/audiowm/internal/encode"
	audiowmkey "github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/himanishpuri/audiowm/internal/speeddetect"
	"github.com/himanishpuri/audiowm/internal/storage"
	"github.com/himanishpuri/audiowm/internal/syncfinder"
	"github.com/himanishpuri/audiowm/internal/workpool"
	"github.com/himanishpuri/audiowm/pkg/logger"
)

// decoderService is the default implementation of Service.
type decoderService struct {
	storage Storage
	log     Logger
	config  *Config
	pool    *workpool.Pool
	params  params.Params
	// paramsFP tags every logged DecodeSession with the configuration
	// that produced it, since a quality score is only comparable across
	// sessions logged under the same sync/band settings.
	paramsFP string
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	var stor Storage
	var err error
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	return &decoderService{
		storage:  stor,
		log:      cfg.Logger,
		config:   cfg,
		pool:     workpool.New(cfg.WorkerCount),
		params:   cfg.Params,
		paramsFP: storage.ParamsFingerprint(cfg.Params),
	}, nil
}

func (s *decoderService) AddKey(label string, k audiowmkey.Key) error {
	s.log.Infof("registering key %q", label)
	_, err := s.storage.RegisterKey(label, k)
	if err != nil {
		return fmt.Errorf("register key %q: %w", label, err)
	}
	return nil
}

func (s *decoderService) ListKeys() ([]KeyInfo, error) {
	rows, err := s.storage.ListKeys()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := make([]KeyInfo, len(rows))
	for i, r := range rows {
		out[i] = KeyInfo{Label: r.Label, Hex: r.HexKey}
	}
	return out, nil
}

func (s *decoderService) DeleteKey(label string) error {
	return s.storage.DeleteKey(label)
}

// Add embeds a reference watermark for keyLabel into data, using the
// non-core minimal encoder (SPEC_FULL.md §5).
func (s *decoderService) Add(ctx context.Context, data signal.Data, keyLabel string) (signal.Data, error) {
	row, err := s.storage.GetKeyByLabel(keyLabel)
	if err != nil {
		return signal.Data{}, fmt.Errorf("add: lookup key %q: %w", keyLabel, err)
	}
	k, err := audiowmkey.ParseHex(row.HexKey)
	if err != nil {
		return signal.Data{}, fmt.Errorf("add: decode key %q: %w", keyLabel, err)
	}

	enc := encode.New(s.params)
	out := enc.Add(data, k)

	log := s.scopedLog("add")
	log.Infof("embedded watermark for key %q (%d frames)", keyLabel, len(out.Samples)/s.params.FrameSize)
	if err := s.storage.LogSession("add", keyLabel, 0, 0, 0, s.paramsFP); err != nil {
		log.Warnf("logging session for %q: %v", keyLabel, err)
	}
	return out, nil
}

// scopedLog tags every line logged through the returned value with the
// operation name, so concurrent get/cmp/speed requests can be told apart
// in the server's log stream. Falls back to the unscoped logger if it
// isn't the concrete *logger.Logger (e.g. a test double).
func (s *decoderService) scopedLog(op string) Logger {
	if cl, ok := s.log.(*logger.Logger); ok {
		return cl.WithPrefix("[" + op + "]")
	}
	return s.log
}

// Get runs a BLOCK-mode sync search across the given keys (or every
// registered key if keyLabels is empty).
func (s *decoderService) Get(ctx context.Context, data signal.Data, keyLabels []string) (DecodeResult, error) {
	return s.search(data, keyLabels, params.ModeBlock, "get")
}

// Search runs a sync search in the named mode ("block" for a full uncropped
// capture, "clip" for a cropped one; empty defaults to "block").
func (s *decoderService) Search(ctx context.Context, data signal.Data, keyLabels []string, mode string) (DecodeResult, error) {
	m, err := parseMode(mode)
	if err != nil {
		return DecodeResult{}, err
	}
	return s.search(data, keyLabels, m, "search")
}

func parseMode(mode string) (params.Mode, error) {
	switch mode {
	case "", "block":
		return params.ModeBlock, nil
	case "clip":
		return params.ModeClip, nil
	default:
		return 0, fmt.Errorf("unknown search mode %q", mode)
	}
}

// Cmp runs a CLIP-mode sync search, the decode path for cropped clips.
func (s *decoderService) Cmp(ctx context.Context, a, b signal.Data, keyLabels []string) (bool, error) {
	resultA, err := s.search(a, keyLabels, params.ModeClip, "cmp")
	if err != nil {
		return false, err
	}
	resultB, err := s.search(b, keyLabels, params.ModeClip, "cmp")
	if err != nil {
		return false, err
	}

	bestA := bestQuality(resultA.Candidates)
	bestB := bestQuality(resultB.Candidates)
	if bestA == nil || bestB == nil {
		return false, nil
	}
	return bestA.KeyLabel == bestB.KeyLabel, nil
}

func bestQuality(candidates []SyncCandidate) *SyncCandidate {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Quality > best.Quality {
			best = c
		}
	}
	return &best
}

func (s *decoderService) search(data signal.Data, keyLabels []string, mode params.Mode, op string) (DecodeResult, error) {
	log := s.scopedLog(op)

	keys, err := s.resolveKeys(keyLabels)
	if err != nil {
		return DecodeResult{}, err
	}

	finder := syncfinder.New(s.params, s.pool)
	results := finder.Search(keys.keys, data, mode)

	var candidates []SyncCandidate
	for _, r := range results {
		label := keys.labelFor(r.Key)
		for _, sc := range r.Scores {
			candidates = append(candidates, SyncCandidate{
				KeyLabel:  label,
				FrameIdx:  sc.Index,
				Quality:   sc.Quality,
				BlockType: blockTypeString(sc.BlockType),
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Quality > candidates[j].Quality })

	var best *SyncCandidate
	if len(candidates) > 0 {
		best = &candidates[0]
	}
	bestQ := 0.0
	bestLabel := ""
	if best != nil {
		bestQ = best.Quality
		bestLabel = best.KeyLabel
	}
	log.Debugf("%d candidates, best key=%q quality=%.4f", len(candidates), bestLabel, bestQ)
	if err := s.storage.LogSession(op, bestLabel, len(candidates), bestQ, 0, s.paramsFP); err != nil {
		log.Warnf("logging session: %v", err)
	}

	return DecodeResult{Candidates: candidates}, nil
}

// DetectSpeed runs the speed detector across the given keys.
func (s *decoderService) DetectSpeed(ctx context.Context, data signal.Data, keyLabels []string) ([]SpeedResult, error) {
	log := s.scopedLog("speed")

	keys, err := s.resolveKeys(keyLabels)
	if err != nil {
		return nil, err
	}

	detector := speeddetect.New(s.params, s.pool)
	results := detector.DetectSpeed(keys.keys, data)
	log.Debugf("%d speed candidates across %d keys", len(results), len(keys.keys))

	out := make([]SpeedResult, len(results))
	for i, r := range results {
		label := keys.labelFor(r.Key)
		out[i] = SpeedResult{KeyLabel: label, Speed: r.Speed}
		if err := s.storage.LogSession("speed", label, 0, 0, r.Speed, s.paramsFP); err != nil {
			log.Warnf("logging session: %v", err)
		}
	}
	return out, nil
}

// keySet resolves key labels to parsed keys and lets the service map a
// matched key back to the label that produced it for reporting.
type keySet struct {
	keys   []audiowmkey.Key
	byHex  map[string]string
}

func (k *keySet) labelFor(key audiowmkey.Key) string {
	if label, ok := k.byHex[key.String()]; ok {
		return label
	}
	return key.String()
}

func (s *decoderService) resolveKeys(keyLabels []string) (*keySet, error) {
	var rows []KeyRow
	if len(keyLabels) == 0 {
		all, err := s.storage.ListKeys()
		if err != nil {
			return nil, fmt.Errorf("listing keys: %w", err)
		}
		rows = all
	} else {
		for _, label := range keyLabels {
			row, err := s.storage.GetKeyByLabel(label)
			if err != nil {
				return nil, fmt.Errorf("lookup key %q: %w", label, err)
			}
			rows = append(rows, row)
		}
	}

	set := &keySet{byHex: make(map[string]string, len(rows))}
	for _, row := range rows {
		k, err := audiowmkey.ParseHex(row.HexKey)
		if err != nil {
			return nil, fmt.Errorf("parsing stored key %q: %w", row.Label, err)
		}
		set.keys = append(set.keys, k)
		set.byHex[k.String()] = row.Label
	}
	return set, nil
}

func (s *decoderService) Close() error {
	s.pool.Close()
	return s.storage.Close()
}
