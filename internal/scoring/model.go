package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"AlertPulse/internal/domain/models"
)

var (
	ErrModelMissing  = errors.New("model artifact missing")
	ErrModelCorrupt  = errors.New("model artifact corrupt")
	ErrModelVersion  = errors.New("model version mismatch")
	errNotEnoughData = errors.New("not enough training samples")
)

// minTrainingSamples is the floor below which Fit refuses to produce an
// artifact; scoring then stays in the rule-confidence fallback.
const minTrainingSamples = 50

// Weights blend the three scoring terms. They are stored in the artifact so
// a score is reproducible from (feature vector, model version) alone.
type Weights struct {
	Confidence float64 `json:"confidence"`
	Novelty    float64 `json:"novelty"`
	Recency    float64 `json:"recency"`
}

// Artifact is the versioned, offline-trained novelty model. The online path
// only ever reads it.
type Artifact struct {
	Version         string             `json:"version"`
	Weights         Weights            `json:"weights"`
	Features        []string           `json:"features"` // canonical order
	Means           map[string]float64 `json:"means"`
	Stds            map[string]float64 `json:"stds"`
	Distances       []float64          `json:"distances"` // sorted training distances
	RecencyHalfLife float64            `json:"recency_half_life_seconds"`
	TrainedSamples  int                `json:"trained_samples"`
}

// distance computes the standardized Euclidean distance of a (possibly
// partial) feature vector from the training means. A missing feature
// contributes zero, i.e. it is treated as its mean.
func (a *Artifact) distance(fv models.FeatureVector) float64 {
	var sum float64
	for _, name := range a.Features {
		v, ok := fv[name]
		if !ok {
			continue
		}
		std := a.Stds[name]
		if std <= 0 {
			std = 1
		}
		d := (v - a.Means[name]) / std
		sum += d * d
	}
	return math.Sqrt(sum)
}

// noveltyPercentile maps a distance onto [0, 100] using the stored training
// distance distribution.
func (a *Artifact) noveltyPercentile(d float64) float64 {
	if len(a.Distances) == 0 {
		return 0
	}
	idx := sort.SearchFloat64s(a.Distances, d)
	return 100 * float64(idx) / float64(len(a.Distances))
}

// LoadArtifact reads and checks a model artifact. The expectedVersion guard
// keeps weights and model in lockstep; an empty expectedVersion accepts any.
func LoadArtifact(path, expectedVersion string) (*Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrModelMissing
		}
		return nil, fmt.Errorf("read model: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelCorrupt, err)
	}
	if a.Version == "" || len(a.Features) == 0 || len(a.Distances) == 0 {
		return nil, ErrModelCorrupt
	}
	if !sort.Float64sAreSorted(a.Distances) {
		return nil, ErrModelCorrupt
	}
	if expectedVersion != "" && a.Version != expectedVersion {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrModelVersion, a.Version, expectedVersion)
	}
	return &a, nil
}

// Save writes the artifact atomically (write-then-rename).
func (a *Artifact) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("model dir: %w", err)
	}
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename model: %w", err)
	}
	return nil
}

// Outcome is one labeled historical alert used for out-of-band training.
type Outcome struct {
	Features models.FeatureVector `json:"features"`
	Useful   bool                 `json:"useful"`
}

// Fit trains a novelty model from historical candidate contexts. The label
// is kept for future supervised work but the novelty statistics are
// unsupervised: feature means/stds plus the distance distribution of the
// training set itself.
func Fit(outcomes []Outcome, version string, weights Weights, recencyHalfLife float64) (*Artifact, error) {
	if len(outcomes) < minTrainingSamples {
		return nil, fmt.Errorf("%w: %d < %d", errNotEnoughData, len(outcomes), minTrainingSamples)
	}

	names := map[string]struct{}{}
	for _, o := range outcomes {
		for k := range o.Features {
			names[k] = struct{}{}
		}
	}
	features := make([]string, 0, len(names))
	for k := range names {
		features = append(features, k)
	}
	sort.Strings(features)

	means := make(map[string]float64, len(features))
	stds := make(map[string]float64, len(features))
	for _, name := range features {
		var sum, count float64
		for _, o := range outcomes {
			if v, ok := o.Features[name]; ok {
				sum += v
				count++
			}
		}
		mean := sum / math.Max(count, 1)
		var sq float64
		for _, o := range outcomes {
			if v, ok := o.Features[name]; ok {
				sq += (v - mean) * (v - mean)
			}
		}
		means[name] = mean
		stds[name] = math.Sqrt(sq / math.Max(count, 1))
	}

	a := &Artifact{
		Version:         version,
		Weights:         weights,
		Features:        features,
		Means:           means,
		Stds:            stds,
		RecencyHalfLife: recencyHalfLife,
		TrainedSamples:  len(outcomes),
	}

	distances := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		distances = append(distances, a.distance(o.Features))
	}
	sort.Float64s(distances)
	a.Distances = distances

	return a, nil
}
